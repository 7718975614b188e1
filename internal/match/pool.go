package match

import "github.com/roach88/cohortmatch/internal/cohort"

// Pool holds the candidate control set for one run.
//
// Under incidence_density the pool is never mutated during the run, so
// Eligible is safe for concurrent workers without locking: no writer
// exists. Under exact, Remove is invoked only by the single active
// matching unit, and each removal is visible to every subsequent case's
// eligibility query.
type Pool struct {
	records []cohort.Record
	removed map[string]bool
}

// NewPool creates a pool over the candidate table's rows.
// The table itself is read-only from the pool's perspective.
func NewPool(t *cohort.Table) *Pool {
	return &Pool{
		records: t.Rows,
		removed: make(map[string]bool),
	}
}

// Len returns the number of candidates still in the pool.
func (p *Pool) Len() int {
	return len(p.records) - len(p.removed)
}

// Eligible returns every pool member currently satisfying the predicate,
// in pool input order.
func (p *Pool) Eligible(pred *predicate) ([]cohort.Record, error) {
	var out []cohort.Record
	for _, rec := range p.records {
		if p.removed[rec.ID] {
			continue
		}
		ok, err := pred.eligible(rec)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Remove permanently removes the given controls from the pool.
// Exact discipline only; never called concurrently with Eligible.
func (p *Pool) Remove(ids []string) {
	for _, id := range ids {
		p.removed[id] = true
	}
}
