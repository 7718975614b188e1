package match

import (
	"github.com/roach88/cohortmatch/internal/cohort"
	"github.com/roach88/cohortmatch/internal/filter"
)

// matchedSet is the association between one case and its sampled
// controls. Shortfall is how many controls short of the target the set
// fell; zero for a fully matched set.
type matchedSet struct {
	ordinal   int // 1-based case position in input order
	caseRec   cohort.Record
	controls  []cohort.Record
	shortfall int
}

// caseMatcher matches a single case against the pool. The two sampling
// disciplines are explicit strategy variants behind this interface,
// selected once at run start - not runtime branching scattered through
// the orchestration loop.
type caseMatcher interface {
	// matchCase builds the case's eligibility predicate, queries the
	// pool, and samples. ordinal is the 1-based input position.
	matchCase(ordinal int, caseRec cohort.Record) (matchedSet, error)

	// parallel reports whether per-case units may run concurrently.
	parallel() bool
}

// densityMatcher implements incidence-density sampling over an immutable
// pool. Safe for concurrent matchCase calls: the pool is never written
// during the run and each case owns its RNG.
type densityMatcher struct {
	cfg        *Config
	pool       *Pool
	extra      filter.Expr
	eventField string
}

func (m *densityMatcher) parallel() bool { return true }

func (m *densityMatcher) matchCase(ordinal int, caseRec cohort.Record) (matchedSet, error) {
	pred, err := buildPredicate(caseRec, m.cfg, m.extra, m.eventField)
	if err != nil {
		return matchedSet{}, err
	}

	candidates, err := m.pool.Eligible(pred)
	if err != nil {
		return matchedSet{}, err
	}

	controls := sample(caseRNG(m.cfg.Seed, ordinal), candidates, m.cfg.NControls)

	return matchedSet{
		ordinal:   ordinal,
		caseRec:   caseRec,
		controls:  controls,
		shortfall: m.cfg.NControls - len(controls),
	}, nil
}

// exactMatcher implements exact matching with permanent removal. Not
// safe for concurrent use: each case's removal must be visible to all
// subsequent cases' eligibility queries, so the orchestrator runs this
// variant strictly sequentially in case input order.
type exactMatcher struct {
	cfg        *Config
	pool       *Pool
	extra      filter.Expr
	eventField string
}

func (m *exactMatcher) parallel() bool { return false }

func (m *exactMatcher) matchCase(ordinal int, caseRec cohort.Record) (matchedSet, error) {
	pred, err := buildPredicate(caseRec, m.cfg, m.extra, m.eventField)
	if err != nil {
		return matchedSet{}, err
	}

	candidates, err := m.pool.Eligible(pred)
	if err != nil {
		return matchedSet{}, err
	}

	controls := sample(caseRNG(m.cfg.Seed, ordinal), candidates, m.cfg.NControls)

	ids := make([]string, len(controls))
	for i, c := range controls {
		ids[i] = c.ID
	}
	m.pool.Remove(ids)

	return matchedSet{
		ordinal:   ordinal,
		caseRec:   caseRec,
		controls:  controls,
		shortfall: m.cfg.NControls - len(controls),
	}, nil
}
