// Package testutil provides deterministic fixtures shared by engine and
// adapter tests: compact cohort-table builders and a recording progress
// tracker.
package testutil

import (
	"sort"
	"sync"

	"github.com/roach88/cohortmatch/internal/cohort"
)

// Row is a compact literal form for one test record. The "id" key is
// required and becomes the record ID (also kept as a field so tables
// built here look like tables read from a datastore).
type Row map[string]cohort.Value

// Table builds a cohort.Table from row literals. Columns are the union
// of row keys with "id" first and the rest sorted, so fixtures are
// stable regardless of map order.
func Table(rows ...Row) *cohort.Table {
	colSet := map[string]bool{}
	for _, r := range rows {
		for k := range r {
			colSet[k] = true
		}
	}

	columns := []string{"id"}
	var rest []string
	for k := range colSet {
		if k != "id" {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	columns = append(columns, rest...)

	t := cohort.NewTable(columns...)
	for _, r := range rows {
		id := ""
		if v, ok := r["id"]; ok {
			id = cohort.Render(v)
		}
		fields := make(map[string]cohort.Value, len(r))
		for k, v := range r {
			fields[k] = v
		}
		t.Append(cohort.Record{ID: id, Fields: fields})
	}
	return t
}

// S, I, F, D, NA are shorthand value constructors for fixtures.
func S(s string) cohort.Value  { return cohort.NewString(s) }
func I(n int64) cohort.Value   { return cohort.Int(n) }
func F(f float64) cohort.Value { return cohort.Float(f) }
func NA() cohort.Value         { return cohort.Null{} }

// D parses an ISO date or panics; fixtures only.
func D(s string) cohort.Value {
	d, err := cohort.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// RecordingTracker counts progress callbacks per case for assertions on
// the exactly-once contract. Safe for concurrent invocation.
type RecordingTracker struct {
	mu    sync.Mutex
	calls map[string]int
}

// NewRecordingTracker creates an empty tracker.
func NewRecordingTracker() *RecordingTracker {
	return &RecordingTracker{calls: make(map[string]int)}
}

// Track is the callback to hand to the engine.
func (r *RecordingTracker) Track(position int, caseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[caseID]++
}

// Calls returns a copy of the per-case invocation counts.
func (r *RecordingTracker) Calls() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.calls))
	for k, v := range r.calls {
		out[k] = v
	}
	return out
}
