package match

import (
	"strconv"

	"github.com/roach88/cohortmatch/internal/cohort"
)

// Output column names. The fixed columns come first, then the match
// variables, then the extra variables.
const (
	ColSetID     = "set_id"
	ColCaseID    = "case_id"
	ColSubjectID = "subject_id"
	ColRole      = "role"

	RoleCase    = "case"
	RoleControl = "control"
)

// assembler accumulates matched sets into the output table.
// Sets must be appended in case input order; the orchestrator reorders
// parallel results before assembly.
type assembler struct {
	cfg   *Config
	table *cohort.Table
}

func newAssembler(cfg *Config) *assembler {
	columns := []string{ColSetID, ColCaseID, ColSubjectID, ColRole}
	columns = append(columns, cfg.MatchVars...)
	columns = append(columns, cfg.ExtraVars...)
	return &assembler{
		cfg:   cfg,
		table: cohort.NewTable(columns...),
	}
}

// add appends one matched set: the case's own row first, then each
// matched control row. A case with zero controls still appears as a
// singleton group rather than being silently dropped.
func (a *assembler) add(set matchedSet) {
	setID := strconv.Itoa(set.ordinal)

	a.table.Append(a.row(setID, set.caseRec, set.caseRec, RoleCase))
	for _, ctrl := range set.controls {
		a.table.Append(a.row(setID, set.caseRec, ctrl, RoleControl))
	}
}

func (a *assembler) row(setID string, caseRec, subject cohort.Record, role string) cohort.Record {
	fields := map[string]cohort.Value{
		ColSetID:     cohort.NewString(setID),
		ColCaseID:    cohort.NewString(caseRec.ID),
		ColSubjectID: cohort.NewString(subject.ID),
		ColRole:      cohort.NewString(role),
	}
	for _, v := range a.cfg.MatchVars {
		fields[v] = subject.Get(v)
	}
	for _, v := range a.cfg.ExtraVars {
		fields[v] = subject.Get(v)
	}
	return cohort.Record{ID: subject.ID, Fields: fields}
}
