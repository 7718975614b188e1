// Package study loads study definitions written in CUE and compiles
// them into matching-run configurations.
//
// A definition names the input tables and the matching parameters:
//
//	study: {
//		name: "statin-mi"
//		cases: {table: "mi_cases"}
//		pool:  {table: "candidates"}
//		n_controls: 2
//		match_vars: ["sex", "yob"]
//		method: "incidence_density"
//		index_date_field: "diag_date"
//	}
package study

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/cohortmatch/internal/match"
)

// DefaultIDColumn is the subject-identifier column assumed when a table
// reference does not name one.
const DefaultIDColumn = "id"

// TableRef names a source table and its identifier column.
type TableRef struct {
	Table    string
	IDColumn string
}

// Study is a compiled study definition: where the inputs live plus the
// full matching configuration.
type Study struct {
	Name   string
	Cases  TableRef
	Pool   TableRef
	Config match.Config
}

// CompileError reports a problem in a study definition, with source
// position when CUE can supply one.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads a CUE study definition from path and compiles it.
func Load(path string) (*Study, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read study definition: %w", err)
	}

	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	root := v.LookupPath(cue.ParsePath("study"))
	if !root.Exists() {
		return nil, &CompileError{
			Field:   "study",
			Message: "definition must contain a top-level study block",
			Pos:     v.Pos(),
		}
	}

	return Compile(root)
}

// Compile parses a CUE value holding the study block itself.
func Compile(v cue.Value) (*Study, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	s := &Study{}

	name, err := requireString(v, "name")
	if err != nil {
		return nil, err
	}
	s.Name = name

	s.Cases, err = parseTableRef(v, "cases")
	if err != nil {
		return nil, err
	}
	s.Pool, err = parseTableRef(v, "pool")
	if err != nil {
		return nil, err
	}

	n, err := requireInt(v, "n_controls")
	if err != nil {
		return nil, err
	}
	s.Config.NControls = int(n)

	s.Config.MatchVars, err = requireStringList(v, "match_vars")
	if err != nil {
		return nil, err
	}

	s.Config.ExtraVars, err = optionalStringList(v, "extra_vars")
	if err != nil {
		return nil, err
	}
	s.Config.ExtraCondition, err = optionalString(v, "extra_condition")
	if err != nil {
		return nil, err
	}

	method, err := requireString(v, "method")
	if err != nil {
		return nil, err
	}
	s.Config.Method = match.Method(method)

	s.Config.IndexDateField, err = optionalString(v, "index_date_field")
	if err != nil {
		return nil, err
	}
	s.Config.EventDateField, err = optionalString(v, "event_date_field")
	if err != nil {
		return nil, err
	}
	s.Config.EventDateFields, err = optionalStringList(v, "event_date_fields")
	if err != nil {
		return nil, err
	}

	workers, err := optionalInt(v, "workers", 1)
	if err != nil {
		return nil, err
	}
	s.Config.Workers = int(workers)

	s.Config.Seed, err = optionalInt(v, "seed", 0)
	if err != nil {
		return nil, err
	}

	s.Config.Track, err = optionalBool(v, "track")
	if err != nil {
		return nil, err
	}

	return s, nil
}

// parseTableRef parses cases/pool blocks. The table name is required,
// the identifier column defaults to DefaultIDColumn.
func parseTableRef(v cue.Value, field string) (TableRef, error) {
	block := v.LookupPath(cue.ParsePath(field))
	if !block.Exists() {
		return TableRef{}, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s block is required", field),
			Pos:     v.Pos(),
		}
	}

	table, err := requireString(block, "table")
	if err != nil {
		return TableRef{}, &CompileError{
			Field:   field + ".table",
			Message: "table name is required",
			Pos:     block.Pos(),
		}
	}

	id, err := optionalString(block, "id")
	if err != nil {
		return TableRef{}, err
	}
	if id == "" {
		id = DefaultIDColumn
	}

	return TableRef{Table: table, IDColumn: id}, nil
}

func requireString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s is required", field),
			Pos:     v.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func requireInt(v cue.Value, field string) (int64, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s is required", field),
			Pos:     v.Pos(),
		}
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return n, nil
}

func optionalInt(v cue.Value, field string, def int64) (int64, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return def, nil
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return n, nil
}

func optionalBool(v cue.Value, field string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func requireStringList(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s is required", field),
			Pos:     v.Pos(),
		}
	}
	return stringList(fv, field)
}

func optionalStringList(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	return stringList(fv, field)
}

func stringList(v cue.Value, field string) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s must be a list of strings", field),
			Pos:     v.Pos(),
		}
	}

	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
