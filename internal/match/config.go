package match

import (
	"fmt"

	"github.com/roach88/cohortmatch/internal/cohort"
	"github.com/roach88/cohortmatch/internal/filter"
)

// Method selects the sampling discipline.
type Method string

const (
	// MethodIncidenceDensity is risk-set matching: the pool is immutable
	// for the run and a control may serve several cases, provided it was
	// still event-free at each case's index date.
	MethodIncidenceDensity Method = "incidence_density"

	// MethodExact removes a control from the pool once assigned,
	// preventing any reuse across cases.
	MethodExact Method = "exact"
)

// Tracker is the progress callback, invoked exactly once per completed
// case with the case's 1-based position and identifier.
//
// Observation only: a tracker must never influence matching results.
// Under the parallel discipline invocation order across cases is
// unspecified and concurrent invocations are the caller's responsibility
// to make safe.
type Tracker func(position int, caseID string)

// DefaultEventDateFields lists the pool columns probed, in order, for a
// control's recorded event/outcome date when EventDateField is not set.
// An explicit configuration value, not process-wide state: concurrent
// runs with different conventions do not interfere.
var DefaultEventDateFields = []string{"event_date", "evt_date", "outcome_date"}

// Config is the full configuration surface for one matching run.
type Config struct {
	// NControls is the target number of controls per case. Required, positive.
	NControls int

	// MatchVars are the columns requiring exact equality between a case
	// and its controls. Required, non-empty.
	MatchVars []string

	// ExtraVars are columns carried through to the output without
	// affecting eligibility.
	ExtraVars []string

	// ExtraCondition is an optional eligibility expression over
	// case/control fields (see package filter). Empty means none.
	ExtraCondition string

	// Method is the sampling discipline.
	Method Method

	// IndexDateField names the cases column holding the index/diagnosis
	// date. Used only under incidence_density; a case with a null index
	// date imposes no temporal constraint.
	IndexDateField string

	// EventDateField names the pool column holding a control's own
	// recorded event/outcome date. When empty it is resolved against
	// EventDateFields (then DefaultEventDateFields) at run start.
	EventDateField string

	// EventDateFields overrides the candidate list used to resolve
	// EventDateField. Nil means DefaultEventDateFields.
	EventDateFields []string

	// Workers is the parallel worker count under incidence_density.
	// Values below 1 mean 1. Ignored, with a notice, under exact.
	Workers int

	// Seed fixes the run's random stream. Runs with equal seed, inputs,
	// and configuration produce identical output at any worker count.
	Seed int64

	// Track enables progress reporting.
	Track bool

	// Tracker receives progress callbacks when Track is set. Nil with
	// Track enabled falls back to a slog-based tracker.
	Tracker Tracker
}

// Validate checks the table-independent parts of the configuration
// without running a match. Table column checks still happen at run
// start, when the tables are known.
func (cfg *Config) Validate() error {
	_, err := cfg.validate()
	return err
}

// validate checks the table-independent parts of the configuration and
// parses the extra condition. Returns the parsed expression (nil when
// none) so validation parses exactly once.
func (cfg *Config) validate() (filter.Expr, error) {
	if cfg.NControls <= 0 {
		return nil, &ConfigError{
			Code:    ErrCodeBadNControls,
			Message: fmt.Sprintf("n_controls must be positive, got %d", cfg.NControls),
		}
	}

	switch cfg.Method {
	case MethodIncidenceDensity, MethodExact:
	default:
		return nil, &ConfigError{
			Code:    ErrCodeBadMethod,
			Message: fmt.Sprintf("method %q is not one of %q, %q", cfg.Method, MethodIncidenceDensity, MethodExact),
		}
	}

	if len(cfg.MatchVars) == 0 {
		return nil, &ConfigError{
			Code:    ErrCodeNoMatchVars,
			Message: "match_vars must name at least one column",
		}
	}

	if cfg.ExtraCondition == "" {
		return nil, nil
	}

	expr, err := filter.Parse(cfg.ExtraCondition)
	if err != nil {
		return nil, &ConfigError{
			Code:    ErrCodeBadExpression,
			Message: fmt.Sprintf("extra condition: %v", err),
		}
	}
	return expr, nil
}

// validateColumns verifies every referenced column against the input
// tables. All checks run before any matching work: a bad reference fails
// the run with no partial output.
func (cfg *Config) validateColumns(cases, pool *cohort.Table, extra filter.Expr) error {
	for _, v := range cfg.MatchVars {
		if err := requireColumn(cases, "cases", v); err != nil {
			return err
		}
		if err := requireColumn(pool, "pool", v); err != nil {
			return err
		}
	}

	for _, v := range cfg.ExtraVars {
		if err := requireColumn(cases, "cases", v); err != nil {
			return err
		}
		if err := requireColumn(pool, "pool", v); err != nil {
			return err
		}
	}

	if cfg.Method == MethodIncidenceDensity && cfg.IndexDateField != "" {
		if err := requireColumn(cases, "cases", cfg.IndexDateField); err != nil {
			return err
		}
	}

	if cfg.EventDateField != "" {
		if err := requireColumn(pool, "pool", cfg.EventDateField); err != nil {
			return err
		}
	}

	if extra != nil {
		for _, ref := range filter.Fields(extra) {
			if ref.Subject == filter.SubjectCase {
				if err := requireColumn(cases, "cases", ref.Name); err != nil {
					return err
				}
			} else {
				if err := requireColumn(pool, "pool", ref.Name); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func requireColumn(t *cohort.Table, label, name string) error {
	if !t.HasColumn(name) {
		return &ConfigError{
			Code:    ErrCodeMissingColumn,
			Message: fmt.Sprintf("column %q not present in %s table", name, label),
			Column:  name,
			Table:   label,
		}
	}
	return nil
}

// resolveEventDateField picks the pool column carrying a control's
// recorded event date. Returns "" when the pool records no dates at all,
// in which case every control is treated as event-free.
func (cfg *Config) resolveEventDateField(pool *cohort.Table) string {
	if cfg.EventDateField != "" {
		return cfg.EventDateField
	}

	candidates := cfg.EventDateFields
	if candidates == nil {
		candidates = DefaultEventDateFields
	}

	// The case index-date column name is tried first: pools exported from
	// the same source table often reuse it.
	if cfg.IndexDateField != "" && pool.HasColumn(cfg.IndexDateField) {
		return cfg.IndexDateField
	}
	for _, name := range candidates {
		if pool.HasColumn(name) {
			return name
		}
	}
	return ""
}

// workers returns the effective worker count for the discipline.
func (cfg *Config) workers() int {
	if cfg.Method == MethodExact {
		return 1
	}
	if cfg.Workers < 1 {
		return 1
	}
	return cfg.Workers
}
