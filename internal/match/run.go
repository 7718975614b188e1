package match

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/cohortmatch/internal/cohort"
	"github.com/roach88/cohortmatch/internal/filter"
)

// Shortfall reports one case that received fewer controls than
// requested. Recoverable: the run completes and the case's set is
// emitted with the smaller count.
type Shortfall struct {
	CaseID   string
	Position int // 1-based input position
	Want     int
	Got      int
}

// Result is the outcome of one matching run.
type Result struct {
	// RunID is a UUIDv7 identifying this run in logs and downstream
	// storage.
	RunID string

	// Table is the assembled output: one row per case plus one row per
	// matched control, in case input order.
	Table *cohort.Table

	// Shortfalls lists cases that received fewer than NControls
	// controls, in case input order.
	Shortfalls []Shortfall
}

// Run executes one matching run over the supplied tables.
//
// All configuration validation happens before any matching work; a
// ConfigError means no work was performed. After validation the run
// either completes all cases or fails as a whole - there is no
// partial-result contract. The input tables are never mutated.
func Run(ctx context.Context, cases, pool *cohort.Table, cfg Config) (*Result, error) {
	extra, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateColumns(cases, pool, extra); err != nil {
		return nil, err
	}

	runID := uuid.Must(uuid.NewV7()).String()
	workers := cfg.workers()

	if cfg.Method == MethodExact && cfg.Workers > 1 {
		// Downgrade, not an error: exact matching depends on serialized
		// pool mutation.
		slog.Warn("exact matching is single-threaded; ignoring worker count",
			"run_id", runID,
			"requested_workers", cfg.Workers,
		)
	}

	eventField := cfg.resolveEventDateField(pool)
	if cfg.Method == MethodIncidenceDensity && cfg.IndexDateField != "" && eventField == "" {
		slog.Warn("pool records no event dates; all controls treated as at risk",
			"run_id", runID,
			"index_date_field", cfg.IndexDateField,
		)
	}

	slog.Info("matching run starting",
		"run_id", runID,
		"method", cfg.Method,
		"cases", cases.Len(),
		"pool", pool.Len(),
		"n_controls", cfg.NControls,
		"workers", workers,
	)

	matcher := newMatcher(&cfg, NewPool(pool), extra, eventField)
	tracker := cfg.tracker()

	var sets []matchedSet
	if matcher.parallel() && workers > 1 {
		sets, err = runParallel(ctx, matcher, cases, workers, tracker)
	} else {
		sets, err = runSequential(ctx, matcher, cases, tracker)
	}
	if err != nil {
		return nil, err
	}

	result := &Result{RunID: runID}
	asm := newAssembler(&cfg)
	for _, set := range sets {
		asm.add(set)
		if set.shortfall > 0 {
			slog.Warn("fewer eligible controls than requested",
				"run_id", runID,
				"case_id", set.caseRec.ID,
				"position", set.ordinal,
				"want", cfg.NControls,
				"got", len(set.controls),
			)
			result.Shortfalls = append(result.Shortfalls, Shortfall{
				CaseID:   set.caseRec.ID,
				Position: set.ordinal,
				Want:     cfg.NControls,
				Got:      len(set.controls),
			})
		}
	}
	result.Table = asm.table

	slog.Info("matching run complete",
		"run_id", runID,
		"sets", cases.Len(),
		"rows", result.Table.Len(),
		"shortfalls", len(result.Shortfalls),
	)

	return result, nil
}

// newMatcher selects the strategy variant for the configured method.
// cfg.validate has already rejected unknown methods.
func newMatcher(cfg *Config, pool *Pool, extra filter.Expr, eventField string) caseMatcher {
	if cfg.Method == MethodExact {
		return &exactMatcher{cfg: cfg, pool: pool, extra: extra, eventField: eventField}
	}
	return &densityMatcher{cfg: cfg, pool: pool, extra: extra, eventField: eventField}
}

// runSequential processes cases one at a time in input order. Used for
// the exact discipline (mandatory) and for incidence_density with a
// single worker.
func runSequential(ctx context.Context, m caseMatcher, cases *cohort.Table, track Tracker) ([]matchedSet, error) {
	sets := make([]matchedSet, 0, cases.Len())
	for i, caseRec := range cases.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ordinal := i + 1
		set, err := m.matchCase(ordinal, caseRec)
		if err != nil {
			return nil, &caseError{caseID: caseRec.ID, ordinal: ordinal, err: err}
		}
		sets = append(sets, set)

		if track != nil {
			track(ordinal, caseRec.ID)
		}
	}
	return sets, nil
}

// runParallel distributes per-case units across a fixed worker pool and
// reassembles results in input order. Fail-fast: the first case error
// cancels the group and fails the run; partial results are not returned.
func runParallel(ctx context.Context, m caseMatcher, cases *cohort.Table, workers int, track Tracker) ([]matchedSet, error) {
	sets := make([]matchedSet, cases.Len())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, caseRec := range cases.Rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			ordinal := i + 1
			set, err := m.matchCase(ordinal, caseRec)
			if err != nil {
				return &caseError{caseID: caseRec.ID, ordinal: ordinal, err: err}
			}
			sets[i] = set

			// Exactly once per case; ordering across cases unspecified.
			if track != nil {
				track(ordinal, caseRec.ID)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("parallel matching: %w", err)
	}
	return sets, nil
}

// tracker returns the effective progress callback, or nil when tracking
// is disabled.
func (cfg *Config) tracker() Tracker {
	if !cfg.Track {
		return nil
	}
	if cfg.Tracker != nil {
		return cfg.Tracker
	}
	return func(position int, caseID string) {
		slog.Info("case matched", "position", position, "case_id", caseID)
	}
}
