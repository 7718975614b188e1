package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/cohortmatch/internal/export"
	"github.com/roach88/cohortmatch/internal/match"
	"github.com/roach88/cohortmatch/internal/store"
	"github.com/roach88/cohortmatch/internal/study"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	OutTable string
	OutCSV   string
	Seed     int64
	Workers  int
	Progress bool
}

// RunSummary is the run command's result payload.
type RunSummary struct {
	RunID      string            `json:"run_id"`
	Study      string            `json:"study"`
	Cases      int               `json:"cases"`
	Rows       int               `json:"rows"`
	Table      string            `json:"table"`
	CSV        string            `json:"csv,omitempty"`
	Shortfalls []match.Shortfall `json:"shortfalls,omitempty"`
}

func (s RunSummary) String() string {
	out := fmt.Sprintf("run %s: %d cases, %d rows written to %s",
		s.RunID, s.Cases, s.Rows, s.Table)
	if s.CSV != "" {
		out += fmt.Sprintf(" and %s", s.CSV)
	}
	if len(s.Shortfalls) > 0 {
		out += fmt.Sprintf(" (%d cases short of controls)", len(s.Shortfalls))
	}
	return out
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <study.cue>",
		Short: "Execute a study definition against a cohort database",
		Long: `Execute a matching run described by a CUE study definition.

The case and pool tables are read from the SQLite database, controls
are selected per the study's parameters, and the matched-set table is
written back to the database (and optionally to CSV).

Example:
  cohortmatch run --db cohort.db ./study.cue
  cohortmatch run --db cohort.db --out matched.csv --workers 8 ./study.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStudy(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.OutTable, "table", "matched", "output table name")
	cmd.Flags().StringVarP(&opts.OutCSV, "out", "o", "", "also write the matched table to this CSV file")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "override the study's random seed")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "override the study's worker count")
	cmd.Flags().BoolVar(&opts.Progress, "progress", false, "log progress per matched case")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runStudy(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	s, err := study.Load(path)
	if err != nil {
		_ = formatter.Error("DEFINITION", err.Error())
		return WrapExitError(ExitCommandError, "failed to load study definition", err)
	}

	// Flags override the definition when set explicitly.
	if cmd.Flags().Changed("seed") {
		s.Config.Seed = opts.Seed
	}
	if cmd.Flags().Changed("workers") {
		s.Config.Workers = opts.Workers
	}
	if opts.Progress {
		s.Config.Track = true
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error("DATABASE", err.Error())
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	slog.Info("loading cohort tables",
		"study", s.Name,
		"cases_table", s.Cases.Table,
		"pool_table", s.Pool.Table,
	)
	cases, err := st.ReadTable(ctx, s.Cases.Table, s.Cases.IDColumn)
	if err != nil {
		_ = formatter.Error("DATABASE", err.Error())
		return WrapExitError(ExitCommandError, "failed to read cases table", err)
	}
	pool, err := st.ReadTable(ctx, s.Pool.Table, s.Pool.IDColumn)
	if err != nil {
		_ = formatter.Error("DATABASE", err.Error())
		return WrapExitError(ExitCommandError, "failed to read pool table", err)
	}

	result, err := match.Run(ctx, cases, pool, s.Config)
	if err != nil {
		var cfgErr *match.ConfigError
		if errors.As(err, &cfgErr) {
			_ = formatter.Error(string(cfgErr.Code), cfgErr.Message)
			return WrapExitError(ExitCommandError, "invalid study configuration", err)
		}
		_ = formatter.Error("RUN", err.Error())
		return WrapExitError(ExitFailure, "matching run failed", err)
	}

	if err := st.WriteTable(ctx, opts.OutTable, result.Table); err != nil {
		_ = formatter.Error("DATABASE", err.Error())
		return WrapExitError(ExitFailure, "failed to write matched table", err)
	}
	if opts.OutCSV != "" {
		if err := export.WriteCSVFile(opts.OutCSV, result.Table); err != nil {
			_ = formatter.Error("EXPORT", err.Error())
			return WrapExitError(ExitFailure, "failed to write CSV", err)
		}
	}

	return formatter.Success(RunSummary{
		RunID:      result.RunID,
		Study:      s.Name,
		Cases:      cases.Len(),
		Rows:       result.Table.Len(),
		Table:      opts.OutTable,
		CSV:        opts.OutCSV,
		Shortfalls: result.Shortfalls,
	})
}

// signalContext derives a context cancelled by SIGINT/SIGTERM so a long
// run shuts down without leaving a half-written output table.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, cancelling run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}
