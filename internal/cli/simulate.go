package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/cohortmatch/internal/simulate"
	"github.com/roach88/cohortmatch/internal/store"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Database string
	Seed     int64
}

// SimulateSummary is the simulate command's result payload.
type SimulateSummary struct {
	CasesTable    string `json:"cases_table"`
	Cases         int    `json:"cases"`
	ControlsTable string `json:"controls_table"`
	Controls      int    `json:"controls"`
}

func (s SimulateSummary) String() string {
	return fmt.Sprintf("wrote %d rows to %s and %d rows to %s",
		s.Cases, s.CasesTable, s.Controls, s.ControlsTable)
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <cohort.yaml>",
		Short: "Generate a synthetic cohort into a database",
		Long: `Generate synthetic case and control tables from a YAML cohort
specification and write them to the SQLite database. Useful for
exercising a study definition before real data arrives.

Example:
  cohortmatch simulate --db cohort.db ./cohort.yaml
  cohortmatch simulate --db cohort.db --seed 7 ./cohort.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "override the specification's random seed")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runSimulate(opts *SimulateOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	spec, err := simulate.LoadSpec(path)
	if err != nil {
		_ = formatter.Error("SPEC", err.Error())
		return WrapExitError(ExitCommandError, "failed to load cohort specification", err)
	}
	if cmd.Flags().Changed("seed") {
		spec.Seed = opts.Seed
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

	if err := simulate.Seed(ctx, st, spec); err != nil {
		_ = formatter.Error("SIMULATE", err.Error())
		return WrapExitError(ExitFailure, "failed to seed cohort", err)
	}

	return formatter.Success(SimulateSummary{
		CasesTable:    spec.Cases.Table,
		Cases:         spec.Cases.Count,
		ControlsTable: spec.Controls.Table,
		Controls:      spec.Controls.Count,
	})
}
