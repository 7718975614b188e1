package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/cohortmatch/internal/export"
	"github.com/roach88/cohortmatch/internal/store"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Database string
	Table    string
	Output   string
	IDColumn string
}

// ExportSummary is the export command's result payload.
type ExportSummary struct {
	Table string `json:"table"`
	Rows  int    `json:"rows"`
	File  string `json:"file"`
}

func (s ExportSummary) String() string {
	return fmt.Sprintf("exported %d rows from %s to %s", s.Rows, s.Table, s.File)
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a cohort table to CSV",
		Long: `Export a table from the SQLite database to a CSV file. The file is
written atomically: it appears complete or not at all.

Example:
  cohortmatch export --db cohort.db --table matched -o matched.csv`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Table, "table", "", "table to export (required)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "destination CSV file (required)")
	cmd.Flags().StringVar(&opts.IDColumn, "id-column", "", "order rows by this identifier column instead of insertion order")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

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

	tbl, err := st.ReadTable(ctx, opts.Table, opts.IDColumn)
	if err != nil {
		_ = formatter.Error("DATABASE", err.Error())
		return WrapExitError(ExitCommandError, "failed to read table", err)
	}

	if err := export.WriteCSVFile(opts.Output, tbl); err != nil {
		_ = formatter.Error("EXPORT", err.Error())
		return WrapExitError(ExitFailure, "failed to write CSV", err)
	}

	return formatter.Success(ExportSummary{
		Table: opts.Table,
		Rows:  tbl.Len(),
		File:  opts.Output,
	})
}
