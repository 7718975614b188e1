package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cohortmatch/internal/match"
	"github.com/roach88/cohortmatch/internal/study"
)

// ValidationResult holds validation results for a study definition.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Study string `json:"study,omitempty"`
}

func (r ValidationResult) String() string {
	if r.Valid {
		return fmt.Sprintf("study %q is valid", r.Study)
	}
	return "invalid"
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <study.cue>",
		Short: "Check a study definition without running it",
		Long: `Check a CUE study definition: syntax, required fields, and the
matching parameters that can be verified without the cohort tables.
Column references are checked later, at run start.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateStudy(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidateStudy(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	s, err := study.Load(path)
	if err != nil {
		_ = formatter.Error("DEFINITION", err.Error())
		return WrapExitError(ExitCommandError, "invalid study definition", err)
	}

	if err := s.Config.Validate(); err != nil {
		code := "CONFIG"
		var cfgErr *match.ConfigError
		if errors.As(err, &cfgErr) {
			code = string(cfgErr.Code)
		}
		_ = formatter.Error(code, err.Error())
		return WrapExitError(ExitCommandError, "invalid study configuration", err)
	}

	return formatter.Success(ValidationResult{Valid: true, Study: s.Name})
}
