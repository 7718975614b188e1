package match

import "fmt"

// ConfigError reports an invalid run configuration. Config errors are
// fatal and are surfaced before any matching work begins.
type ConfigError struct {
	// Code identifies the error category.
	Code ConfigErrorCode

	// Message is a human-readable description.
	Message string

	// Column names the offending column, when applicable.
	Column string

	// Table names the input table the column was expected in.
	Table string
}

// ConfigErrorCode categorizes configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeBadNControls indicates n_controls is not a positive integer.
	ErrCodeBadNControls ConfigErrorCode = "BAD_N_CONTROLS"

	// ErrCodeBadMethod indicates an unrecognized matching method.
	ErrCodeBadMethod ConfigErrorCode = "BAD_METHOD"

	// ErrCodeNoMatchVars indicates an empty match-variable list.
	ErrCodeNoMatchVars ConfigErrorCode = "NO_MATCH_VARS"

	// ErrCodeMissingColumn indicates a referenced column is absent from
	// an input table.
	ErrCodeMissingColumn ConfigErrorCode = "MISSING_COLUMN"

	// ErrCodeBadExpression indicates the extra condition failed to parse.
	ErrCodeBadExpression ConfigErrorCode = "BAD_EXPRESSION"
)

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Column != "" && e.Table != "" {
		return fmt.Sprintf("%s: %s (column=%s, table=%s)", e.Code, e.Message, e.Column, e.Table)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// caseError wraps a failure in one case's processing with the case
// identity, so fatal run errors report which case triggered them.
type caseError struct {
	caseID  string
	ordinal int
	err     error
}

func (e *caseError) Error() string {
	return fmt.Sprintf("case %s (position %d): %v", e.caseID, e.ordinal, e.err)
}

func (e *caseError) Unwrap() error {
	return e.err
}
