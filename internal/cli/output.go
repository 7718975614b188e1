package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // successful execution
	ExitFailure      = 1 // run failed mid-flight (bad cell data, cancelled run)
	ExitCommandError = 2 // command error (bad flags, bad definition, missing files)
)

// ExitError carries a specific process exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Response is the standard JSON envelope for CLI output.
type Response struct {
	Status string `json:"status"` // "ok" or "error"
	Data   any    `json:"data,omitempty"`
	Error  *Fault `json:"error,omitempty"`
}

// Fault is the error structure for CLI responses.
type Fault struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Success outputs a successful result in the configured format. In
// text mode data is printed with its String form.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{
			Status: "ok",
			Data:   data,
		})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{
			Status: "error",
			Error:  &Fault{Code: code, Message: message},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	return nil
}
