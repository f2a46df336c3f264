package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/haggle/internal/router"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // rejected command, failed scenario, replay mismatch
	ExitCommandError = 2 // unusable config, missing database, bad flags
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func NewExitError(code int, message string) *ExitError {
	return WrapExitError(code, message, nil)
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code. Errors that are not an
// ExitError exit with ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter renders command results as text or as a JSON envelope.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
}

// CLIResponse is the --format=json envelope.
type CLIResponse struct {
	Status  string    `json:"status"` // "ok" or "error"
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
	Error   *CLIError `json:"error,omitempty"`
}

// CLIError mirrors a router error code, or an E_* code for CLI-level failures.
type CLIError struct {
	Code    string `json:"code,omitempty"` // "E201", "E_DETERMINISM", etc.
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success prints message and data. Text mode indents non-string data as JSON.
func (f *OutputFormatter) Success(message string, data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Message: message, Data: data})
	}

	if message != "" {
		fmt.Fprintln(f.Writer, message)
	}
	if data == nil {
		return nil
	}
	if s, ok := data.(string); ok {
		fmt.Fprintln(f.Writer, s)
		return nil
	}
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// Error prints a failure. It never returns the failure itself; callers decide the exit code.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	if code != "" {
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	} else {
		fmt.Fprintf(f.Writer, "Error: %s\n", message)
	}
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Reply renders a router reply. A rejected command becomes ExitFailure.
func (f *OutputFormatter) Reply(r router.Reply) error {
	if r.OK {
		return f.Success(r.Message, r.Data)
	}
	if err := f.Error(r.Code, r.Error, nil); err != nil {
		return err
	}
	return NewExitError(ExitFailure, r.Error)
}

// VerboseLog writes to the diagnostic writer when --verbose is set.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
