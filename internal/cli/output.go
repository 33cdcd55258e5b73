package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/model"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failure (conflict, not found, failed scenarios, corrupt store)
	ExitCommandError = 2 // Command error (invalid flags, unreadable input, unreachable store)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
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
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string            `json:"code"`              // ir error code, e.g. "CONFLICT"
	Message string            `json:"message"`           // human-readable message
	Details map[string]string `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
// Text output renders entity maps one key per line; other values print as is.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}

	switch x := data.(type) {
	case model.EntityMap:
		writeEntity(f.Writer, x)
	case []model.EntityMap:
		for i, m := range x {
			if i > 0 {
				fmt.Fprintln(f.Writer)
			}
			writeEntity(f.Writer, m)
		}
	default:
		fmt.Fprintln(f.Writer, data)
	}
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details map[string]string) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && len(details) > 0 {
		for _, k := range slices.Sorted(maps.Keys(details)) {
			fmt.Fprintf(f.Writer, "  %s: %s\n", k, details[k])
		}
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
// Store errors keep their ir code and exit with ExitFailure; anything else
// is a command error.
func (f *OutputFormatter) Fail(message string, err error) error {
	var ierr *ir.Error
	if errors.As(err, &ierr) {
		if outErr := f.Error(string(ierr.Code), err.Error(), ierr.Details); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, message, err)
	}
	if outErr := f.Error("COMMAND_ERROR", fmt.Sprintf("%s: %v", message, err), nil); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitCommandError, message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
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

// headerOrder is the order header fields print in before attributes.
var headerOrder = []string{
	ir.FieldID, ir.FieldType, ir.FieldVersion, ir.FieldRevision, ir.FieldOwner,
	ir.FieldOwnerName, ir.FieldGroup, ir.FieldCreatedAt, ir.FieldChanged, ir.FieldDeleted,
}

// writeEntity prints m as "key: value" lines, header fields first, then
// attributes and references by name.
func writeEntity(w io.Writer, m model.EntityMap) {
	for _, k := range headerOrder {
		if v, ok := m[k]; ok {
			fmt.Fprintf(w, "%s: %s\n", k, textValue(v))
		}
	}
	for _, k := range slices.Sorted(maps.Keys(m)) {
		if ir.IsReserved(k) {
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", k, textValue(m[k]))
	}
}

func textValue(v any) string {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case []any:
		out := "["
		for i, item := range x {
			if i > 0 {
				out += ", "
			}
			out += textValue(item)
		}
		return out + "]"
	default:
		return fmt.Sprint(v)
	}
}
