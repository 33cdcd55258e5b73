package ir

import (
	"errors"
	"fmt"
)

// Error is the structured error returned across the store boundary.
//
// Every failure surfaced to callers maps to one stable Code:
//   - SCHEMA_ERROR: unknown type, attribute, reference or sort field
//   - CONFLICT: optimistic version mismatch on save
//   - VALIDATION_ERROR: malformed search literal or invalid paging
//   - CORRUPTION: a revision chain without exactly one head
//   - NOT_FOUND: identifier has no current head revision
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context (ids, versions, attribute names).
	Details map[string]string
}

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	ErrCodeSchema     ErrorCode = "SCHEMA_ERROR"
	ErrCodeConflict   ErrorCode = "CONFLICT"
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrCodeCorruption ErrorCode = "CORRUPTION"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches another *Error with the same code, so errors.Is works against
// the sentinel values below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Code == e.Code
}

// With returns a copy of e carrying an extra detail.
func (e *Error) With(key, value string) *Error {
	details := make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &Error{Code: e.Code, Message: e.Message, Details: details}
}

// Sentinels for errors.Is. They carry no message.
var (
	ErrSchema     = &Error{Code: ErrCodeSchema}
	ErrConflict   = &Error{Code: ErrCodeConflict}
	ErrValidation = &Error{Code: ErrCodeValidation}
	ErrCorruption = &Error{Code: ErrCodeCorruption}
	ErrNotFound   = &Error{Code: ErrCodeNotFound}
)

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewSchemaError creates a SCHEMA_ERROR.
func NewSchemaError(format string, args ...any) *Error {
	return newError(ErrCodeSchema, format, args...)
}

// NewConflictError creates a CONFLICT for an element whose stored version
// differs from the expected one.
func NewConflictError(id string, expected, stored int64) *Error {
	return &Error{
		Code:    ErrCodeConflict,
		Message: fmt.Sprintf("element %s was modified (expected version %d, stored %d)", id, expected, stored),
		Details: map[string]string{
			"id":       id,
			"expected": fmt.Sprintf("%d", expected),
			"stored":   fmt.Sprintf("%d", stored),
		},
	}
}

// NewValidationError creates a VALIDATION_ERROR.
func NewValidationError(format string, args ...any) *Error {
	return newError(ErrCodeValidation, format, args...)
}

// NewCorruptionError creates a CORRUPTION error.
func NewCorruptionError(format string, args ...any) *Error {
	return newError(ErrCodeCorruption, format, args...)
}

// NewNotFoundError creates a NOT_FOUND error for an element id.
func NewNotFoundError(id string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("element %s not found", id),
		Details: map[string]string{"id": id},
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "" when
// err carries none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsSchema reports whether err is a SCHEMA_ERROR.
func IsSchema(err error) bool { return CodeOf(err) == ErrCodeSchema }

// IsConflict reports whether err is a CONFLICT.
func IsConflict(err error) bool { return CodeOf(err) == ErrCodeConflict }

// IsValidation reports whether err is a VALIDATION_ERROR.
func IsValidation(err error) bool { return CodeOf(err) == ErrCodeValidation }

// IsCorruption reports whether err is a CORRUPTION error.
func IsCorruption(err error) bool { return CodeOf(err) == ErrCodeCorruption }

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }
