// Package strataerr defines the flat, stable error taxonomy every
// Strata component propagates through. Components wrap underlying
// causes with fmt.Errorf("...: %w", err), but every mutation-facing
// error is ultimately one of the Codes below so callers can branch on
// it with errors.As / Is.
package strataerr

import (
	"errors"
	"fmt"
)

// Code is one member of the flat error taxonomy.
type Code string

const (
	InvalidInput       Code = "invalid_input"
	NotFound           Code = "not_found"
	AlreadyExists      Code = "already_exists"
	Conflict           Code = "conflict"
	ReadOnly           Code = "read_only"
	BranchNotFound     Code = "branch_not_found"
	CollectionNotFound Code = "collection_not_found"
	DimensionMismatch  Code = "dimension_mismatch"
	InvalidEmbedding   Code = "invalid_embedding"
	JsonPathError      Code = "json_path_error"
	LimitExceeded      Code = "limit_exceeded"
	Corruption         Code = "corruption"
	Io                 Code = "io"
	Internal           Code = "internal"
)

// Error is the concrete error type every Strata API returns for a
// failure. It always carries a Code; Cause may be nil.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// New builds a *Error with no wrapped cause.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a *Error around an existing cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is a *Error with the given code.
func Is(err error, code Code) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// CodeOf extracts the Code from err, or Internal if err is not a
// *Error (e.g. an unexpected stdlib error escaped without being
// classified — this should not happen on any tested path, but
// CodeOf never panics).
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	if err == nil {
		return ""
	}
	return Internal
}
