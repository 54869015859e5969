// Package errors provides structured error types for the Cincinnati services.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the graph-builder and policy-engine
//   - Machine-readable error codes for mapping onto HTTP statuses
//   - Error wrapping with context preservation for operator logs
//
// # Error Codes
//
// Error codes follow the failure taxonomy of the update-graph pipeline:
//   - INVALID_SCOPE: request parameters do not form an allowed graph scope
//   - UNKNOWN_SCOPE: the scope is valid but no scraper serves it
//   - UPSTREAM_ERROR: upstream failures (fetch, status, parse); the
//     Transient marker tells which of them may clear on their own
//   - ASSEMBLY_ERROR: upstream documents could not be combined into a graph
//   - SERIALIZATION_ERROR: the assembled graph could not be encoded
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidScope, "empty basearch")
//	if errors.Is(err, errors.ErrCodeInvalidScope) {
//	    // respond 400
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeUpstream, origErr, "fetching %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for the failure kinds the services distinguish.
const (
	// Request validation errors
	ErrCodeInvalidScope  Code = "INVALID_SCOPE"
	ErrCodeUnknownScope  Code = "UNKNOWN_SCOPE"
	ErrCodeScopeMismatch Code = "SCOPE_MISMATCH"

	// Upstream and processing errors
	ErrCodeUpstream      Code = "UPSTREAM_ERROR"
	ErrCodeAssembly      Code = "ASSEMBLY_ERROR"
	ErrCodeSerialization Code = "SERIALIZATION_ERROR"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code      Code   // Machine-readable error code
	Message   string // Human-readable message
	Transient bool   // A later retry of the same operation may succeed
	Cause     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// NewTransient creates a transient Error: the failure is tied to upstream
// state that may clear on its own, so retrying the operation is reasonable.
func NewTransient(code Code, format string, args ...any) *Error {
	e := New(code, format, args...)
	e.Transient = true
	return e
}

// WrapTransient creates a transient Error wrapping an existing error.
func WrapTransient(code Code, cause error, format string, args ...any) *Error {
	e := Wrap(code, cause, format, args...)
	e.Transient = true
	return e
}

// IsTransient reports whether err carries the transient marker.
// It unwraps the error chain looking for an *Error.
func IsTransient(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Transient
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
