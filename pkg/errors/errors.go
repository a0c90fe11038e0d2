// Package errors provides structured error types for Speckle.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the library and CLI
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Configuration and input validation failures
//   - CONTRACT_*: Kernel programming errors (fatal, never retried)
//   - INTERNAL_*: Unexpected internal errors
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidChunks, "chunk size %d exceeds axis length %d", c, n)
//	if errors.Is(err, errors.ErrCodeInvalidChunks) {
//	    // Handle configuration error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeInternal, origErr, "materialize %s", id)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Configuration errors, surfaced before any block executes.
	ErrCodeInvalidConfig       Code = "INVALID_CONFIG"
	ErrCodeInvalidCodec        Code = "INVALID_CODEC"
	ErrCodeInvalidChunks       Code = "INVALID_CHUNKS"
	ErrCodeIncompatibleLayout  Code = "INCOMPATIBLE_LAYOUT"
	ErrCodeInvalidDistribution Code = "INVALID_DISTRIBUTION"

	// Kernel contract violations: programming errors, fatal, never retried.
	ErrCodeContractViolation Code = "CONTRACT_VIOLATION"

	// Resource errors
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"

	// Graph errors
	ErrCodeGraphCycle   Code = "GRAPH_CYCLE"
	ErrCodeUnknownNode  Code = "UNKNOWN_NODE"
	ErrCodeGraphInvalid Code = "GRAPH_INVALID"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
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

// IsConfiguration reports whether err is a configuration error, i.e. an
// error raised while building a computation, before any block executes.
// Configuration errors are not recoverable by retrying block computations.
func IsConfiguration(err error) bool {
	switch GetCode(err) {
	case ErrCodeInvalidConfig, ErrCodeInvalidCodec, ErrCodeInvalidChunks,
		ErrCodeIncompatibleLayout, ErrCodeInvalidDistribution:
		return true
	}
	return false
}

// IsContract reports whether err is a kernel contract violation. Contract
// violations are programming errors: they abort the invocation and must
// never be retried.
func IsContract(err error) bool {
	return Is(err, ErrCodeContractViolation)
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
