// Package errors provides structured error types for the luraster pipeline.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across pipeline stages and the CLI
//   - Machine-readable error codes for programmatic handling
//   - Operator-facing messages carrying enough context to fix the
//     configuration and re-run a single stage
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Every fatal pipeline condition has its own code:
//   - UNALIGNED_GRID: a vector layer cannot be rasterized onto the grid
//   - GRID_MISMATCH: merge or diff inputs do not share the grid definition
//   - UNMAPPED_CODE: the lookup table does not cover a produced code
//   - EMPTY_LAYER: a declared input layer yields no geometries
//   - IO_READ / IO_WRITE: artifact unreadable or unwritable
//
// # Usage
//
//	err := errors.New(errors.ErrCodeGridMismatch, "raster %q: cell size %g, want %g", name, got, want)
//	if errors.Is(err, errors.ErrCodeGridMismatch) {
//	    // Handle misalignment
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeIORead, origErr, "open raster %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different failure categories.
const (
	// Spatial alignment errors
	ErrCodeUnalignedGrid Code = "UNALIGNED_GRID"
	ErrCodeGridMismatch  Code = "GRID_MISMATCH"

	// Classification errors
	ErrCodeUnmappedCode Code = "UNMAPPED_CODE"
	ErrCodeCodeConflict Code = "CODE_CONFLICT"

	// Input errors
	ErrCodeEmptyLayer    Code = "EMPTY_LAYER"
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"
	ErrCodeInvalidStage  Code = "INVALID_STAGE"

	// Artifact IO errors
	ErrCodeIORead  Code = "IO_READ"
	ErrCodeIOWrite Code = "IO_WRITE"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
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
