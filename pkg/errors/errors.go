// Package errors provides structured error types for barista.
//
// Every failure that crosses a component boundary carries a machine-readable
// [Code]. The scan runner persists the code of a failed scan, the HTTP API
// maps codes to status codes, and the CLI prints [UserMessage].
//
// # Error Codes
//
//   - FETCH_FAILED: a dependency fetcher could not produce a manifest (retryable)
//   - REPOSITORY_ACCESS: the git remote could not be reached or authenticated
//   - SCAN_IN_PROGRESS: the project already has a pending or running scan
//   - TIMEOUT: a scan exceeded its wall-clock budget
//   - INTERRUPTED: the process stopped while the scan was running
//   - NOT_FOUND, INVALID_INPUT, UNSUPPORTED, INTERNAL_ERROR: the usual suspects
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidInput, "invalid branch: %s", branch)
//	if errors.Is(err, errors.ErrCodeInvalidInput) {
//	    // Handle validation error
//	}
//
//	err := errors.Wrap(errors.ErrCodeFetchFailed, origErr, "npm install in %s", dir)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput   Code = "INVALID_INPUT"
	ErrCodeInvalidPackage Code = "INVALID_PACKAGE"
	ErrCodeInvalidPath    Code = "INVALID_PATH"

	// Resource errors
	ErrCodeNotFound       Code = "NOT_FOUND"
	ErrCodeScanInProgress Code = "SCAN_IN_PROGRESS"

	// Scan execution errors
	ErrCodeFetchFailed      Code = "FETCH_FAILED"
	ErrCodeRepositoryAccess Code = "REPOSITORY_ACCESS"
	ErrCodeTimeout          Code = "TIMEOUT"
	ErrCodeInterrupted      Code = "INTERRUPTED"
	ErrCodeNetwork          Code = "NETWORK_ERROR"

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

// IsRetryable reports whether a failed scan with this error may succeed when
// re-run without changes. Fetch, network and timeout failures are transient;
// repository access and input errors are not.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case ErrCodeFetchFailed, ErrCodeNetwork, ErrCodeTimeout, ErrCodeInterrupted:
		return true
	}
	return false
}
