// Package errors provides structured error types for packscan.
//
// Error codes mirror the failure taxonomy of the collection pipeline:
//   - MANIFEST_*: problems reading package.json files in a local copy
//   - ACQUISITION_FAILED: a repository could not be downloaded or cloned
//   - RATE_LIMITED: the remote API asked us to slow down
//   - FATAL_STARTUP: the run was aborted before any work was scheduled
//
// # Usage
//
//	err := errors.New(errors.ErrCodeManifestNotFound, "no package.json under %s", root)
//	if errors.Is(err, errors.ErrCodeManifestNotFound) {
//	    // leave the repository uncategorized
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeAcquisition, origErr, "download %s", name)
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
	ErrCodeInvalidInput      Code = "INVALID_INPUT"
	ErrCodeInvalidPath       Code = "INVALID_PATH"
	ErrCodeInvalidTransition Code = "INVALID_TRANSITION"

	// Manifest errors
	ErrCodeManifestNotFound Code = "MANIFEST_NOT_FOUND"
	ErrCodeManifestParse    Code = "MANIFEST_PARSE"

	// Pipeline errors
	ErrCodeAcquisition  Code = "ACQUISITION_FAILED"
	ErrCodeFatalStartup Code = "FATAL_STARTUP"

	// Resource not found errors
	ErrCodeNotFound Code = "NOT_FOUND"

	// Remote API errors
	ErrCodeRateLimited Code = "RATE_LIMITED"
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
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return code == ErrCodeRateLimited
	}
	return false
}

// UserMessage returns err without error codes: the messages of a chain of
// *Error values joined by ": ", followed by the first foreign cause.
// Any other error is returned as is.
func UserMessage(err error) string {
	e, ok := err.(*Error)
	if !ok {
		return err.Error()
	}
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + UserMessage(e.Cause)
}

// RateLimitedError provides additional information for rate-limited responses.
type RateLimitedError struct {
	RetryAfter int // Seconds to wait before retrying
	Message    string
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %d seconds", e.RetryAfter)
	}
	return "rate limited"
}

// Code returns the error code for this error type.
func (e *RateLimitedError) Code() Code {
	return ErrCodeRateLimited
}
