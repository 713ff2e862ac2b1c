// Package auditerr defines the stable error taxonomy shared by collectors,
// provider clients, and the orchestrator. Codes are wire-stable strings;
// user-facing reports carry the code and short message only, never stack
// traces.
package auditerr

import (
	"errors"
	"fmt"
)

// Code identifies a failure class.
type Code string

const (
	CodeInvalidURL       Code = "INVALID_URL"
	CodeFetchFailed      Code = "FETCH_FAILED"
	CodeTimeout          Code = "TIMEOUT"
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeAPIError         Code = "API_ERROR"
	CodeParseError       Code = "PARSE_ERROR"
	CodeCORSError        Code = "CORS_ERROR"
	CodeNetworkError     Code = "NETWORK_ERROR"
	CodeScreenshotFailed Code = "SCREENSHOT_FAILED"
)

// retryable marks the codes worth retrying. Validation and parse
// failures are deterministic and never retried.
var retryable = map[Code]bool{
	CodeFetchFailed:      true,
	CodeTimeout:          true,
	CodeRateLimited:      true,
	CodeAPIError:         true,
	CodeNetworkError:     true,
	CodeScreenshotFailed: true,
}

// Retryable reports whether the code is worth retrying.
func (c Code) Retryable() bool { return retryable[c] }

// Error is a typed audit error carrying a stable code.
type Error struct {
	Code    Code
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// New builds a typed error with the given code and message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a typed error wrapping a cause.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

// CodeOf extracts the code from err, or NETWORK_ERROR when untyped.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeNetworkError
}
