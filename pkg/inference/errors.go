package inference

import (
	"errors"
	"fmt"
)

// ErrorClass is the coarse-grained taxonomy from spec.md §7: each class has
// its own retry/propagation policy, implemented by the session agent and
// phase executor rather than inside this package.
type ErrorClass int8

const (
	// ClassRateLimit is never retried by core; surfaced as rate_limit_error.
	ClassRateLimit ErrorClass = iota
	// ClassSecurity is an auth/token problem; propagated to the HTTP layer.
	ClassSecurity
	// ClassTransient covers sandbox/network failures; retried with backoff.
	ClassTransient
	// ClassParseSchema means the model returned malformed output.
	ClassParseSchema
	// ClassFatal is an internal invariant violation; terminal.
	ClassFatal
)

// String renders the class the way it appears in log lines and metrics
// labels.
func (c ErrorClass) String() string {
	switch c {
	case ClassRateLimit:
		return "rate_limit"
	case ClassSecurity:
		return "security"
	case ClassTransient:
		return "transient"
	case ClassParseSchema:
		return "parse_schema"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a classified inference failure.
type Error struct {
	Class      ErrorClass
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("inference error (%s): %s", e.Class, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("inference error (%s): %v", e.Class, e.Err)
	}
	return fmt.Sprintf("inference error (%s): status %d", e.Class, e.StatusCode)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Err }

// Classify returns e's class as an interface, matching the
// session-agent-facing "small Classify() ErrorClass interface" from
// SPEC_FULL.md §7.
func (e *Error) Classify() ErrorClass { return e.Class }

// Retryable reports whether core should retry this error at all; rate
// limit and security errors never are.
func (e *Error) Retryable() bool {
	switch e.Class {
	case ClassRateLimit, ClassSecurity, ClassFatal:
		return false
	default:
		return true
	}
}

// NewError constructs a classified inference Error.
func NewError(class ErrorClass, message string) *Error {
	return &Error{Class: class, Message: message}
}

// NewErrorWithStatus constructs a classified Error carrying an HTTP status.
func NewErrorWithStatus(class ErrorClass, status int, message string) *Error {
	return &Error{Class: class, StatusCode: status, Message: message}
}

// NewErrorWithCause wraps an underlying error with a classification.
func NewErrorWithCause(class ErrorClass, cause error, message string) *Error {
	return &Error{Class: class, Err: cause, Message: message}
}

// Is reports whether err is a classified Error of the given class.
func Is(err error, class ErrorClass) bool {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Class == class
	}
	return false
}

// ClassOf returns err's class, or ClassFatal if err isn't a classified Error.
func ClassOf(err error) ErrorClass {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Class
	}
	return ClassFatal
}
