package syncerr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies sync errors for retry and reporting decisions.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindNetwork        Kind = "network"
	KindValidation     Kind = "validation"
	KindConfiguration  Kind = "configuration"
	KindRateLimit      Kind = "rate_limit"
)

// Error carries the error kind alongside the failing operation.
// RetryAfter is a server-supplied backoff hint, zero when absent.
type Error struct {
	Kind       Kind
	Op         string
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Authentication creates a fatal, non-retryable credential error.
func Authentication(op, message string) *Error {
	return &Error{Kind: KindAuthentication, Op: op, Message: message}
}

// Network wraps a transient transport failure.
func Network(op, message string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Message: message, Err: err}
}

// Validation marks a single-item input error; no network call was made.
func Validation(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// Configuration marks an unusable store configuration.
func Configuration(op, message string) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Message: message}
}

// RateLimit wraps a 429-style response; retryAfter may be zero.
func RateLimit(op, message string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimit, Op: op, Message: message, RetryAfter: retryAfter}
}

// KindOf extracts the kind of err, defaulting to network for plain errors
// so that unclassified transport failures remain retryable.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindNetwork
}

// IsRetryable reports whether the retry policy may re-attempt after err.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindRateLimit:
		return true
	default:
		return false
	}
}

// RetryAfterHint returns the server-supplied backoff hint, zero when absent.
func RetryAfterHint(err error) time.Duration {
	var se *Error
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}
