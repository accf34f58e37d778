// Package resilience classifies errors raised inside job activities so the
// workflow retries only what a retry can fix.
package resilience

import (
	"errors"
	"strings"

	"go.temporal.io/sdk/temporal"

	"github.com/helixir/interaction-miner/internal/domain"
	"github.com/helixir/interaction-miner/internal/engine"
)

// ErrorCategory classifies errors into workflow-level categories.
type ErrorCategory int

const (
	// Transient errors are temporary failures worth retrying with backoff
	// (network timeouts, rate limits, a database restart).
	Transient ErrorCategory = iota

	// Permanent errors will fail the same way on every attempt.
	Permanent
)

// String returns a human-readable name for the category.
func (c ErrorCategory) String() string {
	switch c {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Application error types set on non-retryable activity errors.
const (
	ErrTypeJobState = "job_state"
	ErrTypeNotFound = "not_found"
	ErrTypeFatal    = "fatal"
	ErrTypeInvalid  = "invalid_input"
)

var transientSubstrings = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"rate limit",
	"service unavailable",
	"temporary",
	"deadline exceeded",
}

var permanentSubstrings = []string{
	"unauthorized",
	"forbidden",
	"bad request",
	"not found",
	"validation",
}

// Classify inspects err and returns its ErrorCategory.
//
// Order: structured errors that declare themselves fatal, Temporal
// application errors, domain sentinels, then message substrings. Unknown
// errors are transient.
func Classify(err error) ErrorCategory {
	if err == nil {
		return Permanent
	}

	if engine.IsFatal(err) {
		return Permanent
	}

	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.NonRetryable() {
		return Permanent
	}

	switch {
	case errors.Is(err, domain.ErrServiceUnavailable):
		return Transient
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidStatusTransition),
		errors.Is(err, domain.ErrJobNotRunning):
		return Permanent
	}

	msg := strings.ToLower(err.Error())
	for _, sub := range transientSubstrings {
		if strings.Contains(msg, sub) {
			return Transient
		}
	}
	for _, sub := range permanentSubstrings {
		if strings.Contains(msg, sub) {
			return Permanent
		}
	}
	return Transient
}

// ToActivityError converts err into what an activity should return: the
// error unchanged when a retry may help, otherwise a non-retryable
// application error tagged with a type the workflow can branch on.
func ToActivityError(err error) error {
	if err == nil || Classify(err) == Transient {
		return err
	}

	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return err
	}

	errType := ErrTypeFatal
	switch {
	case errors.Is(err, domain.ErrNotFound):
		errType = ErrTypeNotFound
	case errors.Is(err, domain.ErrInvalidStatusTransition), errors.Is(err, domain.ErrJobNotRunning):
		errType = ErrTypeJobState
	case errors.Is(err, domain.ErrInvalidInput):
		errType = ErrTypeInvalid
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), errType, err)
}

// IsErrorType reports whether err is an application error of errType.
func IsErrorType(err error, errType string) bool {
	var appErr *temporal.ApplicationError
	return errors.As(err, &appErr) && appErr.Type() == errType
}
