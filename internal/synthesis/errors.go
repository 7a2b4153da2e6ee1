package synthesis

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider failures for the scheduler's retry policy.
type ErrorKind int

const (
	// KindSynthesisFailed is any provider error that retrying will not fix.
	KindSynthesisFailed ErrorKind = iota
	// KindRateLimited means the provider signalled quota or throttling.
	KindRateLimited
)

// Error is a classified provider failure. The scheduler checks Kind, not
// the concrete provider error.
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindRateLimited:
		return fmt.Sprintf("%s: rate limited: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s: synthesis failed: %v", e.Provider, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewRateLimited wraps err as a retryable quota failure.
func NewRateLimited(provider string, err error) error {
	return &Error{Kind: KindRateLimited, Provider: provider, Err: err}
}

// NewFailed wraps err as a terminal synthesis failure.
func NewFailed(provider string, err error) error {
	return &Error{Kind: KindSynthesisFailed, Provider: provider, Err: err}
}

// IsRateLimited reports whether err is a retryable rate-limit failure.
func IsRateLimited(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindRateLimited
}
