package research

import (
	"context"
	"errors"
)

// Transient failures. These are retried locally with backoff before being
// escalated to the caller.
var (
	ErrSearchUnavailable = errors.New("search unavailable")
	ErrRateLimited       = errors.New("rate limited")
	ErrLLMUnavailable    = errors.New("llm unavailable")
)

// ErrMalformedOutput means the model returned text that could not be parsed
// into the requested structure. Callers retry it once.
var ErrMalformedOutput = errors.New("malformed model output")

// Job-fatal failures.
var (
	ErrInvalidTopic  = errors.New("topic must be a non-empty string")
	ErrDecomposition = errors.New("topic decomposition failed")
	ErrSynthesis     = errors.New("synthesis failed")
	ErrNoReports     = errors.New("no research reports succeeded")
)

var (
	ErrInvalidTransition = errors.New("invalid job state transition")
	ErrJobNotFound       = errors.New("job not found")
)

// permanent wraps an error that must not be retried.
type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent marks err as non-retryable regardless of what it wraps.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// Retryable reports whether err is a transient failure worth another
// attempt. Context cancellation of the caller is never retryable; malformed
// output is handled by the single-retry path, not by backoff.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var p *permanent
	if errors.As(err, &p) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrMalformedOutput) {
		return false
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrSearchUnavailable) ||
		errors.Is(err, ErrLLMUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}
