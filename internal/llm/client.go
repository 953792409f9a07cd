// Package llm is the completion capability used by every agent. Prompt
// text goes in, completion text comes out; structured output is requested
// as JSON and decoded by CompleteJSON.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/deepresearch/internal/research"
	"github.com/dusk-indust/deepresearch/internal/retry"
)

// Request is one completion call.
type Request struct {
	System      string
	Prompt      string
	Model       string // overrides the client default when set
	JSON        bool   // ask the backend for a JSON object
	Temperature float64
}

// Response carries the completion text.
type Response struct {
	Text  string
	Model string
}

// Client completes prompts.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req Request) (Response, error)

func (f ClientFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// retrying wraps a Client with backoff on transient failures.
type retrying struct {
	next   Client
	policy retry.Policy
	logger *zap.Logger
}

// WithRetry retries transient failures of c (see research.Retryable) up to
// maxAttempts times, backing off from initial and doubling up to maxDelay.
func WithRetry(c Client, maxAttempts int, initial, maxDelay time.Duration, logger *zap.Logger) Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &retrying{next: c, logger: logger.Named("llm")}
	r.policy = retry.Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: initial,
		MaxDelay:     maxDelay,
		Jitter:       0.2,
		ShouldRetry:  research.Retryable,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			r.logger.Info("completion failed, retrying",
				zap.Int("attempt", attempt+1), zap.Duration("backoff", delay), zap.Error(err))
		},
	}
	return r
}

func (r *retrying) Complete(ctx context.Context, req Request) (Response, error) {
	return retry.Do(ctx, r.policy, func(ctx context.Context) (Response, error) {
		return r.next.Complete(ctx, req)
	})
}

// Validator is implemented by reply types that check their own content
// after decoding. A validation failure counts as malformed output.
type Validator interface {
	Validate() error
}

// CompleteJSON runs req with JSON output and decodes the reply into v.
// Output that cannot be decoded is retried once; a second malformed reply
// returns an error wrapping research.ErrMalformedOutput.
func CompleteJSON(ctx context.Context, c Client, req Request, v any) error {
	req.JSON = true
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := c.Complete(ctx, req)
		if err != nil {
			if errors.Is(err, research.ErrMalformedOutput) {
				lastErr = err
				continue
			}
			return err
		}
		if err := ExtractJSON(resp.Text, v); err != nil {
			lastErr = err
			continue
		}
		if val, ok := v.(Validator); ok {
			if err := val.Validate(); err != nil {
				lastErr = fmt.Errorf("%w: %v", research.ErrMalformedOutput, err)
				continue
			}
		}
		return nil
	}
	return fmt.Errorf("llm: after retry: %w", lastErr)
}
