package search

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dusk-indust/deepresearch/internal/cache"
	"github.com/dusk-indust/deepresearch/internal/config"
	"github.com/dusk-indust/deepresearch/internal/research"
	"github.com/dusk-indust/deepresearch/internal/retry"
)

// Options tune a Dispatcher. Zero fields fall back to the config defaults.
type Options struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RequestTimeout time.Duration
	RatePerSecond  float64
	Burst          int
	MaxQueueWait   time.Duration
}

// OptionsFromConfig converts the search section of the config file.
func OptionsFromConfig(cfg config.SearchConfig) Options {
	return Options{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff.Std(),
		MaxBackoff:     cfg.MaxBackoff.Std(),
		RequestTimeout: cfg.RequestTimeout.Std(),
		RatePerSecond:  cfg.RatePerSecond,
		Burst:          cfg.Burst,
		MaxQueueWait:   cfg.MaxQueueWait.Std(),
	}
}

func (o *Options) applyDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = config.DefaultMaxAttempts
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = config.DefaultInitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = config.DefaultMaxBackoff
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = config.DefaultSearchTimeout
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = config.DefaultRatePerSecond
	}
	if o.Burst <= 0 {
		o.Burst = config.DefaultBurst
	}
	if o.MaxQueueWait <= 0 {
		o.MaxQueueWait = config.DefaultMaxQueueWait
	}
}

// Stats counts dispatcher activity since construction.
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	ExternalCalls int64 `json:"externalCalls"`
}

// Dispatcher answers queries from the cache when possible and otherwise
// calls the provider, storing successful results. It is safe for concurrent
// use.
type Dispatcher struct {
	provider Provider
	cache    *cache.Cache
	limiter  *rate.Limiter
	opts     Options
	logger   *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
	calls  atomic.Int64
}

// NewDispatcher wires a provider to a cache. A nil cache disables caching.
func NewDispatcher(p Provider, c *cache.Cache, opts Options, logger *zap.Logger) *Dispatcher {
	opts.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		provider: p,
		cache:    c,
		limiter:  rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		opts:     opts,
		logger:   logger.Named("search"),
	}
}

// Search returns results for query. Empty results from a successful search
// are cached and returned like any other result. When every attempt fails
// the error wraps research.ErrSearchUnavailable.
func (d *Dispatcher) Search(ctx context.Context, query string) ([]research.SearchResult, error) {
	if d.cache != nil {
		entry, ok, err := d.cache.Get(query)
		if err != nil {
			d.logger.Warn("cache read failed, treating as miss", zap.String("query", query), zap.Error(err))
		}
		if ok {
			d.hits.Add(1)
			d.logger.Debug("cache hit", zap.String("query", query))
			return entry.Results, nil
		}
	}
	d.misses.Add(1)

	policy := retry.Policy{
		MaxAttempts:  d.opts.MaxAttempts,
		InitialDelay: d.opts.InitialBackoff,
		MaxDelay:     d.opts.MaxBackoff,
		Jitter:       0.2,
		ShouldRetry:  research.Retryable,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			d.logger.Info("search attempt failed, retrying",
				zap.String("provider", d.provider.Name()),
				zap.String("query", query),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", delay),
				zap.Error(err))
		},
	}

	results, err := retry.Do(ctx, policy, func(ctx context.Context) ([]research.SearchResult, error) {
		if err := d.wait(ctx); err != nil {
			return nil, err
		}
		d.calls.Add(1)
		reqCtx, cancel := context.WithTimeout(ctx, d.opts.RequestTimeout)
		defer cancel()
		return d.provider.Search(reqCtx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w: %w", query, research.ErrSearchUnavailable, err)
	}

	if d.cache != nil {
		if err := d.cache.Put(query, results); err != nil {
			d.logger.Warn("cache write failed", zap.String("query", query), zap.Error(err))
		}
	}
	return results, nil
}

// wait takes a token from the limiter, refusing to queue longer than
// MaxQueueWait.
func (d *Dispatcher) wait(ctx context.Context) error {
	r := d.limiter.Reserve()
	if !r.OK() {
		return research.ErrRateLimited
	}
	delay := r.Delay()
	if delay == 0 {
		return nil
	}
	if delay > d.opts.MaxQueueWait {
		r.Cancel()
		return fmt.Errorf("queue wait %s exceeds %s: %w", delay, d.opts.MaxQueueWait, research.ErrRateLimited)
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Hits:          d.hits.Load(),
		Misses:        d.misses.Load(),
		ExternalCalls: d.calls.Load(),
	}
}

// ClearCache removes every cached entry.
func (d *Dispatcher) ClearCache() (int, error) {
	if d.cache == nil {
		return 0, nil
	}
	return d.cache.Clear()
}
