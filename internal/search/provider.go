// Package search dispatches web searches through an on-disk cache to an
// external provider, with rate limiting and bounded retries.
package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dusk-indust/deepresearch/internal/config"
	"github.com/dusk-indust/deepresearch/internal/research"
)

// Provider performs a single web search.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) ([]research.SearchResult, error)
}

// NewProvider builds the provider selected by cfg.Provider.
func NewProvider(cfg config.SearchConfig, client *http.Client) (Provider, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	switch strings.ToLower(cfg.Provider) {
	case "", "brave":
		if strings.TrimSpace(cfg.BraveAPIKey) == "" {
			return nil, fmt.Errorf("search: brave: API key is missing (set BRAVE_API_KEY or search.braveApiKey)")
		}
		b := NewBrave(cfg.BraveAPIKey, client)
		if cfg.Count > 0 {
			b.Count = cfg.Count
		}
		return b, nil
	case "duckduckgo", "ddg":
		d := NewDuckDuckGo(client)
		if cfg.Count > 0 {
			d.Limit = cfg.Count
		}
		return d, nil
	default:
		return nil, fmt.Errorf("search: unknown provider %q", cfg.Provider)
	}
}

// statusError maps a non-200 HTTP status to the error taxonomy: 429 is rate
// limiting, 5xx is a transient outage, any other status is permanent.
func statusError(provider string, code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%s: http %d: %w", provider, code, research.ErrRateLimited)
	case code >= 500:
		return fmt.Errorf("%s: http %d: %w", provider, code, research.ErrSearchUnavailable)
	default:
		return research.Permanent(fmt.Errorf("%s: http %d", provider, code))
	}
}

// transportError classifies a failed round trip. Cancellation of the caller
// stays as is so the retry loop stops.
func transportError(provider string, ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", provider, ctx.Err())
	}
	return fmt.Errorf("%s: %w: %v", provider, research.ErrSearchUnavailable, err)
}
