// Package fetch downloads search result pages and reduces them to readable
// text for the research agents.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/deepresearch/internal/retry"
)

const (
	DefaultMaxPages    = 5
	DefaultMaxChars    = 12000
	DefaultMaxBytes    = 2 << 20
	DefaultConcurrency = 5
	DefaultRetryDelay  = 2 * time.Second

	truncatedMarker = "... [content truncated]"
	userAgent       = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// DefaultBlocked lists hosts that are never fetched. r.jina.ai flags
// anonymous callers and models tend to reach for it after a failed fetch.
var DefaultBlocked = []string{"r.jina.ai"}

var (
	ErrBlocked     = errors.New("url blocked: host not allowed for fetching")
	ErrUnsupported = errors.New("unsupported content type")

	errRateLimited = errors.New("rate limited")
)

// Page is the outcome of fetching one URL. Err is set when the page could
// not be turned into text.
type Page struct {
	URL     string
	Title   string
	Content string
	Err     error
}

// OK reports whether the page has usable content.
func (p Page) OK() bool { return p.Err == nil && p.Content != "" }

// Options bounds a Fetcher. Zero fields take the package defaults.
type Options struct {
	MaxPages    int
	MaxChars    int
	MaxBytes    int64
	Concurrency int
	Blocked     []string
	RetryDelay  time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.MaxChars <= 0 {
		o.MaxChars = DefaultMaxChars
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Blocked == nil {
		o.Blocked = DefaultBlocked
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
}

// Fetcher retrieves pages over HTTP.
type Fetcher struct {
	client *http.Client
	opts   Options
	logger *zap.Logger
}

// New creates a Fetcher. The client's timeout bounds each page.
func New(client *http.Client, opts Options, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.applyDefaults()
	return &Fetcher{client: client, opts: opts, logger: logger.Named("fetch")}
}

// Blocked reports whether raw points at a blocked host or one of its
// subdomains.
func (f *Fetcher) Blocked(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, b := range f.opts.Blocked {
		b = strings.ToLower(b)
		if host == b || strings.HasSuffix(host, "."+b) {
			return true
		}
	}
	return false
}

// FetchAll fetches up to MaxPages of urls concurrently. The result has one
// Page per fetched URL, in input order; failures are recorded on the Page
// rather than returned.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []Page {
	if len(urls) > f.opts.MaxPages {
		urls = urls[:f.opts.MaxPages]
	}
	pages := make([]Page, len(urls))

	var g errgroup.Group
	g.SetLimit(f.opts.Concurrency)
	for i, u := range urls {
		g.Go(func() error {
			page, err := f.Fetch(ctx, u)
			if err != nil {
				page = Page{Err: err}
			}
			page.URL = u
			pages[i] = page
			return nil
		})
	}
	_ = g.Wait()

	var ok int
	for _, p := range pages {
		if p.OK() {
			ok++
		} else {
			f.logger.Debug("page not fetched", zap.String("url", p.URL), zap.Error(p.Err))
		}
	}
	f.logger.Debug("batch fetch completed", zap.Int("pages", len(pages)), zap.Int("ok", ok))
	return pages
}

// Fetch downloads one page and extracts its readable text, capped at
// MaxChars. A 429 is retried once after RetryDelay.
func (f *Fetcher) Fetch(ctx context.Context, raw string) (Page, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return Page{}, fmt.Errorf("fetch %q: url must start with http:// or https://", raw)
	}
	if f.Blocked(raw) {
		return Page{}, fmt.Errorf("fetch %s: %w", raw, ErrBlocked)
	}

	page, err := retry.Do(ctx, retry.Policy{
		MaxAttempts:  2,
		InitialDelay: f.opts.RetryDelay,
		ShouldRetry:  func(err error) bool { return errors.Is(err, errRateLimited) },
	}, func(ctx context.Context) (Page, error) {
		return f.get(ctx, raw)
	})
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s: %w", raw, err)
	}
	page.Content = truncate(page.Content, f.opts.MaxChars)
	return page, nil
}

func (f *Fetcher) get(ctx context.Context, raw string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Page{}, errRateLimited
	case resp.StatusCode != http.StatusOK:
		return Page{}, fmt.Errorf("http %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, f.opts.MaxBytes)
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "" || strings.Contains(mediaType, "html"):
		title, text, err := Extract(body)
		if err != nil {
			return Page{}, err
		}
		return Page{URL: raw, Title: title, Content: text}, nil
	case strings.HasPrefix(mediaType, "text/"):
		data, err := io.ReadAll(body)
		if err != nil {
			return Page{}, err
		}
		return Page{URL: raw, Content: cleanText(string(data))}, nil
	default:
		return Page{}, fmt.Errorf("%w %q", ErrUnsupported, mediaType)
	}
}

// truncate caps s at limit runes.
func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:limit])) + "\n\n" + truncatedMarker
}
