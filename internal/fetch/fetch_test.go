package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head>
  <title>  Heat Pumps &amp; the Grid </title>
  <style>body { color: red }</style>
  <script>track()</script>
</head>
<body>
  <nav>Home | About</nav>
  <header>Site banner</header>
  <main>
    <h1>Heat pumps</h1>
    <p>They move <b>heat</b> rather than make it.</p>
    <ul>
      <li>COP of 3.5</li>
      <li>Quiet</li>
    </ul>
    <div class="cookie-banner">Accept all cookies</div>
  </main>
  <footer>Copyright</footer>
</body>
</html>`

func TestExtract(t *testing.T) {
	title, text, err := Extract(strings.NewReader(articleHTML))
	require.NoError(t, err)
	assert.Equal(t, "Heat Pumps & the Grid", title)
	assert.Equal(t, "Heat pumps\n\nThey move heat rather than make it.\n\n• COP of 3.5\n• Quiet", text)
}

func TestExtract_FallsBackToBody(t *testing.T) {
	_, text, err := Extract(strings.NewReader(`<html><body><aside>Related</aside><div>Only <i>body</i> text</div><p>Second</p></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Only body text\n\nSecond", text)
}

func newServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var limited atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/article", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articleHTML))
	})
	mux.HandleFunc("/notes.txt", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("line one   \n\n\n\nline two"))
	})
	mux.HandleFunc("/report.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	})
	mux.HandleFunc("/long", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<p>" + strings.Repeat("é", 50) + "</p>"))
	})
	mux.HandleFunc("/busy", func(w http.ResponseWriter, _ *http.Request) {
		if limited.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<p>Second try</p>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &limited
}

func testFetcher(srv *httptest.Server, opts Options) *Fetcher {
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Millisecond
	}
	return New(srv.Client(), opts, nil)
}

func TestFetch(t *testing.T) {
	srv, _ := newServer(t)
	f := testFetcher(srv, Options{})

	page, err := f.Fetch(context.Background(), srv.URL+"/article")
	require.NoError(t, err)
	assert.True(t, page.OK())
	assert.Equal(t, "Heat Pumps & the Grid", page.Title)
	assert.Contains(t, page.Content, "They move heat rather than make it.")
	assert.NotContains(t, page.Content, "Copyright")
	assert.NotContains(t, page.Content, "track()")

	page, err = f.Fetch(context.Background(), srv.URL+"/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "line one\n\nline two", page.Content)
}

func TestFetch_Errors(t *testing.T) {
	srv, _ := newServer(t)
	f := testFetcher(srv, Options{})
	ctx := context.Background()

	_, err := f.Fetch(ctx, srv.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 404")

	_, err = f.Fetch(ctx, srv.URL+"/report.pdf")
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = f.Fetch(ctx, "ftp://files.example/a")
	assert.Error(t, err)
}

func TestFetch_Blocked(t *testing.T) {
	f := New(nil, Options{}, nil)
	assert.True(t, f.Blocked("https://r.jina.ai/https://example.com"))
	assert.True(t, f.Blocked("https://R.JINA.AI/x"))
	assert.False(t, f.Blocked("https://jina.ai/news"))
	assert.False(t, f.Blocked("https://example.com/r.jina.ai"))

	_, err := f.Fetch(context.Background(), "https://r.jina.ai/https://example.com")
	assert.ErrorIs(t, err, ErrBlocked)

	custom := New(nil, Options{Blocked: []string{"paywall.example"}}, nil)
	assert.True(t, custom.Blocked("https://www.paywall.example/story"))
	assert.False(t, custom.Blocked("https://r.jina.ai/x"))
}

func TestFetch_RateLimitedRetriedOnce(t *testing.T) {
	srv, calls := newServer(t)
	f := testFetcher(srv, Options{})

	page, err := f.Fetch(context.Background(), srv.URL+"/busy")
	require.NoError(t, err)
	assert.Equal(t, "Second try", page.Content)
	assert.Equal(t, int64(2), calls.Load())
}

func TestFetch_Truncates(t *testing.T) {
	srv, _ := newServer(t)
	f := testFetcher(srv, Options{MaxChars: 10})

	page, err := f.Fetch(context.Background(), srv.URL+"/long")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 10)+"\n\n"+truncatedMarker, page.Content)
}

func TestFetchAll(t *testing.T) {
	srv, _ := newServer(t)
	f := testFetcher(srv, Options{MaxPages: 3, Concurrency: 2})

	pages := f.FetchAll(context.Background(), []string{
		srv.URL + "/article",
		"https://r.jina.ai/" + srv.URL + "/article",
		srv.URL + "/missing",
		srv.URL + "/notes.txt",
	})

	require.Len(t, pages, 3, "capped at MaxPages")
	assert.True(t, pages[0].OK())
	assert.Equal(t, srv.URL+"/article", pages[0].URL)
	assert.ErrorIs(t, pages[1].Err, ErrBlocked)
	assert.False(t, pages[2].OK())
	assert.Equal(t, srv.URL+"/missing", pages[2].URL)
}

func TestFetchAll_CancelledContext(t *testing.T) {
	srv, _ := newServer(t)
	f := testFetcher(srv, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pages := f.FetchAll(ctx, []string{srv.URL + "/article"})
	require.Len(t, pages, 1)
	assert.Error(t, pages[0].Err)
}
