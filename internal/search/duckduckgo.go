package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/dusk-indust/deepresearch/internal/research"
)

// DefaultDuckDuckGoEndpoint is the lite HTML interface, which is stable
// enough to scrape.
const DefaultDuckDuckGoEndpoint = "https://lite.duckduckgo.com/lite/"

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// DuckDuckGo scrapes the DuckDuckGo lite page. It needs no API key.
type DuckDuckGo struct {
	Endpoint string
	Limit    int

	client *http.Client
}

// NewDuckDuckGo constructs a DuckDuckGo provider.
func NewDuckDuckGo(client *http.Client) *DuckDuckGo {
	return &DuckDuckGo{Endpoint: DefaultDuckDuckGoEndpoint, Limit: 5, client: client}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search posts the query to the lite form and parses the result table.
func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]research.SearchResult, error) {
	form := url.Values{}
	form.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, research.Permanent(fmt.Errorf("duckduckgo: build request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, transportError("duckduckgo", ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("duckduckgo", resp.StatusCode)
	}
	return parseLite(resp.Body, d.Limit)
}

// parseLite walks the lite page. Each hit is an <a class="result-link">
// followed by a <td class="result-snippet">.
func parseLite(r io.Reader, limit int) ([]research.SearchResult, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: parse html: %w: %v", research.ErrSearchUnavailable, err)
	}

	var results []research.SearchResult
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result-link"):
				href := resolveRedirect(attr(n, "href"))
				title := strings.TrimSpace(textOf(n))
				if href != "" && title != "" {
					results = append(results, research.SearchResult{Title: title, URL: href})
				}
				return
			case n.Data == "td" && hasClass(n, "result-snippet"):
				if len(results) > 0 && results[len(results)-1].Snippet == "" {
					results[len(results)-1].Snippet = strings.Join(strings.Fields(textOf(n)), " ")
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// resolveRedirect unwraps DuckDuckGo's //duckduckgo.com/l/?uddg=<target>
// links.
func resolveRedirect(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return href
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// stripTags removes inline markup such as <strong> from provider snippets
// and unescapes entities.
func stripTags(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}
