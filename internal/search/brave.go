package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dusk-indust/deepresearch/internal/research"
)

// DefaultBraveEndpoint is the Brave Search web endpoint.
const DefaultBraveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// Brave uses the Brave Search API. The key is sent as X-Subscription-Token.
type Brave struct {
	APIKey     string
	Endpoint   string
	Count      int
	SafeSearch string

	client *http.Client
}

// NewBrave constructs a Brave provider.
func NewBrave(apiKey string, client *http.Client) *Brave {
	return &Brave{
		APIKey:     apiKey,
		Endpoint:   DefaultBraveEndpoint,
		Count:      5,
		SafeSearch: "moderate",
		client:     client,
	}
}

func (b *Brave) Name() string { return "brave" }

// Search executes one Brave query. Rate limiting and retries are owned by
// the Dispatcher.
func (b *Brave) Search(ctx context.Context, query string) ([]research.SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	if b.Count > 0 {
		params.Set("count", strconv.Itoa(b.Count))
	}
	if b.SafeSearch != "" {
		params.Set("safesearch", b.SafeSearch)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, research.Permanent(fmt.Errorf("brave: build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, transportError("brave", ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("brave", resp.StatusCode)
	}

	var payload struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("brave: decode response: %w: %v", research.ErrSearchUnavailable, err)
	}

	results := make([]research.SearchResult, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, research.SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: stripTags(r.Description),
		})
		if b.Count > 0 && len(results) >= b.Count {
			break
		}
	}
	return results, nil
}
