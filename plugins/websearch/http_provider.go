package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/fame-ai/orchestrator/fanout"
)

// httpProvider queries a JSON search API over HTTP and maps its
// response into fanout.SearchResult. The response shape is assumed to
// be {"results": [{"url": "...", "title": "...", "snippet": "..."}]},
// the common envelope shape across SerpAPI-style aggregators; callers
// targeting a provider with a different shape should implement
// Provider directly instead.
type httpProvider struct {
	name       string
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPProvider builds a Provider backed by a JSON search endpoint.
// apiKey is sent as the "key" query parameter; pass "" for endpoints
// that don't require one.
func NewHTTPProvider(name, endpoint, apiKey string, client *http.Client) Provider {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpProvider{name: name, endpoint: endpoint, apiKey: apiKey, httpClient: client}
}

func (p *httpProvider) Name() string { return p.name }

type httpProviderResponse struct {
	Results []struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
	} `json:"results"`
}

func (p *httpProvider) Fetch(ctx context.Context, query string) ([]fanout.SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	if p.apiKey != "" {
		q.Set("key", p.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("websearch: build request for %s: %w", p.name, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: request to %s: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("websearch: %s returned status %d", p.name, resp.StatusCode)
	}

	var parsed httpProviderResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("websearch: decode %s response: %w", p.name, err)
	}

	out := make([]fanout.SearchResult, len(parsed.Results))
	for i, r := range parsed.Results {
		out[i] = fanout.SearchResult{Provider: p.name, URL: r.URL, Title: r.Title, Snippet: r.Snippet}
	}
	return out, nil
}
