package websearch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fame-ai/orchestrator/fanout"
	"github.com/fame-ai/orchestrator/plugins/websearch"
	"github.com/fame-ai/orchestrator/registry"
)

type stubProvider struct {
	name    string
	results []fanout.SearchResult
	err     error
}

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) Fetch(ctx context.Context, query string) ([]fanout.SearchResult, error) {
	return s.results, s.err
}

func TestHandleMergesAndDedupsAcrossProviders(t *testing.T) {
	providers := []websearch.Provider{
		&stubProvider{name: "bing", results: []fanout.SearchResult{
			{Provider: "bing", URL: "https://Example.com/a/", Title: "A via Bing"},
		}},
		&stubProvider{name: "serpapi", results: []fanout.SearchResult{
			{Provider: "serpapi", URL: "https://example.com/a", Title: "A via SerpAPI"},
		}},
	}

	p := websearch.New(providers, nil, nil)

	result, err := p.Handle(registry.Request{Text: "aapl news"})

	assert.NoError(t, err)
	assert.True(t, result.OK)
	assert.Len(t, result.Sources, 1)
	assert.Contains(t, result.Text, "SerpAPI")
}

func TestHandleToleratesFailingProvider(t *testing.T) {
	providers := []websearch.Provider{
		&stubProvider{name: "broken", err: errors.New("rate limited")},
		&stubProvider{name: "news", results: []fanout.SearchResult{
			{Provider: "news", URL: "https://news.example.com/story", Title: "Story"},
		}},
	}

	p := websearch.New(providers, nil, nil)

	result, err := p.Handle(registry.Request{Text: "latest headlines"})

	assert.NoError(t, err)
	assert.True(t, result.OK)
	assert.Len(t, result.Sources, 1)
}

func TestHandleNoResultsYieldsUnavailable(t *testing.T) {
	p := websearch.New(nil, nil, nil)

	result, err := p.Handle(registry.Request{Text: "anything"})

	assert.NoError(t, err)
	assert.False(t, result.OK)
}
