// Package websearch implements the fallback_search handler: a single
// registered plugin that internally fans out to several search
// providers, then deduplicates and ranks the merged results the way
// the Fan-out Engine does for any other multi-provider task.
package websearch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fame-ai/orchestrator/fanout"
	"github.com/fame-ai/orchestrator/logger"
	"github.com/fame-ai/orchestrator/registry"
)

// HandlerID is the handler id the Intent Router's fallback rule names.
const HandlerID = "fanout_web_search"

// Provider fetches search results for query. Implementations wrap a
// concrete search API (SerpAPI, Google CSE, Bing, a news aggregator);
// a nil or erroring Provider is treated as "no results from this
// provider" rather than a hard failure.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, query string) ([]fanout.SearchResult, error)
}

// Plugin is the registry.Plugin that backs fallback_search.
type Plugin struct {
	providers        []Provider
	providerPriority []string
	log              logger.Logger
}

// New builds the plugin with providers queried in the order given.
// providerPriority overrides fanout's default ranking order when
// merging; pass nil to use the default (SerpAPI > Google CSE > Bing >
// News).
func New(providers []Provider, providerPriority []string, log logger.Logger) *Plugin {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &Plugin{
		providers:        providers,
		providerPriority: providerPriority,
		log:              log.WithField("component", "websearch"),
	}
}

func (p *Plugin) ID() string { return HandlerID }

func (p *Plugin) Metadata() registry.Metadata {
	return registry.Metadata{
		Name:         "fanout_web_search",
		Description:  "Aggregates and deduplicates results across multiple web-search providers.",
		Capabilities: []string{"web_search"},
		Complexity:   "medium",
	}
}

func (p *Plugin) Init(registry.Manager) error { return nil }

// Handle queries every configured provider concurrently, bounded by
// the request's deadline, then merges the results by canonical URL.
func (p *Plugin) Handle(req registry.Request) (registry.Result, error) {
	ctx := context.Background()
	if req.DeadlineMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.DeadlineMs)*time.Millisecond)
		defer cancel()
	}

	var (
		mu      sync.Mutex
		merged  []fanout.SearchResult
		wg      sync.WaitGroup
		sources []string
	)

	for _, provider := range p.providers {
		provider := provider
		if provider == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					p.log.Warn("search provider panicked", "provider", provider.Name(), "recover", fmt.Sprint(r))
				}
			}()

			results, err := provider.Fetch(ctx, req.Text)
			if err != nil {
				p.log.Warn("search provider failed", "provider", provider.Name(), "error", err.Error())
				return
			}

			mu.Lock()
			merged = append(merged, results...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	ranked := fanout.DedupAndRank(merged, p.providerPriority)
	if len(ranked) == 0 {
		return registry.Result{OK: false, ErrorKind: "unavailable"}, nil
	}

	for _, r := range ranked {
		sources = append(sources, r.URL)
	}

	return registry.Result{
		OK:         true,
		Text:       summarize(ranked),
		Confidence: 0.4,
		Sources:    sources,
		Structured: map[string]interface{}{"results": ranked},
	}, nil
}

func summarize(results []fanout.SearchResult) string {
	top := results
	if len(top) > 3 {
		top = top[:3]
	}
	lines := make([]string, len(top))
	for i, r := range top {
		lines[i] = fmt.Sprintf("%s (%s)", r.Title, r.URL)
	}
	return strings.Join(lines, "; ")
}
