package fanout

import (
	"net/url"
	"sort"
	"strings"
)

// trackingParams are stripped before canonicalization; a non-exhaustive
// but common set of campaign/referrer params.
var trackingParams = map[string]bool{
	"utm_source": true, "utm_medium": true, "utm_campaign": true,
	"utm_term": true, "utm_content": true, "gclid": true, "fbclid": true,
	"ref": true, "referrer": true,
}

// SearchResult is one item returned by a search-provider invoker.
type SearchResult struct {
	Provider string
	URL      string
	Title    string
	Snippet  string
}

// defaultProviderPriority is the reference ranking order: lower index
// ranks higher.
var defaultProviderPriority = []string{"serpapi", "google_cse", "bing", "news"}

// CanonicalizeURL normalizes rawURL so that differences in host case,
// trailing slash, and tracking query params collapse to the same key.
func CanonicalizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	host := strings.ToLower(parsed.Host)
	path := strings.TrimSuffix(parsed.Path, "/")

	query := parsed.Query()
	for param := range query {
		if trackingParams[strings.ToLower(param)] {
			query.Del(param)
		}
	}

	canonical := parsed.Scheme + "://" + host + path
	if encoded := query.Encode(); encoded != "" {
		canonical += "?" + encoded
	}
	return canonical
}

// DedupAndRank merges search results across providers, keeping exactly
// one entry per canonicalized URL (first occurrence by provider
// priority wins) and orders the output by providerPriority. A nil or
// empty providerPriority falls back to defaultProviderPriority.
func DedupAndRank(results []SearchResult, providerPriority []string) []SearchResult {
	if len(providerPriority) == 0 {
		providerPriority = defaultProviderPriority
	}

	priority := make(map[string]int, len(providerPriority))
	for i, p := range providerPriority {
		priority[strings.ToLower(p)] = i
	}
	rankOf := func(provider string) int {
		if rank, ok := priority[strings.ToLower(provider)]; ok {
			return rank
		}
		return len(providerPriority)
	}

	sorted := make([]SearchResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return rankOf(sorted[i].Provider) < rankOf(sorted[j].Provider)
	})

	seen := make(map[string]bool, len(sorted))
	var deduped []SearchResult
	for _, r := range sorted {
		key := CanonicalizeURL(r.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, r)
	}

	return deduped
}
