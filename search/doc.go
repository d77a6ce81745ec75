// Package search provides web search tools for the research pipeline.
//
// Available providers:
//
//   - DuckDuckGo: Free, no API key required (parses the html.duckduckgo.com results page)
//   - Brave: Requires API key via X-Subscription-Token header
//   - Tavily: Requires API key, supports basic/advanced depth modes
//
// Every provider returns at most MaxResults results (default 5) with ad and
// tracker links removed.
//
// Wrappers:
//
//   - Cached: TTL cache keyed by the normalized query
//   - Multi: fallback chain, tries providers in order
//
// # Example
//
//	provider := search.NewCached(
//	    search.NewMulti(search.NewBrave(key), search.NewDuckDuckGo()),
//	    500, 30*time.Minute,
//	)
//	results, err := provider.Search(ctx, "golang web frameworks")
//
// # Custom Providers
//
// Implement dossier.SearchProvider to add your own search backend:
//
//	type SearchProvider interface {
//	    Search(ctx context.Context, query string) ([]dossier.SearchResult, error)
//	}
package search
