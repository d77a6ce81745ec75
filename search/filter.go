package search

import (
	"net/url"
	"strings"

	"github.com/smhanov/dossier"
)

const defaultMaxResults = 5

var adPatterns = []string{
	"duckduckgo.com/y.js",
	"ad_domain=",
	"ad_provider=",
	"ad_type=",
	"doubleclick.net",
	"googlesyndication.com",
	"googleadservices.com",
	"click.linksynergy.com",
	"redirect.viglink.com",
	"/aclk?",
	"amazon-adsystem.com",
	"ads.yahoo.com",
	"clickserve",
	"tracking.php",
}

// IsAdOrTracker reports whether u looks like an ad redirect or tracking URL.
func IsAdOrTracker(u string) bool {
	lower := strings.ToLower(u)
	for _, pat := range adPatterns {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	return false
}

// clean trims every result, drops ads, trackers, empty and duplicate URLs,
// and keeps at most limit results.
func clean(results []dossier.SearchResult, limit int) []dossier.SearchResult {
	if limit <= 0 {
		limit = defaultMaxResults
	}
	out := make([]dossier.SearchResult, 0, min(len(results), limit))
	seen := make(map[string]bool, len(results))
	for _, r := range results {
		r.URL = strings.TrimSpace(r.URL)
		r.Title = collapse(r.Title)
		r.Snippet = collapse(r.Snippet)
		if r.URL == "" || seen[r.URL] || IsAdOrTracker(r.URL) {
			continue
		}
		seen[r.URL] = true
		out = append(out, r)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// resolveRedirect unwraps DuckDuckGo's "/l/?uddg=" redirect links and makes
// protocol-relative links absolute.
func resolveRedirect(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	return href
}
