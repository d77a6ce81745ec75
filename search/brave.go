package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smhanov/dossier"
)

const defaultBraveURL = "https://api.search.brave.com/res/v1/web/search"

// Brave uses the Brave Search API. An API key is required via X-Subscription-Token.
type Brave struct {
	APIKey     string
	BaseURL    string
	MaxResults int
	client     *http.Client
}

// NewBrave constructs a Brave search provider.
func NewBrave(apiKey string) *Brave {
	return NewBraveWithClient(apiKey, &http.Client{Timeout: 10 * time.Second})
}

// NewBraveWithClient constructs a Brave search provider using the supplied HTTP client.
func NewBraveWithClient(apiKey string, client *http.Client) *Brave {
	return &Brave{APIKey: apiKey, BaseURL: defaultBraveURL, MaxResults: defaultMaxResults, client: client}
}

// Search executes a Brave query. Calls sharing an API key are serialized
// through one gate, paced by Brave's rate-limit headers.
func (b *Brave) Search(ctx context.Context, query string) ([]dossier.SearchResult, error) {
	if strings.TrimSpace(b.APIKey) == "" {
		return nil, errors.New("brave: API key is missing")
	}
	base := b.BaseURL
	if base == "" {
		base = defaultBraveURL
	}
	limit := b.MaxResults
	if limit <= 0 {
		limit = defaultMaxResults
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(limit))
	endpoint := base + "?" + params.Encode()

	g := gateFor("brave:" + b.APIKey)
	var resp *http.Response
	for attempt := 1; ; attempt++ {
		if err := g.waitAndLock(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			g.unlock(0)
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Subscription-Token", b.APIKey)

		resp, err = b.client.Do(req)
		if err != nil {
			g.unlock(time.Second)
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= max429Tries {
			g.unlock(braveNextDelay(resp.Header))
			break
		}
		resp.Body.Close()
		g.unlock(braveRetryDelay(resp.Header))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave http %d", resp.StatusCode)
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
		return nil, fmt.Errorf("brave: decode response: %w", err)
	}

	results := make([]dossier.SearchResult, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		results = append(results, dossier.SearchResult{Title: r.Title, URL: r.URL, Snippet: stripTags(r.Description)})
	}
	return clean(results, limit), nil
}

// stripTags removes the <strong> highlighting Brave puts in descriptions.
func stripTags(s string) string {
	var b strings.Builder
	in := false
	for _, r := range s {
		switch {
		case r == '<':
			in = true
		case r == '>' && in:
			in = false
		case !in:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// braveRetryDelay reads X-RateLimit-Reset ("1, 1419704": seconds until each
// window resets) and returns the smallest positive value, or one second.
func braveRetryDelay(h http.Header) time.Duration {
	minReset := -1
	for _, part := range strings.Split(h.Get("X-RateLimit-Reset"), ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			continue
		}
		if minReset < 0 || n < minReset {
			minReset = n
		}
	}
	if minReset <= 0 {
		return time.Second
	}
	return time.Duration(minReset) * time.Second
}

// braveNextDelay holds the gate for a second when the per-second bucket in
// X-RateLimit-Remaining is exhausted or the header is missing.
func braveNextDelay(h http.Header) time.Duration {
	raw := h.Get("X-RateLimit-Remaining")
	if raw == "" {
		return time.Second
	}
	perSecond, err := strconv.Atoi(strings.TrimSpace(strings.SplitN(raw, ",", 2)[0]))
	if err != nil || perSecond <= 0 {
		return time.Second
	}
	return 0
}
