package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smhanov/dossier"
)

// fastBackoff shrinks the package-level pacing for the duration of a test.
func fastBackoff(t *testing.T) {
	t.Helper()
	oldStart, oldInterval := backoffStart, ddgInterval
	backoffStart, ddgInterval = time.Millisecond, 0
	t.Cleanup(func() { backoffStart, ddgInterval = oldStart, oldInterval })
}

const ddgPage = `<html><body>
<div class="result results_links result--ad">
  <a class="result__a" href="https://duckduckgo.com/y.js?ad_domain=shop">Buy now</a>
  <a class="result__snippet">Sponsored</a>
</div>
<div class="result results_links">
  <h2><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fsky&amp;rut=x">Why is the <b>sky</b> blue?</a></h2>
  <a class="result__snippet" href="#">Rayleigh   scattering of
  sunlight.</a>
</div>
<div class="result results_links">
  <a class="result__a" href="https://example.org/sunset">Sunsets</a>
  <a class="result__snippet">Longer path through air.</a>
</div>
<div class="result results_links">
  <a class="result__a" href="https://example.com/sky">Duplicate</a>
</div>
</body></html>`

func TestParseDDG(t *testing.T) {
	results, err := parseDDG(strings.NewReader(ddgPage))
	require.NoError(t, err)
	require.Len(t, results, 3, "ad block skipped")
	assert.Equal(t, "https://example.com/sky", results[0].URL)
	assert.Equal(t, "Why is the sky blue?", results[0].Title)
	assert.Equal(t, "Rayleigh scattering of sunlight.", results[0].Snippet)

	cleaned := clean(results, 10)
	assert.Len(t, cleaned, 2, "duplicate URL dropped")
}

func TestDuckDuckGoSearch(t *testing.T) {
	fastBackoff(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "sky color", r.PostForm.Get("q"))
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		io.WriteString(w, ddgPage)
	}))
	defer srv.Close()

	d := NewDuckDuckGoWithClient(srv.Client())
	d.Endpoint = srv.URL
	d.MaxResults = 1

	results, err := d.Search(context.Background(), "sky color")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "429 is retried")
	assert.Equal(t, []dossier.SearchResult{{
		Title:   "Why is the sky blue?",
		URL:     "https://example.com/sky",
		Snippet: "Rayleigh scattering of sunlight.",
	}}, results)
}

func TestDuckDuckGoErrors(t *testing.T) {
	fastBackoff(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	d := NewDuckDuckGoWithClient(srv.Client())
	d.Endpoint = srv.URL

	_, err := d.Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 403")

	_, err = d.Search(context.Background(), "  ")
	require.Error(t, err)
}

func TestBraveSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "brave-key", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "rayleigh", r.URL.Query().Get("q"))
		assert.Equal(t, "3", r.URL.Query().Get("count"))
		w.Header().Set("X-RateLimit-Remaining", "4, 1999")
		io.WriteString(w, `{"web": {"results": [
			{"title": "A", "url": "https://a.example", "description": "<strong>Rayleigh</strong> scattering"},
			{"title": "Ad", "url": "https://ad.doubleclick.net/x", "description": "ad"}
		]}}`)
	}))
	defer srv.Close()

	b := NewBraveWithClient("brave-key", srv.Client())
	b.BaseURL = srv.URL
	b.MaxResults = 3

	results, err := b.Search(context.Background(), "rayleigh")
	require.NoError(t, err)
	assert.Equal(t, []dossier.SearchResult{{Title: "A", URL: "https://a.example", Snippet: "Rayleigh scattering"}}, results)
}

func TestBraveRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "1, 100")
		if calls.Add(1) == 1 {
			w.Header().Set("X-RateLimit-Reset", "0, 500")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, `{"web": {"results": []}}`)
	}))
	defer srv.Close()

	b := NewBraveWithClient("retry-key", srv.Client())
	b.BaseURL = srv.URL
	results, err := b.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBraveMissingKey(t *testing.T) {
	_, err := NewBrave("").Search(context.Background(), "q")
	require.Error(t, err)
}

func TestBraveDelays(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, time.Second, braveRetryDelay(h))
	h.Set("X-RateLimit-Reset", "3, 86000")
	assert.Equal(t, 3*time.Second, braveRetryDelay(h))

	assert.Equal(t, time.Second, braveNextDelay(http.Header{}))
	h.Set("X-RateLimit-Remaining", "0, 10")
	assert.Equal(t, time.Second, braveNextDelay(h))
	h.Set("X-RateLimit-Remaining", "2, 10")
	assert.Equal(t, time.Duration(0), braveNextDelay(h))
}

func TestTavilySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tv-key", r.Header.Get("Authorization"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ozone", body["query"])
		assert.Equal(t, "advanced", body["search_depth"])
		assert.Equal(t, float64(5), body["max_results"])
		io.WriteString(w, `{"results": [{"title": " T ", "url": "https://t.example", "content": "ozone  absorbs"}]}`)
	}))
	defer srv.Close()

	tv := NewTavilyWithClient("tv-key", "advanced", srv.Client())
	tv.BaseURL = srv.URL
	results, err := tv.Search(context.Background(), "ozone")
	require.NoError(t, err)
	assert.Equal(t, []dossier.SearchResult{{Title: "T", URL: "https://t.example", Snippet: "ozone absorbs"}}, results)

	assert.Equal(t, "basic", NewTavily("k", "").Depth)
	_, err = NewTavily("", "").Search(context.Background(), "q")
	require.Error(t, err)
}

type countingProvider struct {
	calls   atomic.Int32
	results []dossier.SearchResult
	err     error
}

func (c *countingProvider) Search(context.Context, string) ([]dossier.SearchResult, error) {
	c.calls.Add(1)
	return c.results, c.err
}

func TestCachedSearch(t *testing.T) {
	next := &countingProvider{results: []dossier.SearchResult{{URL: "https://a"}}}
	c := NewCached(next, 10, time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	first, err := c.Search(context.Background(), "Blue  Sky")
	require.NoError(t, err)
	first[0].URL = "mutated"

	second, err := c.Search(context.Background(), "blue sky")
	require.NoError(t, err)
	assert.Equal(t, int32(1), next.calls.Load(), "normalized query hits the cache")
	assert.Equal(t, "https://a", second[0].URL, "callers get copies")

	now = now.Add(2 * time.Minute)
	_, err = c.Search(context.Background(), "blue sky")
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load(), "expired entries are refetched")

	c.Clear()
	assert.Zero(t, c.Size())
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	next := &countingProvider{err: errors.New("down")}
	c := NewCached(next, 0, 0)

	_, err := c.Search(context.Background(), "q")
	require.Error(t, err)
	_, err = c.Search(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
	assert.Zero(t, c.Size())
}

func TestCachedEvictsOldest(t *testing.T) {
	c := NewCached(&countingProvider{}, 2, time.Hour)
	now := time.Unix(0, 0)
	c.now = func() time.Time { return now }

	for _, q := range []string{"a", "b", "c"} {
		_, err := c.Search(context.Background(), q)
		require.NoError(t, err)
		now = now.Add(time.Second)
	}
	assert.Equal(t, 2, c.Size())
	_, ok := c.get("a")
	assert.False(t, ok, "oldest entry evicted")
	_, ok = c.get("c")
	assert.True(t, ok)
}

func TestMultiFallback(t *testing.T) {
	bad := &countingProvider{err: errors.New("bad")}
	good := &countingProvider{results: []dossier.SearchResult{{URL: "https://ok"}}}
	unused := &countingProvider{}

	m := NewMulti(bad, nil, good, unused)
	require.Len(t, m.Providers, 3)
	results, err := m.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "https://ok", results[0].URL)
	assert.Zero(t, unused.calls.Load())

	_, err = NewMulti(bad, &countingProvider{err: errors.New("worse")}).Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider 0: bad")
	assert.Contains(t, err.Error(), "provider 1: worse")

	_, err = NewMulti().Search(context.Background(), "q")
	require.Error(t, err)
}

func TestMultiStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	second := &countingProvider{}
	_, err := NewMulti(&countingProvider{err: errors.New("x")}, second).Search(ctx, "q")
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, second.calls.Load())
}

func TestClean(t *testing.T) {
	in := []dossier.SearchResult{
		{URL: " https://a ", Title: " A\n title "},
		{URL: ""},
		{URL: "https://googleadservices.com/x"},
		{URL: "https://a"},
		{URL: "https://b"},
		{URL: "https://c"},
	}
	out := clean(in, 2)
	assert.Equal(t, []dossier.SearchResult{{URL: "https://a", Title: "A title"}, {URL: "https://b"}}, out)
	assert.Len(t, clean(in, 0), 3)
}

func TestResolveRedirect(t *testing.T) {
	assert.Equal(t, "https://x.example/p?a=1", resolveRedirect("//duckduckgo.com/l/?uddg=https%3A%2F%2Fx.example%2Fp%3Fa%3D1"))
	assert.Equal(t, "https://cdn.example/p", resolveRedirect("//cdn.example/p"))
	assert.Equal(t, "https://plain.example", resolveRedirect(" https://plain.example "))
}

func TestIsAdOrTracker(t *testing.T) {
	assert.True(t, IsAdOrTracker("https://www.googleadservices.com/pagead/aclk?sa=L"))
	assert.True(t, IsAdOrTracker("https://duckduckgo.com/y.js?ad_provider=bing"))
	assert.False(t, IsAdOrTracker("https://en.wikipedia.org/wiki/Rayleigh_scattering"))
}
