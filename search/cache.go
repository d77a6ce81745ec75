package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/smhanov/dossier"
)

type cacheEntry struct {
	results   []dossier.SearchResult
	createdAt time.Time
	expiresAt time.Time
}

// Cached wraps a provider with an in-memory cache keyed by the normalized
// query. Errors are never cached. It is safe for concurrent use.
type Cached struct {
	next    dossier.SearchProvider
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewCached caches results of next for ttl, holding at most maxSize queries.
// When full, the oldest entry is evicted.
func NewCached(next dossier.SearchProvider, maxSize int, ttl time.Duration) *Cached {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Cached{
		next:    next,
		entries: make(map[string]*cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Search returns cached results for query or asks the wrapped provider.
func (c *Cached) Search(ctx context.Context, query string) ([]dossier.SearchResult, error) {
	key := cacheKey(query)
	if results, ok := c.get(key); ok {
		return results, nil
	}
	results, err := c.next.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	c.set(key, results)
	return copyResults(results), nil
}

// Size returns the number of entries, expired ones included.
func (c *Cached) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear removes all entries.
func (c *Cached) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

func (c *Cached) get(key string) ([]dossier.SearchResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return copyResults(e.results), true
}

func (c *Cached) set(key string, results []dossier.SearchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	now := c.now()
	c.entries[key] = &cacheEntry{
		results:   copyResults(results),
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}
}

// evictOldest drops expired entries, or the oldest one if none expired.
func (c *Cached) evictOldest() {
	now := c.now()
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.createdAt.Before(oldest) {
			oldestKey, oldest = k, e.createdAt
		}
	}
	if len(c.entries) >= c.maxSize && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func cacheKey(query string) string {
	return strings.ToLower(collapse(query))
}

func copyResults(in []dossier.SearchResult) []dossier.SearchResult {
	if in == nil {
		return nil
	}
	out := make([]dossier.SearchResult, len(in))
	copy(out, in)
	return out
}
