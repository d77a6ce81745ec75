package dossier

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBatchSize     = 5
	defaultSearchRetries = 1
	defaultRetryBackoff  = 500 * time.Millisecond
	maxRetryBackoff      = 10 * time.Second
)

// FailurePolicy decides what a run does when a search fails after all retries.
type FailurePolicy string

const (
	// FailSkip records the failure on the item's summary and continues.
	FailSkip FailurePolicy = "skip"
	// FailAbort cancels the batch and fails the run.
	FailAbort FailurePolicy = "abort"
)

// ParseFailurePolicy maps a config value to a FailurePolicy. An empty string
// selects FailSkip.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FailSkip:
		return FailSkip, nil
	case FailAbort:
		return FailAbort, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q (want skip or abort)", s)
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithModel uses m for the planner, search and writer agents. Role specific
// options applied later override it.
func WithModel(m LLMProvider) Option {
	return func(r *Manager) {
		r.plannerModel = m
		r.searchModel = m
		r.writerModel = m
	}
}

// WithPlannerModel sets the model that turns the query into a search plan.
func WithPlannerModel(m LLMProvider) Option {
	return func(r *Manager) { r.plannerModel = m }
}

// WithSearchModel sets the model that summarizes search results.
func WithSearchModel(m LLMProvider) Option {
	return func(r *Manager) { r.searchModel = m }
}

// WithWriterModel sets the model that writes the final report.
func WithWriterModel(m LLMProvider) Option {
	return func(r *Manager) { r.writerModel = m }
}

// WithSearchProvider sets the web search tool.
func WithSearchProvider(p SearchProvider) Option {
	return func(r *Manager) { r.searchTool = p }
}

// WithFetchProvider sets the optional page fetcher used for thin results.
func WithFetchProvider(f FetchProvider) Option {
	return func(r *Manager) { r.fetcher = f }
}

// WithSearchCost sets the dollar cost charged per web search call.
func WithSearchCost(cost float64) Option {
	return func(r *Manager) {
		if cost >= 0 {
			r.searchCost = cost
		}
	}
}

// WithPrinter sets the progress sink.
func WithPrinter(p Printer) Option {
	return func(r *Manager) { r.printer = p }
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Manager) { r.logger = l }
}

// WithBatchSize sets how many searches run concurrently. Values below 1 are
// ignored.
func WithBatchSize(n int) Option {
	return func(r *Manager) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithMaxSearches caps the number of searches the planner may schedule.
func WithMaxSearches(n int) Option {
	return func(r *Manager) {
		if n > 0 {
			r.maxSearches = n
		}
	}
}

// WithSearchDepth allows up to n searches per plan item. Depth above 1 lets
// the search model ask for follow-up queries.
func WithSearchDepth(n int) Option {
	return func(r *Manager) {
		if n > 0 {
			r.searchDepth = n
		}
	}
}

// WithFailurePolicy sets the search failure policy.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(r *Manager) { r.failurePolicy = p }
}

// WithSearchRetries sets how many extra attempts a failed search gets.
func WithSearchRetries(n int) Option {
	return func(r *Manager) {
		if n >= 0 {
			r.searchRetries = n
		}
	}
}

// WithRetryBackoff sets the initial delay between search attempts. The delay
// doubles after every attempt.
func WithRetryBackoff(d time.Duration) Option {
	return func(r *Manager) {
		if d >= 0 {
			r.retryBackoff = d
		}
	}
}

// WithRunTimeout bounds the whole run. Zero disables the bound.
func WithRunTimeout(d time.Duration) Option {
	return func(r *Manager) {
		if d >= 0 {
			r.runTimeout = d
		}
	}
}
