package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/smhanov/dossier"
	"github.com/smhanov/dossier/config"
	"github.com/smhanov/dossier/fetch"
	"github.com/smhanov/dossier/llm"
	"github.com/smhanov/dossier/search"
)

// buildManager wires a Manager from configuration.
func buildManager(ctx context.Context, c *config.Config, log *zap.Logger, p dossier.Printer) (*dossier.Manager, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	models := map[string]dossier.LLMProvider{}
	model := func(role string) (dossier.LLMProvider, error) {
		name := c.ModelFor(role)
		if m, ok := models[name]; ok {
			return m, nil
		}
		m, err := llm.New(ctx, llm.Config{
			Provider: c.LLM.Provider,
			Endpoint: c.LLM.BaseURL,
			Model:    name,
			APIKey:   c.LLM.APIKey,
			Timeout:  c.LLMTimeout(),
			Pricing:  c.LLM.Pricing,
			Logger:   log.Named("llm"),
		})
		if err != nil {
			return nil, fmt.Errorf("%s model: %w", role, err)
		}
		models[name] = m
		return m, nil
	}
	planner, err := model("planner")
	if err != nil {
		return nil, err
	}
	searcher, err := model("search")
	if err != nil {
		return nil, err
	}
	writer, err := model("writer")
	if err != nil {
		return nil, err
	}

	tool, err := buildSearch(c)
	if err != nil {
		return nil, err
	}
	policy, err := dossier.ParseFailurePolicy(c.Research.FailurePolicy)
	if err != nil {
		return nil, err
	}

	runTimeout := c.RunTimeout()
	if timeout > 0 {
		runTimeout = timeout
	}

	opts := []dossier.Option{
		dossier.WithPlannerModel(planner),
		dossier.WithSearchModel(searcher),
		dossier.WithWriterModel(writer),
		dossier.WithSearchProvider(tool),
		dossier.WithSearchCost(c.Search.CostPerSearch),
		dossier.WithPrinter(p),
		dossier.WithLogger(log),
		dossier.WithBatchSize(c.Research.BatchSize),
		dossier.WithMaxSearches(c.Research.MaxSearches),
		dossier.WithSearchDepth(c.Research.SearchDepth),
		dossier.WithFailurePolicy(policy),
		dossier.WithSearchRetries(c.Research.SearchRetries),
		dossier.WithRetryBackoff(c.RetryBackoff()),
		dossier.WithRunTimeout(runTimeout),
	}
	if c.Search.FetchPages {
		opts = append(opts, dossier.WithFetchProvider(fetch.NewHTTPWithClient(&http.Client{Timeout: c.SearchTimeout()})))
	}
	return dossier.New(opts...), nil
}

// buildSearch returns the configured provider, wrapped in a fallback chain
// and a cache when configured.
func buildSearch(c *config.Config) (dossier.SearchProvider, error) {
	client := &http.Client{Timeout: c.SearchTimeout()}
	names := append([]string{c.Search.Provider}, c.Search.Fallback...)
	chain := make([]dossier.SearchProvider, 0, len(names))
	for _, name := range names {
		p, err := searchProvider(name, c, client)
		if err != nil {
			return nil, err
		}
		chain = append(chain, p)
	}

	var tool dossier.SearchProvider = chain[0]
	if len(chain) > 1 {
		tool = search.NewMulti(chain...)
	}
	if c.Search.CacheSize > 0 {
		tool = search.NewCached(tool, c.Search.CacheSize, c.CacheTTL())
	}
	return tool, nil
}

func searchProvider(name string, c *config.Config, client *http.Client) (dossier.SearchProvider, error) {
	switch strings.ToLower(name) {
	case "duckduckgo":
		d := search.NewDuckDuckGoWithClient(client)
		d.MaxResults = c.Search.MaxResults
		return d, nil
	case "brave":
		b := search.NewBraveWithClient(c.Search.BraveAPIKey, client)
		b.MaxResults = c.Search.MaxResults
		return b, nil
	case "tavily":
		t := search.NewTavilyWithClient(c.Search.TavilyAPIKey, c.Search.TavilyDepth, client)
		t.MaxResults = c.Search.MaxResults
		return t, nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", name)
	}
}
