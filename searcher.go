package dossier

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	thinSnippetLen = 80
	maxPageChars   = 6000
)

// Searcher runs one planned search through the web search tool and reduces
// the results to a short text summary.
type Searcher struct {
	Model      LLMProvider
	Tool       SearchProvider
	Fetcher    FetchProvider // optional; reads the top page when snippets are thin, at every depth
	Depth      int           // searches allowed per item; above 1 enables follow-up queries
	SearchCost float64       // dollars charged per Tool call
	Logger     *zap.Logger
}

// Search looks up item and summarizes the results. Zero results is not an
// error: the model is told nothing was found and summarizes accordingly.
func (s *Searcher) Search(ctx context.Context, item WebSearchItem) (SearchSummary, error) {
	out := SearchSummary{Item: item}
	if strings.TrimSpace(item.Query) == "" {
		return out, ErrEmptyQuery
	}
	if s.Tool == nil {
		return out, fmt.Errorf("search tool: %w", ErrNotConfigured)
	}
	log := traceLogger(ctx, s.Logger).With(zap.String("query", item.Query))

	if s.Depth > 1 {
		return s.runIterative(ctx, log, item, out)
	}

	results, err := s.search(ctx, &out, item.Query)
	if err != nil {
		return out, err
	}

	data := searchPromptData{Item: item, Results: results}
	data.PageURL, data.PageText = s.readTopPage(ctx, log, results)

	user, err := renderTemplate(searchTemplate, data)
	if err != nil {
		return out, err
	}
	text, cost, err := generate(ctx, log, "search", s.Model, searchSystemPrompt, user, nil)
	out.Cost += cost
	if err != nil {
		return out, err
	}
	if text == "" {
		return out, ErrEmptySummary
	}
	out.Summary = text
	return out, nil
}

// runIterative keeps a scratchpad for the item and lets the model ask for
// follow-up queries until it is satisfied or Depth searches have run.
func (s *Searcher) runIterative(ctx context.Context, log *zap.Logger, item WebSearchItem, out SearchSummary) (SearchSummary, error) {
	pad := NewScratchpad(item)
	query := pad.Topic

	for i := 0; i < s.Depth; i++ {
		pad.IterationCount = i + 1

		results, err := s.search(ctx, &out, query)
		if err != nil {
			return out, err
		}
		pad.AppendHistory(fmt.Sprintf("search[%d]: %s", pad.IterationCount, query))

		pageURL, pageText := s.readTopPage(ctx, log, results)
		knowledge, cost, err := generate(ctx, log, "synthesizer", s.Model, synthesizerSystemPrompt,
			buildSynthesizerUserPrompt(pad, query, results, pageURL, pageText), nil)
		out.Cost += cost
		if err != nil {
			return out, fmt.Errorf("synthesizer: %w", err)
		}
		pad.Knowledge = knowledge

		remaining := s.Depth - pad.IterationCount
		if remaining <= 0 {
			break
		}
		raw, cost, err := generate(ctx, log, "follow-up", s.Model, followUpSystemPrompt,
			buildFollowUpUserPrompt(pad, remaining), nil)
		out.Cost += cost
		if err != nil {
			return out, fmt.Errorf("follow-up: %w", err)
		}
		decision, err := parseFollowUpDecision(raw)
		if err != nil {
			log.Debug("follow-up decision unreadable, stopping", zap.Error(err))
			break
		}
		if decision.Action == followUpAnswer || alreadyQueried(out.Queries, decision.Query) {
			break
		}
		query = decision.Query
	}

	if strings.TrimSpace(pad.Knowledge) == "" {
		return out, ErrEmptySummary
	}
	out.Summary = pad.Knowledge
	return out, nil
}

func (s *Searcher) search(ctx context.Context, out *SearchSummary, query string) ([]SearchResult, error) {
	out.Queries = append(out.Queries, query)
	results, err := s.Tool.Search(ctx, query)
	out.Cost += s.SearchCost
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	out.Sources = mergeSources(out.Sources, results)
	return results, nil
}

func thinResults(results []SearchResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if len(strings.TrimSpace(r.Snippet)) >= thinSnippetLen {
			return false
		}
	}
	return true
}

// readTopPage fetches the first result page when the snippets are too thin
// to summarize. Fetch failures are logged and yield empty strings.
func (s *Searcher) readTopPage(ctx context.Context, log *zap.Logger, results []SearchResult) (string, string) {
	if s.Fetcher == nil || !thinResults(results) {
		return "", ""
	}
	u := firstURL(results)
	if u == "" {
		return "", ""
	}
	text, err := s.Fetcher.Fetch(ctx, u)
	if err != nil {
		log.Debug("page fetch failed", zap.String("url", u), zap.Error(err))
		return "", ""
	}
	return u, truncate(strings.TrimSpace(text), maxPageChars)
}

func firstURL(results []SearchResult) string {
	for _, r := range results {
		u := strings.TrimSpace(r.URL)
		if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
			return u
		}
	}
	return ""
}

func mergeSources(have, add []SearchResult) []SearchResult {
	seen := make(map[string]bool, len(have))
	for _, r := range have {
		seen[r.URL] = true
	}
	for _, r := range add {
		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		have = append(have, r)
	}
	return have
}

func alreadyQueried(queries []string, q string) bool {
	for _, prev := range queries {
		if strings.EqualFold(strings.TrimSpace(prev), strings.TrimSpace(q)) {
			return true
		}
	}
	return false
}
