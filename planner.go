package dossier

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

const defaultMaxSearches = 10

// Planner maps a free-text query to a WebSearchPlan.
type Planner struct {
	Model       LLMProvider
	MaxSearches int // upper bound on planned searches; defaults to 10
	Logger      *zap.Logger
}

// Plan asks the planner model for a search plan. The returned plan has
// trimmed, de-duplicated items and at most MaxSearches of them. A plan with
// no usable items yields ErrEmptyPlan.
func (p *Planner) Plan(ctx context.Context, query string) (WebSearchPlan, float64, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return WebSearchPlan{}, 0, ErrEmptyQuery
	}
	limit := p.MaxSearches
	if limit <= 0 {
		limit = defaultMaxSearches
	}
	log := traceLogger(ctx, p.Logger)

	user, err := renderTemplate(plannerTemplate, plannerPromptData{
		Query:       query,
		MaxSearches: limit,
		Structured:  supportsSchema(p.Model),
	})
	if err != nil {
		return WebSearchPlan{}, 0, err
	}

	raw, cost, err := generate(ctx, log, "planner", p.Model, plannerSystemPrompt, user, planSchema)
	if err != nil {
		return WebSearchPlan{}, cost, err
	}
	plan, err := parsePlan(raw)
	if err != nil {
		return WebSearchPlan{}, cost, err
	}
	plan = normalizePlan(plan, query, limit)
	if len(plan.Searches) == 0 {
		return plan, cost, ErrEmptyPlan
	}
	log.Info("plan ready", zap.Int("searches", len(plan.Searches)))
	return plan, cost, nil
}

var (
	planQueryLine  = regexp.MustCompile(`(?i)^\s*(?:[-*]|\d+[.)])?\s*(?:search\s+)?query\s*[:\-]\s*(.+)$`)
	planReasonLine = regexp.MustCompile(`(?i)^\s*(?:[-*])?\s*reason\s*[:\-]\s*(.+)$`)
)

// parsePlan reads planner output. It accepts a WebSearchPlan object, a bare
// array of items or search terms, and as a last resort the line grammar
// "Query: ..." optionally followed by "Reason: ...".
func parsePlan(raw string) (WebSearchPlan, error) {
	body := strings.TrimSpace(extractJSON(raw))
	if strings.HasPrefix(body, "[") {
		var items []WebSearchItem
		if err := json.Unmarshal([]byte(body), &items); err == nil {
			return WebSearchPlan{Searches: items}, nil
		}
		var terms []string
		if err := json.Unmarshal([]byte(body), &terms); err == nil {
			plan := WebSearchPlan{}
			for _, t := range terms {
				plan.Searches = append(plan.Searches, WebSearchItem{Query: t})
			}
			return plan, nil
		}
	} else if strings.HasPrefix(body, "{") {
		var plan WebSearchPlan
		if err := json.Unmarshal([]byte(body), &plan); err == nil {
			return plan, nil
		}
	}

	if items := parsePlanLines(raw); len(items) > 0 {
		return WebSearchPlan{Searches: items}, nil
	}
	return WebSearchPlan{}, fmt.Errorf("unable to parse planner output: %q", truncate(raw, 200))
}

func parsePlanLines(raw string) []WebSearchItem {
	var items []WebSearchItem
	for _, line := range strings.Split(raw, "\n") {
		if m := planQueryLine.FindStringSubmatch(line); len(m) == 2 {
			items = append(items, WebSearchItem{Query: m[1]})
			continue
		}
		if m := planReasonLine.FindStringSubmatch(line); len(m) == 2 && len(items) > 0 {
			last := &items[len(items)-1]
			if last.Reason == "" {
				last.Reason = m[1]
			}
		}
	}
	return items
}

func normalizePlan(plan WebSearchPlan, query string, limit int) WebSearchPlan {
	out := WebSearchPlan{
		Query:    strings.TrimSpace(plan.Query),
		Reason:   strings.TrimSpace(plan.Reason),
		Searches: make([]WebSearchItem, 0, len(plan.Searches)),
	}
	if out.Query == "" {
		out.Query = query
	}
	seen := make(map[string]bool, len(plan.Searches))
	for _, item := range plan.Searches {
		q := strings.Join(strings.Fields(item.Query), " ")
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out.Searches = append(out.Searches, WebSearchItem{Query: q, Reason: strings.TrimSpace(item.Reason)})
		if len(out.Searches) >= limit {
			break
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
