package dossier

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Writer turns the collected search summaries into the final report.
type Writer struct {
	Model  LLMProvider
	Logger *zap.Logger
}

// Write produces ReportData for query from the successful summaries. Failed
// summaries are ignored; if none succeeded it returns ErrNoSummaries.
func (w *Writer) Write(ctx context.Context, query string, summaries []SearchSummary) (ReportData, float64, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return ReportData{}, 0, ErrEmptyQuery
	}
	usable := make([]SearchSummary, 0, len(summaries))
	for _, s := range summaries {
		if s.OK() && strings.TrimSpace(s.Summary) != "" {
			usable = append(usable, s)
		}
	}
	if len(usable) == 0 {
		return ReportData{}, 0, ErrNoSummaries
	}
	log := traceLogger(ctx, w.Logger)

	user, err := renderTemplate(writerTemplate, writerPromptData{
		Query:      query,
		Summaries:  usable,
		Structured: supportsSchema(w.Model),
	})
	if err != nil {
		return ReportData{}, 0, err
	}
	raw, cost, err := generate(ctx, log, "writer", w.Model, writerSystemPrompt, user, reportSchema)
	if err != nil {
		return ReportData{}, cost, err
	}

	report := parseReport(raw)
	if strings.TrimSpace(report.MarkdownReport) == "" {
		return report, cost, ErrEmptyReport
	}
	log.Info("report written",
		zap.Int("chars", len(report.MarkdownReport)),
		zap.Int("follow_ups", len(report.FollowUpQuestions)))
	return report, cost, nil
}

// parseReport reads writer output. JSON matching ReportData is preferred;
// otherwise the raw text is treated as the markdown report itself.
func parseReport(raw string) ReportData {
	body := strings.TrimSpace(extractJSON(raw))
	if strings.HasPrefix(body, "{") {
		var r ReportData
		if err := json.Unmarshal([]byte(body), &r); err == nil {
			return normalizeReport(r)
		}
	}
	md := strings.TrimSpace(raw)
	return normalizeReport(ReportData{
		MarkdownReport:    md,
		FollowUpQuestions: followUpsFromMarkdown(md),
	})
}

func normalizeReport(r ReportData) ReportData {
	r.MarkdownReport = strings.TrimSpace(r.MarkdownReport)
	r.ShortSummary = strings.TrimSpace(r.ShortSummary)
	if r.ShortSummary == "" {
		r.ShortSummary = firstParagraph(r.MarkdownReport)
	}
	r.FollowUpQuestions = trimStrings(r.FollowUpQuestions)
	return r
}

var bulletLine = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+(.+)$`)

// followUpsFromMarkdown collects the list items under a heading that
// mentions follow-up questions.
func followUpsFromMarkdown(md string) []string {
	var out []string
	inSection := false
	for _, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			lower := strings.ToLower(trimmed)
			inSection = strings.Contains(lower, "follow-up") || strings.Contains(lower, "follow up") || strings.Contains(lower, "further research")
			continue
		}
		if !inSection {
			continue
		}
		if m := bulletLine.FindStringSubmatch(line); len(m) == 2 {
			out = append(out, m[1])
		}
	}
	return out
}

func firstParagraph(md string) string {
	for _, para := range strings.Split(md, "\n\n") {
		p := strings.TrimSpace(para)
		if p == "" || strings.HasPrefix(p, "#") || strings.HasPrefix(p, "```") {
			continue
		}
		return strings.Join(strings.Fields(p), " ")
	}
	return ""
}
