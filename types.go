package dossier

import (
	"time"
)

// WebSearchItem is a single planned search.
type WebSearchItem struct {
	Query  string `json:"query" jsonschema_description:"The search term to use for the web search."`
	Reason string `json:"reason" jsonschema_description:"Your reasoning for why this search is important to the query."`
}

// WebSearchPlan is the planner's output: the restated query, the planning
// rationale and the ordered list of searches to run.
type WebSearchPlan struct {
	Query    string          `json:"query" jsonschema_description:"The user's query restated as a research question."`
	Reason   string          `json:"reason" jsonschema_description:"A short explanation of the overall search strategy."`
	Searches []WebSearchItem `json:"searches" jsonschema_description:"A list of web searches to perform to best answer the query."`
}

// ReportData is the terminal artifact of a research run.
type ReportData struct {
	ShortSummary      string   `json:"short_summary" jsonschema_description:"A short 2-3 sentence summary of the findings."`
	MarkdownReport    string   `json:"markdown_report" jsonschema_description:"The final report in markdown."`
	FollowUpQuestions []string `json:"follow_up_questions" jsonschema_description:"Suggested topics to research further."`
}

// SearchSummary is the Searcher's output for one plan item. A summary with a
// non-nil Err was skipped and is not passed to the writer.
type SearchSummary struct {
	Item     WebSearchItem  `json:"item"`
	Summary  string         `json:"summary,omitempty"`
	Sources  []SearchResult `json:"sources,omitempty"`
	Queries  []string       `json:"queries,omitempty"` // every query issued, including follow-ups
	Attempts int            `json:"attempts"`
	Cost     float64        `json:"cost"`
	Err      error          `json:"-"`
	Error    string         `json:"error,omitempty"`
}

// OK reports whether the search produced a usable summary.
func (s SearchSummary) OK() bool {
	return s.Err == nil
}

// Result is returned by Manager.Run. On failure it still carries whatever the
// run produced before the failing phase.
type Result struct {
	TraceID   string          `json:"trace_id"`
	Query     string          `json:"query"`
	Plan      WebSearchPlan   `json:"plan"`
	Summaries []SearchSummary `json:"summaries"`
	Report    ReportData      `json:"report"`
	Cost      float64         `json:"cost"`
	Phase     Phase           `json:"phase"`
	Started   time.Time       `json:"started"`
	Finished  time.Time       `json:"finished"`
}

// Succeeded returns the summaries that completed without error, in plan order.
func (r Result) Succeeded() []SearchSummary {
	out := make([]SearchSummary, 0, len(r.Summaries))
	for _, s := range r.Summaries {
		if s.OK() {
			out = append(out, s)
		}
	}
	return out
}

// Failed returns the number of searches that were skipped.
func (r Result) Failed() int {
	n := 0
	for _, s := range r.Summaries {
		if !s.OK() {
			n++
		}
	}
	return n
}
