package dossier

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

const plannerSystemPrompt = "You are a helpful research assistant. Given a query, come up with a set of web searches to perform to best answer the query. Each search must target a distinct aspect of the query. Output valid JSON only."

const searchSystemPrompt = "You are a research assistant. Given a search term and the results of a web search for it, produce a concise summary of the results. The summary must be 2-3 paragraphs and less than 300 words. Capture the main points. Write succinctly; complete sentences and good grammar are not required. This will be consumed by someone synthesizing a report, so capture the essence and ignore any fluff. ONLY include facts that appear in the results. Do not include any commentary other than the summary itself."

const followUpSystemPrompt = "You are a focused research planner. You decide whether the knowledge gathered for a search topic is sufficient or whether one more, more specific web search is needed. Never use internal knowledge alone. If knowledge contains [MISMATCH] or [NEEDS VERIFICATION] markers, search again with a more specific query."

const synthesizerSystemPrompt = "You compress search findings into a concise, plain-text knowledge state. ONLY include facts that appear in the search results provided. Never add information from internal knowledge. If information is missing, leave a placeholder like [NOT YET SEARCHED]. If results appear to be about a different entity than the topic, note the discrepancy and mark the information as [MISMATCH - NEEDS VERIFICATION]. Always output plain-text notes."

const writerSystemPrompt = "You are a senior researcher tasked with writing a cohesive report for a research query. You will be provided with the original query and research summaries produced by research assistants. First come up with an outline that describes the structure and flow of the report, then write the report. The report must be in markdown, detailed, and grounded only in the provided research. Output valid JSON only."

type plannerPromptData struct {
	Query       string
	MaxSearches int
	Structured  bool
}

type writerPromptData struct {
	Query      string
	Summaries  []SearchSummary
	Structured bool
}

type searchPromptData struct {
	Item     WebSearchItem
	Results  []SearchResult
	PageURL  string
	PageText string
}

var plannerTemplate = template.Must(template.New("planner").Parse(`Query:
{{.Query}}

Plan between 1 and {{.MaxSearches}} web searches that together answer the query.
For each search give the exact search term and why it matters.
{{- if not .Structured}}

Output ONLY raw JSON (no markdown, no code blocks):
{
    "query": "the query restated as a research question",
    "reason": "overall search strategy",
    "searches": [
        {"query": "search term 1", "reason": "why"},
        {"query": "search term 2", "reason": "why"}
    ]
}
{{- end}}
`))

var searchTemplate = template.Must(template.New("search").Funcs(templateFuncs).Parse(`Search term: {{.Item.Query}}
Reason for searching: {{.Item.Reason}}

Search results (title | url | snippet):
{{- if .Results}}
{{range $i, $r := .Results}}{{inc $i}}. {{$r.Title}} | {{$r.URL}} | {{$r.Snippet}}
{{end}}
{{- else}}
(no results returned)
{{- end}}
{{- if .PageText}}

Full text of {{.PageURL}}:
{{.PageText}}
{{- end}}

Task: summarize what these results say about the search term.`))

var writerTemplate = template.Must(template.New("writer").Funcs(templateFuncs).Parse(`Original query:
{{.Query}}

Summarized search results:
{{range $i, $s := .Summaries}}
## Search {{inc $i}}: {{$s.Item.Query}}
{{$s.Summary}}
{{end}}
Write the report.
{{- if not .Structured}}

Output ONLY raw JSON (no markdown fences around it):
{
    "short_summary": "2-3 sentence summary of the findings",
    "markdown_report": "the full markdown report",
    "follow_up_questions": ["question 1", "question 2"]
}
{{- end}}
`))

var templateFuncs = template.FuncMap{"inc": func(i int) int { return i + 1 }}

func renderTemplate(tmpl *template.Template, data any) (string, error) {
	var b bytes.Buffer
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func buildFollowUpUserPrompt(pad Scratchpad, remaining int) string {
	var b strings.Builder
	b.WriteString("Review the scratchpad and choose an action.\n")
	b.WriteString("IMPORTANT: Output ONLY the action line(s). Do NOT write a summary here.\n")
	b.WriteString(fmt.Sprintf("You may run at most %d more search(es) for this topic.\n\n", remaining))
	b.WriteString("If the knowledge covers the topic, output exactly: Action: Answer\n")
	b.WriteString("If important information is missing or ungrounded, output exactly:\nAction: Search\nQuery: <your search query>\n\n")
	b.WriteString("Scratchpad:\n")
	b.WriteString(pad.Snapshot())
	return b.String()
}

func buildSynthesizerUserPrompt(pad Scratchpad, query string, results []SearchResult, pageURL, pageText string) string {
	var b strings.Builder
	b.WriteString("Topic:\n")
	b.WriteString(pad.Topic)
	b.WriteString("\n\nExisting Knowledge:\n")
	if strings.TrimSpace(pad.Knowledge) == "" {
		b.WriteString("(empty)\n")
	} else {
		b.WriteString(pad.Knowledge)
		b.WriteString("\n")
	}
	b.WriteString("\nNew Search Query:\n")
	b.WriteString(query)
	b.WriteString("\n\nNew Search Results (title | url | snippet):\n")
	if len(results) == 0 {
		b.WriteString("(no results returned)\n")
	}
	for i, r := range results {
		b.WriteString(fmt.Sprintf("%d. %s | %s | %s\n", i+1, strings.TrimSpace(r.Title), strings.TrimSpace(r.URL), strings.TrimSpace(r.Snippet)))
	}
	if pageText != "" {
		b.WriteString("\nFull text of " + pageURL + ":\n")
		b.WriteString(pageText)
		b.WriteString("\n")
	}
	b.WriteString("\nTask: Update the knowledge section with concise, relevant facts in PLAIN TEXT. Remove noise and duplication. Respond with only the updated knowledge text.")
	return b.String()
}

type followUpAction string

const (
	followUpAnswer followUpAction = "answer"
	followUpSearch followUpAction = "search"
)

type followUpDecision struct {
	Action followUpAction
	Query  string
}

var queryRegex = regexp.MustCompile(`(?i)query\s*[:\-]\s*(.+)`) //nolint:gochecknoglobals
var thinkRegex = regexp.MustCompile(`(?s)<think>.*?</think>`)  //nolint:gochecknoglobals
var fenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*\n(.*?)\n```")

// StripThinkBlocks removes <think>...</think> blocks from LLM responses.
// Some models (like qwen3) output reasoning in these blocks.
func StripThinkBlocks(s string) string {
	return strings.TrimSpace(thinkRegex.ReplaceAllString(s, ""))
}

// responseContent extracts usable text from an LLM response. It strips <think>
// blocks from Text first. If Text is empty (thinking models that put
// everything in reasoning tokens), it falls back to the Reasoning field.
func responseContent(resp LLMResponse) string {
	text := StripThinkBlocks(resp.Text)
	if text != "" {
		return text
	}
	return StripThinkBlocks(resp.Reasoning)
}

// parseFollowUpDecision reads the "Action: ... / Query: ..." grammar.
func parseFollowUpDecision(raw string) (followUpDecision, error) {
	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)

	if strings.Contains(lower, "action: answer") || strings.HasPrefix(lower, "answer") {
		return followUpDecision{Action: followUpAnswer}, nil
	}
	if strings.Contains(lower, "search") {
		query := extractQuery(trimmed)
		if query == "" {
			return followUpDecision{}, errors.New("follow-up search requested but no query was found")
		}
		return followUpDecision{Action: followUpSearch, Query: query}, nil
	}
	return followUpDecision{}, fmt.Errorf("unable to parse follow-up decision: %q", raw)
}

func extractQuery(raw string) string {
	if m := queryRegex.FindStringSubmatch(raw); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	for _, line := range strings.Split(raw, "\n") {
		l := strings.ToLower(strings.TrimSpace(line))
		if strings.HasPrefix(l, "search:") {
			return strings.TrimSpace(strings.TrimSpace(line)[len("search:"):])
		}
	}
	return ""
}

// extractJSON pulls a JSON object or array out of an LLM response that may
// wrap it in a markdown code block or surround it with prose. Each opening
// brace or bracket is tried in turn so that bracketed prose before the
// payload does not hide it.
func extractJSON(raw string) string {
	if m := fenceRegex.FindStringSubmatch(raw); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' && raw[i] != '[' {
			continue
		}
		var msg json.RawMessage
		if err := json.NewDecoder(strings.NewReader(raw[i:])).Decode(&msg); err == nil {
			return string(msg)
		}
	}
	return raw
}

func trimStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
