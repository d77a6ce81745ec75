package dossier

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []WebSearchItem
	}{
		{
			name: "object",
			raw:  `{"query": "q", "reason": "r", "searches": [{"query": "a", "reason": "ra"}]}`,
			want: []WebSearchItem{{Query: "a", Reason: "ra"}},
		},
		{
			name: "fenced object with prose",
			raw:  "Here is the plan:\n```json\n{\"searches\": [{\"query\": \"a\"}, {\"query\": \"b\"}]}\n```\nGood luck.",
			want: []WebSearchItem{{Query: "a"}, {Query: "b"}},
		},
		{
			name: "bracketed prose before object",
			raw:  "Here is the plan [draft]:\n{\"query\": \"q\", \"searches\": [{\"query\": \"alpha\", \"reason\": \"r\"}]}",
			want: []WebSearchItem{{Query: "alpha", Reason: "r"}},
		},
		{
			name: "array of items",
			raw:  `[{"query": "a", "reason": "ra"}, {"query": "b"}]`,
			want: []WebSearchItem{{Query: "a", Reason: "ra"}, {Query: "b"}},
		},
		{
			name: "array of terms",
			raw:  `["a", "b"]`,
			want: []WebSearchItem{{Query: "a"}, {Query: "b"}},
		},
		{
			name: "line grammar",
			raw:  "1. Query: rayleigh scattering\n   Reason: explains color\n2. Query: sunset red",
			want: []WebSearchItem{{Query: "rayleigh scattering", Reason: "explains color"}, {Query: "sunset red"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := parsePlan(tt.raw)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, plan.Searches); diff != "" {
				t.Errorf("searches mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParsePlanRejectsGarbage(t *testing.T) {
	_, err := parsePlan("I cannot help with that.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to parse planner output")
}

func TestTruncateKeepsRunes(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))

	got := truncate(strings.Repeat("é", 10), 5)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "éé...", got)
}

func TestNormalizePlan(t *testing.T) {
	in := WebSearchPlan{
		Searches: []WebSearchItem{
			{Query: "  rayleigh   scattering ", Reason: " why "},
			{Query: "Rayleigh Scattering"},
			{Query: ""},
			{Query: "mie scattering"},
			{Query: "ozone"},
		},
	}
	got := normalizePlan(in, "why is the sky blue", 2)
	want := WebSearchPlan{
		Query: "why is the sky blue",
		Searches: []WebSearchItem{
			{Query: "rayleigh scattering", Reason: "why"},
			{Query: "mie scattering"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("normalizePlan mismatch (-want +got):\n%s", diff)
	}
}

func TestPlannerPlan(t *testing.T) {
	llm := &scriptedLLM{
		planner:     []string{"<think>hmm</think>" + planJSON("a", "b", "c")},
		costPerCall: 0.02,
	}
	p := &Planner{Model: llm, MaxSearches: 2}

	plan, cost, err := p.Plan(context.Background(), "  the query ")
	require.NoError(t, err)
	assert.InDelta(t, 0.02, cost, 1e-9)
	assert.Equal(t, "q", plan.Query)
	require.Len(t, plan.Searches, 2)
	assert.Equal(t, "because a", plan.Searches[0].Reason)

	prompts := llm.calls(plannerSystemPrompt)
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "the query")
	assert.Contains(t, prompts[0], "between 1 and 2 web searches")
	assert.Contains(t, prompts[0], "Output ONLY raw JSON", "unstructured models get the JSON example")
}

func TestPlannerUsesSchemaWhenSupported(t *testing.T) {
	llm := &structuredLLM{text: planJSON("a")}
	p := &Planner{Model: llm}

	plan, _, err := p.Plan(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, plan.Searches, 1)

	require.NotNil(t, llm.schema)
	assert.Same(t, PlanSchema(), llm.schema)
	assert.Equal(t, plannerSystemPrompt, llm.sys)
	assert.NotContains(t, llm.user, "Output ONLY raw JSON")
	assert.Contains(t, llm.user, "between 1 and 10 web searches")
}

func TestPlannerEmptyPlan(t *testing.T) {
	p := &Planner{Model: &scriptedLLM{planner: []string{`{"searches": [{"query": "  "}]}`}}}
	_, _, err := p.Plan(context.Background(), "q")
	require.ErrorIs(t, err, ErrEmptyPlan)
}

func TestPlannerErrors(t *testing.T) {
	_, _, err := (&Planner{Model: &scriptedLLM{}}).Plan(context.Background(), " ")
	require.ErrorIs(t, err, ErrEmptyQuery)

	_, _, err = (&Planner{}).Plan(context.Background(), "q")
	require.ErrorIs(t, err, ErrNotConfigured)

	_, _, err = (&Planner{Model: &scriptedLLM{}}).Plan(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no scripted response"))
}

func TestPlanSchemaShape(t *testing.T) {
	s := PlanSchema()
	assert.Empty(t, s.Version)
	assert.Empty(t, s.Ref)
	_, ok := s.Properties.Get("searches")
	assert.True(t, ok)

	r := ReportSchema()
	for _, key := range []string{"short_summary", "markdown_report", "follow_up_questions"} {
		_, ok := r.Properties.Get(key)
		assert.True(t, ok, key)
	}
}
