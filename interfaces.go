package dossier

import (
	"context"

	"github.com/invopop/jsonschema"
)

// SearchResult is a single item returned by a SearchProvider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchProvider executes a query and returns results. It is the web search
// tool invoked by the Searcher.
type SearchProvider interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// FetchProvider retrieves readable text for a URL.
// The Searcher uses it to read a full page when search snippets are too thin.
type FetchProvider interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// LLMResponse is returned by LLMProvider.Generate and carries the generated
// text, any separate reasoning output, and the cost (in dollars) of the call.
type LLMResponse struct {
	Text      string
	Reasoning string
	Cost      float64
}

// LLMProvider is implemented by user-supplied language model clients.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (LLMResponse, error)
}

// StructuredLLMProvider is implemented by clients that can constrain their
// output to a JSON schema. The planner and writer use it when available and
// fall back to prompt-only JSON otherwise.
type StructuredLLMProvider interface {
	LLMProvider
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, schema *jsonschema.Schema) (LLMResponse, error)
}
