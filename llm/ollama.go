package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/invopop/jsonschema"
	"go.uber.org/zap"

	"github.com/smhanov/dossier"
)

const defaultOllamaEndpoint = "localhost:11434"

// Ollama uses the native /api/generate endpoint.
type Ollama struct {
	Endpoint string
	Model    string
	Pricing  Pricing
	client   *http.Client
	log      *zap.Logger
}

// NewOllama builds an Ollama provider from cfg.
func NewOllama(cfg Config) *Ollama {
	ep := cfg.Endpoint
	if ep == "" {
		ep = defaultOllamaEndpoint
	}
	return &Ollama{
		Endpoint: ep,
		Model:    cfg.Model,
		Pricing:  cfg.Pricing,
		client:   httpClient(cfg.HTTPClient, cfg.Timeout),
		log:      loggerOrNop(cfg.Logger),
	}
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
	Format any    `json:"format,omitempty"`
}

type ollamaResponse struct {
	Response        string `json:"response"`
	Thinking        string `json:"thinking"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate runs a single non-streaming completion.
func (o *Ollama) Generate(ctx context.Context, systemPrompt, userPrompt string) (dossier.LLMResponse, error) {
	return o.generate(ctx, systemPrompt, userPrompt, nil)
}

// GenerateJSON passes schema as Ollama's structured output format.
func (o *Ollama) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, schema *jsonschema.Schema) (dossier.LLMResponse, error) {
	var format any = "json"
	if schema != nil {
		format = schema
	}
	return o.generate(ctx, systemPrompt, userPrompt, format)
}

func (o *Ollama) generate(ctx context.Context, systemPrompt, userPrompt string, format any) (dossier.LLMResponse, error) {
	url := fmt.Sprintf("%s/api/generate", normalizeEndpoint(o.Endpoint))
	reqBody := ollamaRequest{
		Model:  o.Model,
		Prompt: userPrompt,
		System: systemPrompt,
		Format: format,
	}

	body, err := doRequestWithRetries(ctx, o.client, o.log, url, "", reqBody, "ollama")
	if err != nil {
		return dossier.LLMResponse{}, err
	}

	var resp ollamaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return dossier.LLMResponse{}, fmt.Errorf("failed to parse response: %w", err)
	}
	return dossier.LLMResponse{
		Text:      strings.TrimSpace(resp.Response),
		Reasoning: strings.TrimSpace(resp.Thinking),
		Cost:      o.Pricing.Cost(resp.PromptEvalCount, resp.EvalCount),
	}, nil
}
