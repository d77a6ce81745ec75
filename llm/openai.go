package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/invopop/jsonschema"
	"go.uber.org/zap"

	"github.com/smhanov/dossier"
)

const defaultOpenAIEndpoint = "https://api.openai.com"

// OpenAI talks to any server exposing /v1/chat/completions (OpenAI, Ollama
// /v1, vLLM, LiteLLM, etc.).
type OpenAI struct {
	Endpoint string // base URL, e.g. https://api.openai.com or https://ollama.example.com/v1
	Model    string
	APIKey   string // optional; leave empty for keyless servers
	Pricing  Pricing
	client   *http.Client
	log      *zap.Logger
}

// NewOpenAI builds an OpenAI-compatible provider from cfg.
func NewOpenAI(cfg Config) *OpenAI {
	ep := cfg.Endpoint
	if ep == "" {
		ep = defaultOpenAIEndpoint
	}
	return &OpenAI{
		Endpoint: ep,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		Pricing:  cfg.Pricing,
		client:   httpClient(cfg.HTTPClient, cfg.Timeout),
		log:      loggerOrNop(cfg.Logger),
	}
}

type openaiMessage struct {
	Role             string `json:"role"`
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
	Reasoning        string `json:"reasoning,omitempty"`
}

type openaiJSONSchema struct {
	Name   string             `json:"name"`
	Schema *jsonschema.Schema `json:"schema"`
	Strict bool               `json:"strict"`
}

type openaiResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *openaiJSONSchema `json:"json_schema,omitempty"`
}

type openaiRequest struct {
	Model          string                `json:"model"`
	Messages       []openaiMessage       `json:"messages"`
	Stream         bool                  `json:"stream"`
	ResponseFormat *openaiResponseFormat `json:"response_format,omitempty"`
}

type openaiResponse struct {
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate sends a system and user message and returns the reply.
func (o *OpenAI) Generate(ctx context.Context, systemPrompt, userPrompt string) (dossier.LLMResponse, error) {
	return o.complete(ctx, systemPrompt, userPrompt, nil)
}

// GenerateJSON asks the server to constrain the reply to schema.
func (o *OpenAI) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, schema *jsonschema.Schema) (dossier.LLMResponse, error) {
	var format *openaiResponseFormat
	if schema != nil {
		format = &openaiResponseFormat{
			Type:       "json_schema",
			JSONSchema: &openaiJSONSchema{Name: "response", Schema: schema},
		}
	}
	return o.complete(ctx, systemPrompt, userPrompt, format)
}

func (o *OpenAI) complete(ctx context.Context, systemPrompt, userPrompt string, format *openaiResponseFormat) (dossier.LLMResponse, error) {
	reqBody := openaiRequest{
		Model: o.Model,
		Messages: []openaiMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: format,
	}

	body, err := doRequestWithRetries(ctx, o.client, o.log, o.completionsURL(), o.APIKey, reqBody, "openai")
	if err != nil {
		return dossier.LLMResponse{}, err
	}

	var resp openaiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return dossier.LLMResponse{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return dossier.LLMResponse{}, errors.New("openai response contained no choices")
	}
	msg := resp.Choices[0].Message
	reasoning := msg.ReasoningContent
	if reasoning == "" {
		reasoning = msg.Reasoning
	}
	return dossier.LLMResponse{
		Text:      strings.TrimSpace(msg.Content),
		Reasoning: strings.TrimSpace(reasoning),
		Cost:      o.Pricing.Cost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}, nil
}

// completionsURL appends /v1/chat/completions unless the endpoint already
// names the path.
func (o *OpenAI) completionsURL() string {
	url := normalizeEndpoint(o.Endpoint)
	if strings.HasSuffix(url, "/chat/completions") {
		return url
	}
	if !strings.HasSuffix(url, "/v1") {
		url += "/v1"
	}
	return url + "/chat/completions"
}
