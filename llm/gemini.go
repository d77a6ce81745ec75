package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/smhanov/dossier"
)

const defaultGeminiModel = "gemini-2.5-flash"

// Gemini calls the Gemini API through the genai SDK.
type Gemini struct {
	Model   string
	Pricing Pricing
	client  *genai.Client
	log     *zap.Logger
}

// NewGemini builds a Gemini provider. cfg.Endpoint, when set, overrides the
// API base URL.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: API key is missing")
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient(cfg.HTTPClient, cfg.Timeout),
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: normalizeEndpoint(cfg.Endpoint) + "/"}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{Model: model, Pricing: cfg.Pricing, client: client, log: loggerOrNop(cfg.Logger)}, nil
}

// Generate runs a single completion.
func (g *Gemini) Generate(ctx context.Context, systemPrompt, userPrompt string) (dossier.LLMResponse, error) {
	return g.generate(ctx, userPrompt, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	})
}

// GenerateJSON requests application/json output constrained to schema.
func (g *Gemini) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, schema *jsonschema.Schema) (dossier.LLMResponse, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}
	if schema != nil {
		cfg.ResponseJsonSchema = schema
	}
	return g.generate(ctx, userPrompt, cfg)
}

func (g *Gemini) generate(ctx context.Context, userPrompt string, cfg *genai.GenerateContentConfig) (dossier.LLMResponse, error) {
	g.log.Debug("llm request", zap.String("provider", "gemini"), zap.String("model", g.Model))
	resp, err := g.client.Models.GenerateContent(ctx, g.Model, genai.Text(userPrompt), cfg)
	if err != nil {
		return dossier.LLMResponse{}, fmt.Errorf("gemini: %w", err)
	}

	out := dossier.LLMResponse{Text: strings.TrimSpace(resp.Text())}
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		var thoughts []string
		for _, p := range resp.Candidates[0].Content.Parts {
			if p != nil && p.Thought && p.Text != "" {
				thoughts = append(thoughts, p.Text)
			}
		}
		out.Reasoning = strings.TrimSpace(strings.Join(thoughts, "\n"))
	}
	if u := resp.UsageMetadata; u != nil {
		out.Cost = g.Pricing.Cost(int(u.PromptTokenCount), int(u.CandidatesTokenCount)+int(u.ThoughtsTokenCount))
	}
	return out, nil
}
