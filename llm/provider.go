package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smhanov/dossier"
)

// Config selects and configures a backend.
type Config struct {
	Provider   string // openai, ollama or gemini
	Endpoint   string
	Model      string
	APIKey     string
	Timeout    time.Duration
	Pricing    Pricing
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// New returns the provider named by cfg.Provider. Every returned provider
// also implements dossier.StructuredLLMProvider.
func New(ctx context.Context, cfg Config) (dossier.StructuredLLMProvider, error) {
	if strings.TrimSpace(cfg.Model) == "" && !strings.EqualFold(cfg.Provider, "gemini") {
		return nil, fmt.Errorf("llm: model is required for provider %q", cfg.Provider)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "ollama":
		return NewOllama(cfg), nil
	case "openai":
		return NewOpenAI(cfg), nil
	case "gemini":
		g, err := NewGemini(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q (want openai, ollama or gemini)", cfg.Provider)
	}
}
