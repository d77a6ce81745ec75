package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smhanov/dossier"
)

func fastRetries(t *testing.T) {
	t.Helper()
	old := baseDelay
	baseDelay = time.Millisecond
	t.Cleanup(func() { baseDelay = old })
}

func TestPricingCost(t *testing.T) {
	p := Pricing{InputPerMillion: 1, OutputPerMillion: 4}
	assert.InDelta(t, 0.0003, p.Cost(100, 50), 1e-12)
	assert.Zero(t, Pricing{}.Cost(1000, 1000))
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "http://localhost:11434", normalizeEndpoint("localhost:11434/"))
	assert.Equal(t, "https://api.example.com/v1", normalizeEndpoint(" https://api.example.com/v1/ "))
}

func TestOpenAICompletionsURL(t *testing.T) {
	tests := []struct{ endpoint, want string }{
		{"https://api.openai.com", "https://api.openai.com/v1/chat/completions"},
		{"https://host/v1", "https://host/v1/chat/completions"},
		{"https://host/custom/v1/chat/completions", "https://host/custom/v1/chat/completions"},
		{"localhost:8000", "http://localhost:8000/v1/chat/completions"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, (&OpenAI{Endpoint: tt.endpoint}).completionsURL(), tt.endpoint)
	}
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req openaiRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "system", req.Messages[0].Role)
			assert.Equal(t, "sys", req.Messages[0].Content)
			assert.Equal(t, "user prompt", req.Messages[1].Content)
		}
		assert.Nil(t, req.ResponseFormat)
		io.WriteString(w, `{"choices": [{"message": {"role": "assistant", "content": " hello ", "reasoning_content": "because"}}],
			"usage": {"prompt_tokens": 1000, "completion_tokens": 500}}`)
	}))
	defer srv.Close()

	o := NewOpenAI(Config{
		Endpoint:   srv.URL,
		Model:      "gpt-test",
		APIKey:     "sk-test",
		Pricing:    Pricing{InputPerMillion: 2, OutputPerMillion: 8},
		HTTPClient: srv.Client(),
	})
	resp, err := o.Generate(context.Background(), "sys", "user prompt")
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, "because", resp.Reasoning)
	assert.InDelta(t, 0.006, resp.Cost, 1e-12)
}

func TestOpenAIGenerateJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		format, _ := raw["response_format"].(map[string]any)
		assert.Equal(t, "json_schema", format["type"])
		schema, _ := format["json_schema"].(map[string]any)
		assert.Equal(t, "response", schema["name"])
		assert.NotNil(t, schema["schema"])
		assert.Empty(t, r.Header.Get("Authorization"), "keyless servers get no auth header")
		io.WriteString(w, `{"choices": [{"message": {"content": "{\"searches\": []}", "reasoning": "r"}}]}`)
	}))
	defer srv.Close()

	o := NewOpenAI(Config{Endpoint: srv.URL + "/v1", Model: "m", HTTPClient: srv.Client()})
	resp, err := o.GenerateJSON(context.Background(), "sys", "user", dossier.PlanSchema())
	require.NoError(t, err)
	assert.Equal(t, `{"searches": []}`, resp.Text)
	assert.Equal(t, "r", resp.Reasoning)
}

func TestOpenAINoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices": []}`)
	}))
	defer srv.Close()

	_, err := NewOpenAI(Config{Endpoint: srv.URL, Model: "m", HTTPClient: srv.Client()}).Generate(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestRetriesThrottledRequests(t *testing.T) {
	fastRetries(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			io.WriteString(w, `{"response": "ok"}`)
		}
	}))
	defer srv.Close()

	o := NewOllama(Config{Endpoint: srv.URL, Model: "m", HTTPClient: srv.Client()})
	resp, err := o.Generate(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNonRetryableStatus(t *testing.T) {
	fastRetries(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, "bad key")
	}))
	defer srv.Close()

	_, err := NewOpenAI(Config{Endpoint: srv.URL, Model: "m", HTTPClient: srv.Client()}).Generate(context.Background(), "s", "u")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.False(t, apiErr.Temporary())
	assert.Contains(t, apiErr.Error(), "bad key")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetriesGiveUp(t *testing.T) {
	fastRetries(t)
	old := maxRetries
	maxRetries = 2
	t.Cleanup(func() { maxRetries = old })

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewOllama(Config{Endpoint: srv.URL, Model: "m", HTTPClient: srv.Client()}).Generate(context.Background(), "s", "u")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Temporary())
	assert.Equal(t, int32(3), calls.Load())
}

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req ollamaRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen3:8b", req.Model)
		assert.Equal(t, "sys", req.System)
		assert.Equal(t, "user", req.Prompt)
		assert.False(t, req.Stream)
		assert.Nil(t, req.Format)
		io.WriteString(w, `{"response": " text ", "thinking": "hmm", "done": true, "prompt_eval_count": 10, "eval_count": 20}`)
	}))
	defer srv.Close()

	o := NewOllama(Config{Endpoint: srv.URL, Model: "qwen3:8b", Pricing: Pricing{InputPerMillion: 1e5, OutputPerMillion: 1e5}, HTTPClient: srv.Client()})
	resp, err := o.Generate(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "text", resp.Text)
	assert.Equal(t, "hmm", resp.Reasoning)
	assert.InDelta(t, 3.0, resp.Cost, 1e-9)
}

func TestOllamaGenerateJSON(t *testing.T) {
	var formats []any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		formats = append(formats, raw["format"])
		io.WriteString(w, `{"response": "{}"}`)
	}))
	defer srv.Close()

	o := NewOllama(Config{Endpoint: srv.URL, Model: "m", HTTPClient: srv.Client()})
	_, err := o.GenerateJSON(context.Background(), "s", "u", dossier.ReportSchema())
	require.NoError(t, err)
	_, err = o.GenerateJSON(context.Background(), "s", "u", nil)
	require.NoError(t, err)

	require.Len(t, formats, 2)
	schema, ok := formats[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, "json", formats[1])
}

func TestGeminiGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent"), r.URL.Path)
		var raw map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.NotNil(t, raw["systemInstruction"])
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"candidates": [{"content": {"role": "model", "parts": [
				{"text": "thinking hard", "thought": true},
				{"text": "the answer"}
			]}}],
			"usageMetadata": {"promptTokenCount": 100, "candidatesTokenCount": 40, "thoughtsTokenCount": 60}
		}`)
	}))
	defer srv.Close()

	g, err := NewGemini(context.Background(), Config{
		Endpoint:   srv.URL,
		Model:      "gemini-test",
		APIKey:     "g-key",
		Pricing:    Pricing{InputPerMillion: 1e4, OutputPerMillion: 1e4},
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)

	resp, err := g.Generate(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "the answer", resp.Text)
	assert.Equal(t, "thinking hard", resp.Reasoning)
	assert.InDelta(t, 2.0, resp.Cost, 1e-9, "thought tokens are billed as output")
}

func TestGeminiRequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), Config{Model: "m"})
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	p, err := New(ctx, Config{Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &Ollama{}, p)

	p, err = New(ctx, Config{Provider: "OpenAI", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, p)
	assert.Equal(t, defaultOpenAIEndpoint, p.(*OpenAI).Endpoint)

	p, err = New(ctx, Config{Provider: "gemini", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, defaultGeminiModel, p.(*Gemini).Model)

	_, err = New(ctx, Config{Provider: "openai"})
	assert.Error(t, err, "model required")

	_, err = New(ctx, Config{Provider: "gemini"})
	assert.Error(t, err, "api key required")

	_, err = New(ctx, Config{Provider: "claude", Model: "m"})
	assert.ErrorContains(t, err, "unknown provider")
}
