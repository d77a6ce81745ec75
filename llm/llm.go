// Package llm contains dossier.LLMProvider implementations for
// OpenAI-compatible servers, Ollama and Gemini.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Pricing converts token usage to dollars. Rates are per million tokens.
type Pricing struct {
	InputPerMillion  float64 `yaml:"input_per_million" json:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million" json:"output_per_million"`
}

// Cost returns the dollar cost of a call.
func (p Pricing) Cost(inputTokens, outputTokens int) float64 {
	return (float64(inputTokens)*p.InputPerMillion + float64(outputTokens)*p.OutputPerMillion) / 1e6
}

// APIError is returned when a backend answers with a non-retryable status or
// keeps failing after all retries.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %d %s - %s", e.Provider, e.Status, http.StatusText(e.Status), strings.TrimSpace(e.Body))
}

// Temporary reports whether the status is worth retrying later.
func (e *APIError) Temporary() bool {
	return retryStatus(e.Status)
}

var (
	maxRetries = 5
	baseDelay  = time.Second
)

func retryStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// doRequestWithRetries POSTs reqBody as JSON and returns the response body.
// 429 and 502-504 responses are retried with exponential backoff.
func doRequestWithRetries(ctx context.Context, client *http.Client, log *zap.Logger, url, apiKey string, reqBody any, label string) ([]byte, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	for i := 0; ; i++ {
		log.Debug("llm http request", zap.String("provider", label), zap.String("url", url), zap.Int("attempt", i+1))
		start := time.Now()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to send request after %v: %w", time.Since(start).Truncate(time.Millisecond), err)
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			if readErr != nil {
				return nil, fmt.Errorf("failed to read response: %w", readErr)
			}
			log.Debug("llm http response", zap.String("provider", label), zap.Duration("elapsed", time.Since(start)))
			return body, nil
		}

		apiErr := &APIError{Provider: label, Status: resp.StatusCode, Body: string(body)}
		if !retryStatus(resp.StatusCode) || i >= maxRetries {
			return nil, apiErr
		}
		delay := baseDelay * time.Duration(1<<i)
		log.Warn("llm request throttled, retrying",
			zap.String("provider", label),
			zap.Int("status", resp.StatusCode),
			zap.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return "http://" + endpoint
	}
	return endpoint
}

func httpClient(c *http.Client, timeout time.Duration) *http.Client {
	if c != nil {
		return c
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &http.Client{Timeout: timeout}
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
