package dossier

import (
	"context"
	"fmt"

	"github.com/invopop/jsonschema"
	"go.uber.org/zap"
)

// generate runs one model call for the named agent. When schema is non-nil
// and the model implements StructuredLLMProvider, output is constrained to
// the schema. The returned text has <think> blocks removed.
func generate(ctx context.Context, log *zap.Logger, agent string, m LLMProvider, sys, user string, schema *jsonschema.Schema) (string, float64, error) {
	if m == nil {
		return "", 0, fmt.Errorf("%s model: %w", agent, ErrNotConfigured)
	}
	log.Debug("llm request",
		zap.String("agent", agent),
		zap.String("system", sys),
		zap.String("user", user))

	var resp LLMResponse
	var err error
	if sm, ok := m.(StructuredLLMProvider); ok && schema != nil {
		resp, err = sm.GenerateJSON(ctx, sys, user, schema)
	} else {
		resp, err = m.Generate(ctx, sys, user)
	}
	if err != nil {
		return "", resp.Cost, err
	}

	text := responseContent(resp)
	if resp.Text == "" && resp.Reasoning != "" {
		log.Debug("llm text empty, using reasoning", zap.String("agent", agent), zap.Int("chars", len(resp.Reasoning)))
	}
	log.Debug("llm response",
		zap.String("agent", agent),
		zap.String("text", text),
		zap.Float64("cost", resp.Cost))
	return text, resp.Cost, nil
}

func supportsSchema(m LLMProvider) bool {
	_, ok := m.(StructuredLLMProvider)
	return ok
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// traceLogger tags l with the trace id carried by ctx, if any.
func traceLogger(ctx context.Context, l *zap.Logger) *zap.Logger {
	l = loggerOrNop(l)
	if id := TraceIDFromContext(ctx); id != "" {
		return l.With(zap.String("trace_id", id))
	}
	return l
}
