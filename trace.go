package dossier

import (
	"context"

	"github.com/google/uuid"
)

type traceKey struct{}

// WithTraceID returns a context carrying the given trace id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// TraceIDFromContext returns the trace id of the run that owns ctx, or "".
// Providers can use it to correlate their own logs with a run.
func TraceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// NewTraceID returns a fresh opaque trace id.
func NewTraceID() string {
	return uuid.NewString()
}
