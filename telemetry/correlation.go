package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// ContextKey is the type for context keys defined by this package.
type ContextKey string

const (
	CorrelationIDKey ContextKey = "correlation_id"
	QueryIDKey       ContextKey = "query_id"
	SessionIDKey     ContextKey = "session_id"
)

// WithCorrelationID attaches a correlation id to ctx; generating one is
// the caller's responsibility.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

func WithQueryID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, QueryIDKey, id)
}

func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

func GetQueryID(ctx context.Context) string {
	if id, ok := ctx.Value(QueryIDKey).(string); ok {
		return id
	}
	return ""
}

func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(SessionIDKey).(string); ok {
		return id
	}
	return ""
}

// EnrichLogFields merges correlation ids and the active trace/span id
// (if any) into a logger field map, so log lines can be joined against
// traces without every call site repeating the plumbing.
func EnrichLogFields(ctx context.Context, fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		fields = make(map[string]interface{})
	}

	if id := GetCorrelationID(ctx); id != "" {
		fields["correlation_id"] = id
	}
	if id := GetQueryID(ctx); id != "" {
		fields["query_id"] = id
	}
	if id := GetSessionID(ctx); id != "" {
		fields["session_id"] = id
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		spanCtx := span.SpanContext()
		fields["trace_id"] = spanCtx.TraceID().String()
		fields["span_id"] = spanCtx.SpanID().String()
	}

	return fields
}
