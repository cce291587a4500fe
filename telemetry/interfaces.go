package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Telemetry is the tracing/metrics facade for orchestrator components.
// Implementations wrap an OpenTelemetry tracer/meter pair so a holder
// never imports go.opentelemetry.io directly.
type Telemetry interface {
	// StartOperation begins a span for a named operation (e.g.
	// "router.classify", "fanout.invoke", "sandbox.run") tagged with the
	// query/session/handler ids relevant to the caller.
	StartOperation(ctx context.Context, operation string, attrs OperationAttrs) (context.Context, trace.Span)

	// RecordOperation records a counter increment and a duration
	// histogram sample for a completed operation.
	RecordOperation(ctx context.Context, operation string, attrs OperationAttrs, duration time.Duration, err error)

	Shutdown(ctx context.Context) error
}

// OperationAttrs carries the identifying tags attached to a span or
// metric sample. Any field left empty is simply omitted.
type OperationAttrs struct {
	Component string
	QueryID   string
	SessionID string
	HandlerID string
	Intent    string
}
