package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// OTELTelemetry is the zero-configuration OpenTelemetry-backed
// implementation of Telemetry.
type OTELTelemetry struct {
	traceProvider *sdktrace.TracerProvider
	meterProvider metric.MeterProvider
	tracer        trace.Tracer
	meter         metric.Meter
	serviceName   string
}

// NewOTELTelemetry wires a tracer/meter pair for serviceName. When
// OTEL_EXPORTER_OTLP_ENDPOINT is unset it exports to stdout instead of
// silently dropping spans, so a developer running the orchestrator
// locally still sees trace output. The meter comes from the global
// otel MeterProvider, which discards measurements unless the embedding
// program has installed one.
func NewOTELTelemetry(serviceName string) (*OTELTelemetry, error) {
	if os.Getenv("OTEL_SDK_DISABLED") == "true" {
		return &OTELTelemetry{
			tracer:      otel.Tracer("noop"),
			meter:       otel.Meter("noop"),
			serviceName: serviceName,
		}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", getServiceVersion()),
			attribute.String("deployment.environment", getEnvironment()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	traceProvider, err := setupTraceProvider(res)
	if err != nil {
		return nil, fmt.Errorf("telemetry: setup trace provider: %w", err)
	}

	meterProvider := otel.GetMeterProvider()

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &OTELTelemetry{
		traceProvider: traceProvider,
		meterProvider: meterProvider,
		tracer:        traceProvider.Tracer("fame-orchestrator"),
		meter:         meterProvider.Meter("fame-orchestrator"),
		serviceName:   serviceName,
	}, nil
}

func setupTraceProvider(res *resource.Resource) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		return sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		), nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	), nil
}

func getServiceVersion() string {
	if v := os.Getenv("FAME_SERVICE_VERSION"); v != "" {
		return v
	}
	return "0.1.0"
}

func getEnvironment() string {
	if env := os.Getenv("DEPLOYMENT_ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}

func (t *OTELTelemetry) StartOperation(ctx context.Context, operation string, attrs OperationAttrs) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, operation)
	span.SetAttributes(attrsToOTel(attrs)...)
	return ctx, span
}

func (t *OTELTelemetry) RecordOperation(ctx context.Context, operation string, attrs OperationAttrs, duration time.Duration, err error) {
	kvs := attrsToOTel(attrs)
	if err != nil {
		kvs = append(kvs, attribute.String("status", "error"))
	} else {
		kvs = append(kvs, attribute.String("status", "ok"))
	}

	if counter, cerr := t.meter.Int64Counter(
		operation+"_total",
		metric.WithDescription("Total invocations of "+operation),
	); cerr == nil {
		counter.Add(ctx, 1, metric.WithAttributes(kvs...))
	}

	if hist, herr := t.meter.Float64Histogram(
		operation+"_duration_seconds",
		metric.WithDescription("Duration of "+operation),
	); herr == nil {
		hist.Record(ctx, duration.Seconds(), metric.WithAttributes(kvs...))
	}
}

func (t *OTELTelemetry) Shutdown(ctx context.Context) error {
	if t.traceProvider != nil {
		return t.traceProvider.Shutdown(ctx)
	}
	return nil
}

func attrsToOTel(a OperationAttrs) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, 5)
	if a.Component != "" {
		kvs = append(kvs, attribute.String("fame.component", a.Component))
	}
	if a.QueryID != "" {
		kvs = append(kvs, attribute.String("fame.query_id", a.QueryID))
	}
	if a.SessionID != "" {
		kvs = append(kvs, attribute.String("fame.session_id", a.SessionID))
	}
	if a.HandlerID != "" {
		kvs = append(kvs, attribute.String("fame.handler_id", a.HandlerID))
	}
	if a.Intent != "" {
		kvs = append(kvs, attribute.String("fame.intent", a.Intent))
	}
	return kvs
}

// NoOpTelemetry discards everything, for a caller that does not want to
// stand up a real exporter.
type NoOpTelemetry struct{}

func (NoOpTelemetry) StartOperation(ctx context.Context, operation string, attrs OperationAttrs) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}

func (NoOpTelemetry) RecordOperation(ctx context.Context, operation string, attrs OperationAttrs, duration time.Duration, err error) {
}

func (NoOpTelemetry) Shutdown(ctx context.Context) error { return nil }
