// Package telemetry provides observability for the orchestrator using
// OpenTelemetry.
//
// A component that holds a Telemetry wraps its operations as below.
// cmd/orchestrator constructs an OTELTelemetry and shuts it down on
// exit; none of the core components (router, fanout, sandbox,
// synthesis, orchestrator) holds one or starts spans.
//
//	ctx, span := tel.StartOperation(ctx, "router.classify", telemetry.OperationAttrs{
//	    Component: "router",
//	    QueryID:   query.ID,
//	    SessionID: query.SessionID,
//	})
//	defer span.End()
//	...
//	tel.RecordOperation(ctx, "router.classify", attrs, time.Since(start), err)
//
// # Configuration
//
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP gRPC endpoint; when unset, spans
//     are exported to stdout so local runs still show trace output.
//   - OTEL_SDK_DISABLED: set to "true" to use the no-op tracer/meter.
//   - DEPLOYMENT_ENVIRONMENT, FAME_SERVICE_VERSION: resource attributes.
//
// # Correlation
//
// WithQueryID/WithSessionID/WithCorrelationID attach request identity
// to a context.Context; EnrichLogFields pulls them (plus the active
// trace/span id) into a logger field map so log lines can be joined
// against traces.
package telemetry
