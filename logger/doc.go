// Package logger provides structured logging capabilities for the orchestrator.
//
// This package offers a simple yet powerful logging interface that supports structured
// fields, multiple log levels, and contextual logging for better observability and debugging.
//
// # Logger Interface
//
// The Logger interface defines the contract for all logging implementations:
//
//	type Logger interface {
//	    Debug(msg string, fields ...interface{})
//	    Info(msg string, fields ...interface{})
//	    Warn(msg string, fields ...interface{})
//	    Error(msg string, fields ...interface{})
//	    SetLevel(level string)
//	    WithField(key string, value interface{}) Logger
//	    WithFields(fields map[string]interface{}) Logger
//	    With(fields ...Field) Logger
//	}
//
// # Log Levels
//
// Supported log levels in order of severity:
//   - DEBUG: Detailed information for debugging
//   - INFO: General informational messages
//   - WARN: Warning messages for potentially harmful situations
//   - ERROR: Error messages for serious problems
//
// # Structured Logging
//
// All log methods take structured fields as alternating key/value
// arguments; a trailing key without a value is dropped:
//
//	logger.Info("Processing request",
//	    "user_id", "123",
//	    "action", "create_order",
//	    "duration_ms", 145,
//	)
//
// # Contextual Logging
//
// Create child loggers with persistent fields:
//
//	requestLogger := logger.WithFields(map[string]interface{}{
//	    "request_id": "abc-123",
//	    "user_id": "456",
//	})
//
//	// All logs from requestLogger will include request_id and user_id
//	requestLogger.Info("Starting processing")
//	requestLogger.Info("Processing complete", "items_processed", 10)
//
// # Simple Logger Implementation
//
// The package provides SimpleLogger:
//   - Plain text lines ("[LEVEL] msg key=value ...") written through the
//     standard library log package, which prefixes its timestamp
//   - Log level set with SetLevel (default INFO)
//   - Field values formatted with %v; no JSON output and no sanitization
//
// # Configuration
//
// GetLogLevel returns LOG_LEVEL from the environment (default "INFO");
// a logger does not apply it by itself, the caller passes it to
// SetLevel. No output-format variable is read.
//
// # Integration with Components
//
// The orchestrator components that log (registry, router, fanout,
// synthesis, sandbox, orchestrator itself) hold a Logger and derive a
// child logger tagged with their own component name:
//
//	compLogger := log.WithField("component", "router")
//	compLogger.Info("classified intent", "intent", decision.PrimaryIntent)
//
// # Best Practices
//
//   - Use appropriate log levels to control verbosity
//   - Include relevant context through structured fields
//   - Avoid logging sensitive information (passwords, tokens, PII)
//   - Use child loggers for request-scoped logging
//   - Keep log messages concise and actionable
package logger