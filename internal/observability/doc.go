// Package observability provides the logging, metrics and tracing used across
// agentcore.
//
// Logging is plain log/slog with a handler that redacts secrets. Metrics are
// Prometheus collectors registered on an injected registry so that tests can
// build isolated instances. Tracing uses OpenTelemetry and degrades to a no-op
// tracer when no collector endpoint is configured.
package observability
