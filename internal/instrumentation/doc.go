// Package instrumentation provides OpenTelemetry metrics and tracing for
// gmail-mcp-server.
//
// # Metrics
//
// Server/HTTP:
//   - http_requests_total, http_request_duration_seconds
//
// Gmail API:
//   - gmail_api_calls_total{method,status}
//   - gmail_api_call_duration_seconds{method,status}
//
// Credentials:
//   - credential_resolutions_total{result} where result is one of
//     loaded, refreshed, consent, failure
//
// Attachments and mail:
//   - attachments_written_total, attachment_bytes_written_total
//   - messages_sent_total{status}
//
// MCP tools:
//   - mcp_tool_invocations_total{tool,status}
//   - mcp_tool_duration_seconds{tool,status}
//
// # Tracing
//
// Spans are created for tool invocations (tool.<name>) and for every Gmail
// API call (gmail.<method>).
//
// # Configuration
//
// Settings live under the otel.* and audit.* keys of the main configuration
// (see RegisterDefaults). Each key also honors a standard variable:
//   - INSTRUMENTATION_ENABLED (default true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default 0.1)
//   - OTEL_SERVICE_NAME (default gmail-mcp-server)
//   - AUDIT_LOGGING_ENABLED (default true), AUDIT_LOGGING_INCLUDE_PII
//
// A nil *Metrics is valid and records nothing, so components can be built
// without instrumentation in tests.
package instrumentation
