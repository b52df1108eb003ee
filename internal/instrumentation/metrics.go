package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/logging"
)

const (
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrResult  = "result"
	attrTool    = "tool"
	attrMailbox = "mailbox"
)

// Metrics records the server's OpenTelemetry instruments.
// All methods are safe to call on a nil receiver.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	gmailCallsTotal   metric.Int64Counter
	gmailCallDuration metric.Float64Histogram

	credentialResolutions metric.Int64Counter

	attachmentsWritten     metric.Int64Counter
	attachmentBytesWritten metric.Int64Counter
	messagesSent           metric.Int64Counter

	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// detailedLabels adds the hashed mailbox to tool metrics
	detailedLabels bool
}

// NewMetrics creates all instruments on the given meter.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}
	var err error

	apiBuckets := metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0)

	if m.httpRequestsTotal, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}
	if m.httpRequestDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0)); err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	if m.gmailCallsTotal, err = meter.Int64Counter("gmail_api_calls_total",
		metric.WithDescription("Total number of Gmail API calls"),
		metric.WithUnit("{call}")); err != nil {
		return nil, fmt.Errorf("failed to create gmail_api_calls_total counter: %w", err)
	}
	if m.gmailCallDuration, err = meter.Float64Histogram("gmail_api_call_duration_seconds",
		metric.WithDescription("Gmail API call duration in seconds"),
		metric.WithUnit("s"),
		apiBuckets); err != nil {
		return nil, fmt.Errorf("failed to create gmail_api_call_duration_seconds histogram: %w", err)
	}

	if m.credentialResolutions, err = meter.Int64Counter("credential_resolutions_total",
		metric.WithDescription("Mailbox credential resolutions by outcome"),
		metric.WithUnit("{resolution}")); err != nil {
		return nil, fmt.Errorf("failed to create credential_resolutions_total counter: %w", err)
	}

	if m.attachmentsWritten, err = meter.Int64Counter("attachments_written_total",
		metric.WithDescription("Attachment files written to disk"),
		metric.WithUnit("{file}")); err != nil {
		return nil, fmt.Errorf("failed to create attachments_written_total counter: %w", err)
	}
	if m.attachmentBytesWritten, err = meter.Int64Counter("attachment_bytes_written_total",
		metric.WithDescription("Attachment bytes written to disk"),
		metric.WithUnit("By")); err != nil {
		return nil, fmt.Errorf("failed to create attachment_bytes_written_total counter: %w", err)
	}
	if m.messagesSent, err = meter.Int64Counter("messages_sent_total",
		metric.WithDescription("Outgoing messages submitted to Gmail"),
		metric.WithUnit("{message}")); err != nil {
		return nil, fmt.Errorf("failed to create messages_sent_total counter: %w", err)
	}

	if m.toolInvocationsTotal, err = meter.Int64Counter("mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}")); err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}
	if m.toolDuration, err = meter.Float64Histogram("mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		apiBuckets); err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request served by the streamable-http transport.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordGmailCall records one Gmail API call. method is one of the Method* constants.
func (m *Metrics) RecordGmailCall(ctx context.Context, method, status string, duration time.Duration) {
	if m == nil || m.gmailCallsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrStatus, status),
	)
	m.gmailCallsTotal.Add(ctx, 1, attrs)
	m.gmailCallDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCredentialResolution records how a mailbox credential was obtained.
func (m *Metrics) RecordCredentialResolution(ctx context.Context, result string) {
	if m == nil || m.credentialResolutions == nil {
		return
	}
	m.credentialResolutions.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordAttachmentWritten records one attachment file of the given size.
func (m *Metrics) RecordAttachmentWritten(ctx context.Context, size int) {
	if m == nil || m.attachmentsWritten == nil {
		return
	}
	m.attachmentsWritten.Add(ctx, 1)
	m.attachmentBytesWritten.Add(ctx, int64(size))
}

// RecordMessageSent records a send attempt.
func (m *Metrics) RecordMessageSent(ctx context.Context, status string) {
	if m == nil || m.messagesSent == nil {
		return
	}
	m.messagesSent.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}

// RecordToolInvocation records an MCP tool invocation. The mailbox is only
// attached, hashed, when detailed labels are enabled.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status, mailbox string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil {
		return
	}
	kv := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels && mailbox != "" {
		kv = append(kv, attribute.String(attrMailbox, logging.AnonymizeEmail(mailbox)))
	}
	attrs := metric.WithAttributes(kv...)
	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}
