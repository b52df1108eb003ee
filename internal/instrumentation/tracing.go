package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/logging"
)

// TracerName is the instrumentation scope for all spans created here.
const TracerName = "github.com/openwallet-foundation-labs/gmail-mcp-server"

// Span attribute keys.
const (
	SpanAttrTool      = "mcp.tool"
	SpanAttrMailbox   = "gmail.mailbox"
	SpanAttrMethod    = "gmail.method"
	SpanAttrMessageID = "gmail.message_id"
	SpanAttrRequestID = "mcp.request_id"
)

// StartToolSpan starts a server span for an MCP tool invocation.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{attribute.String(SpanAttrTool, toolName)}, attrs...)
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, "tool."+toolName,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartGmailSpan starts a client span for a Gmail API call. The mailbox is
// recorded hashed.
func StartGmailSpan(ctx context.Context, method, mailbox string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{
		attribute.String(SpanAttrMethod, method),
		attribute.String(SpanAttrMailbox, logging.AnonymizeEmail(mailbox)),
	}, attrs...)
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, "gmail."+method,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// MessageIDAttr is a span attribute for a provider message id.
func MessageIDAttr(id string) attribute.KeyValue {
	return attribute.String(SpanAttrMessageID, id)
}

// EndSpan sets the span status from err and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// GetTraceID returns the trace ID of the span in ctx, or "" if there is none.
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// RequestIDAttr is a span attribute for a dispatcher request id.
func RequestIDAttr(id string) attribute.KeyValue {
	return attribute.String(SpanAttrRequestID, id)
}
