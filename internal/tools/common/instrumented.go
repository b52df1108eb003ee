package common

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/dispatcher"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/instrumentation"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/server"
)

var errToolResult = errors.New("tool returned an error result")

// InstrumentedToolHandler wraps a tool handler with tracing, metrics and
// audit logging. A request id is attached to the context so dispatcher logs
// and the audit record can be correlated.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		mailbox, _ := MailboxFromArgs(request.GetArguments())
		requestID := uuid.NewString()

		ctx = dispatcher.ContextWithRequestID(ctx, requestID)
		ctx, span := instrumentation.StartToolSpan(ctx, toolName, instrumentation.RequestIDAttr(requestID))
		invocation := instrumentation.NewToolInvocation(toolName).
			WithMailbox(mailbox).
			WithRequestID(requestID).
			WithSpanContext(ctx)

		result, err := handler(ctx, request)

		spanErr := err
		if spanErr == nil && result != nil && result.IsError {
			spanErr = errToolResult
		}
		invocation.Complete(spanErr == nil, err)

		sc.Metrics().RecordToolInvocation(ctx, toolName, invocation.Status(), mailbox, invocation.Duration)
		sc.Audit().LogToolInvocation(ctx, invocation)
		instrumentation.EndSpan(span, spanErr)

		return result, err
	}
}
