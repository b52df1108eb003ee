package gmail_tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/server"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/tools/common"
)

// RegisterAttachmentTools registers attachment-related tools with the MCP server
func RegisterAttachmentTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	listAttachmentsTool := mcp.NewTool("list_attachments",
		mcp.WithDescription("Report whether a message has attachments and list their names, types and sizes"),
		mailboxOption(),
		messageIDOption(),
	)
	s.AddTool(listAttachmentsTool, common.InstrumentedToolHandler("list_attachments", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListAttachments(ctx, request, sc)
	}))

	downloadAttachmentsTool := mcp.NewTool("download_attachments",
		mcp.WithDescription("Download the attachments of a message, or of its whole conversation, to the attachment directory"),
		mailboxOption(),
		messageIDOption(),
		mcp.WithBoolean("download_all_in_thread",
			mcp.Description("Download attachments from every message in the conversation (default: false)"),
		),
	)
	s.AddTool(downloadAttachmentsTool, common.InstrumentedToolHandler("download_attachments", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleDownloadAttachments(ctx, request, sc)
	}))

	return nil
}

func handleListAttachments(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	mailbox, err := common.MailboxFromArgs(args)
	if err != nil {
		return common.FailureResult(err)
	}
	msgID, err := common.RequiredStringArg(args, "msg_id")
	if err != nil {
		return common.FailureResult(err)
	}
	return common.EnvelopeResult(sc.Dispatcher().ListAttachments(ctx, mailbox, msgID))
}

func handleDownloadAttachments(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	mailbox, err := common.MailboxFromArgs(args)
	if err != nil {
		return common.FailureResult(err)
	}
	msgID, err := common.RequiredStringArg(args, "msg_id")
	if err != nil {
		return common.FailureResult(err)
	}
	allInThread := common.BoolArg(args, "download_all_in_thread", false)
	return common.EnvelopeResult(sc.Dispatcher().DownloadAttachments(ctx, mailbox, msgID, allInThread))
}
