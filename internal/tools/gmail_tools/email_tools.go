package gmail_tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/dispatcher"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/gmail"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/server"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/tools/common"
)

// RegisterEmailTools registers the tools that read, search and send mail.
func RegisterEmailTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	getInboxTool := mcp.NewTool("get_inbox",
		mcp.WithDescription("Get the 10 most recent messages in the inbox"),
		mailboxOption(),
	)
	s.AddTool(getInboxTool, common.InstrumentedToolHandler("get_inbox", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGetInbox(ctx, request, sc)
	}))

	getEmailDetailsTool := mcp.NewTool("get_email_details",
		mcp.WithDescription("Get the headers, body and flags of one message"),
		mailboxOption(),
		messageIDOption(),
	)
	s.AddTool(getEmailDetailsTool, common.InstrumentedToolHandler("get_email_details", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGetEmailDetails(ctx, request, sc)
	}))

	searchTool := mcp.NewTool("search",
		mcp.WithDescription("Search messages with Gmail query syntax, optionally including whole conversations"),
		mailboxOption(),
		mcp.WithString("query",
			mcp.Description("Gmail search query, e.g. 'from:alice@example.com has:attachment after:2024/01/01'. Empty matches everything."),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of results per search (default: 30, 0 for no limit)"),
		),
		mcp.WithBoolean("include_conversations",
			mcp.Description("Also search conversation threads (default: true)"),
		),
	)
	s.AddTool(searchTool, common.InstrumentedToolHandler("search", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleSearch(ctx, request, sc)
	}))

	readLatestTool := mcp.NewTool("read_latest",
		mcp.WithDescription("Read the newest inbox messages, optionally downloading their attachments"),
		mailboxOption(),
		mcp.WithNumber("max_results",
			mcp.Description("Number of messages to read (default: 5)"),
		),
		mcp.WithBoolean("download_attachments",
			mcp.Description("Download attachments of the messages read (default: false)"),
		),
	)
	s.AddTool(readLatestTool, common.InstrumentedToolHandler("read_latest", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleReadLatest(ctx, request, sc)
	}))

	// Write operations (only register if not in read-only mode)
	if !readOnly {
		sendMailTool := mcp.NewTool("send_mail",
			mcp.WithDescription("Send an email with optional file attachments"),
			mailboxOption(),
			mcp.WithString("to",
				mcp.Required(),
				mcp.Description("Recipient address(es), comma-separated for multiple recipients"),
			),
			mcp.WithString("subject",
				mcp.Required(),
				mcp.Description("Email subject"),
			),
			mcp.WithString("body",
				mcp.Required(),
				mcp.Description("Email body content"),
			),
			mcp.WithString("body_type",
				mcp.Description("Body format: 'plain' (default) or 'html'"),
				mcp.Enum(gmail.BodyTypePlain, gmail.BodyTypeHTML),
			),
			mcp.WithArray("attachment_paths",
				mcp.Description("Absolute paths of files to attach"),
				mcp.WithStringItems(),
			),
		)
		s.AddTool(sendMailTool, common.InstrumentedToolHandler("send_mail", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSendMail(ctx, request, sc)
		}))
	}

	return nil
}

func handleGetInbox(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	mailbox, err := common.MailboxFromArgs(request.GetArguments())
	if err != nil {
		return common.FailureResult(err)
	}
	return common.EnvelopeResult(sc.Dispatcher().GetInbox(ctx, mailbox))
}

func handleGetEmailDetails(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	mailbox, err := common.MailboxFromArgs(args)
	if err != nil {
		return common.FailureResult(err)
	}
	msgID, err := common.RequiredStringArg(args, "msg_id")
	if err != nil {
		return common.FailureResult(err)
	}
	return common.EnvelopeResult(sc.Dispatcher().GetEmailDetails(ctx, mailbox, msgID))
}

func handleSearch(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	mailbox, err := common.MailboxFromArgs(args)
	if err != nil {
		return common.FailureResult(err)
	}
	maxResults, err := common.IntArg(args, "max_results", DefaultSearchMaxResults)
	if err != nil {
		return common.FailureResult(err)
	}

	return common.EnvelopeResult(sc.Dispatcher().Search(ctx, mailbox, dispatcher.SearchRequest{
		Query:                common.StringArg(args, "query", ""),
		MaxResults:           maxResults,
		IncludeConversations: common.BoolArg(args, "include_conversations", true),
	}))
}

func handleReadLatest(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	mailbox, err := common.MailboxFromArgs(args)
	if err != nil {
		return common.FailureResult(err)
	}
	maxResults, err := common.IntArg(args, "max_results", DefaultReadLatestMaxResults)
	if err != nil {
		return common.FailureResult(err)
	}
	download := common.BoolArg(args, "download_attachments", false)
	return common.EnvelopeResult(sc.Dispatcher().ReadLatest(ctx, mailbox, maxResults, download))
}

func handleSendMail(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	mailbox, err := common.MailboxFromArgs(args)
	if err != nil {
		return common.FailureResult(err)
	}
	to, err := common.RequiredStringArg(args, "to")
	if err != nil {
		return common.FailureResult(err)
	}
	paths, err := common.ParseStringOrArray(args["attachment_paths"], "attachment_paths")
	if err != nil {
		return common.FailureResult(err)
	}

	return common.EnvelopeResult(sc.Dispatcher().SendMail(ctx, mailbox, dispatcher.SendRequest{
		To:              to,
		Subject:         common.StringArg(args, "subject", ""),
		Body:            common.StringArg(args, "body", ""),
		BodyType:        common.StringArg(args, "body_type", gmail.BodyTypePlain),
		AttachmentPaths: paths,
	}))
}
