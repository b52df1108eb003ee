package google_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/server"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/tools/common"
)

// RegisterGoogleTools registers the tools that authorize a mailbox.
func RegisterGoogleTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	getAuthURLTool := mcp.NewTool("google_get_auth_url",
		mcp.WithDescription("Get the OAuth URL that grants Gmail access for a mailbox"),
		mcp.WithString(common.MailboxArg,
			mcp.Required(),
			mcp.Description("Email address of the Gmail account to authorize"),
		),
	)
	s.AddTool(getAuthURLTool, common.InstrumentedToolHandler("google_get_auth_url", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGetAuthURL(ctx, request, sc)
	}))

	saveAuthCodeTool := mcp.NewTool("google_save_auth_code",
		mcp.WithDescription("Exchange the authorization code from the OAuth page and store the mailbox's credential"),
		mcp.WithString(common.MailboxArg,
			mcp.Required(),
			mcp.Description("Email address of the Gmail account being authorized"),
		),
		mcp.WithString("authCode",
			mcp.Required(),
			mcp.Description("The authorization code from Google OAuth"),
		),
	)
	s.AddTool(saveAuthCodeTool, common.InstrumentedToolHandler("google_save_auth_code", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleSaveAuthCode(ctx, request, sc)
	}))

	return nil
}

func handleGetAuthURL(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	mailbox, err := common.MailboxFromArgs(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	authURL, err := sc.Store().AuthCodeURL(mailbox)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf(`To authorize Gmail access for %s:

1. Visit this URL in your browser:
   %s

2. Sign in as %s and grant access
3. Copy the authorization code

4. Call the google_save_auth_code tool with the code and the same email_identifier`, mailbox, authURL, mailbox)

	return mcp.NewToolResultText(result), nil
}

func handleSaveAuthCode(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	mailbox, err := common.MailboxFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	authCode, err := common.RequiredStringArg(args, "authCode")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := sc.Store().SaveAuthCode(ctx, mailbox, authCode); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to save authorization code for %s: %v", mailbox, err)), nil
	}
	// A session built from the previous credential is stale now.
	sc.Invalidate(mailbox)

	return mcp.NewToolResultText(fmt.Sprintf("Authorization successful for %s. The credential is stored and the Gmail tools can use this mailbox.", mailbox)), nil
}
