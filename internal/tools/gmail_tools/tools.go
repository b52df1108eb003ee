package gmail_tools

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/server"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/tools/common"
)

// Tool argument defaults.
const (
	DefaultSearchMaxResults     = 30
	DefaultReadLatestMaxResults = 5
)

func mailboxOption() mcp.ToolOption {
	return mcp.WithString(common.MailboxArg,
		mcp.Required(),
		mcp.Description("Email address of the Gmail account to act on. Each account has its own stored credential."),
	)
}

func messageIDOption() mcp.ToolOption {
	return mcp.WithString("msg_id",
		mcp.Required(),
		mcp.Description("Gmail message ID, as returned by get_inbox, search or read_latest"),
	)
}

// RegisterGmailTools registers all Gmail tools with the MCP server. In
// read-only mode send_mail is not registered.
func RegisterGmailTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := RegisterEmailTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register email tools: %w", err)
	}
	if err := RegisterAttachmentTools(s, sc); err != nil {
		return fmt.Errorf("failed to register attachment tools: %w", err)
	}
	return nil
}
