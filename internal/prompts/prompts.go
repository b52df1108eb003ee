// Package prompts provides guided MCP prompts for the common Gmail tasks.
// Each prompt tells the assistant which details to collect and which tool
// to call with them. Arguments the client already knows are filled in.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/dispatcher"
)

// RegisterPrompts registers the Gmail prompts with the MCP server.
// attachmentDir is the directory named in the download prompts.
func RegisterPrompts(s *mcpserver.MCPServer, attachmentDir string) {
	if attachmentDir == "" {
		attachmentDir = dispatcher.DefaultAttachmentDir
	}

	s.AddPrompt(mcp.NewPrompt("compose_email",
		mcp.WithPromptDescription("Compose and send an email, optionally with attachments"),
		mcp.WithArgument("email_identifier", mcp.ArgumentDescription("Gmail account to send from")),
		mcp.WithArgument("to", mcp.ArgumentDescription("Recipient address(es)")),
		mcp.WithArgument("subject", mcp.ArgumentDescription("Subject line")),
	), handleComposeEmail)

	s.AddPrompt(mcp.NewPrompt("search_email",
		mcp.WithPromptDescription("Search a mailbox with Gmail query syntax"),
		mcp.WithArgument("email_identifier", mcp.ArgumentDescription("Gmail account to search")),
		mcp.WithArgument("query", mcp.ArgumentDescription("Gmail search query")),
	), handleSearchEmail)

	s.AddPrompt(mcp.NewPrompt("read_latest_emails",
		mcp.WithPromptDescription("Read the newest messages of a mailbox"),
		mcp.WithArgument("email_identifier", mcp.ArgumentDescription("Gmail account to read")),
		mcp.WithArgument("count", mcp.ArgumentDescription("Number of messages to read (default 5)")),
	), func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return handleReadLatest(ctx, request, attachmentDir)
	})

	s.AddPrompt(mcp.NewPrompt("download_attachments",
		mcp.WithPromptDescription("Download the attachments of a message or conversation"),
		mcp.WithArgument("email_identifier", mcp.ArgumentDescription("Gmail account holding the message")),
		mcp.WithArgument("msg_id", mcp.ArgumentDescription("Message ID from search or inbox results")),
	), func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return handleDownloadAttachments(ctx, request, attachmentDir)
	})
}

// known lists the arguments the client supplied, one per line.
func known(args map[string]string, names ...string) string {
	var b strings.Builder
	for _, name := range names {
		if v := strings.TrimSpace(args[name]); v != "" {
			fmt.Fprintf(&b, "- %s: %s\n", name, v)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "Already provided:\n" + b.String()
}

func result(description, instructions, request, reply string) *mcp.GetPromptResult {
	return mcp.NewGetPromptResult(description, []mcp.PromptMessage{
		mcp.NewPromptMessage(mcp.RoleAssistant, mcp.NewTextContent(instructions)),
		mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(request)),
		mcp.NewPromptMessage(mcp.RoleAssistant, mcp.NewTextContent(reply)),
	})
}

func handleComposeEmail(_ context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := request.Params.Arguments
	instructions := `I help send email through a Gmail account with the send_mail tool. Before sending I need:
1. The Gmail account to send from (email_identifier)
2. The recipient address, several separated by commas
3. The subject
4. The body, and whether it is plain text or HTML
5. Optionally, absolute paths of files to attach

I confirm the details with you before calling send_mail.
` + known(args, "email_identifier", "to", "subject")

	return result("Compose an email", instructions,
		"I want to send an email.",
		"Which account should it come from, who is it for, and what should it say? Tell me about any attachments too."), nil
}

func handleSearchEmail(_ context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := request.Params.Arguments
	instructions := `I search a Gmail account with the search tool. I need:
1. The Gmail account to search (email_identifier)
2. What to look for. Gmail operators work here:
   - from:alice@example.com or to:bob@example.com
   - subject:"quarterly report"
   - after:2024/01/01 and before:2024/02/01
   - has:attachment
3. How many results to return (30 unless you say otherwise)
4. Whether to include whole conversations (yes unless you say otherwise)
` + known(args, "email_identifier", "query")

	return result("Search emails", instructions,
		"I want to find some emails.",
		"Which account should I search, and what are you looking for?"), nil
}

func handleReadLatest(_ context.Context, request mcp.GetPromptRequest, attachmentDir string) (*mcp.GetPromptResult, error) {
	args := request.Params.Arguments
	instructions := fmt.Sprintf(`I read the newest messages of a Gmail account with the read_latest tool. I need:
1. The Gmail account to read (email_identifier)
2. How many messages to read (5 unless you say otherwise)
3. Whether to download their attachments. Files are saved to the '%s' directory.
`, attachmentDir) + known(args, "email_identifier", "count")

	return result("Read the latest emails", instructions,
		"Show me my latest emails.",
		"Which account should I read, and how many messages? Should I download attachments as well?"), nil
}

func handleDownloadAttachments(_ context.Context, request mcp.GetPromptRequest, attachmentDir string) (*mcp.GetPromptResult, error) {
	args := request.Params.Arguments
	instructions := fmt.Sprintf(`I download attachments with the download_attachments tool. I need:
1. The Gmail account holding the message (email_identifier)
2. The message ID, as shown in search or inbox results
3. Whether to download from every message in the conversation

Files are saved to the '%s' directory.
`, attachmentDir) + known(args, "email_identifier", "msg_id")

	return result("Download attachments", instructions,
		"I need the attachments from an email.",
		"Which account and which message? Should I include the rest of the conversation?"), nil
}
