package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/dispatcher"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/server"
)

const (
	scheme       = "gmail://"
	jsonMIMEType = "application/json"

	AccountsURI         = scheme + "accounts"
	InboxTemplate       = scheme + "inbox/{email_identifier}"
	EmailTemplate       = scheme + "email/{email_identifier}/{msg_id}"
	AttachmentsTemplate = scheme + "attachments/{email_identifier}/{msg_id}"
)

// RegisterGmailResources registers the read-only Gmail resources. Email
// identifiers in resource URIs are percent-encoded, e.g.
// gmail://inbox/jane%40example.com.
func RegisterGmailResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	accounts := mcp.NewResource(
		AccountsURI,
		"Authorized Accounts",
		mcp.WithResourceDescription("Mailboxes with a stored credential"),
		mcp.WithMIMEType(jsonMIMEType),
	)
	s.AddResource(accounts, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleAccounts(ctx, request, sc)
	})

	inbox := mcp.NewResourceTemplate(
		InboxTemplate,
		"Inbox",
		mcp.WithTemplateDescription("The 10 most recent inbox messages of a mailbox"),
		mcp.WithTemplateMIMEType(jsonMIMEType),
	)
	s.AddResourceTemplate(inbox, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleInbox(ctx, request, sc)
	})

	email := mcp.NewResourceTemplate(
		EmailTemplate,
		"Email",
		mcp.WithTemplateDescription("Headers, body and flags of one message"),
		mcp.WithTemplateMIMEType(jsonMIMEType),
	)
	s.AddResourceTemplate(email, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleEmail(ctx, request, sc)
	})

	attachments := mcp.NewResourceTemplate(
		AttachmentsTemplate,
		"Attachments",
		mcp.WithTemplateDescription("Whether a message has attachments, and which"),
		mcp.WithTemplateMIMEType(jsonMIMEType),
	)
	s.AddResourceTemplate(attachments, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleAttachments(ctx, request, sc)
	})

	return nil
}

func handleAccounts(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	mailboxes, err := sc.Store().Mailboxes()
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	if mailboxes == nil {
		mailboxes = []string{}
	}
	return jsonContents(request.Params.URI, map[string]any{"accounts": mailboxes})
}

func handleInbox(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	segs, err := pathSegments(request.Params.URI, "inbox", 1)
	if err != nil {
		return nil, err
	}
	return envelopeContents(request.Params.URI, sc.Dispatcher().GetInbox(ctx, segs[0]))
}

func handleEmail(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	segs, err := pathSegments(request.Params.URI, "email", 2)
	if err != nil {
		return nil, err
	}
	return envelopeContents(request.Params.URI, sc.Dispatcher().GetEmailDetails(ctx, segs[0], segs[1]))
}

func handleAttachments(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	segs, err := pathSegments(request.Params.URI, "attachments", 2)
	if err != nil {
		return nil, err
	}
	return envelopeContents(request.Params.URI, sc.Dispatcher().ListAttachments(ctx, segs[0], segs[1]))
}

// pathSegments splits gmail://<kind>/a/b into its unescaped segments.
func pathSegments(uri, kind string, n int) ([]string, error) {
	rest, ok := strings.CutPrefix(uri, scheme+kind+"/")
	if !ok {
		return nil, fmt.Errorf("invalid %s resource URI: %s", kind, uri)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != n {
		return nil, fmt.Errorf("invalid %s resource URI: %s", kind, uri)
	}
	for i, p := range parts {
		v, err := url.PathUnescape(p)
		if err != nil || v == "" {
			return nil, fmt.Errorf("invalid %s resource URI: %s", kind, uri)
		}
		parts[i] = v
	}
	return parts, nil
}

// envelopeContents turns a failed envelope into a read error.
func envelopeContents(uri string, resp dispatcher.Response) ([]mcp.ResourceContents, error) {
	if !resp.Success() {
		return nil, fmt.Errorf("%s", resp.Message())
	}
	return jsonContents(uri, resp)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: jsonMIMEType,
			Text:     string(jsonData),
		},
	}, nil
}
