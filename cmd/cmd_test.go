package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/config"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/dispatcher"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/gmailtest"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/google"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/server"
)

const testMailbox = "jane@example.com"

// serverContextFactory returns a function building ServerContexts on one
// credential store that point at f.
func serverContextFactory(t *testing.T, f *gmailtest.Server) func(context.Context) (*server.ServerContext, error) {
	t.Helper()
	store := google.NewCredentialStore(gmailtest.OAuthConfig(), t.TempDir())
	gmailtest.SaveToken(t, store, testMailbox)
	attDir := t.TempDir()
	return func(ctx context.Context) (*server.ServerContext, error) {
		return server.NewServerContext(ctx, store,
			server.WithSessionOptions(f.SessionOption()),
			server.WithDispatcherOptions(dispatcher.WithAttachmentDir(attDir)),
		)
	}
}

func newTestServerContext(t *testing.T, f *gmailtest.Server) *server.ServerContext {
	t.Helper()
	sc, err := serverContextFactory(t, f)(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func TestLoadConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Cleanup(resetConfig)
	t.Cleanup(func() { _ = os.Unsetenv("GMAIL_MCP_ATTACHMENT_DIR") })
	t.Setenv("GMAIL_MCP_TOKEN_DIR", "/var/lib/tokens")
	require.NoError(t, os.WriteFile(".env", []byte("GMAIL_MCP_ATTACHMENT_DIR=files\n"), 0o600))

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T, c *config.Config)
	}{
		{
			name: "defaults, environment and dotenv",
			check: func(t *testing.T, c *config.Config) {
				assert.Equal(t, config.TransportStdio, c.Transport)
				assert.Equal(t, "/var/lib/tokens", c.TokenDir)
				assert.Equal(t, "files", c.AttachmentDir)
				assert.False(t, c.Debug)
			},
		},
		{
			name: "flags win",
			args: []string{"--debug", "--body-policy", "prefer-text", "--token-dir", "tokens", "--transport", "streamable-http"},
			check: func(t *testing.T, c *config.Config) {
				assert.True(t, c.Debug)
				assert.Equal(t, config.BodyPolicyPreferText, c.BodyPolicy)
				assert.Equal(t, "tokens", c.TokenDir)
				assert.Equal(t, config.TransportStreamableHTTP, c.Transport)
			},
		},
		{
			name:    "invalid log format",
			args:    []string{"--log-format", "xml"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetConfig()
			cmd := newServeCmd()
			addGlobalFlags(cmd)
			require.NoError(t, cmd.ParseFlags(tt.args))

			err := loadConfig(cmd, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestRegisterAll(t *testing.T) {
	tests := []struct {
		name      string
		readOnly  bool
		wantTools int
	}{
		{name: "read write", wantTools: 9},
		{name: "read only", readOnly: true, wantTools: 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := newTestServerContext(t, gmailtest.New(t))
			mcpSrv := mcpserver.NewMCPServer("test", "1.0.0",
				mcpserver.WithToolCapabilities(true),
				mcpserver.WithResourceCapabilities(false, false),
				mcpserver.WithPromptCapabilities(false),
			)
			require.NoError(t, registerAll(mcpSrv, sc, &config.Config{ReadOnly: tt.readOnly, AttachmentDir: "files"}))

			tools := mcpSrv.ListTools()
			assert.Len(t, tools, tt.wantTools)
			_, hasSend := tools["send_mail"]
			assert.Equal(t, !tt.readOnly, hasSend)

			raw, err := json.Marshal(mcpSrv.HandleMessage(context.Background(),
				[]byte(`{"jsonrpc":"2.0","id":1,"method":"prompts/list"}`)))
			require.NoError(t, err)
			for _, name := range []string{"compose_email", "search_email", "read_latest_emails", "download_attachments"} {
				assert.Contains(t, string(raw), name)
			}
		})
	}
}

func runMailCommand(t *testing.T, cmd *cobra.Command, args ...string) (map[string]any, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{}, args...))
	err := cmd.Execute()
	assert.NotContains(t, out.String(), "Usage:")

	var envelope map[string]any
	if out.Len() > 0 {
		require.NoError(t, json.Unmarshal(out.Bytes(), &envelope), out.String())
	}
	return envelope, err
}

func TestMailCommands(t *testing.T) {
	f := gmailtest.New(t)
	f.AddMessage(gmailtest.Message("m1", "Hello", "bob@example.com", "hi there"))

	orig := openServerContext
	openServerContext = serverContextFactory(t, f)
	t.Cleanup(func() { openServerContext = orig })

	env, err := runMailCommand(t, newInboxCmd(), "--email", testMailbox)
	require.NoError(t, err)
	assert.Len(t, env["emails"], 1)

	env, err = runMailCommand(t, newReadCmd(), "--email", testMailbox, "--id", "m1")
	require.NoError(t, err)
	assert.Equal(t, "hi there", env["email"].(map[string]any)["body"])

	env, err = runMailCommand(t, newReadCmd(), "--email", testMailbox, "--latest", "1")
	require.NoError(t, err)
	assert.Equal(t, "Retrieved 1 latest emails", env["message"])

	env, err = runMailCommand(t, newSearchCmd(), "--email", testMailbox, "-q", "Hello", "--conversations=false")
	require.NoError(t, err)
	assert.Equal(t, "Found 1 emails", env["message"])

	env, err = runMailCommand(t, newSendCmd(), "--email", testMailbox, "--to", "bob@example.com", "--subject", "Re", "--body", "ok")
	require.NoError(t, err)
	assert.Equal(t, "sent-1", env["message_id"])
	require.Len(t, f.Sent(), 1)

	env, err = runMailCommand(t, newSendCmd(), "--email", testMailbox, "--to", "bob@example.com",
		"--attach", filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorIs(t, err, errOperationFailed)
	assert.Equal(t, false, env["success"])
	assert.Len(t, f.Sent(), 1)

	_, err = runMailCommand(t, newInboxCmd())
	assert.Error(t, err)
}

func TestAccountCommands(t *testing.T) {
	dir := t.TempDir()
	gmailtest.SaveToken(t, google.NewCredentialStore(gmailtest.OAuthConfig(), dir), testMailbox)

	orig := cfg
	cfg = &config.Config{TokenDir: dir, GoogleClientID: "id", GoogleClientSecret: "secret"}
	t.Cleanup(func() { cfg = orig })

	run := func(cmd *cobra.Command, args ...string) (string, error) {
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), err
	}

	out, err := run(newAuthorizeCmd(), "--email", testMailbox)
	require.NoError(t, err)
	assert.Contains(t, out, testMailbox+" is already authorized")
	assert.Contains(t, out, filepath.Join(dir, google.TokenFileName(testMailbox)))

	out, err = run(newAccountsCmd())
	require.NoError(t, err)
	assert.Equal(t, testMailbox+"\n", out)

	_, err = run(newAuthorizeCmd(), "--email", "not a mailbox")
	require.Error(t, err)
	assert.ErrorIs(t, err, google.ErrInvalidMailbox)
}

func TestGetCategoryFromToolName(t *testing.T) {
	tests := map[string]string{
		"google_get_auth_url":  "Authorization Tools",
		"list_attachments":     "Attachment Tools",
		"download_attachments": "Attachment Tools",
		"search":               "Gmail Tools",
		"send_mail":            "Gmail Tools",
	}
	for name, want := range tests {
		assert.Equal(t, want, getCategoryFromToolName(name), name)
	}
}

func TestGenerateToolMarkdown(t *testing.T) {
	tool := mcp.NewTool("search",
		mcp.WithDescription("Search messages"),
		mcp.WithString("email_identifier", mcp.Required(), mcp.Description("Account")),
		mcp.WithNumber("max_results"),
	)

	md := generateToolMarkdown(tool)
	assert.True(t, strings.HasPrefix(md, "### search\n\nSearch messages"))
	assert.Contains(t, md, "- `email_identifier` (required): Account")
	assert.Contains(t, md, "- `max_results` (optional): number parameter")
}

func TestReferenceMarkdown(t *testing.T) {
	mcpSrv := mcpserver.NewMCPServer("test", "1.0.0",
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithPromptCapabilities(false),
	)
	sc := newTestServerContext(t, gmailtest.New(t))
	require.NoError(t, registerAll(mcpSrv, sc, &config.Config{AttachmentDir: "files"}))

	ref, err := collectReference(context.Background(), mcpSrv)
	require.NoError(t, err)
	assert.Len(t, ref.tools, 9)
	assert.Len(t, ref.resources, 1)
	assert.Len(t, ref.templates, 3)
	assert.Len(t, ref.prompts, 4)

	md := ref.markdown()
	assert.True(t, strings.HasPrefix(md, "# MCP Reference"))
	assert.Contains(t, md, "- [Authorization Tools](#authorization-tools)")
	assert.Contains(t, md, "- [Prompts](#prompts)")
	assert.Contains(t, md, "### send_mail")
	assert.Contains(t, md, "`gmail://inbox/{email_identifier}` (Inbox)")
	assert.Contains(t, md, "`gmail://accounts`")
	assert.Contains(t, md, "### compose_email")
	assert.Contains(t, md, "- `email_identifier` (optional): Gmail account to send from")
	assert.Less(t, strings.Index(md, "## Attachment Tools"), strings.Index(md, "## Gmail Tools"))
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := newVersionCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "gmail-mcp-server version "+version)
}
