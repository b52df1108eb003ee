package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/config"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/dispatcher"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/google"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/server"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP documentation",
		Long: `Generate markdown documentation for the MCP tools, resources and prompts.
The registered definitions are introspected, so the output always matches
what the server exposes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(cmd.Context(), outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

func runGenerateDocs(ctx context.Context, outputFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// Doc generation never resolves a credential, so an empty OAuth client will do.
	store := google.NewCredentialStore(&oauth2.Config{}, os.TempDir())
	serverContext, err := server.NewServerContext(ctx, store)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		_ = serverContext.Shutdown()
	}()

	mcpSrv := mcpserver.NewMCPServer("gmail-mcp-server", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithPromptCapabilities(false),
	)
	// Register in write mode to document every tool.
	if err := registerAll(mcpSrv, serverContext, &config.Config{AttachmentDir: dispatcher.DefaultAttachmentDir}); err != nil {
		return err
	}

	ref, err := collectReference(ctx, mcpSrv)
	if err != nil {
		return err
	}
	markdown := ref.markdown()

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(markdown), 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Documentation written to: %s\n", outputFile)
	} else {
		fmt.Print(markdown)
	}
	return nil
}

type templateDoc struct {
	Name        string `json:"name"`
	URITemplate string `json:"uriTemplate"`
	Description string `json:"description"`
}

type resourceDoc struct {
	Name        string `json:"name"`
	URI         string `json:"uri"`
	Description string `json:"description"`
}

type promptDoc struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Arguments   []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Required    bool   `json:"required"`
	} `json:"arguments"`
}

// reference is everything the server exposes.
type reference struct {
	tools     []mcp.Tool
	resources []resourceDoc
	templates []templateDoc
	prompts   []promptDoc
}

func collectReference(ctx context.Context, mcpSrv *mcpserver.MCPServer) (*reference, error) {
	ref := &reference{}
	for _, st := range mcpSrv.ListTools() {
		ref.tools = append(ref.tools, st.Tool)
	}

	lists := []struct {
		method string
		into   any
	}{
		{"resources/list", &struct {
			Resources *[]resourceDoc `json:"resources"`
		}{&ref.resources}},
		{"resources/templates/list", &struct {
			ResourceTemplates *[]templateDoc `json:"resourceTemplates"`
		}{&ref.templates}},
		{"prompts/list", &struct {
			Prompts *[]promptDoc `json:"prompts"`
		}{&ref.prompts}},
	}
	for i, l := range lists {
		if err := listViaServer(ctx, mcpSrv, i+1, l.method, l.into); err != nil {
			return nil, err
		}
	}
	return ref, nil
}

// listViaServer runs a list request against the server and decodes its result.
func listViaServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, id int, method string, into any) error {
	req := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":%q}`, id, method)
	raw, err := json.Marshal(mcpSrv.HandleMessage(ctx, json.RawMessage(req)))
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s: %s", method, resp.Error.Message)
	}
	return json.Unmarshal(resp.Result, into)
}

func (r *reference) markdown() string {
	var sb strings.Builder

	sb.WriteString("# MCP Reference\n\n")
	sb.WriteString("This document lists the tools, resources and prompts gmail-mcp-server exposes.\n\n")
	sb.WriteString("**Note:** This documentation is automatically generated from the registered definitions.\n\n")

	toolsByCategory := groupToolsByCategory(r.tools)
	categories := make([]string, 0, len(toolsByCategory))
	for category := range toolsByCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	sb.WriteString("## Table of Contents\n\n")
	for _, category := range append(slices.Clone(categories), "Resources", "Prompts") {
		fmt.Fprintf(&sb, "- [%s](#%s)\n", category, anchor(category))
	}
	sb.WriteString("\n")

	sb.WriteString("## Multi-Account Support\n\n")
	sb.WriteString("Every tool takes a required `email_identifier` argument naming the Gmail account to act on:\n\n")
	sb.WriteString("- **Credentials:** Each account has its own stored OAuth credential\n")
	sb.WriteString("- **First use:** An account without a credential is authorized through the browser, or with `google_get_auth_url` and `google_save_auth_code`\n")
	sb.WriteString("- **Per-call selection:** Each tool call can use a different account\n\n")

	for _, category := range categories {
		tools := toolsByCategory[category]
		sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

		fmt.Fprintf(&sb, "## %s\n\n", category)
		for _, tool := range tools {
			sb.WriteString(generateToolMarkdown(tool))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("## Resources\n\n")
	sort.Slice(r.resources, func(i, j int) bool { return r.resources[i].URI < r.resources[j].URI })
	for _, res := range r.resources {
		fmt.Fprintf(&sb, "- `%s` (%s): %s\n", res.URI, res.Name, res.Description)
	}
	sort.Slice(r.templates, func(i, j int) bool { return r.templates[i].URITemplate < r.templates[j].URITemplate })
	for _, tmpl := range r.templates {
		fmt.Fprintf(&sb, "- `%s` (%s): %s\n", tmpl.URITemplate, tmpl.Name, tmpl.Description)
	}
	sb.WriteString("\n")

	sb.WriteString("## Prompts\n\n")
	sort.Slice(r.prompts, func(i, j int) bool { return r.prompts[i].Name < r.prompts[j].Name })
	for _, p := range r.prompts {
		fmt.Fprintf(&sb, "### %s\n\n%s\n\n", p.Name, p.Description)
		if len(p.Arguments) == 0 {
			continue
		}
		sb.WriteString("**Arguments:**\n")
		for _, arg := range p.Arguments {
			fmt.Fprintf(&sb, "- `%s` (%s): %s\n", arg.Name, requiredLabel(arg.Required), arg.Description)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func anchor(heading string) string {
	return strings.ToLower(strings.ReplaceAll(heading, " ", "-"))
}

func requiredLabel(required bool) string {
	if required {
		return "required"
	}
	return "optional"
}

func groupToolsByCategory(tools []mcp.Tool) map[string][]mcp.Tool {
	categories := make(map[string][]mcp.Tool)
	for _, tool := range tools {
		category := getCategoryFromToolName(tool.Name)
		categories[category] = append(categories[category], tool)
	}
	return categories
}

func getCategoryFromToolName(name string) string {
	switch {
	case strings.HasPrefix(name, "google_"):
		return "Authorization Tools"
	case strings.Contains(name, "attachment"):
		return "Attachment Tools"
	default:
		return "Gmail Tools"
	}
}

func generateToolMarkdown(tool mcp.Tool) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "### %s\n\n", tool.Name)
	if tool.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", tool.Description)
	}

	props := tool.InputSchema.Properties
	if len(props) == 0 {
		return sb.String()
	}

	sb.WriteString("**Arguments:**\n")
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		desc, ok := prop["description"].(string)
		if !ok {
			desc = propertyType(prop) + " parameter"
		}
		fmt.Fprintf(&sb, "- `%s` (%s): %s\n", name, requiredLabel(slices.Contains(tool.InputSchema.Required, name)), desc)
	}
	sb.WriteString("\n")
	return sb.String()
}

func propertyType(prop map[string]any) string {
	if t, ok := prop["type"].(string); ok {
		return t
	}
	return "any"
}
