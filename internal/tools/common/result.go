package common

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/dispatcher"
)

// EnvelopeResult renders a dispatcher envelope as indented JSON text. A
// failed envelope marks the result as an error.
func EnvelopeResult(resp dispatcher.Response) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(b))},
		IsError: !resp.Success(),
	}, nil
}

// FailureResult renders a failure envelope for arguments rejected before
// any operation runs.
func FailureResult(err error) (*mcp.CallToolResult, error) {
	return EnvelopeResult(dispatcher.Response{"success": false, "message": err.Error()})
}
