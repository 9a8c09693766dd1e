// Package mcpserver exposes the desktop tool registry as an MCP server.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"

	"deskpilot/internal/domain"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const instructions = `Tools in this server drive the local macOS desktop: AppleScript, Google Chrome, Messages, Contacts and speech.
Read the page or its links before clicking. Look a contact up before texting them.
Some calls may be blocked by policy or require the user to confirm on the host.`

// Tools is the registry surface the server needs.
type Tools interface {
	GetDefinitions() []domain.ToolDefinition
	Execute(ctx context.Context, name string, args map[string]any) (string, error)
}

// NewServer creates an MCP server with every tool in tools registered.
func NewServer(tools Tools, version string, logger *slog.Logger) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{Name: "deskpilot", Version: version}, &mcp.ServerOptions{
		Instructions: instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
	})

	for _, def := range tools.GetDefinitions() {
		s.AddTool(&mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Parameters,
		}, makeHandler(tools, def.Name, logger))
	}
	return s
}

// makeHandler adapts one registry tool to the MCP handler signature. Tool
// failures are reported in-band with IsError so the model can read them.
func makeHandler(tools Tools, name string, logger *slog.Logger) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return errorResult("invalid arguments: " + err.Error()), nil
			}
		}

		out, err := tools.Execute(ctx, name, args)
		if err != nil {
			logger.Debug("tool call failed", "tool", name, "err", err)
			return errorResult(err.Error()), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: out}},
		}, nil
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
