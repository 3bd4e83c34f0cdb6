package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/hupe1980/agentcenter/tool"
)

// serverTool adapts one remotely discovered MCP tool to the tool.Tool
// interface. Calls go over the shared server connection.
type serverTool struct {
	client     *mcpclient.Client
	server     string
	name       string
	desc       string
	parameters map[string]any
}

var _ tool.Tool = (*serverTool)(nil)

func newServerTool(client *mcpclient.Client, server string, t mcplib.Tool) *serverTool {
	return &serverTool{
		client:     client,
		server:     server,
		name:       t.Name,
		desc:       t.Description,
		parameters: schemaToMap(t.InputSchema),
	}
}

// schemaToMap converts a typed MCP input schema into the plain
// JSON-schema map the model adapters expect.
func schemaToMap(schema mcplib.ToolInputSchema) map[string]any {
	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || len(out) == 0 {
		return map[string]any{"type": "object"}
	}

	return out
}

// Name implements tool.Tool.
func (t *serverTool) Name() string { return t.name }

// Description implements tool.Tool.
func (t *serverTool) Description() string { return t.desc }

// Parameters implements tool.Tool.
func (t *serverTool) Parameters() map[string]any { return t.parameters }

// Call implements tool.Tool by invoking the remote tool over the server
// connection. A server-side tool error (IsError result) surfaces as a
// tool.ToolError so the engine can hand it back to the model.
func (t *serverTool) Call(ctx context.Context, args map[string]any) (string, error) {
	result, err := t.client.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      t.name,
			Arguments: args,
		},
	})
	if err != nil {
		return "", fmt.Errorf("call mcp tool %q on %q: %w", t.name, t.server, err)
	}

	text := contentText(result.Content)

	if result.IsError {
		return "", tool.NewToolError(t.name, text, "mcp_tool_error")
	}

	return text, nil
}

func contentText(blocks []mcplib.Content) string {
	var sb strings.Builder

	for _, block := range blocks {
		if tc, ok := block.(mcplib.TextContent); ok {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}

			sb.WriteString(tc.Text)
		}
	}

	return sb.String()
}
