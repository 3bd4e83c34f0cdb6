package mcp

import (
	"context"
	"fmt"
	"sort"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/hupe1980/agentcenter/tool"
)

// Connection is one live link to an MCP server. Its tools remain callable
// until Close.
type Connection interface {
	// Tools returns the tools the server exposed during discovery,
	// sorted by name.
	Tools() []tool.Tool

	// Close tears down the transport (and the subprocess for stdio
	// servers).
	Close() error
}

// Connector establishes connections to MCP servers. The production
// implementation speaks the protocol via mark3labs/mcp-go; tests swap in
// a fake.
type Connector interface {
	Connect(ctx context.Context, cfg ServerConfig) (Connection, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, cfg ServerConfig) (Connection, error)

// Connect calls the wrapped function.
func (f ConnectorFunc) Connect(ctx context.Context, cfg ServerConfig) (Connection, error) {
	return f(ctx, cfg)
}

// staticConnection serves a fixed tool set without a transport.
type staticConnection struct {
	tools []tool.Tool
}

func (c *staticConnection) Tools() []tool.Tool { return c.tools }

func (c *staticConnection) Close() error { return nil }

// NewStaticConnection wraps a fixed tool set as a Connection. Combined
// with ConnectorFunc it lets tests and demos stand in for a real server.
func NewStaticConnection(tools ...tool.Tool) Connection {
	sorted := append([]tool.Tool(nil), tools...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name() < sorted[j].Name() })

	return &staticConnection{tools: sorted}
}

// clientInfo identifies this process during the protocol handshake.
var clientInfo = mcplib.Implementation{
	Name:    "agentcenter",
	Version: "1.0",
}

type mcpConnection struct {
	client *mcpclient.Client
	tools  []tool.Tool
}

func (c *mcpConnection) Tools() []tool.Tool { return c.tools }

func (c *mcpConnection) Close() error { return c.client.Close() }

type mcpConnector struct{}

// NewConnector returns the mcp-go backed Connector.
func NewConnector() Connector {
	return mcpConnector{}
}

// Connect dials the configured transport, performs the initialize
// handshake and lists the server's tools.
func (mcpConnector) Connect(ctx context.Context, cfg ServerConfig) (Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := dial(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect mcp server %q: %w", cfg.Name, err)
	}

	if _, err := client.Initialize(ctx, mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ProtocolVersion: mcplib.LATEST_PROTOCOL_VERSION,
			ClientInfo:      clientInfo,
		},
	}); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("initialize mcp server %q: %w", cfg.Name, err)
	}

	result, err := client.ListTools(ctx, mcplib.ListToolsRequest{})
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("list tools of mcp server %q: %w", cfg.Name, err)
	}

	tools := make([]tool.Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, newServerTool(client, cfg.Name, t))
	}

	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })

	return &mcpConnection{client: client, tools: tools}, nil
}

func dial(cfg ServerConfig) (*mcpclient.Client, error) {
	if cfg.HTTP != nil {
		var opts []mcptransport.StreamableHTTPCOption
		if len(cfg.HTTP.Headers) > 0 {
			opts = append(opts, mcptransport.WithHTTPHeaders(cfg.HTTP.Headers))
		}

		return mcpclient.NewStreamableHttpClient(cfg.HTTP.URL, opts...)
	}

	env := make([]string, 0, len(cfg.Stdio.Env))
	for k, v := range cfg.Stdio.Env {
		env = append(env, k+"="+v)
	}

	return mcpclient.NewStdioMCPClient(cfg.Stdio.Command, env, cfg.Stdio.Args...)
}
