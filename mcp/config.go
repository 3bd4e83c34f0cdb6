package mcp

import (
	"fmt"

	"github.com/hupe1980/agentcenter/core"
)

// HTTPTransport connects to a server over streamable HTTP.
type HTTPTransport struct {
	// URL is the server endpoint, e.g. "https://example.com/mcp".
	URL string `json:"url" yaml:"url"`

	// Headers are added to every request, typically for authentication.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// StdioTransport launches a server as a subprocess speaking JSON-RPC over
// stdin/stdout.
type StdioTransport struct {
	Command string            `json:"command" yaml:"command"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// ServerConfig names a remote MCP server and its transport. Exactly one
// of HTTP or Stdio must be set.
type ServerConfig struct {
	Name  string          `json:"name" yaml:"name"`
	HTTP  *HTTPTransport  `json:"http,omitempty" yaml:"http,omitempty"`
	Stdio *StdioTransport `json:"stdio,omitempty" yaml:"stdio,omitempty"`
}

// Validate checks the structural requirements of the configuration.
func (c ServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: mcp server name must not be empty", core.ErrInvalidConfig)
	}

	if c.HTTP == nil && c.Stdio == nil {
		return fmt.Errorf("%w: mcp server %q needs an http or stdio transport", core.ErrInvalidConfig, c.Name)
	}

	if c.HTTP != nil && c.Stdio != nil {
		return fmt.Errorf("%w: mcp server %q must use exactly one transport", core.ErrInvalidConfig, c.Name)
	}

	if c.HTTP != nil && c.HTTP.URL == "" {
		return fmt.Errorf("%w: mcp server %q has no url", core.ErrInvalidConfig, c.Name)
	}

	if c.Stdio != nil && c.Stdio.Command == "" {
		return fmt.Errorf("%w: mcp server %q has no command", core.ErrInvalidConfig, c.Name)
	}

	return nil
}
