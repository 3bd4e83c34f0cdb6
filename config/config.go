// Package config provides the declarative configuration surface: a YAML
// bundle of models, agents and MCP servers for bulk registration, and
// environment-driven runtime settings.
package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentcenter/core"
	"github.com/hupe1980/agentcenter/mcp"
)

// Provider identifies the model backend an inline model declaration uses.
type Provider string

const (
	// ProviderOpenAI selects the OpenAI chat-completions adapter.
	ProviderOpenAI Provider = "openai"
	// ProviderAnthropic selects the Anthropic messages adapter.
	ProviderAnthropic Provider = "anthropic"
	// ProviderMock selects the scripted mock client. It echoes prompts
	// unless scripted programmatically, so it is only useful for demos
	// and tests.
	ProviderMock Provider = "mock"
)

// ModelConfig declares one model inline in a bundle.
type ModelConfig struct {
	// Name is the registry key agents reference.
	Name string `yaml:"name"`

	// Provider selects the adapter.
	Provider Provider `yaml:"provider"`

	// Model is the provider-side model identifier, e.g. "gpt-4o-mini".
	// Empty uses the adapter default.
	Model string `yaml:"model,omitempty"`

	// APIKey overrides the provider SDK's environment-based key lookup.
	APIKey string `yaml:"api_key,omitempty"`
}

// Validate checks one model declaration.
func (m ModelConfig) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: model name must not be empty", core.ErrInvalidConfig)
	}

	switch m.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderMock:
		return nil
	default:
		return fmt.Errorf("%w: model %q has unknown provider %q", core.ErrInvalidConfig, m.Name, m.Provider)
	}
}

// AgentConfig declares one agent in a bundle. It mirrors core.Agent.
type AgentConfig struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name,omitempty"`
	Description  string   `yaml:"description,omitempty"`
	Model        string   `yaml:"model"`
	Instructions string   `yaml:"instructions,omitempty"`
	Tools        []string `yaml:"tools,omitempty"`
	MCPServers   []string `yaml:"mcp_servers,omitempty"`
	PreHooks     []string `yaml:"pre_hooks,omitempty"`
	PostHooks    []string `yaml:"post_hooks,omitempty"`
}

// Agent converts the declaration into the domain value.
func (a AgentConfig) Agent() core.Agent {
	return core.Agent{
		ID:           a.ID,
		Name:         a.Name,
		Description:  a.Description,
		Model:        a.Model,
		Instructions: a.Instructions,
		Tools:        a.Tools,
		MCPServers:   a.MCPServers,
		PreHooks:     a.PreHooks,
		PostHooks:    a.PostHooks,
	}
}

// Bundle is the declarative load surface: models and MCP servers may be
// declared inline, agents reference them (and pre-registered tools and
// hooks) by name.
type Bundle struct {
	Models     []ModelConfig      `yaml:"models,omitempty"`
	Agents     []AgentConfig      `yaml:"agents,omitempty"`
	MCPServers []mcp.ServerConfig `yaml:"mcp_servers,omitempty"`
}

// Parse decodes a bundle from YAML. Unknown fields are rejected so a
// typo fails loudly instead of silently dropping configuration.
func Parse(r io.Reader) (*Bundle, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var b Bundle
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: decode bundle: %v", core.ErrInvalidConfig, err)
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}

	return &b, nil
}

// ParseFile decodes a bundle from a YAML file.
func ParseFile(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Parse(f)
}

// Validate checks the bundle's internal consistency: structural validity
// of every declaration, no duplicate names within the bundle, and every
// agent's model and MCP server references resolvable inside the bundle
// or left to the registry conflict checks at load time. Tool and hook
// references cannot be checked here; the Center validates them against
// its registries during the load.
func (b *Bundle) Validate() error {
	modelNames := make(map[string]struct{}, len(b.Models))

	for _, m := range b.Models {
		if err := m.Validate(); err != nil {
			return err
		}

		if _, dup := modelNames[m.Name]; dup {
			return fmt.Errorf("%w: duplicate model %q in bundle", core.ErrInvalidConfig, m.Name)
		}

		modelNames[m.Name] = struct{}{}
	}

	serverNames := make(map[string]struct{}, len(b.MCPServers))

	for _, s := range b.MCPServers {
		if err := s.Validate(); err != nil {
			return err
		}

		if _, dup := serverNames[s.Name]; dup {
			return fmt.Errorf("%w: duplicate mcp server %q in bundle", core.ErrInvalidConfig, s.Name)
		}

		serverNames[s.Name] = struct{}{}
	}

	agentIDs := make(map[string]struct{}, len(b.Agents))

	for _, a := range b.Agents {
		if err := a.Agent().Validate(); err != nil {
			return err
		}

		if _, dup := agentIDs[a.ID]; dup {
			return fmt.Errorf("%w: duplicate agent %q in bundle", core.ErrInvalidConfig, a.ID)
		}

		agentIDs[a.ID] = struct{}{}
	}

	return nil
}
