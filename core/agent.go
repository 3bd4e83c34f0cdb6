package core

import "fmt"

// Agent is an immutable named bundle of a model, static instructions and the
// capabilities available to it. Agents are pure configuration values: the
// referenced model, tools, MCP servers and hooks are resolved by name at
// execution time from their registries.
//
// Contract:
//   - ID is the stable registry key; re-registration is a conflict
//   - Tool, MCP server and hook lists are ordered; hook execution order is
//     list order
//   - Instructions may contain text/template markers rendered against the
//     session data bag when the transcript is built
type Agent struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Description  string   `json:"description,omitempty"`
	Model        string   `json:"model"`
	Instructions string   `json:"instructions,omitempty"`
	Tools        []string `json:"tools,omitempty"`
	MCPServers   []string `json:"mcp_servers,omitempty"`
	PreHooks     []string `json:"pre_hooks,omitempty"`
	PostHooks    []string `json:"post_hooks,omitempty"`
}

// Validate checks the structural requirements an agent must satisfy before
// registration. Reference existence (model, tools, MCP servers) is checked
// by the registry owner, not here.
func (a Agent) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: agent id must not be empty", ErrInvalidConfig)
	}

	if a.Model == "" {
		return fmt.Errorf("%w: agent %q references no model", ErrInvalidConfig, a.ID)
	}

	return nil
}

// Clone returns a deep copy of the agent safe for independent mutation.
func (a Agent) Clone() Agent {
	clone := a
	clone.Tools = append([]string(nil), a.Tools...)
	clone.MCPServers = append([]string(nil), a.MCPServers...)
	clone.PreHooks = append([]string(nil), a.PreHooks...)
	clone.PostHooks = append([]string(nil), a.PostHooks...)

	return clone
}

// HasTool reports whether the agent's explicit tool list contains name.
// Tools discovered from the agent's MCP servers are not covered here.
func (a Agent) HasTool(name string) bool {
	for _, t := range a.Tools {
		if t == name {
			return true
		}
	}

	return false
}
