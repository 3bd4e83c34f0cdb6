// Package agent provides the registry of agent definitions. Agents are
// immutable core.Agent values keyed by id; the registry enforces unique
// ids and hands out defensive clones. Resolution of the names an agent
// references (model, tools, MCP servers, hooks) happens at execution
// time in the engine, not here.
package agent
