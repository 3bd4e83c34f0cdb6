// Package engine orchestrates one conversational turn against an agent:
// pre-hooks, MCP tool discovery, transcript assembly, the model
// interaction with its tool-call loop, timeout/retry policy, run
// persistence, event emission and post-hooks.
//
// The engine owns no model or tool logic itself. Model clients drive
// their own tool-calling rounds through a ToolRunner the engine injects;
// the engine contributes the policy envelope around the interaction and
// the guarantees at its edges: no partial history writes before the
// interaction completes, a run appended exactly once on success, events
// in causal order, and typed failures (core.ErrAgentNotFound,
// core.ErrSessionNotFound, core.ErrInvalidConfig, core.TimeoutError)
// the caller can dispatch on.
//
// All collaborators are injected by construction, so tests swap in fake
// stores and scripted model clients without any ambient state.
package engine
