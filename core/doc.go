// Package core provides the foundational domain types used by AgentCenter.
// It defines the core abstractions for:
//
//   - Agents (immutable named bundles of model, instructions and capabilities)
//   - Sessions (durable conversational containers holding ordered runs)
//   - Runs and Messages (the record of one executed turn)
//   - ExecutionPolicy (per-turn timeout/retry/budget configuration)
//   - The error taxonomy shared across registries, stores and the engine
//
// The package intentionally keeps implementation concerns (persistence,
// engine orchestration, model adapters) out of scope so that every other
// package can depend on it without cycles.
package core
