// Package hook provides the extension points that run around a turn.
//
// Three hook kinds exist:
//
//   - PreHook: runs before the model interaction. Blocking pre-hooks run
//     sequentially in the agent's declared order and may rewrite the
//     outgoing user message; each one sees the previous hook's rewrite.
//     Non-blocking pre-hooks receive an independent snapshot of the
//     context and run as tracked background tasks, so they can never
//     affect the turn.
//   - PostHook: runs after the run has been persisted. Failures are
//     logged and never propagated, the turn has already succeeded.
//   - SummaryHook: condenses messages dropped by history windowing into
//     a replacement summary string.
//
// Hooks are optional enhancements. An agent may reference a hook name
// that is not registered; the engine skips it silently instead of
// failing the turn.
package hook
