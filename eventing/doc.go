// Package eventing defines the closed set of lifecycle events emitted
// during agent execution and the synchronous observer fan-out they travel
// through.
//
// Events form a sealed variant set (see Event); observers receive every
// event in emission order via Bus.Publish and dispatch on the concrete
// type. Emission is best-effort by contract: observer panics are recovered
// and logged, and nothing the engine does ever blocks on an observer.
//
// Three observers ship with the package:
//
//   - ConsoleObserver: colored single-line rendering for interactive use
//   - FileObserver: newline-delimited JSON for machine consumption
//   - OTelObserver: OpenTelemetry spans for turns, model calls and tools
package eventing
