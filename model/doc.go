// Package model defines the language-model client abstraction.
//
// A Client receives a normalized Request (instructions, replayed
// history, the new prompt, tool definitions, generation options) and
// produces a Response carrying the final content plus every message
// generated during the interaction, including assistant tool-call
// messages and tool results from internal tool-calling rounds.
//
// The tool-call loop lives inside the client: when the provider asks
// for tool invocations, the client executes them through the
// engine-injected ToolRunner and feeds the results back until the
// provider returns plain content. Each actual API round trip is
// reported to the engine-injected Monitor so observers can follow
// multi-round turns.
//
// Provider adapters live in subpackages (openai, anthropic); Mock is a
// scripted in-memory client for tests and examples.
package model
