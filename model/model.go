package model

import (
	"context"

	"github.com/hupe1980/agentcenter/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// NewToolDefinition builds a function tool definition from its parts.
func NewToolDefinition(name, description string, parameters map[string]any) ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// Options are the generation options applied to a single request.
type Options struct {
	// Temperature overrides the adapter's default sampling temperature.
	Temperature *float64

	// MaxTokens overrides the adapter's default completion token limit.
	MaxTokens *int64

	// MaxToolCalls bounds the number of tool invocations across all
	// internal rounds. Zero means unbounded. Once the budget is spent
	// the client withholds tool definitions so the provider must answer
	// with plain content.
	MaxToolCalls int

	// OutputSchema, when set, instructs the provider to produce JSON
	// conforming to the schema instead of free-form text.
	OutputSchema map[string]any
}

// Request captures the normalized model input produced by the engine.
type Request struct {
	// Instructions is the leading system text (agent instructions plus
	// any injected conversation summary).
	Instructions string

	// History is the replayed prior conversation in chronological order.
	// It contains user messages, assistant text and assistant tool-call
	// messages; prior tool results are not replayed.
	History []core.Message

	// Prompt is the new user message for this turn.
	Prompt core.Message

	// Tools are the definitions the provider may call.
	Tools []ToolDefinition

	// Options carries generation options derived from the execution policy.
	Options Options

	// Runner executes tool calls on behalf of the client. Required when
	// Tools is non-empty.
	Runner ToolRunner

	// Monitor observes individual API round trips. Optional.
	Monitor Monitor
}

// Response is the final result of one model interaction.
type Response struct {
	// Content is the final text (or JSON, when an output schema was
	// requested) produced by the provider.
	Content string

	// Messages are all messages generated during the interaction in
	// emission order: assistant tool-call messages, tool results, and
	// the final assistant message. The prompt is not included.
	Messages []core.Message

	// Usage aggregates token usage across all internal rounds.
	Usage *core.Usage

	// Model is the provider-side model identifier that produced the response.
	Model string
}

// Client is the interface that drives generation against one provider.
//
// Implementations own the tool-call loop: they execute requested tools
// through Request.Runner and continue the exchange until the provider
// returns plain content. Both calls must honor context cancellation so
// turn-level timeouts propagate into in-flight network calls.
type Client interface {
	// Respond performs the full interaction and returns the final response.
	Respond(ctx context.Context, req Request) (*Response, error)

	// Stream performs the interaction while emitting incremental text
	// deltas. The final Response is available from the stream once it
	// is fully consumed.
	Stream(ctx context.Context, req Request) (*Stream, error)
}

// ToolRunner executes a single tool call on behalf of a client. A tool
// failure is returned as an error; clients surface it to the provider
// as an error-shaped tool result rather than aborting the interaction.
type ToolRunner interface {
	Run(ctx context.Context, call core.ToolCall) (string, error)
}

// ToolRunnerFunc adapts a function to the ToolRunner interface.
type ToolRunnerFunc func(ctx context.Context, call core.ToolCall) (string, error)

// Run calls the wrapped function.
func (f ToolRunnerFunc) Run(ctx context.Context, call core.ToolCall) (string, error) {
	return f(ctx, call)
}

// Monitor observes the API round trips a client performs during one
// interaction. RequestSending and ResponseReceived are paired by the
// client-generated requestID; multi-round turns produce one pair per
// round.
type Monitor interface {
	RequestSending(requestID, model string, messages int)
	ResponseReceived(requestID, model string, usage core.Usage)
}

type nopMonitor struct{}

func (nopMonitor) RequestSending(string, string, int)          {}
func (nopMonitor) ResponseReceived(string, string, core.Usage) {}

// MonitorOrNoop returns m, or a no-op monitor when m is nil, so clients
// never have to nil-check before notifying.
func MonitorOrNoop(m Monitor) Monitor {
	if m == nil {
		return nopMonitor{}
	}

	return m
}
