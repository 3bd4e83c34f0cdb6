package core

import (
	"fmt"
	"time"
)

// ExecutionPolicy bundles the per-turn execution knobs. The zero value is
// the default policy: no retries, no timeout, no tool-call cap and no
// history windowing.
type ExecutionPolicy struct {
	// Retries is the number of additional attempts after the first failed
	// model interaction. Only transport-level failures are retried.
	Retries int

	// Timeout bounds the whole model interaction for the turn, including
	// internal tool-calling rounds. Zero means no timeout.
	Timeout time.Duration

	// MaxToolCalls caps the number of tool invocations the model may make
	// during the turn. Zero means unlimited.
	MaxToolCalls int

	// MaxHistoryMessages keeps only the most recent N historical messages
	// when building the transcript. Zero means uncapped.
	MaxHistoryMessages int

	// MaxHistoryTokens drops oldest historical messages until the
	// serialized transcript's approximate token size fits the budget.
	// Applied after MaxHistoryMessages; zero means uncapped.
	MaxHistoryTokens int

	// SummaryHook names the hook invoked with messages dropped by
	// windowing. Its result replaces the session summary. Empty disables
	// summarization.
	SummaryHook string

	// Temperature and MaxTokens are generation pass-throughs handed to the
	// model client unchanged. Nil leaves the provider default in place.
	Temperature *float64
	MaxTokens   *int64

	// AllowedTools restricts the turn to a subset of the agent's tool set.
	// Naming a tool the agent does not have access to is an
	// ErrInvalidConfig before any model call. Empty means all agent tools.
	AllowedTools []string

	// OutputSchema requests structured output as a JSON schema map. The
	// final run content is then the canonical JSON for that schema.
	OutputSchema map[string]any
}

// Validate rejects structurally impossible policies.
func (p ExecutionPolicy) Validate() error {
	if p.Retries < 0 {
		return fmt.Errorf("%w: retries must not be negative", ErrInvalidConfig)
	}

	if p.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}

	if p.MaxToolCalls < 0 || p.MaxHistoryMessages < 0 || p.MaxHistoryTokens < 0 {
		return fmt.Errorf("%w: limits must not be negative", ErrInvalidConfig)
	}

	return nil
}

// Attempts returns the total number of model interaction attempts the
// policy allows, always at least one.
func (p ExecutionPolicy) Attempts() int {
	if p.Retries < 0 {
		return 1
	}

	return p.Retries + 1
}
