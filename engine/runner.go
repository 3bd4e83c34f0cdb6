package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/agentcenter/core"
	"github.com/hupe1980/agentcenter/eventing"
	"github.com/hupe1980/agentcenter/logging"
	"github.com/hupe1980/agentcenter/model"
	"github.com/hupe1980/agentcenter/tool"
)

// toolRunner executes the tool calls a model client requests during one
// turn, against the turn's resolved tool set. Every execution emits a
// started/completed event pair correlated by a generated execution id.
// A tool failure is returned to the client, which surfaces it to the
// provider as an error-shaped tool result; the engine never retries
// individual tool invocations.
type toolRunner struct {
	runID  string
	tools  map[string]tool.Tool
	bus    *eventing.Bus
	logger logging.Logger
}

var _ model.ToolRunner = (*toolRunner)(nil)

// Run implements model.ToolRunner.
func (r *toolRunner) Run(ctx context.Context, call core.ToolCall) (string, error) {
	executionID := core.NewID()

	r.bus.Publish(eventing.ToolExecutionStarted{
		Base:        eventing.Now(),
		RunID:       r.runID,
		ExecutionID: executionID,
		CallID:      call.ID,
		Tool:        call.Name,
	})

	started := time.Now()
	result, err := r.execute(ctx, call)

	r.bus.Publish(eventing.ToolExecutionCompleted{
		Base:        eventing.Now(),
		RunID:       r.runID,
		ExecutionID: executionID,
		Tool:        call.Name,
		Err:         err,
		Duration:    time.Since(started),
	})

	if err != nil {
		r.logger.Warn("engine.tool.error", "run_id", r.runID, "tool", call.Name, "error", err)
	}

	return result, err
}

func (r *toolRunner) execute(ctx context.Context, call core.ToolCall) (string, error) {
	tl, ok := r.tools[call.Name]
	if !ok {
		return "", fmt.Errorf("%w: model requested unavailable tool %q", core.ErrInvalidConfig, call.Name)
	}

	var args map[string]any

	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return "", fmt.Errorf("decode arguments for tool %q: %w", call.Name, err)
		}
	}

	return tl.Call(ctx, args)
}

// busMonitor forwards model round-trip notifications onto the event bus,
// pairing requests and responses by the client-generated request id.
type busMonitor struct {
	runID string
	bus   *eventing.Bus
}

var _ model.Monitor = (*busMonitor)(nil)

// RequestSending implements model.Monitor.
func (m *busMonitor) RequestSending(requestID, modelName string, messages int) {
	m.bus.Publish(eventing.ModelRequestSending{
		Base:      eventing.Now(),
		RunID:     m.runID,
		RequestID: requestID,
		Model:     modelName,
		Messages:  messages,
	})
}

// ResponseReceived implements model.Monitor.
func (m *busMonitor) ResponseReceived(requestID, modelName string, usage core.Usage) {
	m.bus.Publish(eventing.ModelResponseReceived{
		Base:      eventing.Now(),
		RunID:     m.runID,
		RequestID: requestID,
		Model:     modelName,
		Usage:     usage,
	})
}
