package eventing

import (
	"time"

	"github.com/hupe1980/agentcenter/core"
)

// Event is the closed set of lifecycle notifications emitted by the engine
// and the composition root. Observers dispatch on the concrete variant with
// a type switch; the marker method keeps the set closed to this package.
type Event interface {
	// OccurredAt returns the emission timestamp.
	OccurredAt() time.Time

	isEvent()
}

// Base carries the timestamp shared by every event variant.
type Base struct {
	At time.Time `json:"at"`
}

// OccurredAt returns the emission timestamp.
func (b Base) OccurredAt() time.Time { return b.At }

func (Base) isEvent() {}

// Now returns a Base stamped with the current UTC time.
func Now() Base {
	return Base{At: time.Now().UTC()}
}

// ExecutionStarted is emitted when a turn begins, after agent resolution.
type ExecutionStarted struct {
	Base
	RunID     string
	AgentID   string
	SessionID string
	UserID    string
}

// ExecutionCompleted is emitted after the run has been persisted.
type ExecutionCompleted struct {
	Base
	RunID     string
	AgentID   string
	SessionID string
	Duration  time.Duration
}

// ExecutionFailed is emitted when a turn fails before persistence.
type ExecutionFailed struct {
	Base
	RunID     string
	AgentID   string
	SessionID string
	Err       error
}

// MCPServerDiscoveryStarted is emitted once per server name when the first
// turn referencing it triggers discovery.
type MCPServerDiscoveryStarted struct {
	Base
	Server string
}

// MCPServerDiscovered is emitted when discovery succeeds.
type MCPServerDiscovered struct {
	Base
	Server string
	Tools  []string
}

// MCPServerDiscoveryFailed is emitted when discovery fails; the referencing
// turn fails with the same error.
type MCPServerDiscoveryFailed struct {
	Base
	Server string
	Err    error
}

// TranscriptBuildStarted is emitted before history is assembled.
type TranscriptBuildStarted struct {
	Base
	RunID     string
	SessionID string
}

// TranscriptBuilt is emitted after windowing with the surviving and dropped
// history message counts.
type TranscriptBuilt struct {
	Base
	RunID           string
	SessionID       string
	HistoryMessages int
	DroppedMessages int
}

// ModelRequestSending is emitted once per actual API round trip, including
// follow-up calls during tool-calling loops. RequestID pairs it with the
// matching ModelResponseReceived.
type ModelRequestSending struct {
	Base
	RunID     string
	RequestID string
	Model     string
	Messages  int
}

// ModelResponseReceived closes the round trip opened under the same
// RequestID.
type ModelResponseReceived struct {
	Base
	RunID     string
	RequestID string
	Model     string
	Usage     core.Usage
}

// ToolExecutionStarted is emitted before a tool call runs. ExecutionID
// pairs it with the matching ToolExecutionCompleted.
type ToolExecutionStarted struct {
	Base
	RunID       string
	ExecutionID string
	CallID      string
	Tool        string
}

// ToolExecutionCompleted closes the tool execution opened under the same
// ExecutionID. Err is nil on success.
type ToolExecutionCompleted struct {
	Base
	RunID       string
	ExecutionID string
	Tool        string
	Err         error
	Duration    time.Duration
}

// SessionCreated is emitted when a session is explicitly created.
type SessionCreated struct {
	Base
	SessionID string
	AgentID   string
	UserID    string
}

// RunSaved is emitted after a run has been appended to its session.
type RunSaved struct {
	Base
	RunID     string
	SessionID string
	Messages  int
}

// Kind returns the stable lowercase identifier for an event variant, used
// by the structured observers.
func Kind(ev Event) string {
	switch ev.(type) {
	case ExecutionStarted:
		return "execution.started"
	case ExecutionCompleted:
		return "execution.completed"
	case ExecutionFailed:
		return "execution.failed"
	case MCPServerDiscoveryStarted:
		return "mcp.discovery.started"
	case MCPServerDiscovered:
		return "mcp.discovery.discovered"
	case MCPServerDiscoveryFailed:
		return "mcp.discovery.failed"
	case TranscriptBuildStarted:
		return "transcript.build.started"
	case TranscriptBuilt:
		return "transcript.built"
	case ModelRequestSending:
		return "model.request.sending"
	case ModelResponseReceived:
		return "model.response.received"
	case ToolExecutionStarted:
		return "tool.execution.started"
	case ToolExecutionCompleted:
		return "tool.execution.completed"
	case SessionCreated:
		return "session.created"
	case RunSaved:
		return "run.saved"
	default:
		return "unknown"
	}
}
