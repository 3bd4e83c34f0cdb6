package eventing

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// FileObserver writes one JSON document per event, newline-delimited, to an
// io.Writer. Payload fields are flattened per variant so the output is
// stable for machine consumption regardless of Go struct layout.
type FileObserver struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewFileObserver creates a JSONL observer writing to w.
func NewFileObserver(w io.Writer) *FileObserver {
	return &FileObserver{enc: json.NewEncoder(w)}
}

type fileRecord struct {
	At      time.Time      `json:"at"`
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Observe encodes the event. Encoding errors are dropped; event emission is
// best-effort by contract.
func (f *FileObserver) Observe(ev Event) {
	rec := fileRecord{At: ev.OccurredAt(), Kind: Kind(ev), Payload: payload(ev)}

	f.mu.Lock()
	defer f.mu.Unlock()

	_ = f.enc.Encode(rec)
}

func payload(ev Event) map[string]any {
	switch e := ev.(type) {
	case ExecutionStarted:
		return map[string]any{"run_id": e.RunID, "agent_id": e.AgentID, "session_id": e.SessionID, "user_id": e.UserID}
	case ExecutionCompleted:
		return map[string]any{"run_id": e.RunID, "agent_id": e.AgentID, "session_id": e.SessionID, "duration_ms": e.Duration.Milliseconds()}
	case ExecutionFailed:
		return map[string]any{"run_id": e.RunID, "agent_id": e.AgentID, "session_id": e.SessionID, "error": errString(e.Err)}
	case MCPServerDiscoveryStarted:
		return map[string]any{"server": e.Server}
	case MCPServerDiscovered:
		return map[string]any{"server": e.Server, "tools": e.Tools}
	case MCPServerDiscoveryFailed:
		return map[string]any{"server": e.Server, "error": errString(e.Err)}
	case TranscriptBuildStarted:
		return map[string]any{"run_id": e.RunID, "session_id": e.SessionID}
	case TranscriptBuilt:
		return map[string]any{"run_id": e.RunID, "session_id": e.SessionID, "history_messages": e.HistoryMessages, "dropped_messages": e.DroppedMessages}
	case ModelRequestSending:
		return map[string]any{"run_id": e.RunID, "request_id": e.RequestID, "model": e.Model, "messages": e.Messages}
	case ModelResponseReceived:
		return map[string]any{"run_id": e.RunID, "request_id": e.RequestID, "model": e.Model, "usage": e.Usage}
	case ToolExecutionStarted:
		return map[string]any{"run_id": e.RunID, "execution_id": e.ExecutionID, "call_id": e.CallID, "tool": e.Tool}
	case ToolExecutionCompleted:
		return map[string]any{"run_id": e.RunID, "execution_id": e.ExecutionID, "tool": e.Tool, "error": errString(e.Err), "duration_ms": e.Duration.Milliseconds()}
	case SessionCreated:
		return map[string]any{"session_id": e.SessionID, "agent_id": e.AgentID, "user_id": e.UserID}
	case RunSaved:
		return map[string]any{"run_id": e.RunID, "session_id": e.SessionID, "messages": e.Messages}
	default:
		return nil
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
