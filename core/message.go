package core

import "time"

// Role identifies the author of a message within a run.
type Role string

const (
	// RoleSystem marks instruction-level messages. They are folded into the
	// transcript's instructions entry, never replayed verbatim.
	RoleSystem Role = "system"
	// RoleUser marks the caller's prompt for a turn.
	RoleUser Role = "user"
	// RoleAssistant marks model output, either text or tool-call requests.
	RoleAssistant Role = "assistant"
	// RoleTool marks a tool execution result fed back to the model.
	RoleTool Role = "tool"
)

// ToolCall is one tool invocation requested by the model. The id is assigned
// by the model or tool protocol; arguments are the canonical JSON encoding
// of the call parameters.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is a single transcript element produced during a turn. Ordering
// within a run reflects chronological emission order.
type Message struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(text string) Message {
	return Message{ID: NewID(), Role: RoleSystem, Content: text, CreatedAt: time.Now().UTC()}
}

// NewUserMessage creates a user message.
func NewUserMessage(text string) Message {
	return Message{ID: NewID(), Role: RoleUser, Content: text, CreatedAt: time.Now().UTC()}
}

// NewAssistantMessage creates an assistant text message.
func NewAssistantMessage(text string) Message {
	return Message{ID: NewID(), Role: RoleAssistant, Content: text, CreatedAt: time.Now().UTC()}
}

// NewToolCallMessage creates an assistant message carrying tool-call
// requests without text content.
func NewToolCallMessage(calls ...ToolCall) Message {
	return Message{ID: NewID(), Role: RoleAssistant, ToolCalls: calls, CreatedAt: time.Now().UTC()}
}

// NewToolResultMessage creates a tool-role message carrying the serialized
// result for the tool call identified by callID.
func NewToolResultMessage(callID, toolName, result string) Message {
	return Message{
		ID:         NewID(),
		Role:       RoleTool,
		Content:    result,
		ToolCallID: callID,
		ToolName:   toolName,
		CreatedAt:  time.Now().UTC(),
	}
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	clone := m
	clone.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)

	return clone
}
