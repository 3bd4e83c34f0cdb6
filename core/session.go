package core

import "time"

// Session is the durable container for one agent+user conversation: an
// ordered list of runs plus a free-form data bag and an optional rolling
// summary maintained by history windowing.
//
// Contract:
//   - created once via an explicit call, never implicitly by a run append
//   - UpdatedAt refreshed on every mutation (store responsibility)
//   - deletion is always explicit
//
// Session values are plain data; stores return defensive clones so callers
// can mutate freely without aliasing persisted state.
type Session struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id"`
	UserID    string         `json:"user_id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Runs      []Run          `json:"runs"`
	Data      map[string]any `json:"data,omitempty"`
	Summary   string         `json:"summary,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewSession creates a session bound to an agent and user with a generated
// id and current timestamps.
func NewSession(agentID, userID string) *Session {
	now := time.Now().UTC()

	return &Session{
		ID:        NewID(),
		AgentID:   agentID,
		UserID:    userID,
		Runs:      []Run{},
		Data:      map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MergeData merges the delta into the session data bag, overwriting
// existing keys.
func (s *Session) MergeData(delta map[string]any) {
	if s.Data == nil {
		s.Data = make(map[string]any, len(delta))
	}

	for k, v := range delta {
		s.Data[k] = v
	}
}

// Messages flattens all run messages in chronological order. This is the
// raw material the transcript builder windows over.
func (s *Session) Messages() []Message {
	var msgs []Message
	for _, r := range s.Runs {
		msgs = append(msgs, r.Messages...)
	}

	return msgs
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Runs = make([]Run, len(s.Runs))

	for i := range s.Runs {
		clone.Runs[i] = *s.Runs[i].Clone()
	}

	clone.Data = make(map[string]any, len(s.Data))
	for k, v := range s.Data {
		clone.Data[k] = v
	}

	return &clone
}
