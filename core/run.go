package core

import "time"

// RunStatus describes the terminal state of a run.
type RunStatus string

const (
	// RunStatusCompleted marks a turn that finished and was persisted.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed marks a turn that failed after partial model work.
	// Failed turns are never persisted; the status exists for callers that
	// construct run records out-of-band.
	RunStatusFailed RunStatus = "failed"
)

// Usage aggregates token accounting across all model round trips of a turn.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	CachedTokens     int `json:"cached_tokens,omitempty"`
}

// Add returns the element-wise sum of two usage records.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
		CachedTokens:     u.CachedTokens + other.CachedTokens,
	}
}

// Run is the immutable record of one completed turn: the user prompt and
// every message the model interaction produced, but never replayed history.
// A run is appended to its session exactly once.
type Run struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	Messages  []Message `json:"messages"`
	Content   []byte    `json:"content,omitempty"`
	Status    RunStatus `json:"status"`
	ModelName string    `json:"model_name,omitempty"`
	Usage     *Usage    `json:"usage,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Text returns the final model output as a string.
func (r *Run) Text() string {
	return string(r.Content)
}

// Clone returns a deep copy of the run safe for independent mutation.
func (r *Run) Clone() *Run {
	clone := *r
	clone.Content = append([]byte(nil), r.Content...)
	clone.Messages = make([]Message, len(r.Messages))

	for i, m := range r.Messages {
		clone.Messages[i] = m.Clone()
	}

	if r.Usage != nil {
		u := *r.Usage
		clone.Usage = &u
	}

	return &clone
}
