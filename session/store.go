package session

import (
	"context"
	"sort"
	"time"

	"github.com/hupe1980/agentcenter/core"
)

// SortField selects the attribute ListSessions orders by.
type SortField string

const (
	// SortCreatedAt orders by session creation time.
	SortCreatedAt SortField = "created_at"
	// SortUpdatedAt orders by last mutation time.
	SortUpdatedAt SortField = "updated_at"
	// SortName orders by friendly name.
	SortName SortField = "name"
)

// Sort combines a field with a direction.
type Sort struct {
	Field      SortField
	Descending bool
}

// Filter narrows session lookups and listings. Zero values mean
// unconstrained. Limit zero means no cap; Offset skips that many
// sessions after sorting.
type Filter struct {
	AgentID string
	UserID  string
	Limit   int
	Offset  int
	Sort    Sort
}

// Matches reports whether the session satisfies the agent/user
// constraints of the filter.
func (f Filter) Matches(s *core.Session) bool {
	if f.AgentID != "" && s.AgentID != f.AgentID {
		return false
	}

	if f.UserID != "" && s.UserID != f.UserID {
		return false
	}

	return true
}

// Stats aggregates store-wide counters.
type Stats struct {
	TotalSessions int       `json:"total_sessions"`
	TotalRuns     int       `json:"total_runs"`
	TotalMessages int       `json:"total_messages"`
	OldestSession time.Time `json:"oldest_session,omitempty"`
	NewestSession time.Time `json:"newest_session,omitempty"`
}

// Store is the durable session persistence contract the engine and the
// Center depend on.
//
// Contract:
//   - sessions are created explicitly through UpsertSession; AppendRun
//     fails with core.ErrSessionNotFound rather than creating one
//   - every mutation refreshes the session's UpdatedAt
//   - runs are append-only per session and immutable once appended
//   - implementations return defensive copies so callers never alias
//     persisted state
type Store interface {
	// GetSession returns the session with the given id, constrained by
	// the filter's agent/user fields. It fails with
	// core.ErrSessionNotFound when no matching session exists.
	GetSession(ctx context.Context, sessionID string, filter Filter) (*core.Session, error)

	// ListSessions returns the sessions matching the filter, sorted and
	// paginated per the filter.
	ListSessions(ctx context.Context, filter Filter) ([]*core.Session, error)

	// UpsertSession creates or replaces the session and refreshes its
	// UpdatedAt. The stored value is returned.
	UpsertSession(ctx context.Context, s *core.Session) (*core.Session, error)

	// DeleteSession removes the session. It reports whether a session
	// existed under the id.
	DeleteSession(ctx context.Context, sessionID string) (bool, error)

	// RenameSession updates the friendly name of the session. It fails
	// with core.ErrSessionNotFound when the session does not exist.
	RenameSession(ctx context.Context, sessionID, name string) (*core.Session, error)

	// GetRun returns one run of a session. It fails with
	// core.ErrSessionNotFound or core.ErrRunNotFound respectively.
	GetRun(ctx context.Context, runID, sessionID string) (*core.Run, error)

	// AppendRun appends the run to its session. It fails with
	// core.ErrSessionNotFound when the session does not exist and never
	// creates one.
	AppendRun(ctx context.Context, sessionID string, run *core.Run) error

	// RemoveRun deletes one run from a session. It fails with
	// core.ErrSessionNotFound or core.ErrRunNotFound respectively.
	RemoveRun(ctx context.Context, runID, sessionID string) error

	// Stats returns store-wide counters.
	Stats(ctx context.Context) (*Stats, error)
}

// sortSessions orders sessions in place per the sort spec. The zero
// Sort orders by UpdatedAt descending, most recently touched first.
func sortSessions(sessions []*core.Session, s Sort) {
	less := func(a, b *core.Session) bool {
		switch s.Field {
		case SortCreatedAt:
			return a.CreatedAt.Before(b.CreatedAt)
		case SortName:
			return a.Name < b.Name
		default:
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
	}

	descending := s.Descending
	if s.Field == "" {
		descending = true
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		if descending {
			return less(sessions[j], sessions[i])
		}

		return less(sessions[i], sessions[j])
	})
}

// paginate applies limit/offset to an already sorted slice.
func paginate(sessions []*core.Session, limit, offset int) []*core.Session {
	if offset > 0 {
		if offset >= len(sessions) {
			return nil
		}

		sessions = sessions[offset:]
	}

	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}

	return sessions
}
