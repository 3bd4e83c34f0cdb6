package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentcenter/core"
)

// InMemoryStore is a volatile Store implementation keeping sessions in a
// process-local map. It is safe for concurrent access and best suited for
// tests and ephemeral demos. Every session handed out is a clone, so
// callers can mutate freely without aliasing persisted state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// GetSession implements Store.
func (s *InMemoryStore) GetSession(_ context.Context, sessionID string, filter Filter) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok || !filter.Matches(session) {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}

	return session.Clone(), nil
}

// ListSessions implements Store.
func (s *InMemoryStore) ListSessions(_ context.Context, filter Filter) ([]*core.Session, error) {
	s.mu.RLock()

	matches := make([]*core.Session, 0, len(s.sessions))

	for _, session := range s.sessions {
		if filter.Matches(session) {
			matches = append(matches, session.Clone())
		}
	}
	s.mu.RUnlock()

	sortSessions(matches, filter.Sort)

	return paginate(matches, filter.Limit, filter.Offset), nil
}

// UpsertSession implements Store.
func (s *InMemoryStore) UpsertSession(_ context.Context, session *core.Session) (*core.Session, error) {
	if session == nil || session.ID == "" {
		return nil, fmt.Errorf("%w: session must have an id", core.ErrInvalidConfig)
	}

	stored := session.Clone()
	stored.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.sessions[stored.ID] = stored
	s.mu.Unlock()

	return stored.Clone(), nil
}

// DeleteSession implements Store.
func (s *InMemoryStore) DeleteSession(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return false, nil
	}

	delete(s.sessions, sessionID)

	return true, nil
}

// RenameSession implements Store.
func (s *InMemoryStore) RenameSession(_ context.Context, sessionID, name string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}

	session.Name = name
	session.UpdatedAt = time.Now().UTC()

	return session.Clone(), nil
}

// GetRun implements Store.
func (s *InMemoryStore) GetRun(_ context.Context, runID, sessionID string) (*core.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}

	for i := range session.Runs {
		if session.Runs[i].ID == runID {
			return session.Runs[i].Clone(), nil
		}
	}

	return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
}

// AppendRun implements Store. Appending never creates a session.
func (s *InMemoryStore) AppendRun(_ context.Context, sessionID string, run *core.Run) error {
	if run == nil {
		return fmt.Errorf("%w: run must not be nil", core.ErrInvalidConfig)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}

	session.Runs = append(session.Runs, *run.Clone())
	session.UpdatedAt = time.Now().UTC()

	return nil
}

// RemoveRun implements Store.
func (s *InMemoryStore) RemoveRun(_ context.Context, runID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}

	for i := range session.Runs {
		if session.Runs[i].ID == runID {
			session.Runs = append(session.Runs[:i], session.Runs[i+1:]...)
			session.UpdatedAt = time.Now().UTC()

			return nil
		}
	}

	return fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
}

// Stats implements Store.
func (s *InMemoryStore) Stats(_ context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{TotalSessions: len(s.sessions)}

	for _, session := range s.sessions {
		stats.TotalRuns += len(session.Runs)

		for i := range session.Runs {
			stats.TotalMessages += len(session.Runs[i].Messages)
		}

		if stats.OldestSession.IsZero() || session.CreatedAt.Before(stats.OldestSession) {
			stats.OldestSession = session.CreatedAt
		}

		if session.CreatedAt.After(stats.NewestSession) {
			stats.NewestSession = session.CreatedAt
		}
	}

	return stats, nil
}
