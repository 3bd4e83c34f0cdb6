package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentcenter/core"
)

// FileStore is a Store persisting each session as one JSON document under
// a directory. Writes go through a temp file plus rename so a crashed
// write never leaves a truncated document behind. A single mutex
// serializes all operations; the store targets small local deployments,
// not high-throughput servers.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the directory if needed and returns a store over it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

func (s *FileStore) read(sessionID string) (*core.Session, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
		}

		return nil, fmt.Errorf("read session %s: %w", sessionID, err)
	}

	var session core.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}

	return &session, nil
}

func (s *FileStore) write(session *core.Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, "session-*.tmp")
	if err != nil {
		return fmt.Errorf("write session %s: %w", session.ID, err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("write session %s: %w", session.ID, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("write session %s: %w", session.ID, err)
	}

	if err := os.Rename(tmp.Name(), s.path(session.ID)); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("write session %s: %w", session.ID, err)
	}

	return nil
}

func (s *FileStore) readAll() ([]*core.Session, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list session dir: %w", err)
	}

	var sessions []*core.Session

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		session, err := s.read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}

		sessions = append(sessions, session)
	}

	return sessions, nil
}

// GetSession implements Store.
func (s *FileStore) GetSession(_ context.Context, sessionID string, filter Filter) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.read(sessionID)
	if err != nil {
		return nil, err
	}

	if !filter.Matches(session) {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}

	return session, nil
}

// ListSessions implements Store.
func (s *FileStore) ListSessions(_ context.Context, filter Filter) ([]*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return nil, err
	}

	matches := make([]*core.Session, 0, len(all))

	for _, session := range all {
		if filter.Matches(session) {
			matches = append(matches, session)
		}
	}

	sortSessions(matches, filter.Sort)

	return paginate(matches, filter.Limit, filter.Offset), nil
}

// UpsertSession implements Store.
func (s *FileStore) UpsertSession(_ context.Context, session *core.Session) (*core.Session, error) {
	if session == nil || session.ID == "" {
		return nil, fmt.Errorf("%w: session must have an id", core.ErrInvalidConfig)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := session.Clone()
	stored.UpdatedAt = time.Now().UTC()

	if err := s.write(stored); err != nil {
		return nil, err
	}

	return stored, nil
}

// DeleteSession implements Store.
func (s *FileStore) DeleteSession(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("delete session %s: %w", sessionID, err)
	}

	return true, nil
}

// RenameSession implements Store.
func (s *FileStore) RenameSession(_ context.Context, sessionID, name string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.read(sessionID)
	if err != nil {
		return nil, err
	}

	session.Name = name
	session.UpdatedAt = time.Now().UTC()

	if err := s.write(session); err != nil {
		return nil, err
	}

	return session, nil
}

// GetRun implements Store.
func (s *FileStore) GetRun(_ context.Context, runID, sessionID string) (*core.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.read(sessionID)
	if err != nil {
		return nil, err
	}

	for i := range session.Runs {
		if session.Runs[i].ID == runID {
			return session.Runs[i].Clone(), nil
		}
	}

	return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
}

// AppendRun implements Store. Appending never creates a session.
func (s *FileStore) AppendRun(_ context.Context, sessionID string, run *core.Run) error {
	if run == nil {
		return fmt.Errorf("%w: run must not be nil", core.ErrInvalidConfig)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.read(sessionID)
	if err != nil {
		return err
	}

	session.Runs = append(session.Runs, *run.Clone())
	session.UpdatedAt = time.Now().UTC()

	return s.write(session)
}

// RemoveRun implements Store.
func (s *FileStore) RemoveRun(_ context.Context, runID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.read(sessionID)
	if err != nil {
		return err
	}

	for i := range session.Runs {
		if session.Runs[i].ID == runID {
			session.Runs = append(session.Runs[:i], session.Runs[i+1:]...)
			session.UpdatedAt = time.Now().UTC()

			return s.write(session)
		}
	}

	return fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
}

// Stats implements Store.
func (s *FileStore) Stats(_ context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return nil, err
	}

	stats := &Stats{TotalSessions: len(all)}

	for _, session := range all {
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
