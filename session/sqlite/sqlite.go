// Package sqlite implements session.Store on a single SQLite database
// file using the pure-Go modernc.org/sqlite driver, so the module keeps
// building without cgo. Sessions and runs live in two tables; message
// lists, the data bag and usage records are stored as JSON blobs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/agentcenter/core"
	"github.com/hupe1980/agentcenter/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	agent_id   TEXT NOT NULL,
	user_id    TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL DEFAULT '',
	data       TEXT NOT NULL DEFAULT '{}',
	summary    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	agent_id   TEXT NOT NULL,
	user_id    TEXT NOT NULL DEFAULT '',
	position   INTEGER NOT NULL,
	messages   TEXT NOT NULL DEFAULT '[]',
	content    BLOB,
	status     TEXT NOT NULL,
	model_name TEXT NOT NULL DEFAULT '',
	usage      TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, position);
CREATE INDEX IF NOT EXISTS idx_sessions_agent_user ON sessions(agent_id, user_id);
`

// Store is a SQLite-backed session.Store.
type Store struct {
	db *sql.DB
}

var _ session.Store = (*Store)(nil)

// New opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an ephemeral database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// The driver serializes access per connection; a single connection
	// avoids SQLITE_BUSY on concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}

	return t
}

func (s *Store) upsertSessionTx(ctx context.Context, tx *sql.Tx, sess *core.Session) error {
	data, err := json.Marshal(sess.Data)
	if err != nil {
		return fmt.Errorf("encode session data: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, agent_id, user_id, name, data, summary, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			agent_id = excluded.agent_id,
			user_id = excluded.user_id,
			name = excluded.name,
			data = excluded.data,
			summary = excluded.summary,
			updated_at = excluded.updated_at`,
		sess.ID, sess.AgentID, sess.UserID, sess.Name, string(data), sess.Summary,
		encodeTime(sess.CreatedAt), encodeTime(sess.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", sess.ID, err)
	}

	return nil
}

func (s *Store) insertRunTx(ctx context.Context, tx *sql.Tx, sessionID string, position int, run *core.Run) error {
	messages, err := json.Marshal(run.Messages)
	if err != nil {
		return fmt.Errorf("encode run messages: %w", err)
	}

	var usage sql.NullString

	if run.Usage != nil {
		raw, err := json.Marshal(run.Usage)
		if err != nil {
			return fmt.Errorf("encode run usage: %w", err)
		}

		usage = sql.NullString{String: string(raw), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, session_id, agent_id, user_id, position, messages, content, status, model_name, usage, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, sessionID, run.AgentID, run.UserID, position, string(messages),
		run.Content, string(run.Status), run.ModelName, usage, encodeTime(run.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	return nil
}

func scanRun(rows *sql.Rows) (*core.Run, error) {
	var (
		run       core.Run
		messages  string
		status    string
		usage     sql.NullString
		createdAt string
	)

	if err := rows.Scan(&run.ID, &run.AgentID, &run.UserID, &messages, &run.Content, &status, &run.ModelName, &usage, &createdAt); err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if err := json.Unmarshal([]byte(messages), &run.Messages); err != nil {
		return nil, fmt.Errorf("decode run messages: %w", err)
	}

	if usage.Valid {
		var u core.Usage
		if err := json.Unmarshal([]byte(usage.String), &u); err != nil {
			return nil, fmt.Errorf("decode run usage: %w", err)
		}

		run.Usage = &u
	}

	run.Status = core.RunStatus(status)
	run.CreatedAt = decodeTime(createdAt)

	return &run, nil
}

func (s *Store) loadRuns(ctx context.Context, q interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}, sessionID string,
) ([]core.Run, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, agent_id, user_id, messages, content, status, model_name, usage, created_at
		FROM runs WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := []core.Run{}

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}

		run.SessionID = sessionID
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

func (s *Store) loadSession(ctx context.Context, sessionID string) (*core.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, user_id, name, data, summary, created_at, updated_at
		FROM sessions WHERE id = ?`, sessionID)

	var (
		sess      core.Session
		data      string
		createdAt string
		updatedAt string
	)

	err := row.Scan(&sess.ID, &sess.AgentID, &sess.UserID, &sess.Name, &data, &sess.Summary, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}

	if err != nil {
		return nil, fmt.Errorf("query session %s: %w", sessionID, err)
	}

	if err := json.Unmarshal([]byte(data), &sess.Data); err != nil {
		return nil, fmt.Errorf("decode session data: %w", err)
	}

	sess.CreatedAt = decodeTime(createdAt)
	sess.UpdatedAt = decodeTime(updatedAt)

	runs, err := s.loadRuns(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}

	sess.Runs = runs

	return &sess, nil
}

// GetSession implements session.Store.
func (s *Store) GetSession(ctx context.Context, sessionID string, filter session.Filter) (*core.Session, error) {
	sess, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !filter.Matches(sess) {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}

	return sess, nil
}

// ListSessions implements session.Store.
func (s *Store) ListSessions(ctx context.Context, filter session.Filter) ([]*core.Session, error) {
	query := `SELECT id FROM sessions`

	var (
		conds []string
		args  []any
	)

	if filter.AgentID != "" {
		conds = append(conds, "agent_id = ?")
		args = append(args, filter.AgentID)
	}

	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}

	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}

	column := "updated_at"

	switch filter.Sort.Field {
	case session.SortCreatedAt:
		column = "created_at"
	case session.SortName:
		column = "name"
	}

	direction := "ASC"
	if filter.Sort.Descending || filter.Sort.Field == "" {
		direction = "DESC"
	}

	query += fmt.Sprintf(" ORDER BY %s %s", column, direction)

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += " LIMIT -1"
	}

	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	sessions := make([]*core.Session, 0, len(ids))

	for _, id := range ids {
		sess, err := s.loadSession(ctx, id)
		if err != nil {
			return nil, err
		}

		sessions = append(sessions, sess)
	}

	return sessions, nil
}

// UpsertSession implements session.Store.
func (s *Store) UpsertSession(ctx context.Context, sess *core.Session) (*core.Session, error) {
	if sess == nil || sess.ID == "" {
		return nil, fmt.Errorf("%w: session must have an id", core.ErrInvalidConfig)
	}

	stored := sess.Clone()
	stored.UpdatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.upsertSessionTx(ctx, tx, stored); err != nil {
		return nil, err
	}

	// Replace the run list wholesale so the upsert is a full snapshot.
	if _, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE session_id = ?", stored.ID); err != nil {
		return nil, fmt.Errorf("replace runs: %w", err)
	}

	for i := range stored.Runs {
		if err := s.insertRunTx(ctx, tx, stored.ID, i, &stored.Runs[i]); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return stored, nil
}

// DeleteSession implements session.Store.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", sessionID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", sessionID, err)
	}

	return affected > 0, nil
}

// RenameSession implements session.Store.
func (s *Store) RenameSession(ctx context.Context, sessionID, name string) (*core.Session, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET name = ?, updated_at = ? WHERE id = ?",
		name, encodeTime(time.Now()), sessionID)
	if err != nil {
		return nil, fmt.Errorf("rename session %s: %w", sessionID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rename session %s: %w", sessionID, err)
	}

	if affected == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}

	return s.loadSession(ctx, sessionID)
}

// GetRun implements session.Store.
func (s *Store) GetRun(ctx context.Context, runID, sessionID string) (*core.Run, error) {
	sess, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	for i := range sess.Runs {
		if sess.Runs[i].ID == runID {
			return sess.Runs[i].Clone(), nil
		}
	}

	return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
}

// AppendRun implements session.Store. Appending never creates a session.
func (s *Store) AppendRun(ctx context.Context, sessionID string, run *core.Run) error {
	if run == nil {
		return fmt.Errorf("%w: run must not be nil", core.ErrInvalidConfig)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var position int

	row := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM runs WHERE session_id = ?", sessionID)
	if err := row.Scan(&position); err != nil {
		return fmt.Errorf("count runs: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE sessions SET updated_at = ? WHERE id = ?",
		encodeTime(time.Now()), sessionID)
	if err != nil {
		return fmt.Errorf("touch session %s: %w", sessionID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch session %s: %w", sessionID, err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}

	if err := s.insertRunTx(ctx, tx, sessionID, position, run); err != nil {
		return err
	}

	return tx.Commit()
}

// RemoveRun implements session.Store.
func (s *Store) RemoveRun(ctx context.Context, runID, sessionID string) error {
	var exists int

	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions WHERE id = ?", sessionID)
	if err := row.Scan(&exists); err != nil {
		return fmt.Errorf("query session %s: %w", sessionID, err)
	}

	if exists == 0 {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM runs WHERE id = ? AND session_id = ?", runID, sessionID)
	if err != nil {
		return fmt.Errorf("remove run %s: %w", runID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove run %s: %w", runID, err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE sessions SET updated_at = ? WHERE id = ?",
		encodeTime(time.Now()), sessionID)

	return err
}

// Stats implements session.Store.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MIN(created_at), ''), COALESCE(MAX(created_at), '')
		FROM sessions`)

	var oldest, newest string

	if err := row.Scan(&stats.TotalSessions, &oldest, &newest); err != nil {
		return nil, fmt.Errorf("query session stats: %w", err)
	}

	if oldest != "" {
		stats.OldestSession = decodeTime(oldest)
	}

	if newest != "" {
		stats.NewestSession = decodeTime(newest)
	}

	row = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs")
	if err := row.Scan(&stats.TotalRuns); err != nil {
		return nil, fmt.Errorf("query run stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT messages FROM runs")
	if err != nil {
		return nil, fmt.Errorf("query message stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var messages string
		if err := rows.Scan(&messages); err != nil {
			return nil, fmt.Errorf("scan messages: %w", err)
		}

		var list []core.Message
		if err := json.Unmarshal([]byte(messages), &list); err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}

		stats.TotalMessages += len(list)
	}

	return stats, rows.Err()
}

// Stats is re-exported so callers of this package do not need to import
// the parent package for the return type alone.
type Stats = session.Stats
