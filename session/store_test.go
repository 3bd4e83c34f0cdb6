package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcenter/core"
)

// storeUnderTest lets the shared conformance suite run against every
// Store implementation in this package.
type storeUnderTest struct {
	name string
	make func(t *testing.T) Store
}

func stores(t *testing.T) []storeUnderTest {
	t.Helper()

	return []storeUnderTest{
		{name: "in_memory", make: func(*testing.T) Store { return NewInMemoryStore() }},
		{name: "file", make: func(t *testing.T) Store {
			store, err := NewFileStore(t.TempDir())
			require.NoError(t, err)

			return store
		}},
	}
}

func newTestRun(sessionID string) *core.Run {
	return &core.Run{
		ID:        core.NewID(),
		AgentID:   "assistant",
		SessionID: sessionID,
		UserID:    "user-1",
		Messages: []core.Message{
			core.NewUserMessage("ping"),
			core.NewAssistantMessage("pong"),
		},
		Content:   []byte("pong"),
		Status:    core.RunStatusCompleted,
		CreatedAt: time.Now().UTC(),
	}
}

func TestStoreSessionLifecycle(t *testing.T) {
	for _, tc := range stores(t) {
		t.Run(tc.name, func(t *testing.T) {
			store := tc.make(t)
			ctx := context.Background()

			sess := core.NewSession("assistant", "user-1")

			stored, err := store.UpsertSession(ctx, sess)
			require.NoError(t, err)
			assert.Equal(t, sess.ID, stored.ID)

			got, err := store.GetSession(ctx, sess.ID, Filter{})
			require.NoError(t, err)
			assert.Equal(t, "assistant", got.AgentID)
			assert.Empty(t, got.Runs)

			_, err = store.GetSession(ctx, "missing", Filter{})
			assert.ErrorIs(t, err, core.ErrSessionNotFound)

			// Filter mismatch behaves like absence.
			_, err = store.GetSession(ctx, sess.ID, Filter{AgentID: "other"})
			assert.ErrorIs(t, err, core.ErrSessionNotFound)

			renamed, err := store.RenameSession(ctx, sess.ID, "support chat")
			require.NoError(t, err)
			assert.Equal(t, "support chat", renamed.Name)

			deleted, err := store.DeleteSession(ctx, sess.ID)
			require.NoError(t, err)
			assert.True(t, deleted)

			deleted, err = store.DeleteSession(ctx, sess.ID)
			require.NoError(t, err)
			assert.False(t, deleted)
		})
	}
}

func TestStoreAppendRun(t *testing.T) {
	for _, tc := range stores(t) {
		t.Run(tc.name, func(t *testing.T) {
			store := tc.make(t)
			ctx := context.Background()

			sess := core.NewSession("assistant", "user-1")

			stored, err := store.UpsertSession(ctx, sess)
			require.NoError(t, err)

			before := stored.UpdatedAt
			run := newTestRun(sess.ID)

			require.NoError(t, store.AppendRun(ctx, sess.ID, run))

			got, err := store.GetSession(ctx, sess.ID, Filter{})
			require.NoError(t, err)
			require.Len(t, got.Runs, 1)
			assert.Equal(t, run.ID, got.Runs[0].ID)
			assert.False(t, got.UpdatedAt.Before(before))

			fetched, err := store.GetRun(ctx, run.ID, sess.ID)
			require.NoError(t, err)
			assert.Equal(t, "pong", fetched.Text())
			require.Len(t, fetched.Messages, 2)

			_, err = store.GetRun(ctx, "missing", sess.ID)
			assert.ErrorIs(t, err, core.ErrRunNotFound)

			require.NoError(t, store.RemoveRun(ctx, run.ID, sess.ID))
			assert.ErrorIs(t, store.RemoveRun(ctx, run.ID, sess.ID), core.ErrRunNotFound)
		})
	}
}

func TestStoreAppendRunNeverCreatesSession(t *testing.T) {
	for _, tc := range stores(t) {
		t.Run(tc.name, func(t *testing.T) {
			store := tc.make(t)
			ctx := context.Background()

			err := store.AppendRun(ctx, "ghost", newTestRun("ghost"))
			assert.ErrorIs(t, err, core.ErrSessionNotFound)

			sessions, err := store.ListSessions(ctx, Filter{})
			require.NoError(t, err)
			assert.Empty(t, sessions)
		})
	}
}

func TestStoreListSessions(t *testing.T) {
	for _, tc := range stores(t) {
		t.Run(tc.name, func(t *testing.T) {
			store := tc.make(t)
			ctx := context.Background()

			names := []string{"alpha", "beta", "gamma"}

			for i, name := range names {
				sess := core.NewSession("assistant", "user-1")
				sess.Name = name
				sess.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Millisecond)

				_, err := store.UpsertSession(ctx, sess)
				require.NoError(t, err)
			}

			other := core.NewSession("researcher", "user-2")
			_, err := store.UpsertSession(ctx, other)
			require.NoError(t, err)

			all, err := store.ListSessions(ctx, Filter{})
			require.NoError(t, err)
			assert.Len(t, all, 4)

			filtered, err := store.ListSessions(ctx, Filter{AgentID: "assistant"})
			require.NoError(t, err)
			assert.Len(t, filtered, 3)

			byName, err := store.ListSessions(ctx, Filter{
				AgentID: "assistant",
				Sort:    Sort{Field: SortName},
			})
			require.NoError(t, err)
			require.Len(t, byName, 3)
			assert.Equal(t, "alpha", byName[0].Name)
			assert.Equal(t, "gamma", byName[2].Name)

			paged, err := store.ListSessions(ctx, Filter{
				AgentID: "assistant",
				Sort:    Sort{Field: SortName},
				Limit:   1,
				Offset:  1,
			})
			require.NoError(t, err)
			require.Len(t, paged, 1)
			assert.Equal(t, "beta", paged[0].Name)
		})
	}
}

func TestStoreStats(t *testing.T) {
	for _, tc := range stores(t) {
		t.Run(tc.name, func(t *testing.T) {
			store := tc.make(t)
			ctx := context.Background()

			stats, err := store.Stats(ctx)
			require.NoError(t, err)
			assert.Zero(t, stats.TotalSessions)

			sess := core.NewSession("assistant", "user-1")
			_, err = store.UpsertSession(ctx, sess)
			require.NoError(t, err)

			require.NoError(t, store.AppendRun(ctx, sess.ID, newTestRun(sess.ID)))
			require.NoError(t, store.AppendRun(ctx, sess.ID, newTestRun(sess.ID)))

			stats, err = store.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, stats.TotalSessions)
			assert.Equal(t, 2, stats.TotalRuns)
			assert.Equal(t, 4, stats.TotalMessages)
			assert.False(t, stats.OldestSession.IsZero())
		})
	}
}

func TestInMemoryStoreClonesSessions(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	sess := core.NewSession("assistant", "user-1")
	sess.Data["topic"] = "weather"

	_, err := store.UpsertSession(ctx, sess)
	require.NoError(t, err)

	got, err := store.GetSession(ctx, sess.ID, Filter{})
	require.NoError(t, err)

	got.Data["topic"] = "mutated"
	got.Runs = append(got.Runs, *newTestRun(sess.ID))

	again, err := store.GetSession(ctx, sess.ID, Filter{})
	require.NoError(t, err)
	assert.Equal(t, "weather", again.Data["topic"])
	assert.Empty(t, again.Runs)
}
