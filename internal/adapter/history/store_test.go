package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docstream/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreRecordAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	res := domain.Result{
		State:      domain.StateCompleted,
		Message:    "The right to privacy  is protected.",
		Highlights: []string{"Article 21"},
		Envelope: domain.Envelope{
			Present:  true,
			Metadata: map[string]any{"total_documents": float64(3)},
		},
		FinishedAt: time.Now(),
	}
	require.NoError(t, store.Record(ctx, "chat:42", "sess-1", res))

	entries, err := store.List(ctx, "chat:42")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sess-1", entries[0].SessionID)
	assert.Equal(t, string(domain.StateCompleted), entries[0].State)
	assert.Equal(t, res.Message, entries[0].Message)
	assert.Equal(t, []string{"Article 21"}, entries[0].Highlights)
	assert.Equal(t, float64(3), entries[0].Metadata["total_documents"])
}

func TestStoreRecordsCancelledSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	res := domain.Result{
		State:      domain.StateCancelled,
		Message:    "",
		FinishedAt: time.Now(),
	}
	require.NoError(t, store.Record(ctx, "chat:42", "sess-2", res))

	entries, err := store.List(ctx, "chat:42")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(domain.StateCancelled), entries[0].State)
	assert.Empty(t, entries[0].Message)
}

func TestStoreListOrderedByFinish(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Insert out of order; List must come back oldest first.
	for i, offset := range []time.Duration{2 * time.Minute, 0, time.Minute} {
		res := domain.Result{
			State:      domain.StateCompleted,
			Message:    "m",
			FinishedAt: base.Add(offset),
		}
		require.NoError(t, store.Record(ctx, "chat:1", []string{"c", "a", "b"}[i], res))
	}

	entries, err := store.List(ctx, "chat:1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].SessionID)
	assert.Equal(t, "b", entries[1].SessionID)
	assert.Equal(t, "c", entries[2].SessionID)
}

func TestStoreContextIsolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "chat:1", "s1", domain.Result{State: domain.StateCompleted}))
	require.NoError(t, store.Record(ctx, "chat:2", "s2", domain.Result{State: domain.StateCompleted}))

	entries, err := store.List(ctx, "chat:1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "s1", entries[0].SessionID)
}

func TestStorePrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(ctx, "chat:1", "old", domain.Result{
		State: domain.StateCompleted, FinishedAt: cutoff.Add(-time.Hour),
	}))
	require.NoError(t, store.Record(ctx, "chat:1", "new", domain.Result{
		State: domain.StateCompleted, FinishedAt: cutoff.Add(time.Hour),
	}))

	removed, err := store.Prune(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	entries, err := store.List(ctx, "chat:1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].SessionID)
}

func TestStoreRecordIsIdempotentPerSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "chat:1", "s1", domain.Result{
		State: domain.StateFailed, Message: "partial",
	}))
	require.NoError(t, store.Record(ctx, "chat:1", "s1", domain.Result{
		State: domain.StateCompleted, Message: "full",
	}))

	entries, err := store.List(ctx, "chat:1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "full", entries[0].Message)
}
