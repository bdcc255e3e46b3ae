package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestAuditStore(t *testing.T) *AuditStore {
	store, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestAuditStore_RecordAndList(t *testing.T) {
	store := setupTestAuditStore(t)
	ctx := context.Background()

	at := time.Date(2024, 5, 10, 8, 30, 0, 0, time.UTC)
	require.NoError(t, store.Record(ctx, Entry{
		ActorEmail: "ana@unal.edu.co",
		ReportID:   "r1",
		Action:     ActionEdit,
		Fields:     map[string]string{"category": "Discrimination"},
		CreatedAt:  at,
	}))
	require.NoError(t, store.Record(ctx, Entry{
		ActorEmail: "ana@unal.edu.co",
		ReportID:   "r2",
		Action:     ActionDelete,
	}))

	entries, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// newest first
	assert.Equal(t, "r2", entries[0].ReportID)
	assert.Equal(t, ActionDelete, entries[0].Action)
	assert.Nil(t, entries[0].Fields)

	assert.Equal(t, "r1", entries[1].ReportID)
	assert.Equal(t, "Discrimination", entries[1].Fields["category"])
	assert.True(t, at.Equal(entries[1].CreatedAt))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAuditStore_ListLimit(t *testing.T) {
	store := setupTestAuditStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, Entry{ActorEmail: "a@unal.edu.co", ReportID: "r", Action: ActionEdit}))
	}

	entries, err := store.List(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestAuditStore_ListForReport(t *testing.T) {
	store := setupTestAuditStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, Entry{ActorEmail: "a@unal.edu.co", ReportID: "r1", Action: ActionEdit}))
	require.NoError(t, store.Record(ctx, Entry{ActorEmail: "a@unal.edu.co", ReportID: "r2", Action: ActionEdit}))
	require.NoError(t, store.Record(ctx, Entry{ActorEmail: "b@unal.edu.co", ReportID: "r1", Action: ActionDelete}))

	entries, err := store.ListForReport(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ActionEdit, entries[0].Action)
	assert.Equal(t, ActionDelete, entries[1].Action)

	entries, err = store.ListForReport(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
