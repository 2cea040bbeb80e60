package journal

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_fk=1")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLStore(db, "sqlite3", nil)
	require.NoError(t, err)
	return store
}

func TestSQLStore_AppendAndReadGapFree(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLStore(t)

	seq, err := store.AppendEvents(ctx, "acct-1", 0, []Record{
		{Tag: "account", Kind: "created", Payload: []byte(`{}`)},
		{Tag: "account", Kind: "deposited", Payload: []byte(`{"amount":"10"}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)

	records := drain(t, store.ReadEvents(ctx, "acct-1", 0, 0))
	require.Len(t, records, 2)
	assert.Equal(t, uint64(1), records[0].Seq)
	assert.Equal(t, "created", records[0].Kind)
	assert.Equal(t, uint64(2), records[1].Seq)
}

func TestSQLStore_AppendConflict(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLStore(t)

	_, err := store.AppendEvents(ctx, "acct-1", 0, []Record{{Tag: "account", Kind: "created"}})
	require.NoError(t, err)

	_, err = store.AppendEvents(ctx, "acct-1", 0, []Record{{Tag: "account", Kind: "deposited"}})
	require.Error(t, err)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, uint64(1), conflict.ActualSeq)
}

func TestSQLStore_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLStore(t)

	_, err := store.ReadLatestSnapshot(ctx, "acct-1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.WriteSnapshot(ctx, Snapshot{EntityID: "acct-1", Seq: 5, Tag: "account", Payload: []byte(`{"balance":"100"}`)}))
	snap, err := store.ReadLatestSnapshot(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), snap.Seq)

	// WriteSnapshot overwrites rather than duplicating.
	require.NoError(t, store.WriteSnapshot(ctx, Snapshot{EntityID: "acct-1", Seq: 9, Tag: "account", Payload: []byte(`{"balance":"200"}`)}))
	snap, err = store.ReadLatestSnapshot(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), snap.Seq)
}

func TestSQLStore_DeleteEventsUpTo(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLStore(t)

	_, err := store.AppendEvents(ctx, "acct-1", 0, []Record{
		{Tag: "account", Kind: "created"},
		{Tag: "account", Kind: "account_closed"},
		{Tag: "account", Kind: "account_ready_for_delete"},
	})
	require.NoError(t, err)

	require.NoError(t, store.DeleteEventsUpTo(ctx, "acct-1", 2))

	records := drain(t, store.ReadEvents(ctx, "acct-1", 0, 0))
	require.Len(t, records, 1)
	assert.Equal(t, uint64(3), records[0].Seq)
}

func TestSQLStore_CurrentEventsByTag(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLStore(t)

	_, err := store.AppendEvents(ctx, "acct-1", 0, []Record{{Tag: "account", Kind: "created"}})
	require.NoError(t, err)
	_, err = store.AppendEvents(ctx, "emp-1", 0, []Record{{Tag: "employee", Kind: "invited"}})
	require.NoError(t, err)

	records := drain(t, store.CurrentEventsByTag(ctx, "account"))
	require.Len(t, records, 1)
	assert.Equal(t, "acct-1", records[0].EntityID)
}
