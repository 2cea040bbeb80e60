package billingfanout

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestProjectionStore(t *testing.T) *ProjectionStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_fk=1")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewProjectionStore(db, "sqlite3")
	require.NoError(t, err)
	return store
}

func drainIDs(t *testing.T, ids <-chan uuid.UUID, errc <-chan error) []uuid.UUID {
	t.Helper()
	var out []uuid.UUID
	for id := range ids {
		out = append(out, id)
	}
	require.NoError(t, <-errc)
	return out
}

func TestProjectionStore_UpsertThenStreamReturnsEligibleAccounts(t *testing.T) {
	ctx := context.Background()
	store := openTestProjectionStore(t)

	activeDue := uuid.New()
	activeRecent := uuid.New()
	neverBilled := uuid.New()
	closedAccount := uuid.New()
	orgID := uuid.New()

	stale := time.Now().Add(-30 * 24 * time.Hour)
	recent := time.Now().Add(-1 * time.Hour)

	require.NoError(t, store.Upsert(ctx, activeDue, orgID, "active", &stale))
	require.NoError(t, store.Upsert(ctx, activeRecent, orgID, "active", &recent))
	require.NoError(t, store.Upsert(ctx, neverBilled, orgID, "active", nil))
	require.NoError(t, store.Upsert(ctx, closedAccount, orgID, "closed", &stale))

	ids, errc := store.Stream(ctx, 27*24*time.Hour)
	got := drainIDs(t, ids, errc)

	assert.ElementsMatch(t, []uuid.UUID{activeDue, neverBilled}, got)
}

func TestProjectionStore_UpsertIsIdempotentAndKeepsLatestBillingCycle(t *testing.T) {
	ctx := context.Background()
	store := openTestProjectionStore(t)

	accountID := uuid.New()
	orgID := uuid.New()

	require.NoError(t, store.Upsert(ctx, accountID, orgID, "active", nil))

	ids, errc := store.Stream(ctx, 27*24*time.Hour)
	assert.Equal(t, []uuid.UUID{accountID}, drainIDs(t, ids, errc))

	// A status-only upsert (nil timestamp) must not clobber a
	// previously-recorded billing cycle time back to NULL.
	billed := time.Now()
	require.NoError(t, store.Upsert(ctx, accountID, orgID, "active", &billed))
	require.NoError(t, store.Upsert(ctx, accountID, orgID, "active", nil))

	ids, errc = store.Stream(ctx, 27*24*time.Hour)
	assert.Empty(t, drainIDs(t, ids, errc), "recently billed account should no longer be due")

	require.NoError(t, store.Upsert(ctx, accountID, orgID, "closed", nil))
	ids, errc = store.Stream(ctx, 0)
	assert.Empty(t, drainIDs(t, ids, errc), "closed accounts are never eligible")
}
