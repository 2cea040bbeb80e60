package billingfanout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"coreledger/internal/account"
	"coreledger/internal/broadcast"
)

// fakeReader hands a fixed list of account ids to Stream, regardless of the
// requested lookback, so fan-out tests don't need a real ProjectionStore.
type fakeReader struct {
	ids []uuid.UUID
}

func (r *fakeReader) Stream(ctx context.Context, lookback time.Duration) (<-chan uuid.UUID, <-chan error) {
	out := make(chan uuid.UUID, len(r.ids))
	errc := make(chan error, 1)
	for _, id := range r.ids {
		out <- id
	}
	close(out)
	close(errc)
	return out, errc
}

// stubAccounts records every StartBillingCycle command it's asked, rejecting
// the ones whose id is in reject.
type stubAccounts struct {
	mu     sync.Mutex
	asked  []uuid.UUID
	reject map[uuid.UUID]bool
}

func (s *stubAccounts) Ask(_ context.Context, accountID uuid.UUID, cmd account.Command) (account.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, accountID)
	if s.reject[accountID] {
		return account.Event{}, account.ErrAccountNotActive
	}
	return account.Event{Kind: account.EventBillingCycleStarted}, nil
}

func (s *stubAccounts) askedIDs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, len(s.asked))
	copy(out, s.asked)
	return out
}

func TestFanout_EnqueuesEveryEligibleAccountAndPublishesFinished(t *testing.T) {
	ctx := context.Background()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	reader := &fakeReader{ids: ids}
	accounts := &stubAccounts{}
	bus := broadcast.NewMemoryPubSub()
	t.Cleanup(func() { bus.Close() })

	sub, cancel := bus.Subscribe(ctx, FinishedTopic)
	defer cancel()

	f := New(reader, accounts, bus, nil, Config{ThrottleRate: rate.Inf, ThrottleBurst: len(ids)}, nil)
	require.NoError(t, f.Trigger(ctx, "node-1"))

	assert.ElementsMatch(t, ids, accounts.askedIDs())

	select {
	case msg := <-sub:
		assert.Contains(t, string(msg), `"accounts_enqueued":3`)
	case <-time.After(time.Second):
		t.Fatal("finished signal was never published")
	}
}

func TestFanout_RejectedAccountIsLoggedAndSkippedWithoutAbortingThePass(t *testing.T) {
	ctx := context.Background()
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	reader := &fakeReader{ids: ids}
	accounts := &stubAccounts{reject: map[uuid.UUID]bool{ids[0]: true}}

	f := New(reader, accounts, nil, nil, Config{ThrottleRate: rate.Inf, ThrottleBurst: len(ids)}, nil)
	require.NoError(t, f.Trigger(ctx, "node-1"))

	// Both accounts are attempted even though the first is rejected; the
	// rejection only surfaces as a warning log, never an aborted pass.
	assert.ElementsMatch(t, ids, accounts.askedIDs())
}

func TestFanout_NilElectorRunsUnconditionally(t *testing.T) {
	ctx := context.Background()
	reader := &fakeReader{ids: []uuid.UUID{uuid.New()}}
	accounts := &stubAccounts{}

	f := New(reader, accounts, nil, nil, Config{}, nil)
	require.NoError(t, f.Trigger(ctx, "solo-node"))
	assert.Len(t, accounts.askedIDs(), 1)
}
