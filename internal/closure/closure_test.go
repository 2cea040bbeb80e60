package closure

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"coreledger/internal/account"
)

type fakeClosureAccounts struct {
	mu          sync.Mutex
	attempts    int
	succeedAt   int // attempt number (1-indexed) that finally succeeds; 0 means never
	hardErr     error
	passivated  []uuid.UUID
}

func (f *fakeClosureAccounts) Ask(ctx context.Context, accountID uuid.UUID, cmd account.Command) (account.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.hardErr != nil {
		return account.Event{}, f.hardErr
	}
	if f.succeedAt != 0 && f.attempts >= f.succeedAt {
		return account.Event{}, nil
	}
	return account.Event{}, account.ErrTransferProgressNoChange
}

func (f *fakeClosureAccounts) Passivate(accountID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passivated = append(f.passivated, accountID)
}

func (f *fakeClosureAccounts) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *fakeClosureAccounts) wasPassivated(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.passivated {
		if p == id {
			return true
		}
	}
	return false
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestFinalizer_DrainsImmediately(t *testing.T) {
	fa := &fakeClosureAccounts{succeedAt: 1}
	f := New(fa, nil, Config{RetryInterval: time.Millisecond, MaxAttempts: 5}, nil)

	id, org := uuid.New(), uuid.New()
	f.Register(context.Background(), id, org)

	waitUntil(t, func() bool { return fa.wasPassivated(id) })
}

func TestFinalizer_RetriesUntilQuiescent(t *testing.T) {
	fa := &fakeClosureAccounts{succeedAt: 3}
	f := New(fa, nil, Config{RetryInterval: 5 * time.Millisecond, MaxAttempts: 10}, nil)

	id, org := uuid.New(), uuid.New()
	f.Register(context.Background(), id, org)

	waitUntil(t, func() bool { return fa.wasPassivated(id) })
	assert.GreaterOrEqual(t, fa.attemptCount(), 3)
}

func TestFinalizer_HardRejectionStopsRetrying(t *testing.T) {
	fa := &fakeClosureAccounts{hardErr: assertAnError{}}
	f := New(fa, nil, Config{RetryInterval: time.Millisecond, MaxAttempts: 10}, nil)

	id, org := uuid.New(), uuid.New()
	f.Register(context.Background(), id, org)

	waitUntil(t, func() bool { return fa.attemptCount() >= 1 })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, fa.attemptCount())
	assert.False(t, fa.wasPassivated(id))
}

func TestFinalizer_GivesUpAfterMaxAttempts(t *testing.T) {
	fa := &fakeClosureAccounts{succeedAt: 0}
	f := New(fa, nil, Config{RetryInterval: time.Millisecond, MaxAttempts: 3}, nil)

	id, org := uuid.New(), uuid.New()
	f.Register(context.Background(), id, org)

	waitUntil(t, func() bool { return fa.attemptCount() >= 3 })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, fa.attemptCount())
	assert.False(t, fa.wasPassivated(id))
}

type assertAnError struct{}

func (assertAnError) Error() string { return "hard rejection" }
