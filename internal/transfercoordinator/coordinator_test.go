package transfercoordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coreledger/internal/account"
)

type fakeAccounts struct {
	mu        sync.Mutex
	asks      []account.Command
	queryErrs map[uuid.UUID][]error // queued errors, consumed in order
	status    map[uuid.UUID]account.Status
	known     map[uuid.UUID]bool
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		queryErrs: make(map[uuid.UUID][]error),
		status:    make(map[uuid.UUID]account.Status),
		known:     make(map[uuid.UUID]bool),
	}
}

func (f *fakeAccounts) Ask(ctx context.Context, accountID uuid.UUID, cmd account.Command) (account.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asks = append(f.asks, cmd)
	return account.Event{Envelope: cmd.Envelope, Kind: account.EventCreated}, nil
}

func (f *fakeAccounts) Query(ctx context.Context, accountID uuid.UUID, fn func(account.Account)) error {
	f.mu.Lock()
	if errs := f.queryErrs[accountID]; len(errs) > 0 {
		err := errs[0]
		f.queryErrs[accountID] = errs[1:]
		f.mu.Unlock()
		if err != nil {
			return err
		}
	} else {
		f.mu.Unlock()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.known[accountID] {
		fn(account.Account{})
		return nil
	}
	fn(account.Account{AccountID: accountID, Status: f.status[accountID]})
	return nil
}

func (f *fakeAccounts) kindsSeen() []account.CommandKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kinds []account.CommandKind
	for _, c := range f.asks {
		kinds = append(kinds, c.Kind)
	}
	return kinds
}

func waitForAsks(t *testing.T, fa *fakeAccounts, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fa.mu.Lock()
		got := len(fa.asks)
		fa.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d asks", n)
}

func pendingEvent(recipientID string) account.Event {
	return account.Event{
		Envelope: account.Envelope{EntityID: uuid.New(), OrgID: uuid.New(), CorrelationID: uuid.New(), InitiatedByID: uuid.New(), Timestamp: time.Now()},
		Kind:     account.EventInternalTransferWithinOrgPending,
		Data:     account.EventData{RecipientID: recipientID},
	}
}

func TestCoordinator_HappyPathApprovesAndDeposits(t *testing.T) {
	fa := newFakeAccounts()
	recipientID := uuid.New()
	fa.known[recipientID] = true
	fa.status[recipientID] = account.StatusActive

	c := New(fa, Config{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}, nil)

	evt := pendingEvent("r1")
	recipient := account.Recipient{Kind: account.RecipientInternalWithinOrg, InternalAccountID: recipientID}
	c.HandleTransfer(context.Background(), evt, recipient)

	waitForAsks(t, fa, 2)
	kinds := fa.kindsSeen()
	assert.Contains(t, kinds, account.CmdApproveInternalTransfer)
	assert.Contains(t, kinds, account.CmdDepositTransferWithinOrg)
}

func TestCoordinator_MissingRecipientRejects(t *testing.T) {
	fa := newFakeAccounts()
	c := New(fa, Config{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}, nil)

	evt := pendingEvent("r1")
	c.HandleTransfer(context.Background(), evt, account.Recipient{})

	waitForAsks(t, fa, 1)
	kinds := fa.kindsSeen()
	require.Len(t, kinds, 1)
	assert.Equal(t, account.CmdRejectInternalTransfer, kinds[0])
}

func TestCoordinator_ClosedRecipientRejects(t *testing.T) {
	fa := newFakeAccounts()
	recipientID := uuid.New()
	fa.known[recipientID] = true
	fa.status[recipientID] = account.StatusClosed

	c := New(fa, Config{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}, nil)

	evt := pendingEvent("r1")
	recipient := account.Recipient{Kind: account.RecipientInternalWithinOrg, InternalAccountID: recipientID}
	c.HandleTransfer(context.Background(), evt, recipient)

	waitForAsks(t, fa, 1)
	kinds := fa.kindsSeen()
	require.Len(t, kinds, 1)
	assert.Equal(t, account.CmdRejectInternalTransfer, kinds[0])
}

func TestCoordinator_RetriesThenSucceeds(t *testing.T) {
	fa := newFakeAccounts()
	recipientID := uuid.New()
	fa.known[recipientID] = true
	fa.status[recipientID] = account.StatusActive
	fa.queryErrs[recipientID] = []error{errors.New("transient"), errors.New("transient")}

	c := New(fa, Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, nil)

	evt := pendingEvent("r1")
	recipient := account.Recipient{Kind: account.RecipientInternalWithinOrg, InternalAccountID: recipientID}
	c.HandleTransfer(context.Background(), evt, recipient)

	waitForAsks(t, fa, 2)
	kinds := fa.kindsSeen()
	assert.Contains(t, kinds, account.CmdApproveInternalTransfer)
}
