package domestictransfer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coreledger/internal/account"
	"coreledger/internal/money"
)

type fakeWorkerAccounts struct {
	mu  sync.Mutex
	asks []account.Command
}

func (f *fakeWorkerAccounts) Ask(ctx context.Context, accountID uuid.UUID, cmd account.Command) (account.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asks = append(f.asks, cmd)
	return account.Event{}, nil
}

func (f *fakeWorkerAccounts) kinds() []account.CommandKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []account.CommandKind
	for _, c := range f.asks {
		out = append(out, c.Kind)
	}
	return out
}

func waitForWorkerAsks(t *testing.T, fa *fakeWorkerAccounts, n int) {
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

func transferEvent() account.Event {
	return account.Event{
		Envelope: account.Envelope{EntityID: uuid.New(), OrgID: uuid.New(), CorrelationID: uuid.New(), Timestamp: time.Now()},
		Kind:     account.EventDomesticTransferPending,
		Data:     account.EventData{Amount: money.New(100)},
	}
}

func TestWorker_SettlesAfterPolling(t *testing.T) {
	var polls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(TransferResponse{OK: true, Status: GatewayStatusPending, TransactionID: "tx-1"})
			return
		}
		polls++
		if polls < 2 {
			json.NewEncoder(w).Encode(TransferResponse{OK: true, Status: GatewayStatusPending, TransactionID: "tx-1"})
			return
		}
		json.NewEncoder(w).Encode(TransferResponse{OK: true, Status: GatewayStatusSettled, TransactionID: "tx-1"})
	}))
	defer srv.Close()

	fa := &fakeWorkerAccounts{}
	gateway := NewGateway(srv.URL)
	breaker := NewBreaker(DefaultBreakerConfig, nil, nil)
	w := New(fa, gateway, breaker, Config{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, PollInterval: 5 * time.Millisecond, PollTimeout: time.Second}, nil)

	w.HandleTransfer(context.Background(), transferEvent(), account.Recipient{AccountNumber: "1", RoutingNumber: "2"})

	waitForWorkerAsks(t, fa, 1)
	assert.Equal(t, []account.CommandKind{account.CmdApproveDomesticTransfer}, fa.kinds())
}

func TestWorker_RejectedByGatewayOnSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(TransferResponse{OK: false, Reason: "invalid_account_info"})
	}))
	defer srv.Close()

	fa := &fakeWorkerAccounts{}
	gateway := NewGateway(srv.URL)
	breaker := NewBreaker(DefaultBreakerConfig, nil, nil)
	w := New(fa, gateway, breaker, Config{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, PollInterval: 5 * time.Millisecond, PollTimeout: time.Second}, nil)

	w.HandleTransfer(context.Background(), transferEvent(), account.Recipient{})

	waitForWorkerAsks(t, fa, 1)
	require.Len(t, fa.asks, 1)
	assert.Equal(t, account.CmdRejectDomesticTransfer, fa.asks[0].Kind)
	assert.Equal(t, account.RejectInvalidAccountInfo, fa.asks[0].Data.RejectReason)
}

func TestWorker_BreakerOpenRejectsFastWithoutCallingGateway(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(TransferResponse{OK: true, Status: GatewayStatusSettled})
	}))
	defer srv.Close()

	fa := &fakeWorkerAccounts{}
	gateway := NewGateway(srv.URL)
	breaker := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour}, nil, nil)
	// Trip the breaker before the worker ever calls Allow.
	_ = breaker.Allow()
	breaker.Failure()

	w := New(fa, gateway, breaker, DefaultConfig, nil)
	w.HandleTransfer(context.Background(), transferEvent(), account.Recipient{})

	waitForWorkerAsks(t, fa, 1)
	assert.False(t, called)
	assert.Equal(t, account.CmdRejectDomesticTransfer, fa.asks[0].Kind)
}
