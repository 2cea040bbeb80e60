// Package domestictransfer implements the domestic transfer worker and its
// circuit breaker (§4.6): the worker drives a pending domestic transfer
// through the external gateway, polling for a terminal status and feeding
// the result back to the sender account as
// Approve/Reject/UpdateDomesticTransferProgress commands. It is not
// leader-elected: every server process runs its own Worker and Breaker.
package domestictransfer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"coreledger/internal/account"
)

// AccountRuntime is the slice of entityruntime.Runtime[account...] the
// worker needs to deliver its terminal/progress commands.
type AccountRuntime interface {
	Ask(ctx context.Context, accountID uuid.UUID, cmd account.Command) (account.Event, error)
}

// Config tunes the worker's gateway retry policy and progress-poll cadence.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// DefaultConfig matches §4.6/§4.5's shared retry shape, with a 2s poll
// cadence and a 2 minute overall progress-check budget.
var DefaultConfig = Config{
	MaxRetries:   3,
	InitialDelay: time.Second,
	MaxDelay:     8 * time.Second,
	PollInterval: 2 * time.Second,
	PollTimeout:  2 * time.Minute,
}

// Worker implements accountactor.DomesticTransferWorker: HandleTransfer is
// called from the account actor's PostPersist once per DomesticTransferPending
// event and runs detached so it never blocks the sender's mailbox.
type Worker struct {
	accounts AccountRuntime
	gateway  *Gateway
	breaker  *Breaker
	cfg      Config
	log      *zap.Logger
}

// New builds a Worker. accounts may be nil at construction (see
// transfercoordinator.New's SetAccounts for why); call SetAccounts once the
// account Runtime exists.
func New(accounts AccountRuntime, gateway *Gateway, breaker *Breaker, cfg Config, log *zap.Logger) *Worker {
	if cfg.MaxRetries == 0 {
		cfg = DefaultConfig
	}
	return &Worker{accounts: accounts, gateway: gateway, breaker: breaker, cfg: cfg, log: log}
}

// SetAccounts binds the account runtime, resolving the bootstrap cycle
// between the account actor and this worker.
func (w *Worker) SetAccounts(accounts AccountRuntime) {
	w.accounts = accounts
}

// HandleTransfer implements §4.6's TransferRequest/ProgressCheck workflow for
// one pending domestic transfer.
func (w *Worker) HandleTransfer(ctx context.Context, evt account.Event, recipient account.Recipient) {
	go w.run(evt, recipient)
}

func (w *Worker) run(evt account.Event, recipient account.Recipient) {
	ctx := context.Background()

	if err := w.breaker.Allow(); err != nil {
		w.reject(ctx, evt, account.RejectUnknown)
		return
	}

	req := TransferRequest{
		AccountNumber: recipient.AccountNumber,
		RoutingNumber: recipient.RoutingNumber,
		Amount:        evt.Data.Amount.String(),
		Ref:           evt.CorrelationID.String(),
	}

	resp, err := w.submitWithRetry(ctx, req)
	if err != nil {
		w.breaker.Failure()
		if w.log != nil {
			w.log.Warn("domestic transfer submit exhausted retries", zap.String("correlation_id", evt.CorrelationID.String()), zap.Error(err))
		}
		w.reject(ctx, evt, account.RejectUnknown)
		return
	}
	w.breaker.Success()

	if !resp.OK {
		w.reject(ctx, evt, rejectReasonFor(resp.Reason))
		return
	}

	final := w.pollUntilTerminal(ctx, resp.TransactionID)
	switch final.Status {
	case GatewayStatusSettled:
		w.approve(ctx, evt)
	case GatewayStatusRejected:
		w.reject(ctx, evt, rejectReasonFor(final.Reason))
	default:
		// Timed out without a terminal status; record the last known
		// progress and leave the transfer pending for a later retry pass.
		w.updateProgress(ctx, evt, string(final.Status))
	}
}

func (w *Worker) submitWithRetry(ctx context.Context, req TransferRequest) (TransferResponse, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.InitialDelay
	b.MaxInterval = w.cfg.MaxDelay
	retry := backoff.WithMaxRetries(b, uint64(w.cfg.MaxRetries))

	var resp TransferResponse
	err := backoff.Retry(func() error {
		r, err := w.gateway.Submit(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, retry)
	return resp, err
}

// pollUntilTerminal implements the periodic ProgressCheck action, polling
// until a terminal status or PollTimeout elapses.
func (w *Worker) pollUntilTerminal(ctx context.Context, transactionID string) TransferResponse {
	deadline := time.Now().Add(w.cfg.PollTimeout)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		resp, err := w.gateway.ProgressCheck(ctx, transactionID)
		if err == nil && (resp.Status == GatewayStatusSettled || resp.Status == GatewayStatusRejected) {
			return resp
		}
		if time.Now().After(deadline) {
			return TransferResponse{Status: GatewayStatusPending}
		}
		select {
		case <-ctx.Done():
			return TransferResponse{Status: GatewayStatusPending}
		case <-ticker.C:
		}
	}
}

func rejectReasonFor(reason string) account.RejectReason {
	if reason == "invalid_account_info" {
		return account.RejectInvalidAccountInfo
	}
	return account.RejectUnknown
}

func (w *Worker) approve(ctx context.Context, evt account.Event) {
	_, _ = w.accounts.Ask(ctx, evt.EntityID, account.Command{
		Envelope: account.Envelope{
			EntityID:      evt.EntityID,
			OrgID:         evt.OrgID,
			CorrelationID: evt.CorrelationID,
			InitiatedByID: evt.EntityID,
			Timestamp:     time.Now(),
		},
		Kind: account.CmdApproveDomesticTransfer,
	})
}

func (w *Worker) reject(ctx context.Context, evt account.Event, reason account.RejectReason) {
	_, _ = w.accounts.Ask(ctx, evt.EntityID, account.Command{
		Envelope: account.Envelope{
			EntityID:      evt.EntityID,
			OrgID:         evt.OrgID,
			CorrelationID: evt.CorrelationID,
			InitiatedByID: evt.EntityID,
			Timestamp:     time.Now(),
		},
		Kind: account.CmdRejectDomesticTransfer,
		Data: account.CommandData{RejectReason: reason},
	})
}

func (w *Worker) updateProgress(ctx context.Context, evt account.Event, status string) {
	_, _ = w.accounts.Ask(ctx, evt.EntityID, account.Command{
		Envelope: account.Envelope{
			EntityID:      evt.EntityID,
			OrgID:         evt.OrgID,
			CorrelationID: evt.CorrelationID,
			InitiatedByID: evt.EntityID,
			Timestamp:     time.Now(),
		},
		Kind: account.CmdUpdateDomesticTransferProgress,
		Data: account.CommandData{ProgressStatus: status},
	})
}
