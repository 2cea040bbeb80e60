// Package transfercoordinator implements the internal transfer coordinator
// (§4.5): a per-sender child task that resolves an internal transfer's
// recipient side, approving or rejecting the sender and depositing the
// recipient, tying both with the pending event's correlation id.
package transfercoordinator

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"coreledger/internal/account"
)

// AccountRuntime is the slice of entityruntime.Runtime[account...] the
// coordinator needs: Ask to deliver approve/reject/deposit commands, Query
// to fetch the recipient's current status for the GetAccount-style check.
type AccountRuntime interface {
	Ask(ctx context.Context, accountID uuid.UUID, cmd account.Command) (account.Event, error)
	Query(ctx context.Context, accountID uuid.UUID, fn func(account.Account)) error
}

// Config tunes the coordinator's retry policy.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultConfig matches §4.5: "retries (max 3, exponential backoff 1-8s)".
var DefaultConfig = Config{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 8 * time.Second}

// Coordinator drives the recipient-resolution workflow for pending internal
// transfers. One Coordinator instance serves every sender; per-transfer work
// is a detached goroutine per pending event rather than a literal per-sender
// actor, since the workflow has no state beyond one correlation id's retry
// count.
type Coordinator struct {
	accounts AccountRuntime
	cfg      Config
	log      *zap.Logger
}

// New builds a Coordinator. accounts may be nil if the account Runtime does
// not exist yet at construction time (the account actor's own Deps need
// this Coordinator before its Runtime exists); call SetAccounts once it
// does.
func New(accounts AccountRuntime, cfg Config, log *zap.Logger) *Coordinator {
	if cfg.MaxRetries == 0 {
		cfg = DefaultConfig
	}
	return &Coordinator{accounts: accounts, cfg: cfg, log: log}
}

// SetAccounts binds the account runtime, resolving the bootstrap cycle
// between the account actor and this coordinator.
func (c *Coordinator) SetAccounts(accounts AccountRuntime) {
	c.accounts = accounts
}

// HandleTransfer implements §4.5's steps 1-4 for one pending event. It is
// called from the account actor's PostPersist and runs detached so it never
// blocks the sender's own mailbox.
func (c *Coordinator) HandleTransfer(ctx context.Context, evt account.Event, recipient account.Recipient) {
	go c.run(evt, recipient)
}

func (c *Coordinator) run(evt account.Event, recipient account.Recipient) {
	ctx := context.Background()

	recipientID := recipient.InternalAccountID
	if recipientID == uuid.Nil {
		c.reject(ctx, evt, account.RejectInvalidAccountInfo)
		return
	}

	status, found, err := c.askRecipientStatus(ctx, recipientID)
	if err != nil {
		if c.log != nil {
			c.log.Warn("recipient ask exhausted retries", zap.String("correlation_id", evt.CorrelationID.String()), zap.Error(err))
		}
		c.reject(ctx, evt, account.RejectUnknown)
		return
	}
	if !found {
		c.reject(ctx, evt, account.RejectInvalidAccountInfo)
		return
	}
	if status == account.StatusClosed {
		c.reject(ctx, evt, account.RejectAccountClosed)
		return
	}

	c.approve(ctx, evt)
	c.deposit(ctx, evt, recipientID, recipient.InternalOrgID)
}

// askRecipientStatus implements step 1: ask the recipient for its snapshot
// via Query (§6's GetAccount), retrying an ask-timeout per the backoff
// policy before treating the recipient as unavailable.
func (c *Coordinator) askRecipientStatus(ctx context.Context, recipientID uuid.UUID) (account.Status, bool, error) {
	var status account.Status
	found := false

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialDelay
	b.MaxInterval = c.cfg.MaxDelay
	retry := backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries))

	err := backoff.Retry(func() error {
		err := c.accounts.Query(ctx, recipientID, func(a account.Account) {
			if a.AccountID == uuid.Nil {
				return
			}
			found = true
			status = a.Status
		})
		return err
	}, retry)

	return status, found, err
}

func (c *Coordinator) approve(ctx context.Context, evt account.Event) {
	_, _ = c.accounts.Ask(ctx, evt.EntityID, account.Command{
		Envelope: account.Envelope{
			EntityID:      evt.EntityID,
			OrgID:         evt.OrgID,
			CorrelationID: evt.CorrelationID,
			InitiatedByID: evt.InitiatedByID,
			Timestamp:     time.Now(),
		},
		Kind: account.CmdApproveInternalTransfer,
	})
}

func (c *Coordinator) reject(ctx context.Context, evt account.Event, reason account.RejectReason) {
	_, _ = c.accounts.Ask(ctx, evt.EntityID, account.Command{
		Envelope: account.Envelope{
			EntityID:      evt.EntityID,
			OrgID:         evt.OrgID,
			CorrelationID: evt.CorrelationID,
			InitiatedByID: evt.InitiatedByID,
			Timestamp:     time.Now(),
		},
		Kind: account.CmdRejectInternalTransfer,
		Data: account.CommandData{RejectReason: reason},
	})
}

func (c *Coordinator) deposit(ctx context.Context, evt account.Event, recipientID, recipientOrgID uuid.UUID) {
	kind := account.CmdDepositTransferWithinOrg
	if evt.Kind == account.EventInternalTransferBetweenOrgsPending {
		kind = account.CmdDepositTransferBetweenOrgs
	}
	_, _ = c.accounts.Ask(ctx, recipientID, account.Command{
		Envelope: account.Envelope{
			EntityID:      recipientID,
			OrgID:         recipientOrgID,
			CorrelationID: evt.CorrelationID,
			InitiatedByID: evt.EntityID,
			Timestamp:     time.Now(),
		},
		Kind: kind,
		Data: account.CommandData{Amount: evt.Data.Amount},
	})
}
