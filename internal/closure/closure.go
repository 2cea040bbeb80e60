// Package closure implements the account-closure finalizer (§4.8): once an
// account transitions to Closed, deregister its scheduler obligations, wait
// for any in-flight transfer to reach a terminal state, issue DeleteMessages,
// and passivate the entity once it reaches ReadyForDelete.
package closure

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coreledger/internal/account"
	"coreledger/internal/scheduler"
)

// AccountRuntime is the slice of entityruntime.Runtime[account...] the
// finalizer needs: Ask to issue DeleteMessages, Passivate to release the
// entity's mailbox once it is quiescent.
type AccountRuntime interface {
	Ask(ctx context.Context, accountID uuid.UUID, cmd account.Command) (account.Event, error)
	Passivate(accountID uuid.UUID)
}

// Config tunes the drain-retry cadence: DeleteMessages is refused
// (ErrTransferProgressNoChange) while any in-flight transfer is still
// pending, so the finalizer retries on an interval until it's quiescent or
// gives up after MaxAttempts.
type Config struct {
	RetryInterval time.Duration
	MaxAttempts   int
}

// DefaultConfig retries every 5s for up to 2 minutes before giving up and
// logging — a closure left undrained longer than that needs operator
// attention, not a tighter poll loop.
var DefaultConfig = Config{RetryInterval: 5 * time.Second, MaxAttempts: 24}

// Finalizer implements accountactor.ClosureRegistrar.
type Finalizer struct {
	accounts  AccountRuntime
	scheduler scheduler.Proxy
	cfg       Config
	log       *zap.Logger
}

// New builds a Finalizer. accounts may be nil at construction (see
// transfercoordinator.New's SetAccounts for why); call SetAccounts once the
// account Runtime exists.
func New(accounts AccountRuntime, sched scheduler.Proxy, cfg Config, log *zap.Logger) *Finalizer {
	if cfg.MaxAttempts == 0 {
		cfg = DefaultConfig
	}
	return &Finalizer{accounts: accounts, scheduler: sched, cfg: cfg, log: log}
}

// SetAccounts binds the account runtime, resolving the bootstrap cycle
// between the account actor and this finalizer.
func (f *Finalizer) SetAccounts(accounts AccountRuntime) {
	f.accounts = accounts
}

// Register starts the drain sequence for a just-closed account, running
// detached so it never blocks the account's own mailbox (the caller is
// PostPersist).
func (f *Finalizer) Register(ctx context.Context, accountID, orgID uuid.UUID) {
	go f.drain(accountID, orgID)
}

func (f *Finalizer) drain(accountID, orgID uuid.UUID) {
	ctx := context.Background()

	if f.scheduler != nil {
		if err := f.scheduler.Deregister(ctx, accountID); err != nil && f.log != nil {
			f.log.Warn("closure deregister failed", zap.String("account_id", accountID.String()), zap.Error(err))
		}
	}

	for attempt := 0; attempt < f.cfg.MaxAttempts; attempt++ {
		_, err := f.accounts.Ask(ctx, accountID, account.Command{
			Envelope: account.Envelope{
				EntityID:      accountID,
				OrgID:         orgID,
				CorrelationID: uuid.New(),
				InitiatedByID: accountID,
				Timestamp:     time.Now(),
			},
			Kind: account.CmdDeleteMessages,
		})
		if err == nil {
			f.accounts.Passivate(accountID)
			return
		}
		if !account.IsNoOp(err) {
			if f.log != nil {
				f.log.Error("closure delete messages rejected", zap.String("account_id", accountID.String()), zap.Error(err))
			}
			return
		}
		time.Sleep(f.cfg.RetryInterval)
	}

	if f.log != nil {
		f.log.Warn("closure drain gave up waiting for quiescence", zap.String("account_id", accountID.String()))
	}
}
