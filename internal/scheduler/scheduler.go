// Package scheduler is the outbound proxy to the persistent, Quartz-like job
// scheduler (§6): this core only enqueues the four command shapes it needs
// delivered back later; the scheduler itself (cron parsing, persistence,
// clustered leader election) is out of scope (§1) and stubbed here as a
// pluggable Proxy the caller can back with whatever real scheduler it runs.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"coreledger/internal/money"
)

// JobKind tags each outbound scheduler command named in §6.
type JobKind string

const (
	JobScheduleInternalTransferBetweenOrgs JobKind = "schedule_internal_transfer_between_orgs"
	JobScheduleDomesticTransfer             JobKind = "schedule_domestic_transfer"
	JobRegisterAccountClosure               JobKind = "register_account_closure"
	JobScheduleBillingCycleFanout           JobKind = "schedule_billing_cycle_fanout"
	JobDeregisterAccountObligations         JobKind = "deregister_account_obligations"
)

// Job is one outbound request to the scheduler.
type Job struct {
	Kind JobKind

	AccountID     uuid.UUID
	OrgID         uuid.UUID
	RecipientID   string
	Amount        money.Amount
	CorrelationID uuid.UUID

	// RunAt is when a one-shot job (transfer/closure registration) should
	// fire; zero means "as soon as possible".
	RunAt time.Time
	// Cron is the recurrence expression for JobScheduleBillingCycleFanout.
	Cron string
}

// Proxy is the interface the transfer/closure/billing components hold.
// Implementations are expected to eventually redeliver a StateChange
// command against the sharded account route (§6) — this core only needs
// the enqueue half of that contract.
type Proxy interface {
	Enqueue(ctx context.Context, job Job) error
	// Deregister cancels any pending recurring obligations (maintenance-fee
	// cycles, scheduled transfers) for accountID, per the closure
	// finalizer's drain sequence (§4.8).
	Deregister(ctx context.Context, accountID uuid.UUID) error
}

// InMemoryProxy is a single-process Proxy that records jobs instead of
// talking to a real scheduler, for local/single-instance deployments and
// tests. Enqueued jobs are available via Jobs() for a caller that wants to
// drive them synchronously (e.g. re-delivering ScheduleBillingCycleFanout
// into the billing fan-out singleton immediately instead of waiting for a
// cron tick).
type InMemoryProxy struct {
	jobs chan Job
}

// NewInMemoryProxy returns a Proxy with the given buffered job queue depth.
func NewInMemoryProxy(buffer int) *InMemoryProxy {
	return &InMemoryProxy{jobs: make(chan Job, buffer)}
}

func (p *InMemoryProxy) Enqueue(ctx context.Context, job Job) error {
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *InMemoryProxy) Deregister(ctx context.Context, accountID uuid.UUID) error {
	select {
	case p.jobs <- Job{Kind: JobDeregisterAccountObligations, AccountID: accountID}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs returns the channel of enqueued jobs for a consumer to drain.
func (p *InMemoryProxy) Jobs() <-chan Job {
	return p.jobs
}
