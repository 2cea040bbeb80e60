// Package accountactor wires the Account aggregate (internal/account) to the
// sharded entity runtime and carries out §4.4's post-persist side-effect
// dispatch table: the decisions the pure Decide/Apply pair never makes
// itself because they reach outside the aggregate (notifications, the
// scheduler proxy, the transfer coordinator, the domestic-transfer worker,
// the closure finalizer, and the employee actor).
package accountactor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coreledger/internal/account"
	"coreledger/internal/billingstatement"
	"coreledger/internal/broadcast"
	"coreledger/internal/employee"
	"coreledger/internal/entityruntime"
	"coreledger/internal/journal"
	"coreledger/internal/money"
	"coreledger/internal/notify"
	"coreledger/internal/scheduler"
	"coreledger/internal/sharding"
)

// EmployeeRuntime is the narrow slice of entityruntime.Runtime[employee...]
// the account actor needs for the Debited->ApproveDebit and
// InsufficientBalance->DeclineDebit compensating commands (§4.4). Kept as an
// interface, not a direct employeeactor import, so the two actor packages
// never need to import each other.
type EmployeeRuntime interface {
	Ask(ctx context.Context, employeeID uuid.UUID, cmd employee.Command) (employee.Event, error)
}

// TransferCoordinator hands off internal-transfer pending events (§4.5).
// recipient is the sender's own registered Recipient entry for evt's
// RecipientID, resolved by the account actor before the handoff since the
// coordinator has no other way to turn an opaque RecipientID key into an
// addressable account id.
type TransferCoordinator interface {
	HandleTransfer(ctx context.Context, evt account.Event, recipient account.Recipient)
}

// DomesticTransferWorker hands off domestic-transfer pending events (§4.6).
// recipient carries the routing/account number the gateway call needs.
type DomesticTransferWorker interface {
	HandleTransfer(ctx context.Context, evt account.Event, recipient account.Recipient)
}

// ClosureRegistrar is the C8 closure finalizer's inbound half.
type ClosureRegistrar interface {
	Register(ctx context.Context, accountID, orgID uuid.UUID)
}

// BillingProjection keeps the C7 billing-fanout read model in sync with this
// entity's status and last billing cycle, so the fan-out can answer "which
// accounts are eligible" with a plain SQL predicate instead of folding every
// account's event stream on each pass.
type BillingProjection interface {
	Upsert(ctx context.Context, accountID, orgID uuid.UUID, status string, lastBillingCycle *time.Time) error
}

// Deps bundles the Actor's collaborators. Every field except Store is
// optional: a nil collaborator means that side effect is a no-op, so tests
// and partial deployments can wire only what they need.
type Deps struct {
	Store       journal.Store
	Coordinator *sharding.Coordinator

	Employees EmployeeRuntime
	Transfers TransferCoordinator
	Domestic  DomesticTransferWorker
	Closure   ClosureRegistrar
	Notifier  *notify.Dispatcher
	Scheduler scheduler.Proxy
	Bus       broadcast.PubSub
	Statements billingstatement.Store
	Projection BillingProjection

	// FeeThreshold/FeeAmount configure the maintenance-fee policy (§4.7);
	// both default to zero, which charges nothing (every account qualifies
	// for BalanceThresholdHeldAllDays trivially) unless set explicitly.
	FeeThreshold money.Amount
	FeeAmount    money.Amount

	Log *zap.Logger
}

// Actor drives the Account aggregate through an entityruntime.Runtime.
type Actor struct {
	Runtime *entityruntime.Runtime[account.Account, account.Command, account.Event]

	store      journal.Store
	employees  EmployeeRuntime
	transfers  TransferCoordinator
	domestic   DomesticTransferWorker
	closure    ClosureRegistrar
	notifier   *notify.Dispatcher
	sched      scheduler.Proxy
	bus        broadcast.PubSub
	statements billingstatement.Store
	projection BillingProjection

	feeThreshold money.Amount
	feeAmount    money.Amount

	log *zap.Logger
}

// New builds the Actor and the Runtime it wraps.
func New(deps Deps) *Actor {
	a := &Actor{
		store:        deps.Store,
		employees:    deps.Employees,
		transfers:    deps.Transfers,
		domestic:     deps.Domestic,
		closure:      deps.Closure,
		notifier:     deps.Notifier,
		sched:        deps.Scheduler,
		bus:          deps.Bus,
		statements:   deps.Statements,
		projection:   deps.Projection,
		feeThreshold: deps.FeeThreshold,
		feeAmount:    deps.FeeAmount,
		log:          deps.Log,
	}

	handlers := entityruntime.Handlers[account.Account, account.Command, account.Event]{
		Tag:      "account",
		NewEmpty: func(id uuid.UUID) account.Account { return account.NewEmpty(id, uuid.Nil) },
		Decide:   a.decide,
		Apply:    account.Apply,

		EventKind: func(e account.Event) string { return string(e.Kind) },
		EncodeEvent: func(e account.Event) ([]byte, error) { return json.Marshal(e) },
		DecodeEvent: func(kind string, payload []byte) (account.Event, error) {
			var e account.Event
			err := json.Unmarshal(payload, &e)
			return e, err
		},
		EncodeSnapshot: func(s account.Account) ([]byte, error) { return json.Marshal(s) },
		DecodeSnapshot: func(payload []byte) (account.Account, error) {
			var s account.Account
			err := json.Unmarshal(payload, &s)
			return s, err
		},

		PostPersist:     a.postPersist,
		OnPersistFailed: a.onPersistFailed,
	}

	a.Runtime = entityruntime.New(deps.Store, handlers, deps.Coordinator, deps.Log)
	return a
}

// decide wraps account.Decide with §4.4's handleValidationError: a rejection
// is never persisted, but it still has its own side effects (broadcast,
// compensating DeclineDebit).
func (a *Actor) decide(state account.Account, cmd account.Command) (account.Event, error) {
	evt, err := account.Decide(state, cmd)
	if err != nil {
		a.handleValidationError(context.Background(), cmd, err)
		return account.Event{}, err
	}
	return evt, nil
}

// handleValidationError implements §4.4's table exactly: no-op errors log at
// debug and stop there; every other rejection is broadcast to subscribers
// keyed by account id; InsufficientBalance on a card-originated Debit also
// synthesizes a DeclineDebit back to the employee actor.
func (a *Actor) handleValidationError(ctx context.Context, cmd account.Command, err error) {
	if account.IsNoOp(err) {
		if a.log != nil {
			a.log.Debug("account command no-op", zap.String("account_id", cmd.EntityID.String()), zap.String("kind", string(cmd.Kind)), zap.Error(err))
		}
		return
	}

	if a.log != nil {
		a.log.Warn("account command rejected", zap.String("account_id", cmd.EntityID.String()), zap.String("kind", string(cmd.Kind)), zap.Error(err))
	}

	if a.bus != nil {
		_ = a.bus.Publish(ctx, fmt.Sprintf("account.%s.validation", cmd.EntityID), map[string]any{
			"account_id":     cmd.EntityID,
			"correlation_id": cmd.CorrelationID,
			"kind":           cmd.Kind,
			"error":          err.Error(),
		})
	}

	var insufficient *account.InsufficientBalanceError
	if cmd.Kind == account.CmdDebit && cmd.Data.EmployeeID != uuid.Nil && isInsufficientBalance(err, &insufficient) {
		if a.employees == nil {
			return
		}
		_, _ = a.employees.Ask(ctx, cmd.Data.EmployeeID, employee.Command{
			Envelope: employee.Envelope{
				EntityID:      cmd.Data.EmployeeID,
				OrgID:         cmd.OrgID,
				CorrelationID: cmd.CorrelationID,
				InitiatedByID: cmd.InitiatedByID,
				Timestamp:     time.Now(),
			},
			Kind: employee.CmdDeclineDebit,
			Data: employee.CommandData{
				DeclineReason: fmt.Sprintf("insufficient account funds: have %s", insufficient.Balance.String()),
			},
		})
	}
}

func isInsufficientBalance(err error, target **account.InsufficientBalanceError) bool {
	ib, ok := err.(*account.InsufficientBalanceError)
	if ok {
		*target = ib
	}
	return ok
}

// onPersistFailed implements §7's Persistence error kind: the event was
// never durably journaled, so state is unchanged; this just surfaces the
// failure on the broadcast bus for observability. The enclosing supervisor
// (the entity runtime itself, via the goroutine-per-entity model) handles
// recovery by replaying from the last snapshot on the next activation.
func (a *Actor) onPersistFailed(ctx context.Context, entityID uuid.UUID, cmd account.Command, err error) {
	if a.log != nil {
		a.log.Error("account persist failed", zap.String("account_id", entityID.String()), zap.Error(err))
	}
	if a.bus != nil {
		_ = a.bus.Publish(ctx, fmt.Sprintf("account.%s.persist_failed", entityID), map[string]any{
			"account_id": entityID,
			"error":      err.Error(),
		})
	}
}

// postPersist implements §4.4's event -> side-effect table.
func (a *Actor) postPersist(ctx context.Context, entityID uuid.UUID, evt account.Event, state account.Account) {
	switch evt.Kind {
	case account.EventDebited:
		a.approveDebit(ctx, evt)

	case account.EventDomesticRecipientEdited:
		a.retryFailedDomesticTransfers(ctx, entityID, state, evt)

	case account.EventInternalTransferWithinOrgPending, account.EventInternalTransferBetweenOrgsPending:
		if a.transfers != nil {
			a.transfers.HandleTransfer(ctx, evt, state.Recipients[evt.Data.RecipientID])
		}

	case account.EventInternalTransferBetweenOrgsScheduled, account.EventDomesticTransferScheduled, account.EventTransferScheduled:
		a.enqueueScheduled(ctx, evt)

	case account.EventDomesticTransferPending:
		if a.domestic != nil {
			a.domestic.HandleTransfer(ctx, evt, state.Recipients[evt.Data.RecipientID])
		}

	case account.EventInternalTransferBetweenOrgsDeposited:
		if state.OwnerEmail != "" {
			_ = a.sendNotify(ctx, notify.Message{
				Kind:      notify.KindInternalTransferBetweenOrgsDeposited,
				Recipient: state.OwnerEmail,
				OwnerName: state.OwnerName,
				Amount:    evt.Data.Amount.String(),
				Currency:  state.Currency,
			})
		}

	case account.EventCreated:
		if state.OwnerEmail != "" {
			_ = a.sendNotify(ctx, notify.Message{
				Kind:      notify.KindAccountOpen,
				Recipient: state.OwnerEmail,
				OwnerName: state.OwnerName,
			})
		}
		a.updateProjection(ctx, entityID, state, nil)

	case account.EventAccountClosed:
		if state.OwnerEmail != "" {
			_ = a.sendNotify(ctx, notify.Message{
				Kind:      notify.KindAccountClose,
				Recipient: state.OwnerEmail,
				OwnerName: state.OwnerName,
			})
		}
		if a.closure != nil {
			a.closure.Register(ctx, entityID, state.OrgID)
		}
		a.updateProjection(ctx, entityID, state, nil)

	case account.EventBillingCycleStarted:
		a.handleBillingCycle(ctx, entityID, state, evt)
		a.updateProjection(ctx, entityID, state, state.LastBillingCycle)

	case account.EventPlatformPaymentPaid:
		a.depositPlatformPayment(ctx, evt)
	}

	// "Any event whose moneyTransaction is Some (excluding automated-transfer
	// events)" triggers a per-transaction AutoTransferCompute (§4.4).
	if evt.Data.MoneyTransaction && !evt.Data.Automated {
		a.triggerAutoTransferCompute(ctx, entityID, state, account.FrequencyPerTransaction)
	}
}

// approveDebit sends ApproveDebit to the employee actor that originated a
// card-backed Debit, carrying the fields needed to finalize the purchase.
func (a *Actor) approveDebit(ctx context.Context, evt account.Event) {
	if a.employees == nil || evt.Data.EmployeeID == uuid.Nil {
		return
	}
	_, _ = a.employees.Ask(ctx, evt.Data.EmployeeID, employee.Command{
		Envelope: employee.Envelope{
			EntityID:      evt.Data.EmployeeID,
			OrgID:         evt.OrgID,
			CorrelationID: evt.CorrelationID,
			InitiatedByID: evt.InitiatedByID,
			Timestamp:     evt.Timestamp,
		},
		Kind: employee.CmdApproveDebit,
	})
}

// retryFailedDomesticTransfers scans FailedDomesticTransfers for an
// InvalidAccountInfo rejection matching the just-edited recipient and
// re-issues each as a DomesticTransfer retry (§4.4).
func (a *Actor) retryFailedDomesticTransfers(ctx context.Context, entityID uuid.UUID, state account.Account, evt account.Event) {
	for _, f := range state.FailedDomesticTransfers {
		if f.RecipientID != evt.Data.RecipientID || f.Reason != account.RejectInvalidAccountInfo {
			continue
		}
		_, _ = a.Runtime.Ask(ctx, entityID, account.Command{
			Envelope: account.Envelope{
				EntityID:      entityID,
				OrgID:         state.OrgID,
				CorrelationID: uuid.New(),
				InitiatedByID: entityID,
				Timestamp:     time.Now(),
			},
			Kind: account.CmdDomesticTransfer,
			Data: account.CommandData{Amount: f.Amount, RecipientID: f.RecipientID},
		})
	}
}

func (a *Actor) enqueueScheduled(ctx context.Context, evt account.Event) {
	if a.sched == nil {
		return
	}
	kind := scheduler.JobScheduleInternalTransferBetweenOrgs
	if evt.Kind == account.EventDomesticTransferScheduled {
		kind = scheduler.JobScheduleDomesticTransfer
	}
	_ = a.sched.Enqueue(ctx, scheduler.Job{
		Kind:          kind,
		AccountID:     evt.EntityID,
		OrgID:         evt.OrgID,
		RecipientID:   evt.Data.RecipientID,
		Amount:        evt.Data.Amount,
		CorrelationID: evt.CorrelationID,
	})
}

func (a *Actor) depositPlatformPayment(ctx context.Context, evt account.Event) {
	if evt.Data.PayeeAccountID == uuid.Nil {
		return
	}
	_, _ = a.Runtime.Ask(ctx, evt.Data.PayeeAccountID, account.Command{
		Envelope: account.Envelope{
			EntityID:      evt.Data.PayeeAccountID,
			CorrelationID: evt.CorrelationID,
			InitiatedByID: evt.EntityID,
			Timestamp:     time.Now(),
		},
		Kind: account.CmdDepositCash,
		Data: account.CommandData{Amount: evt.Data.Amount},
	})
}

// triggerAutoTransferCompute implements §4.4/§4.9's AutoTransferCompute:
// partition the computed transfers into outbound (folded atomically through
// DecideMany) and inbound (one InternalAutoTransfer command sent to each
// designated sender account).
func (a *Actor) triggerAutoTransferCompute(ctx context.Context, entityID uuid.UUID, state account.Account, freq account.TransferFrequency) {
	computed := account.ComputeAutoTransfers(state, freq)
	if len(computed) == 0 {
		return
	}

	now := time.Now()
	outCmds := account.BuildAutoTransferCommands(state, computed, now, entityID)
	if len(outCmds) > 0 {
		events, err := account.DecideMany(state, outCmds)
		if err != nil {
			a.handleValidationError(ctx, account.Command{
				Envelope: account.Envelope{EntityID: entityID, OrgID: state.OrgID, Timestamp: now},
				Kind:     account.CmdInternalAutoTransfer,
			}, err)
		} else {
			a.persistAll(ctx, entityID, events)
		}
	}

	for _, cmd := range account.BuildRestoreCommands(state, computed, now) {
		_, _ = a.Runtime.Ask(ctx, cmd.EntityID, cmd)
	}
}

// persistAll re-issues each already-decided event as an Ask against this
// entity's own Runtime so every event still goes through the durable
// journal/PostPersist path, preserving the "atomic batch, but still driven
// through the single entity mailbox" property DecideMany's shadow-fold
// assumed when it validated the batch.
func (a *Actor) persistAll(ctx context.Context, entityID uuid.UUID, events []account.Event) {
	for _, evt := range events {
		cmd := account.Command{Envelope: evt.Envelope, Data: account.CommandData{
			Amount:          evt.Data.Amount,
			RecipientID:     evt.Data.RecipientID,
			AutomatedRuleID: evt.CorrelationID,
		}}
		switch evt.Kind {
		case account.EventInternalAutomatedTransferPending:
			cmd.Kind = account.CmdInternalAutoTransfer
		default:
			continue
		}
		_, _ = a.Runtime.Ask(ctx, entityID, cmd)
	}
}

func (a *Actor) updateProjection(ctx context.Context, entityID uuid.UUID, state account.Account, lastBillingCycle *time.Time) {
	if a.projection == nil {
		return
	}
	if err := a.projection.Upsert(ctx, entityID, state.OrgID, string(state.Status), lastBillingCycle); err != nil && a.log != nil {
		a.log.Warn("billing projection upsert failed", zap.String("account_id", entityID.String()), zap.Error(err))
	}
}

func (a *Actor) sendNotify(ctx context.Context, msg notify.Message) error {
	if a.notifier == nil {
		return nil
	}
	return a.notifier.Send(ctx, msg)
}
