// Package employeeactor wires the Employee aggregate (internal/employee) to
// the sharded entity runtime. Its only cross-aggregate responsibility is the
// card-purchase coupling to Account: a successful RequestDebit dispatches a
// Debit command to the account actor, and the account actor dispatches back
// ApproveDebit/DeclineDebit depending on how that Debit resolved (§4.4).
package employeeactor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coreledger/internal/account"
	"coreledger/internal/employee"
	"coreledger/internal/entityruntime"
	"coreledger/internal/journal"
	"coreledger/internal/notify"
	"coreledger/internal/sharding"
)

// AccountRuntime is the narrow slice of entityruntime.Runtime[account...]
// the employee actor needs to forward a card purchase as a Debit.
type AccountRuntime interface {
	Ask(ctx context.Context, accountID uuid.UUID, cmd account.Command) (account.Event, error)
}

// Deps bundles the Actor's collaborators.
type Deps struct {
	Store       journal.Store
	Coordinator *sharding.Coordinator

	Accounts AccountRuntime
	Notifier *notify.Dispatcher

	Log *zap.Logger
}

// Actor drives the Employee aggregate through an entityruntime.Runtime.
type Actor struct {
	Runtime *entityruntime.Runtime[employee.Employee, employee.Command, employee.Event]

	accounts AccountRuntime
	notifier *notify.Dispatcher
	log      *zap.Logger
}

// New builds the Actor and the Runtime it wraps.
func New(deps Deps) *Actor {
	a := &Actor{
		accounts: deps.Accounts,
		notifier: deps.Notifier,
		log:      deps.Log,
	}

	handlers := entityruntime.Handlers[employee.Employee, employee.Command, employee.Event]{
		Tag:      "employee",
		NewEmpty: func(id uuid.UUID) employee.Employee { return employee.NewEmpty(id, uuid.Nil) },
		Decide:   a.decide,
		Apply:    employee.Apply,

		EventKind: func(e employee.Event) string { return string(e.Kind) },
		EncodeEvent: func(e employee.Event) ([]byte, error) { return json.Marshal(e) },
		DecodeEvent: func(kind string, payload []byte) (employee.Event, error) {
			var e employee.Event
			err := json.Unmarshal(payload, &e)
			return e, err
		},
		EncodeSnapshot: func(s employee.Employee) ([]byte, error) { return json.Marshal(s) },
		DecodeSnapshot: func(payload []byte) (employee.Employee, error) {
			var s employee.Employee
			err := json.Unmarshal(payload, &s)
			return s, err
		},

		PostPersist:     a.postPersist,
		OnPersistFailed: a.onPersistFailed,
	}

	a.Runtime = entityruntime.New(deps.Store, handlers, deps.Coordinator, deps.Log)
	return a
}

// SetAccounts binds the account runtime, resolving the bootstrap cycle
// between the employee actor (needs AccountRuntime) and the account actor
// (needs this actor's Runtime as its EmployeeRuntime).
func (a *Actor) SetAccounts(accounts AccountRuntime) {
	a.accounts = accounts
}

// decide wraps employee.Decide to log/no-op the idempotent-retry errors the
// same way the account actor does (§4.4's handleValidationError, scaled down
// since Employee has no broadcast-worthy business errors beyond that).
func (a *Actor) decide(state employee.Employee, cmd employee.Command) (employee.Event, error) {
	evt, err := employee.Decide(state, cmd)
	if err != nil {
		if employee.IsNoOp(err) {
			if a.log != nil {
				a.log.Debug("employee command no-op", zap.String("employee_id", cmd.EntityID.String()), zap.String("kind", string(cmd.Kind)), zap.Error(err))
			}
		} else if a.log != nil {
			a.log.Warn("employee command rejected", zap.String("employee_id", cmd.EntityID.String()), zap.String("kind", string(cmd.Kind)), zap.Error(err))
		}
		return employee.Event{}, err
	}
	return evt, nil
}

func (a *Actor) onPersistFailed(ctx context.Context, entityID uuid.UUID, cmd employee.Command, err error) {
	if a.log != nil {
		a.log.Error("employee persist failed", zap.String("employee_id", entityID.String()), zap.Error(err))
	}
}

// postPersist forwards a DebitRequested purchase to the owning account as a
// Debit, carrying the purchase's correlation id so the account actor's
// eventual ApproveDebit/DeclineDebit response threads back to the right
// PendingPurchase.
func (a *Actor) postPersist(ctx context.Context, entityID uuid.UUID, evt employee.Event, state employee.Employee) {
	switch evt.Kind {
	case employee.EventDebitRequested:
		a.requestAccountDebit(ctx, entityID, evt)

	case employee.EventInvited:
		if evt.Data.Email != "" {
			_ = a.sendNotify(ctx, notify.Message{
				Kind:        notify.KindEmployeeInvite,
				Recipient:   evt.Data.Email,
				InviteeName: evt.Data.Name,
				InviteToken: evt.Data.InviteToken,
			})
		}

	case employee.EventPurchaseDeclined:
		if state.Email != "" {
			_ = a.sendNotify(ctx, notify.Message{
				Kind:          notify.KindPurchaseDeclined,
				Recipient:     state.Email,
				OwnerName:     state.Name,
				DeclineReason: evt.Data.DeclineReason,
			})
		}
	}
}

func (a *Actor) requestAccountDebit(ctx context.Context, entityID uuid.UUID, evt employee.Event) {
	if a.accounts == nil {
		return
	}
	_, _ = a.accounts.Ask(ctx, evt.Data.AccountID, account.Command{
		Envelope: account.Envelope{
			EntityID:      evt.Data.AccountID,
			OrgID:         evt.OrgID,
			CorrelationID: evt.CorrelationID,
			InitiatedByID: entityID,
			Timestamp:     time.Now(),
		},
		Kind: account.CmdDebit,
		Data: account.CommandData{
			Amount:     evt.Data.Amount,
			EmployeeID: entityID,
			CardID:     evt.Data.CardID,
		},
	})
}

func (a *Actor) sendNotify(ctx context.Context, msg notify.Message) error {
	if a.notifier == nil {
		return nil
	}
	return a.notifier.Send(ctx, msg)
}
