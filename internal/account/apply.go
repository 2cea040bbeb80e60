package account

import (
	"time"

	"github.com/google/uuid"

	"coreledger/internal/money"
)

// Apply is the total, side-effect-free fold used both for live transitions
// (after a successful decide) and for journal replay. It must never panic
// or return an error: every Event persisted by decide is by construction
// applicable.
func Apply(state Account, evt Event) Account {
	next := state
	next.SeqNo++

	if next.Recipients == nil {
		next.Recipients = make(map[string]Recipient)
	}
	if next.InFlightTransfers == nil {
		next.InFlightTransfers = make(map[uuid.UUID]InFlightTransfer)
	}

	switch evt.Kind {
	case EventCreated:
		next.AccountID = evt.EntityID
		next.OrgID = evt.OrgID
		next.Status = StatusActive
		next.Balance = money.Zero
		next.Currency = evt.Data.Currency
		next.OwnerName = evt.Data.OwnerName
		next.OwnerEmail = evt.Data.OwnerEmail
		next.Overdraft = evt.Data.Overdraft

	case EventDeposited:
		next.Balance = next.Balance.Add(evt.Data.Amount)

	case EventDebited:
		next.Balance = next.Balance.Sub(evt.Data.Amount)
		next.DailyDebit = accrue(next.DailyDebit, evt.Data.Amount, evt.Timestamp)
		next.MonthlyDebit = accrue(next.MonthlyDebit, evt.Data.Amount, evt.Timestamp)

	case EventMaintenanceFeeDebited:
		next.Balance = next.Balance.Sub(evt.Data.Amount)
		next.FeeCriteria = evt.Data.FeeSkippedReason

	case EventMaintenanceFeeSkipped:
		next.FeeCriteria = evt.Data.FeeSkippedReason

	case EventDailyDebitLimitUpdated:
		next.DailyDebit.Limit = evt.Data.DailyLimit

	case EventDomesticRecipientRegistered:
		next.Recipients[evt.Data.RecipientID] = evt.Data.Recipient

	case EventDomesticRecipientEdited:
		next.Recipients[evt.Data.RecipientID] = evt.Data.Recipient
		next.FailedDomesticTransfers = clearMatchingFailed(next.FailedDomesticTransfers, evt.Data.RecipientID)

	case EventInternalTransferWithinOrgPending, EventInternalTransferBetweenOrgsPending:
		next.Balance = next.Balance.Sub(evt.Data.Amount)
		next.InFlightTransfers[evt.CorrelationID] = InFlightTransfer{
			CorrelationID: evt.CorrelationID,
			Kind:          transferKindFor(evt.Kind),
			Direction:     DirectionOutbound,
			Progress:      ProgressPending,
			Amount:        evt.Data.Amount,
			RecipientID:   evt.Data.RecipientID,
		}

	case EventInternalTransferWithinOrgApproved, EventInternalTransferBetweenOrgsApproved:
		if t, ok := next.InFlightTransfers[evt.CorrelationID]; ok {
			t.Progress = ProgressApproved
			next.InFlightTransfers[evt.CorrelationID] = t
		}

	case EventInternalTransferWithinOrgRejected, EventInternalTransferBetweenOrgsRejected:
		if t, ok := next.InFlightTransfers[evt.CorrelationID]; ok {
			next.Balance = next.Balance.Add(t.Amount)
			t.Progress = ProgressRejected
			next.InFlightTransfers[evt.CorrelationID] = t
		}

	case EventInternalTransferWithinOrgDeposited, EventInternalTransferBetweenOrgsDeposited:
		next.Balance = next.Balance.Add(evt.Data.Amount)
		next.InFlightTransfers[evt.CorrelationID] = InFlightTransfer{
			CorrelationID: evt.CorrelationID,
			Kind:          transferKindFor(evt.Kind),
			Direction:     DirectionInbound,
			Progress:      ProgressDeposited,
			Amount:        evt.Data.Amount,
		}

	case EventDomesticTransferPending:
		next.Balance = next.Balance.Sub(evt.Data.Amount)
		next.InFlightTransfers[evt.CorrelationID] = InFlightTransfer{
			CorrelationID: evt.CorrelationID,
			Kind:          TransferDomestic,
			Direction:     DirectionOutbound,
			Progress:      ProgressPending,
			Amount:        evt.Data.Amount,
			RecipientID:   evt.Data.RecipientID,
		}

	case EventDomesticTransferApproved:
		if t, ok := next.InFlightTransfers[evt.CorrelationID]; ok {
			t.Progress = ProgressApproved
			next.InFlightTransfers[evt.CorrelationID] = t
		}

	case EventDomesticTransferRejected:
		if t, ok := next.InFlightTransfers[evt.CorrelationID]; ok {
			next.Balance = next.Balance.Add(t.Amount)
			t.Progress = ProgressRejected
			next.InFlightTransfers[evt.CorrelationID] = t
			next.FailedDomesticTransfers = append(next.FailedDomesticTransfers, FailedDomesticTransfer{
				CorrelationID: evt.CorrelationID,
				RecipientID:   t.RecipientID,
				Amount:        t.Amount,
				Reason:        evt.Data.RejectReason,
			})
		}

	case EventDomesticTransferProgressUpdated:
		// progress notes only; no state change to balance/status

	case EventInternalAutomatedTransferPending:
		next.Balance = next.Balance.Sub(evt.Data.Amount)
		next.InFlightTransfers[evt.CorrelationID] = InFlightTransfer{
			CorrelationID: evt.CorrelationID,
			Kind:          TransferAutomated,
			Direction:     DirectionOutbound,
			Progress:      ProgressPending,
			Amount:        evt.Data.Amount,
			RecipientID:   evt.Data.RecipientID,
		}

	case EventInternalAutomatedTransferApproved:
		if t, ok := next.InFlightTransfers[evt.CorrelationID]; ok {
			t.Progress = ProgressApproved
			next.InFlightTransfers[evt.CorrelationID] = t
		}

	case EventInternalAutomatedTransferRejected:
		if t, ok := next.InFlightTransfers[evt.CorrelationID]; ok {
			next.Balance = next.Balance.Add(t.Amount)
			t.Progress = ProgressRejected
			next.InFlightTransfers[evt.CorrelationID] = t
		}

	case EventInternalAutomatedTransferDeposited:
		next.Balance = next.Balance.Add(evt.Data.Amount)

	case EventBillingCycleStarted:
		ts := evt.Timestamp
		next.LastBillingCycle = &ts

	case EventAccountClosed:
		next.Status = StatusClosed

	case EventAccountReadyForDelete:
		next.Status = StatusReadyForDelete

	case EventPlatformPaymentPaid:
		next.Balance = next.Balance.Sub(evt.Data.Amount)

	case EventTransferScheduled, EventInternalTransferBetweenOrgsScheduled, EventDomesticTransferScheduled:
		// scheduling events carry no local state change; the scheduler
		// proxy is the side effect, dispatched by the account actor.
	}

	return next
}

func transferKindFor(k EventKind) TransferKind {
	switch k {
	case EventInternalTransferWithinOrgPending, EventInternalTransferWithinOrgApproved,
		EventInternalTransferWithinOrgRejected, EventInternalTransferWithinOrgDeposited:
		return TransferWithinOrg
	case EventInternalTransferBetweenOrgsPending, EventInternalTransferBetweenOrgsApproved,
		EventInternalTransferBetweenOrgsRejected, EventInternalTransferBetweenOrgsDeposited:
		return TransferBetweenOrgs
	default:
		return TransferWithinOrg
	}
}

func clearMatchingFailed(failed []FailedDomesticTransfer, recipientID string) []FailedDomesticTransfer {
	kept := make([]FailedDomesticTransfer, 0, len(failed))
	for _, f := range failed {
		if f.RecipientID != recipientID {
			kept = append(kept, f)
		}
	}
	return kept
}

// accrue updates a rolling daily/monthly counter, resetting it if the
// observed timestamp has advanced past the stored anchor date.
func accrue(c DailyMonthlyCounter, amount money.Amount, at time.Time) DailyMonthlyCounter {
	if c.LastResetAt.IsZero() || !sameDay(c.LastResetAt, at) {
		c.Accrued = amount
	} else {
		c.Accrued = c.Accrued.Add(amount)
	}
	c.LastResetAt = at
	return c
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
