package employee

import (
	"fmt"

	"coreledger/internal/money"
)

// Decide validates cmd against state and produces at most one Event. Pure
// and side-effect free, mirroring account.Decide.
func Decide(state Employee, cmd Command) (Event, error) {
	switch cmd.Kind {
	case CmdInvite:
		return decideInvite(state, cmd)
	case CmdAcceptInvite:
		return decideAcceptInvite(state, cmd)
	case CmdRevokeInvite:
		return decideRevokeInvite(state, cmd)
	case CmdIssueCard:
		return decideIssueCard(state, cmd)
	case CmdLockCard:
		return decideLockCard(state, cmd)
	case CmdUpdateCardLimit:
		return decideUpdateCardLimit(state, cmd)
	case CmdRequestDebit:
		return decideRequestDebit(state, cmd)
	case CmdApproveDebit:
		return decideApproveDebit(state, cmd)
	case CmdDeclineDebit:
		return decideDeclineDebit(state, cmd)
	default:
		return Event{}, fmt.Errorf("unrecognized command %q", cmd.Kind)
	}
}

func decideInvite(state Employee, cmd Command) (Event, error) {
	if state.InviteStatus != "" {
		return Event{}, ErrInviteNotPending
	}
	return newEvent(cmd, EventInvited, EventData{
		Name:  cmd.Data.Name,
		Email: cmd.Data.Email,
		Role:  cmd.Data.Role,
	}), nil
}

func decideAcceptInvite(state Employee, cmd Command) (Event, error) {
	if state.InviteStatus != InvitePending {
		return Event{}, ErrInviteNotPending
	}
	return newEvent(cmd, EventInviteAccepted, EventData{}), nil
}

func decideRevokeInvite(state Employee, cmd Command) (Event, error) {
	if state.InviteStatus != InvitePending {
		return Event{}, ErrInviteNotPending
	}
	return newEvent(cmd, EventInviteRevoked, EventData{}), nil
}

func decideIssueCard(state Employee, cmd Command) (Event, error) {
	if !state.IsActive() {
		return Event{}, ErrEmployeeNotActive
	}
	return newEvent(cmd, EventCardIssued, EventData{
		CardID:  cmd.Data.CardID,
		Last4:   cmd.Data.Last4,
		Virtual: cmd.Data.Virtual,
	}), nil
}

func decideLockCard(state Employee, cmd Command) (Event, error) {
	if _, ok := state.Cards[cmd.Data.CardID]; !ok {
		return Event{}, ErrCardNotFound
	}
	return newEvent(cmd, EventCardLocked, EventData{CardID: cmd.Data.CardID}), nil
}

func decideUpdateCardLimit(state Employee, cmd Command) (Event, error) {
	if _, ok := state.Cards[cmd.Data.CardID]; !ok {
		return Event{}, ErrCardNotFound
	}
	return newEvent(cmd, EventCardLimitUpdated, EventData{
		CardID: cmd.Data.CardID,
		Window: cmd.Data.Window,
		Limit:  cmd.Data.Limit,
	}), nil
}

// decideRequestDebit is invoked by the domain when a card swipe arrives; it
// validates purely against the card's own spend windows (overdraft/balance
// checks belong to the account aggregate's Debit, driven downstream by the
// account actor once this event is persisted).
func decideRequestDebit(state Employee, cmd Command) (Event, error) {
	if !state.IsActive() {
		return Event{}, ErrEmployeeNotActive
	}
	card, ok := state.Cards[cmd.Data.CardID]
	if !ok {
		return Event{}, ErrCardNotFound
	}
	if card.Status != CardActive {
		return Event{}, ErrCardNotActive
	}
	if !money.IsPositive(cmd.Data.Amount) {
		return Event{}, ErrDebitAmountNotPositive
	}

	if card.DailySpend.HasLimit() {
		if card.DailySpend.Accrued.Add(cmd.Data.Amount).GreaterThan(card.DailySpend.Limit) {
			return Event{}, &ExceededCardLimitError{Window: "daily", Limit: card.DailySpend.Limit.String(), Accrued: card.DailySpend.Accrued.String()}
		}
	}
	if card.MonthlySpend.HasLimit() {
		if card.MonthlySpend.Accrued.Add(cmd.Data.Amount).GreaterThan(card.MonthlySpend.Limit) {
			return Event{}, &ExceededCardLimitError{Window: "monthly", Limit: card.MonthlySpend.Limit.String(), Accrued: card.MonthlySpend.Accrued.String()}
		}
	}

	return newEvent(cmd, EventDebitRequested, EventData{
		CardID:    cmd.Data.CardID,
		AccountID: cmd.Data.AccountID,
		Amount:    cmd.Data.Amount,
	}), nil
}

func decideApproveDebit(state Employee, cmd Command) (Event, error) {
	p, ok := state.PendingPurchases[cmd.CorrelationID]
	if !ok {
		return Event{}, ErrPurchaseNoChange
	}
	if p.Status != PurchasePending {
		return Event{}, ErrPurchaseNotPending
	}
	return newEvent(cmd, EventPurchaseApproved, EventData{}), nil
}

func decideDeclineDebit(state Employee, cmd Command) (Event, error) {
	p, ok := state.PendingPurchases[cmd.CorrelationID]
	if !ok {
		return Event{}, ErrPurchaseNoChange
	}
	if p.Status != PurchasePending {
		return Event{}, ErrPurchaseNotPending
	}
	return newEvent(cmd, EventPurchaseDeclined, EventData{DeclineReason: cmd.Data.DeclineReason}), nil
}

func newEvent(cmd Command, kind EventKind, data EventData) Event {
	return Event{
		Envelope: cmd.Envelope,
		Kind:     kind,
		Data:     data,
	}
}
