package account

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"coreledger/internal/money"
)

// Decide validates cmd against state and produces at most one Event. It
// never mutates state and never has side effects; persistence and side
// effects are the caller's (the account actor's) responsibility.
func Decide(state Account, cmd Command) (Event, error) {
	switch cmd.Kind {
	case CmdCreate:
		return decideCreate(state, cmd)
	case CmdDepositCash:
		return decideDeposit(state, cmd)
	case CmdDebit:
		return decideDebit(state, cmd)
	case CmdUpdateDailyDebitLimit:
		return decideUpdateDailyDebitLimit(state, cmd)
	case CmdRegisterDomesticRecipient:
		return decideRegisterDomesticRecipient(state, cmd)
	case CmdEditDomesticTransferRecipient:
		return decideEditDomesticRecipient(state, cmd)
	case CmdInternalTransferWithinOrg:
		return decideInternalTransferWithinOrg(state, cmd)
	case CmdInternalTransferBetweenOrgs:
		return decideInternalTransferBetweenOrgs(state, cmd)
	case CmdDomesticTransfer:
		return decideDomesticTransfer(state, cmd)
	case CmdApproveInternalTransfer:
		return decideApproveInternalTransfer(state, cmd)
	case CmdRejectInternalTransfer:
		return decideRejectInternalTransfer(state, cmd)
	case CmdDepositTransferWithinOrg:
		return decideDepositTransferWithinOrg(state, cmd)
	case CmdDepositTransferBetweenOrgs:
		return decideDepositTransferBetweenOrgs(state, cmd)
	case CmdApproveDomesticTransfer:
		return decideApproveDomesticTransfer(state, cmd)
	case CmdRejectDomesticTransfer:
		return decideRejectDomesticTransfer(state, cmd)
	case CmdUpdateDomesticTransferProgress:
		return decideUpdateDomesticTransferProgress(state, cmd)
	case CmdInternalAutoTransfer:
		return decideInternalAutoTransfer(state, cmd)
	case CmdStartBillingCycle:
		return decideStartBillingCycle(state, cmd)
	case CmdCloseAccount:
		return decideCloseAccount(state, cmd)
	case CmdDeleteMessages:
		return decideDeleteMessages(state, cmd)
	case CmdDepositPlatformPayment:
		return decideDepositPlatformPayment(state, cmd)
	case CmdChargeMaintenanceFee:
		return decideChargeMaintenanceFee(state, cmd)
	case CmdSkipMaintenanceFee:
		return decideSkipMaintenanceFee(state, cmd)
	default:
		return Event{}, &ValidationFailureError{Field: "kind", Reason: fmt.Sprintf("unrecognized command %q", cmd.Kind)}
	}
}

// DecideMany threads decide/apply over a batch of commands against a shadow
// copy of state: each successive command is decided and applied to the
// shadow before the next is considered. On the first failure the entire
// batch is rejected — none of the events produced so far are returned — so
// the caller can atomically persist all-or-nothing, per §4.4's
// AutoTransferCompute rationale.
func DecideMany(state Account, cmds []Command) ([]Event, error) {
	shadow := state
	events := make([]Event, 0, len(cmds))

	var errs *multierror.Error
	for _, cmd := range cmds {
		evt, err := Decide(shadow, cmd)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("command %s: %w", cmd.Kind, err))
			return nil, errs.ErrorOrNil()
		}
		events = append(events, evt)
		shadow = Apply(shadow, evt)
	}

	return events, nil
}

func decideCreate(state Account, cmd Command) (Event, error) {
	if state.Status != "" {
		return Event{}, ErrAccountNotReadyToActivate
	}
	return newEvent(cmd, EventCreated, EventData{
		OwnerName:  cmd.Data.OwnerName,
		OwnerEmail: cmd.Data.OwnerEmail,
		Currency:   cmd.Data.Currency,
		Overdraft:  cmd.Data.Overdraft,
	}), nil
}

func decideDeposit(state Account, cmd Command) (Event, error) {
	if !state.IsActive() {
		return Event{}, ErrAccountNotActive
	}
	if !money.IsPositive(cmd.Data.Amount) {
		return Event{}, ErrDepositTooSmall
	}
	return newEvent(cmd, EventDeposited, EventData{Amount: cmd.Data.Amount, MoneyTransaction: true}), nil
}

func decideDebit(state Account, cmd Command) (Event, error) {
	if !state.IsActive() {
		return Event{}, ErrAccountNotActive
	}
	if !money.IsPositive(cmd.Data.Amount) {
		return Event{}, ErrDebitAmountNotPositive
	}

	overdraft := state.Overdraft
	if overdraft.IsZero() {
		overdraft = DefaultOverdraft
	}
	floor := overdraft.Neg()
	if state.Balance.Sub(cmd.Data.Amount).LessThan(floor) {
		return Event{}, &InsufficientBalanceError{Balance: state.Balance, Requested: cmd.Data.Amount}
	}

	if state.DailyDebit.HasLimit() {
		accrued := state.DailyDebit.Accrued
		if !sameDay(state.DailyDebit.LastResetAt, cmd.Timestamp) {
			accrued = money.Zero
		}
		if accrued.Add(cmd.Data.Amount).GreaterThan(state.DailyDebit.Limit) {
			return Event{}, &ExceededDailyDebitError{Limit: state.DailyDebit.Limit, Accrued: accrued}
		}
	}
	if state.MonthlyDebit.HasLimit() {
		accrued := state.MonthlyDebit.Accrued
		if !sameDay(state.MonthlyDebit.LastResetAt, cmd.Timestamp) {
			accrued = money.Zero
		}
		if accrued.Add(cmd.Data.Amount).GreaterThan(state.MonthlyDebit.Limit) {
			return Event{}, &ExceededMonthlyDebitError{Limit: state.MonthlyDebit.Limit, Accrued: accrued}
		}
	}

	return newEvent(cmd, EventDebited, EventData{
		Amount:           cmd.Data.Amount,
		EmployeeID:       cmd.Data.EmployeeID,
		CardID:           cmd.Data.CardID,
		MoneyTransaction: true,
	}), nil
}

func decideUpdateDailyDebitLimit(state Account, cmd Command) (Event, error) {
	if !state.IsActive() {
		return Event{}, ErrAccountNotActive
	}
	return newEvent(cmd, EventDailyDebitLimitUpdated, EventData{DailyLimit: cmd.Data.DailyLimit}), nil
}

func decideRegisterDomesticRecipient(state Account, cmd Command) (Event, error) {
	if !state.IsActive() {
		return Event{}, ErrAccountNotActive
	}
	return newEvent(cmd, EventDomesticRecipientRegistered, EventData{
		RecipientID: cmd.Data.RecipientID,
		Recipient:   cmd.Data.Recipient,
	}), nil
}

func decideEditDomesticRecipient(state Account, cmd Command) (Event, error) {
	if !state.IsActive() {
		return Event{}, ErrAccountNotActive
	}
	if _, ok := state.Recipients[cmd.Data.RecipientID]; !ok {
		return Event{}, ErrRecipientNotRegistered
	}
	return newEvent(cmd, EventDomesticRecipientEdited, EventData{
		RecipientID: cmd.Data.RecipientID,
		Recipient:   cmd.Data.Recipient,
	}), nil
}

func decideOutboundTransfer(state Account, cmd Command, pendingKind EventKind) (Event, error) {
	if !state.IsActive() {
		return Event{}, ErrAccountNotActive
	}
	if !money.IsPositive(cmd.Data.Amount) {
		return Event{}, ErrDebitAmountNotPositive
	}

	recipient, ok := state.Recipients[cmd.Data.RecipientID]
	if !ok {
		return Event{}, ErrRecipientNotRegistered
	}
	if recipient.Status == RecipientInvalidAccount || recipient.Status == RecipientClosed {
		return Event{}, ErrRecipientDeactivated
	}

	overdraft := state.Overdraft
	if overdraft.IsZero() {
		overdraft = DefaultOverdraft
	}
	floor := overdraft.Neg()
	if state.Balance.Sub(cmd.Data.Amount).LessThan(floor) {
		return Event{}, &InsufficientBalanceError{Balance: state.Balance, Requested: cmd.Data.Amount}
	}

	return newEvent(cmd, pendingKind, EventData{
		Amount:           cmd.Data.Amount,
		RecipientID:      cmd.Data.RecipientID,
		MoneyTransaction: true,
	}), nil
}

func decideInternalTransferWithinOrg(state Account, cmd Command) (Event, error) {
	return decideOutboundTransfer(state, cmd, EventInternalTransferWithinOrgPending)
}

func decideInternalTransferBetweenOrgs(state Account, cmd Command) (Event, error) {
	return decideOutboundTransfer(state, cmd, EventInternalTransferBetweenOrgsPending)
}

func decideDomesticTransfer(state Account, cmd Command) (Event, error) {
	if !state.IsActive() {
		return Event{}, ErrAccountNotActive
	}
	if cmd.Data.RecipientID == "" {
		return Event{}, ErrSenderRegistrationRequired
	}
	recipient, ok := state.Recipients[cmd.Data.RecipientID]
	if !ok {
		return Event{}, ErrRecipientNotRegistered
	}
	if recipient.Kind != RecipientDomestic {
		return Event{}, &ValidationFailureError{Field: "recipientId", Reason: "recipient is not a domestic recipient"}
	}
	if recipient.Status != RecipientConfirmed {
		return Event{}, ErrRecipientDeactivated
	}

	overdraft := state.Overdraft
	if overdraft.IsZero() {
		overdraft = DefaultOverdraft
	}
	floor := overdraft.Neg()
	if state.Balance.Sub(cmd.Data.Amount).LessThan(floor) {
		return Event{}, &InsufficientBalanceError{Balance: state.Balance, Requested: cmd.Data.Amount}
	}

	return newEvent(cmd, EventDomesticTransferPending, EventData{
		Amount:           cmd.Data.Amount,
		RecipientID:      cmd.Data.RecipientID,
		MoneyTransaction: true,
	}), nil
}

func decideTerminalTransfer(state Account, cmd Command, approvedKind, rejectedKind EventKind) (Event, error) {
	t, ok := state.InFlightTransfers[cmd.CorrelationID]
	if !ok {
		return Event{}, ErrTransferProgressNoChange
	}
	if t.Progress != ProgressPending {
		return Event{}, ErrTransferAlreadyProgressed
	}

	if cmd.Kind == CmdRejectInternalTransfer || cmd.Kind == CmdRejectDomesticTransfer {
		return newEvent(cmd, rejectedKind, EventData{RejectReason: cmd.Data.RejectReason}), nil
	}
	return newEvent(cmd, approvedKind, EventData{}), nil
}

func decideApproveInternalTransfer(state Account, cmd Command) (Event, error) {
	t, ok := state.InFlightTransfers[cmd.CorrelationID]
	if !ok {
		return Event{}, ErrTransferProgressNoChange
	}
	if t.Kind == TransferBetweenOrgs {
		return decideTerminalTransfer(state, cmd, EventInternalTransferBetweenOrgsApproved, EventInternalTransferBetweenOrgsRejected)
	}
	return decideTerminalTransfer(state, cmd, EventInternalTransferWithinOrgApproved, EventInternalTransferWithinOrgRejected)
}

func decideRejectInternalTransfer(state Account, cmd Command) (Event, error) {
	t, ok := state.InFlightTransfers[cmd.CorrelationID]
	if !ok {
		return Event{}, ErrTransferProgressNoChange
	}
	if t.Kind == TransferBetweenOrgs {
		return decideTerminalTransfer(state, cmd, EventInternalTransferBetweenOrgsApproved, EventInternalTransferBetweenOrgsRejected)
	}
	return decideTerminalTransfer(state, cmd, EventInternalTransferWithinOrgApproved, EventInternalTransferWithinOrgRejected)
}

func decideDepositTransferWithinOrg(state Account, cmd Command) (Event, error) {
	if !state.IsActive() {
		return Event{}, ErrAccountNotActive
	}
	return newEvent(cmd, EventInternalTransferWithinOrgDeposited, EventData{
		Amount:           cmd.Data.Amount,
		MoneyTransaction: true,
	}), nil
}

func decideDepositTransferBetweenOrgs(state Account, cmd Command) (Event, error) {
	if !state.IsActive() {
		return Event{}, ErrAccountNotActive
	}
	return newEvent(cmd, EventInternalTransferBetweenOrgsDeposited, EventData{
		Amount:           cmd.Data.Amount,
		MoneyTransaction: true,
	}), nil
}

func decideApproveDomesticTransfer(state Account, cmd Command) (Event, error) {
	return decideTerminalTransfer(state, cmd, EventDomesticTransferApproved, EventDomesticTransferRejected)
}

func decideRejectDomesticTransfer(state Account, cmd Command) (Event, error) {
	return decideTerminalTransfer(state, cmd, EventDomesticTransferApproved, EventDomesticTransferRejected)
}

func decideUpdateDomesticTransferProgress(state Account, cmd Command) (Event, error) {
	t, ok := state.InFlightTransfers[cmd.CorrelationID]
	if !ok {
		return Event{}, ErrTransferProgressNoChange
	}
	if t.Progress != ProgressPending {
		return Event{}, ErrTransferProgressNoChange
	}
	return newEvent(cmd, EventDomesticTransferProgressUpdated, EventData{}), nil
}

func decideInternalAutoTransfer(state Account, cmd Command) (Event, error) {
	evt, err := decideOutboundTransfer(state, cmd, EventInternalAutomatedTransferPending)
	if err != nil {
		return Event{}, err
	}
	evt.Data.Automated = true
	return evt, nil
}

func decideStartBillingCycle(state Account, cmd Command) (Event, error) {
	if !state.IsActive() {
		return Event{}, ErrAccountNotActive
	}
	month, year := int(cmd.Timestamp.Month()), cmd.Timestamp.Year()
	if state.LastBillingCycle != nil {
		lm, ly := int(state.LastBillingCycle.Month()), state.LastBillingCycle.Year()
		if lm == month && ly == year {
			return Event{}, ErrDateNotDefault
		}
	}
	return newEvent(cmd, EventBillingCycleStarted, EventData{BillingMonth: month, BillingYear: year}), nil
}

func decideCloseAccount(state Account, cmd Command) (Event, error) {
	if state.Status != StatusActive {
		return Event{}, ErrAccountNotActive
	}
	return newEvent(cmd, EventAccountClosed, EventData{}), nil
}

func decideDeleteMessages(state Account, cmd Command) (Event, error) {
	if state.Status != StatusClosed {
		return Event{}, ErrAccountNotReadyToActivate
	}
	for _, t := range state.InFlightTransfers {
		if t.Progress == ProgressPending {
			return Event{}, ErrTransferProgressNoChange
		}
	}
	return newEvent(cmd, EventAccountReadyForDelete, EventData{}), nil
}

func decideDepositPlatformPayment(state Account, cmd Command) (Event, error) {
	if !state.IsActive() {
		return Event{}, ErrAccountNotActive
	}
	return newEvent(cmd, EventPlatformPaymentPaid, EventData{
		Amount:           cmd.Data.Amount,
		PayeeAccountID:   cmd.Data.PayeeAccountID,
		MoneyTransaction: true,
	}), nil
}

// decideChargeMaintenanceFee and decideSkipMaintenanceFee are issued by the
// account actor after BillingCycleStarted, once it has folded the lookback
// window into a MaintenanceFeeCriteria snapshot via EvaluateMaintenanceFeeCriteria
// (§4.7). decide itself never re-derives the criteria from history — it only
// records the decision the actor already made.
func decideChargeMaintenanceFee(state Account, cmd Command) (Event, error) {
	if !state.IsActive() {
		return Event{}, ErrAccountNotActive
	}
	return newEvent(cmd, EventMaintenanceFeeDebited, EventData{
		Amount:           cmd.Data.Amount,
		FeeSkippedReason: cmd.Data.FeeCriteria,
		MoneyTransaction: true,
	}), nil
}

func decideSkipMaintenanceFee(state Account, cmd Command) (Event, error) {
	if !state.IsActive() {
		return Event{}, ErrAccountNotActive
	}
	return newEvent(cmd, EventMaintenanceFeeSkipped, EventData{
		FeeSkippedReason: cmd.Data.FeeCriteria,
	}), nil
}

func newEvent(cmd Command, kind EventKind, data EventData) Event {
	return Event{
		Envelope: cmd.Envelope,
		Kind:     kind,
		Data:     data,
	}
}
