package account

import (
	"github.com/google/uuid"

	"coreledger/internal/money"
)

// CommandKind tags each Account command variant accepted by decide.
type CommandKind string

const (
	CmdCreate                       CommandKind = "create"
	CmdDepositCash                  CommandKind = "deposit_cash"
	CmdDebit                        CommandKind = "debit"
	CmdUpdateDailyDebitLimit        CommandKind = "update_daily_debit_limit"
	CmdRegisterDomesticRecipient    CommandKind = "register_domestic_recipient"
	CmdEditDomesticTransferRecipient CommandKind = "edit_domestic_transfer_recipient"
	CmdInternalTransferWithinOrg    CommandKind = "internal_transfer_within_org"
	CmdInternalTransferBetweenOrgs  CommandKind = "internal_transfer_between_orgs"
	CmdDomesticTransfer             CommandKind = "domestic_transfer"
	CmdApproveInternalTransfer      CommandKind = "approve_internal_transfer"
	CmdRejectInternalTransfer       CommandKind = "reject_internal_transfer"
	CmdDepositTransferWithinOrg     CommandKind = "deposit_transfer_within_org"
	CmdDepositTransferBetweenOrgs   CommandKind = "deposit_transfer_between_orgs"
	CmdApproveDomesticTransfer      CommandKind = "approve_domestic_transfer"
	CmdRejectDomesticTransfer       CommandKind = "reject_domestic_transfer"
	CmdUpdateDomesticTransferProgress CommandKind = "update_domestic_transfer_progress"
	CmdInternalAutoTransfer         CommandKind = "internal_auto_transfer"
	CmdStartBillingCycle            CommandKind = "start_billing_cycle"
	CmdCloseAccount                 CommandKind = "close_account"
	CmdDeleteMessages                CommandKind = "delete_messages"
	CmdDepositPlatformPayment        CommandKind = "deposit_platform_payment"
	CmdChargeMaintenanceFee          CommandKind = "charge_maintenance_fee"
	CmdSkipMaintenanceFee            CommandKind = "skip_maintenance_fee"
)

// Command is one inbound request against the Account aggregate.
type Command struct {
	Envelope
	Kind CommandKind
	Data CommandData
}

// CommandData is the payload carried by a Command; only fields relevant to
// Kind are populated.
type CommandData struct {
	Amount money.Amount

	OwnerName  string
	OwnerEmail string
	Currency   string
	Overdraft  money.Amount

	EmployeeID uuid.UUID
	CardID     uuid.UUID

	DailyLimit money.Amount

	RecipientID string
	Recipient   Recipient

	RejectReason RejectReason

	ProgressStatus string

	PayeeAccountID uuid.UUID

	// AutomatedRuleID ties an InternalAutoTransfer command back to the rule
	// that produced it, so the resulting event can be marked Automated.
	AutomatedRuleID uuid.UUID

	// FeeCriteria carries the externally-evaluated maintenance-fee snapshot
	// (see EvaluateMaintenanceFeeCriteria) into ChargeMaintenanceFee/
	// SkipMaintenanceFee, per §9's "mutable accumulator replaced by a pure
	// fold" design note: decide itself never replays the lookback window.
	FeeCriteria MaintenanceFeeCriteria
}
