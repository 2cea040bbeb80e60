package employee

import (
	"github.com/google/uuid"

	"coreledger/internal/money"
)

// CommandKind tags each Employee command variant accepted by Decide.
type CommandKind string

const (
	CmdInvite            CommandKind = "invite"
	CmdAcceptInvite      CommandKind = "accept_invite"
	CmdRevokeInvite      CommandKind = "revoke_invite"
	CmdIssueCard         CommandKind = "issue_card"
	CmdLockCard          CommandKind = "lock_card"
	CmdUpdateCardLimit   CommandKind = "update_card_limit"
	CmdRequestDebit      CommandKind = "request_debit"
	CmdApproveDebit      CommandKind = "approve_debit"
	CmdDeclineDebit      CommandKind = "decline_debit"
)

// Command is one inbound request against the Employee aggregate.
type Command struct {
	Envelope
	Kind CommandKind
	Data CommandData
}

// CommandData is the payload carried by a Command; only fields relevant to
// Kind are populated.
type CommandData struct {
	Name  string
	Email string
	Role  Role

	CardID  uuid.UUID
	Last4   string
	Virtual bool

	Window string
	Limit  money.Amount

	AccountID     uuid.UUID
	Amount        money.Amount
	DeclineReason string
}
