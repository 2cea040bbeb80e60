// Package account implements the Account aggregate: its state, the pure
// decide/apply state-transition functions, and the auto-transfer and
// maintenance-fee rule evaluation that feed off current state.
package account

import (
	"time"

	"github.com/google/uuid"

	"coreledger/internal/money"
)

// Status is the account lifecycle state. It only ever moves forward:
// Active -> Closed -> ReadyForDelete.
type Status string

const (
	StatusActive         Status = "active"
	StatusClosed         Status = "closed"
	StatusReadyForDelete Status = "ready_for_delete"
)

// DefaultOverdraft is the balance floor applied when an account has no
// explicit overdraft allowance configured.
var DefaultOverdraft = money.Zero

// RecipientKind distinguishes the three transfer-recipient shapes an account
// can register.
type RecipientKind string

const (
	RecipientInternalWithinOrg  RecipientKind = "internal_within_org"
	RecipientInternalBetweenOrg RecipientKind = "internal_between_orgs"
	RecipientDomestic           RecipientKind = "domestic"
)

// RecipientStatus tracks whether a registered recipient is usable.
type RecipientStatus string

const (
	RecipientConfirmed      RecipientStatus = "confirmed"
	RecipientInvalidAccount RecipientStatus = "invalid_account"
	RecipientClosed         RecipientStatus = "closed"
)

// Recipient is a registered transfer target, keyed by an opaque recipient id
// chosen by the caller (e.g. the target AccountId string, or a domestic
// nickname).
type Recipient struct {
	Kind   RecipientKind
	Status RecipientStatus

	// InternalAccountID/InternalOrgID apply to RecipientInternalWithinOrg and
	// RecipientInternalBetweenOrg.
	InternalAccountID uuid.UUID
	InternalOrgID     uuid.UUID

	// Domestic fields apply to RecipientDomestic.
	RoutingNumber string
	AccountNumber string
	Depository    string
	PaymentNet    string
}

// TransferFrequency classifies an auto-transfer rule's evaluation cadence.
type TransferFrequency string

const (
	FrequencyPerTransaction TransferFrequency = "per_transaction"
	FrequencyDaily          TransferFrequency = "daily"
	FrequencyTwiceMonthly   TransferFrequency = "twice_monthly"
)

// AutoTransferRuleKind distinguishes the rule shapes §GLOSSARY names.
type AutoTransferRuleKind string

const (
	RuleZeroBalanceSweep  AutoTransferRuleKind = "zero_balance_sweep"
	RuleTargetBalanceTopUp AutoTransferRuleKind = "target_balance_top_up"
	RulePeriodicDistribution AutoTransferRuleKind = "periodic_distribution"
)

// AutoTransferRule is a declarative rule evaluated against current account
// state to produce automated internal transfers.
type AutoTransferRule struct {
	RuleID    uuid.UUID
	Kind      AutoTransferRuleKind
	Frequency TransferFrequency

	// TargetAccountID is the other side of the rule: for sweeps/top-ups it is
	// the managing account that receives or restores balance.
	TargetAccountID uuid.UUID
	TargetOrgID     uuid.UUID

	// Amount is used by RulePeriodicDistribution; TargetBalance is used by
	// RuleTargetBalanceTopUp. RuleZeroBalanceSweep ignores both and sweeps
	// the full balance.
	Amount        money.Amount
	TargetBalance money.Amount
}

// TransferDirection records whether this account is the sender or recipient
// side of an in-flight transfer, needed to interpret a later approve/reject.
type TransferDirection string

const (
	DirectionOutbound TransferDirection = "outbound"
	DirectionInbound  TransferDirection = "inbound"
)

// TransferKind distinguishes the four transfer workflows.
type TransferKind string

const (
	TransferWithinOrg   TransferKind = "within_org"
	TransferBetweenOrgs TransferKind = "between_orgs"
	TransferDomestic    TransferKind = "domestic"
	TransferAutomated   TransferKind = "automated"
)

// TransferProgress is the workflow state machine for one in-flight transfer,
// keyed by CorrelationID in Account.InFlightTransfers.
type TransferProgress string

const (
	ProgressPending  TransferProgress = "pending"
	ProgressApproved TransferProgress = "approved"
	ProgressRejected TransferProgress = "rejected"
	ProgressDeposited TransferProgress = "deposited"
)

// InFlightTransfer tracks one transfer's workflow state on this account's
// timeline, identified by CorrelationID.
type InFlightTransfer struct {
	CorrelationID uuid.UUID
	Kind          TransferKind
	Direction     TransferDirection
	Progress      TransferProgress
	Amount        money.Amount
	RecipientID   string
	CounterpartyAccountID uuid.UUID
	CounterpartyOrgID     uuid.UUID
}

// RejectReason enumerates the terminal reasons a transfer can be rejected.
type RejectReason string

const (
	RejectInvalidAccountInfo RejectReason = "invalid_account_info"
	RejectAccountClosed      RejectReason = "account_closed"
	RejectUnknown            RejectReason = "unknown"
)

// FailedDomesticTransfer records a rejected domestic transfer so a later
// recipient-info edit can trigger an automatic retry.
type FailedDomesticTransfer struct {
	CorrelationID uuid.UUID
	RecipientID   string
	Amount        money.Amount
	Reason        RejectReason
}

// MaintenanceFeeCriteria is the rolling snapshot folded over the lookback
// window (~27 days) used to decide whether the monthly fee is charged.
type MaintenanceFeeCriteria struct {
	// QualifyingDepositFound becomes true on the first deposit >= threshold
	// observed in the window and never resets within that window.
	QualifyingDepositFound bool
	// BalanceThresholdHeldAllDays becomes false the moment any observed
	// daily balance falls below the threshold.
	BalanceThresholdHeldAllDays bool
}

// FeeSkipped reports whether either criterion is sufficient to skip the fee.
func (c MaintenanceFeeCriteria) FeeSkipped() bool {
	return c.QualifyingDepositFound || c.BalanceThresholdHeldAllDays
}

// DailyMonthlyCounter tracks accrued spend against a rolling limit, reset
// when the observed date advances past the stored anchor date.
type DailyMonthlyCounter struct {
	Limit       money.Amount // zero Amount means "no limit configured"
	Accrued     money.Amount
	LastResetAt time.Time
}

// HasLimit reports whether a nonzero limit is configured.
func (c DailyMonthlyCounter) HasLimit() bool {
	return !c.Limit.IsZero()
}

// Account is the full in-memory aggregate state, rebuilt by folding apply
// over the entity's event stream (or restored from a snapshot and folding
// the remainder).
type Account struct {
	AccountID uuid.UUID
	OrgID     uuid.UUID
	Status    Status

	Balance  money.Amount
	Currency string

	OwnerName  string
	OwnerEmail string

	Overdraft money.Amount

	DailyDebit   DailyMonthlyCounter
	MonthlyDebit DailyMonthlyCounter

	Recipients map[string]Recipient

	InFlightTransfers map[uuid.UUID]InFlightTransfer

	FailedDomesticTransfers []FailedDomesticTransfer

	FeeCriteria MaintenanceFeeCriteria

	AutoTransferRules []AutoTransferRule

	LastBillingCycle *time.Time

	// SeqNo is the last applied event sequence number, used for optimistic
	// concurrency at append time. Zero means no events applied yet.
	SeqNo uint64
}

// NewEmpty returns the zero-value state a fresh entity starts from before
// its first Created event is applied.
func NewEmpty(accountID, orgID uuid.UUID) Account {
	return Account{
		AccountID:         accountID,
		OrgID:             orgID,
		Recipients:        make(map[string]Recipient),
		InFlightTransfers: make(map[uuid.UUID]InFlightTransfer),
	}
}

// IsActive reports whether commands other than transfer-terminal events
// should be accepted.
func (a Account) IsActive() bool {
	return a.Status == StatusActive
}
