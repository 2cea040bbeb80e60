package account

import (
	"time"

	"github.com/google/uuid"

	"coreledger/internal/money"
)

// EventKind tags each Account event variant.
type EventKind string

const (
	EventCreated                            EventKind = "created"
	EventDeposited                          EventKind = "deposited"
	EventDebited                            EventKind = "debited"
	EventMaintenanceFeeDebited               EventKind = "maintenance_fee_debited"
	EventMaintenanceFeeSkipped                EventKind = "maintenance_fee_skipped"
	EventDailyDebitLimitUpdated               EventKind = "daily_debit_limit_updated"
	EventInternalTransferWithinOrgPending     EventKind = "internal_transfer_within_org_pending"
	EventInternalTransferWithinOrgApproved    EventKind = "internal_transfer_within_org_approved"
	EventInternalTransferWithinOrgRejected    EventKind = "internal_transfer_within_org_rejected"
	EventInternalTransferWithinOrgDeposited   EventKind = "internal_transfer_within_org_deposited"
	EventInternalTransferBetweenOrgsPending   EventKind = "internal_transfer_between_orgs_pending"
	EventInternalTransferBetweenOrgsApproved  EventKind = "internal_transfer_between_orgs_approved"
	EventInternalTransferBetweenOrgsRejected  EventKind = "internal_transfer_between_orgs_rejected"
	EventInternalTransferBetweenOrgsDeposited EventKind = "internal_transfer_between_orgs_deposited"
	EventInternalTransferBetweenOrgsScheduled EventKind = "internal_transfer_between_orgs_scheduled"
	EventDomesticTransferPending              EventKind = "domestic_transfer_pending"
	EventDomesticTransferApproved              EventKind = "domestic_transfer_approved"
	EventDomesticTransferRejected              EventKind = "domestic_transfer_rejected"
	EventDomesticTransferDeposited             EventKind = "domestic_transfer_deposited"
	EventDomesticTransferScheduled              EventKind = "domestic_transfer_scheduled"
	EventDomesticTransferProgressUpdated        EventKind = "domestic_transfer_progress_updated"
	EventInternalAutomatedTransferPending        EventKind = "internal_automated_transfer_pending"
	EventInternalAutomatedTransferApproved       EventKind = "internal_automated_transfer_approved"
	EventInternalAutomatedTransferRejected       EventKind = "internal_automated_transfer_rejected"
	EventInternalAutomatedTransferDeposited      EventKind = "internal_automated_transfer_deposited"
	EventTransferScheduled                       EventKind = "transfer_scheduled"
	EventDomesticRecipientRegistered              EventKind = "domestic_recipient_registered"
	EventDomesticRecipientEdited                   EventKind = "domestic_recipient_edited"
	EventBillingCycleStarted                      EventKind = "billing_cycle_started"
	EventAccountClosed                             EventKind = "account_closed"
	EventAccountReadyForDelete                      EventKind = "account_ready_for_delete"
	EventPlatformPaymentPaid                       EventKind = "platform_payment_paid"
)

// Envelope is the common header every event and command carries, per §3/§6.
type Envelope struct {
	EntityID      uuid.UUID
	OrgID         uuid.UUID
	CorrelationID uuid.UUID
	InitiatedByID uuid.UUID
	Timestamp     time.Time
}

// Event is one persisted fact in an account's stream.
type Event struct {
	Envelope
	Kind EventKind
	Data EventData
}

// EventData is the payload carried by an Event. Only the field matching Kind
// is populated; the others are left zero. A richer design would use a sum
// type per variant, but a single flat struct keeps journal serialization to
// one JSON shape per aggregate, matching how the journal stores events.
type EventData struct {
	Amount    money.Amount
	NewBalance money.Amount

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

	FeeSkippedReason MaintenanceFeeCriteria

	BillingMonth int
	BillingYear  int

	PayeeAccountID uuid.UUID

	// MoneyTransaction mirrors §4.4's "any event whose moneyTransaction is
	// Some" trigger for per-transaction auto-transfer evaluation: true when
	// this event represents an actual balance-moving transaction (deposit,
	// debit, transfer deposit) as opposed to a status/metadata event.
	MoneyTransaction bool
	// Automated marks events produced by the auto-transfer engine so they
	// are excluded from re-triggering further per-transaction evaluation.
	Automated bool
}
