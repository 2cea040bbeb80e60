package employee

import (
	"time"

	"github.com/google/uuid"

	"coreledger/internal/money"
)

// EventKind tags each Employee event variant.
type EventKind string

const (
	EventInvited           EventKind = "invited"
	EventInviteAccepted    EventKind = "invite_accepted"
	EventInviteRevoked     EventKind = "invite_revoked"
	EventCardIssued        EventKind = "card_issued"
	EventCardLocked        EventKind = "card_locked"
	EventCardLimitUpdated  EventKind = "card_limit_updated"
	EventDebitRequested    EventKind = "debit_requested"
	EventPurchaseApproved  EventKind = "purchase_approved"
	EventPurchaseDeclined  EventKind = "purchase_declined"
)

// Envelope is the common header every Employee event/command carries,
// mirroring account.Envelope's shape for the Employee bounded context.
type Envelope struct {
	EntityID      uuid.UUID
	OrgID         uuid.UUID
	CorrelationID uuid.UUID
	InitiatedByID uuid.UUID
	Timestamp     time.Time
}

// Event is one persisted fact in an employee's stream.
type Event struct {
	Envelope
	Kind EventKind
	Data EventData
}

// EventData is the payload carried by an Event; only fields relevant to Kind
// are populated.
type EventData struct {
	Name  string
	Email string
	Role  Role

	InviteToken string

	CardID  uuid.UUID
	Last4   string
	Virtual bool

	Window string // "daily" or "monthly", for EventCardLimitUpdated
	Limit  money.Amount

	AccountID     uuid.UUID
	Amount        money.Amount
	DeclineReason string
}
