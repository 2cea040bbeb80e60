// Package employee implements the Employee aggregate: card-backed purchase
// requests that couple to the Account aggregate via compensating commands,
// per the account actor's Debited/DeclineDebit dispatch.
package employee

import (
	"time"

	"github.com/google/uuid"

	"coreledger/internal/money"
)

// Role distinguishes the employee's standing within the organization for
// card-issuance policy; decide does not itself enforce role-gated limits
// (that is the card's own Limit fields), it only records the role.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// InviteStatus tracks an outstanding invitation's lifecycle.
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteRevoked  InviteStatus = "revoked"
)

// SpendWindow tracks accrued card spend against a rolling limit, reset when
// the observed date advances past the stored anchor date — mirrors
// account.DailyMonthlyCounter, duplicated here because Card's accrual is
// scoped to the card, not the owning account.
type SpendWindow struct {
	Limit       money.Amount
	Accrued     money.Amount
	LastResetAt time.Time
}

// HasLimit reports whether a nonzero limit is configured.
func (w SpendWindow) HasLimit() bool {
	return !w.Limit.IsZero()
}

// CardStatus is the lifecycle state of one issued card.
type CardStatus string

const (
	CardActive CardStatus = "active"
	CardLocked CardStatus = "locked"
	CardClosed CardStatus = "closed"
)

// Card is one payment card issued to the employee.
type Card struct {
	CardID  uuid.UUID
	Last4   string
	Virtual bool
	Status  CardStatus

	DailySpend   SpendWindow
	MonthlySpend SpendWindow
}

// PurchaseStatus is the workflow state of one in-flight card-purchase
// request, keyed by CorrelationID in Employee.PendingPurchases.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseApproved  PurchaseStatus = "approved"
	PurchaseDeclined  PurchaseStatus = "declined"
)

// PendingPurchase tracks a card purchase awaiting the originating account's
// Debited/DeclineDebit response.
type PendingPurchase struct {
	CorrelationID uuid.UUID
	CardID        uuid.UUID
	AccountID     uuid.UUID
	Amount        money.Amount
	Status        PurchaseStatus
	DeclineReason string
}

// Employee is the full in-memory aggregate state, rebuilt by folding Apply
// over the entity's event stream.
type Employee struct {
	EmployeeID uuid.UUID
	OrgID      uuid.UUID

	Name  string
	Email string
	Role  Role

	InviteToken  string
	InviteStatus InviteStatus

	Cards map[uuid.UUID]Card

	PendingPurchases map[uuid.UUID]PendingPurchase

	SeqNo uint64
}

// NewEmpty returns the zero-value state a fresh entity starts from before
// its first Invited event is applied.
func NewEmpty(employeeID, orgID uuid.UUID) Employee {
	return Employee{
		EmployeeID:       employeeID,
		OrgID:            orgID,
		Cards:            make(map[uuid.UUID]Card),
		PendingPurchases: make(map[uuid.UUID]PendingPurchase),
	}
}

// IsActive reports whether the employee has accepted their invite and can
// have cards issued or purchases requested against them.
func (e Employee) IsActive() bool {
	return e.InviteStatus == InviteAccepted
}
