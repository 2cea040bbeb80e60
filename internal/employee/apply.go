package employee

import (
	"github.com/google/uuid"
)

// Apply is the total, side-effect-free fold used both for live transitions
// and for journal replay; it must never panic.
func Apply(state Employee, evt Event) Employee {
	next := state
	next.SeqNo++

	if next.Cards == nil {
		next.Cards = make(map[uuid.UUID]Card)
	}
	if next.PendingPurchases == nil {
		next.PendingPurchases = make(map[uuid.UUID]PendingPurchase)
	}

	switch evt.Kind {
	case EventInvited:
		next.EmployeeID = evt.EntityID
		next.OrgID = evt.OrgID
		next.Name = evt.Data.Name
		next.Email = evt.Data.Email
		next.Role = evt.Data.Role
		next.InviteStatus = InvitePending
		next.InviteToken = evt.Data.InviteToken

	case EventInviteAccepted:
		next.InviteStatus = InviteAccepted

	case EventInviteRevoked:
		next.InviteStatus = InviteRevoked

	case EventCardIssued:
		next.Cards[evt.Data.CardID] = Card{
			CardID:  evt.Data.CardID,
			Last4:   evt.Data.Last4,
			Virtual: evt.Data.Virtual,
			Status:  CardActive,
		}

	case EventCardLocked:
		if c, ok := next.Cards[evt.Data.CardID]; ok {
			c.Status = CardLocked
			next.Cards[evt.Data.CardID] = c
		}

	case EventCardLimitUpdated:
		if c, ok := next.Cards[evt.Data.CardID]; ok {
			switch evt.Data.Window {
			case "daily":
				c.DailySpend.Limit = evt.Data.Limit
			case "monthly":
				c.MonthlySpend.Limit = evt.Data.Limit
			}
			next.Cards[evt.Data.CardID] = c
		}

	case EventDebitRequested:
		next.PendingPurchases[evt.CorrelationID] = PendingPurchase{
			CorrelationID: evt.CorrelationID,
			CardID:        evt.Data.CardID,
			AccountID:     evt.Data.AccountID,
			Amount:        evt.Data.Amount,
			Status:        PurchasePending,
		}
		if c, ok := next.Cards[evt.Data.CardID]; ok {
			c.DailySpend.Accrued = c.DailySpend.Accrued.Add(evt.Data.Amount)
			c.MonthlySpend.Accrued = c.MonthlySpend.Accrued.Add(evt.Data.Amount)
			next.Cards[evt.Data.CardID] = c
		}

	case EventPurchaseApproved:
		if p, ok := next.PendingPurchases[evt.CorrelationID]; ok {
			p.Status = PurchaseApproved
			next.PendingPurchases[evt.CorrelationID] = p
		}

	case EventPurchaseDeclined:
		if p, ok := next.PendingPurchases[evt.CorrelationID]; ok {
			p.Status = PurchaseDeclined
			p.DeclineReason = evt.Data.DeclineReason
			next.PendingPurchases[evt.CorrelationID] = p

			if c, ok := next.Cards[p.CardID]; ok {
				c.DailySpend.Accrued = c.DailySpend.Accrued.Sub(p.Amount)
				c.MonthlySpend.Accrued = c.MonthlySpend.Accrued.Sub(p.Amount)
				next.Cards[p.CardID] = c
			}
		}
	}

	return next
}
