package employee

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coreledger/internal/money"
)

func newActiveEmployee() Employee {
	e := NewEmpty(uuid.New(), uuid.New())
	e.InviteStatus = InviteAccepted
	return e
}

func envelopeFor(e Employee, correlation uuid.UUID) Envelope {
	return Envelope{
		EntityID:      e.EmployeeID,
		OrgID:         e.OrgID,
		CorrelationID: correlation,
		Timestamp:     time.Now(),
	}
}

func TestInviteThenAcceptActivatesEmployee(t *testing.T) {
	e := NewEmpty(uuid.New(), uuid.New())

	inviteEvt, err := Decide(e, Command{
		Envelope: envelopeFor(e, uuid.New()),
		Kind:     CmdInvite,
		Data:     CommandData{Name: "Ada Lovelace", Email: "ada@example.com", Role: RoleMember},
	})
	require.NoError(t, err)
	invited := Apply(e, inviteEvt)
	assert.Equal(t, InvitePending, invited.InviteStatus)
	assert.False(t, invited.IsActive())

	acceptEvt, err := Decide(invited, Command{Envelope: envelopeFor(invited, uuid.New()), Kind: CmdAcceptInvite})
	require.NoError(t, err)
	active := Apply(invited, acceptEvt)
	assert.True(t, active.IsActive())
}

func TestRequestDebitRejectedWhenCardLocked(t *testing.T) {
	e := newActiveEmployee()
	cardID := uuid.New()
	e.Cards[cardID] = Card{CardID: cardID, Status: CardLocked}

	_, err := Decide(e, Command{
		Envelope: envelopeFor(e, uuid.New()),
		Kind:     CmdRequestDebit,
		Data:     CommandData{CardID: cardID, AccountID: uuid.New(), Amount: money.New(25)},
	})
	require.ErrorIs(t, err, ErrCardNotActive)
}

func TestRequestDebitRejectedOverDailyLimit(t *testing.T) {
	e := newActiveEmployee()
	cardID := uuid.New()
	e.Cards[cardID] = Card{
		CardID: cardID,
		Status: CardActive,
		DailySpend: SpendWindow{
			Limit:   money.New(100),
			Accrued: money.New(90),
		},
	}

	_, err := Decide(e, Command{
		Envelope: envelopeFor(e, uuid.New()),
		Kind:     CmdRequestDebit,
		Data:     CommandData{CardID: cardID, AccountID: uuid.New(), Amount: money.New(20)},
	})

	var limitErr *ExceededCardLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "daily", limitErr.Window)
}

func TestDebitDeclinedRefundsAccruedSpend(t *testing.T) {
	e := newActiveEmployee()
	cardID := uuid.New()
	e.Cards[cardID] = Card{
		CardID: cardID,
		Status: CardActive,
		DailySpend: SpendWindow{
			Limit: money.New(1000),
		},
	}

	correlation := uuid.New()
	requestEvt, err := Decide(e, Command{
		Envelope: envelopeFor(e, correlation),
		Kind:     CmdRequestDebit,
		Data:     CommandData{CardID: cardID, AccountID: uuid.New(), Amount: money.New(40)},
	})
	require.NoError(t, err)
	pending := Apply(e, requestEvt)
	assert.True(t, pending.Cards[cardID].DailySpend.Accrued.Equal(money.New(40)))

	declineEvt, err := Decide(pending, Command{
		Envelope: envelopeFor(pending, correlation),
		Kind:     CmdDeclineDebit,
		Data:     CommandData{DeclineReason: "insufficient_account_funds"},
	})
	require.NoError(t, err)
	declined := Apply(pending, declineEvt)

	assert.Equal(t, PurchaseDeclined, declined.PendingPurchases[correlation].Status)
	assert.True(t, declined.Cards[cardID].DailySpend.Accrued.IsZero())
}
