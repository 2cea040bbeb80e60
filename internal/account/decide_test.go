package account

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coreledger/internal/money"
)

func newActiveAccount(balance money.Amount) Account {
	a := NewEmpty(uuid.New(), uuid.New())
	a.Status = StatusActive
	a.Balance = balance
	a.Currency = "USD"
	return a
}

func envelopeFor(a Account, correlation uuid.UUID) Envelope {
	return Envelope{
		EntityID:      a.AccountID,
		OrgID:         a.OrgID,
		CorrelationID: correlation,
		InitiatedByID: uuid.New(),
		Timestamp:     time.Now(),
	}
}

func TestDebitInsufficientBalanceProducesNoEvent(t *testing.T) {
	a := newActiveAccount(money.New(10))

	cmd := Command{
		Envelope: envelopeFor(a, uuid.New()),
		Kind:     CmdDebit,
		Data:     CommandData{Amount: money.New(20)},
	}

	_, err := Decide(a, cmd)
	require.Error(t, err)

	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Balance.Equal(money.New(10)))
	assert.True(t, insufficient.Requested.Equal(money.New(20)))
}

func TestDebitHappyPathUpdatesBalanceAndAccrual(t *testing.T) {
	a := newActiveAccount(money.New(100))

	cmd := Command{
		Envelope: envelopeFor(a, uuid.New()),
		Kind:     CmdDebit,
		Data:     CommandData{Amount: money.New(30)},
	}

	evt, err := Decide(a, cmd)
	require.NoError(t, err)
	assert.Equal(t, EventDebited, evt.Kind)

	next := Apply(a, evt)
	assert.True(t, next.Balance.Equal(money.New(70)))
	assert.True(t, next.DailyDebit.Accrued.Equal(money.New(30)))
}

func TestMaintenanceFeeSkippedWhenQualifyingDepositPresent(t *testing.T) {
	deposits := []DepositObservation{{Date: time.Now(), Amount: money.New(300)}}
	balances := []DailyBalanceObservation{{Date: time.Now(), Balance: money.New(10)}}

	criteria := EvaluateMaintenanceFeeCriteria(balances, deposits, money.New(250))

	assert.True(t, criteria.QualifyingDepositFound)
	assert.True(t, criteria.FeeSkipped())
}

func TestInternalTransferWithinOrgHappyPath(t *testing.T) {
	sender := newActiveAccount(money.New(1000))
	recipientID := uuid.New()
	sender.Recipients[recipientID.String()] = Recipient{
		Kind:              RecipientInternalWithinOrg,
		Status:            RecipientConfirmed,
		InternalAccountID: recipientID,
		InternalOrgID:     sender.OrgID,
	}

	correlation := uuid.New()
	pendingCmd := Command{
		Envelope: envelopeFor(sender, correlation),
		Kind:     CmdInternalTransferWithinOrg,
		Data: CommandData{
			Amount:      money.New(200),
			RecipientID: recipientID.String(),
		},
	}

	pendingEvt, err := Decide(sender, pendingCmd)
	require.NoError(t, err)
	assert.Equal(t, EventInternalTransferWithinOrgPending, pendingEvt.Kind)

	senderAfterPending := Apply(sender, pendingEvt)
	assert.True(t, senderAfterPending.Balance.Equal(money.New(800)))

	approveCmd := Command{
		Envelope: envelopeFor(senderAfterPending, correlation),
		Kind:     CmdApproveInternalTransfer,
	}
	approveEvt, err := Decide(senderAfterPending, approveCmd)
	require.NoError(t, err)
	assert.Equal(t, EventInternalTransferWithinOrgApproved, approveEvt.Kind)
	assert.Equal(t, correlation, approveEvt.CorrelationID)

	senderFinal := Apply(senderAfterPending, approveEvt)
	assert.True(t, senderFinal.Balance.Equal(money.New(800)))
	assert.Equal(t, ProgressApproved, senderFinal.InFlightTransfers[correlation].Progress)

	recipient := newActiveAccount(money.New(0))
	depositCmd := Command{
		Envelope: Envelope{
			EntityID:      recipient.AccountID,
			OrgID:         recipient.OrgID,
			CorrelationID: correlation,
			Timestamp:     time.Now(),
		},
		Kind: CmdDepositTransferWithinOrg,
		Data: CommandData{Amount: money.New(200)},
	}
	depositEvt, err := Decide(recipient, depositCmd)
	require.NoError(t, err)
	assert.Equal(t, EventInternalTransferWithinOrgDeposited, depositEvt.Kind)
	assert.Equal(t, correlation, depositEvt.CorrelationID)

	recipientFinal := Apply(recipient, depositEvt)
	assert.True(t, recipientFinal.Balance.Equal(money.New(200)))
}

func TestDomesticTransferRetryAfterRecipientEdit(t *testing.T) {
	a := newActiveAccount(money.New(500))
	recipientID := "wire-1"
	a.Recipients[recipientID] = Recipient{
		Kind:          RecipientDomestic,
		Status:        RecipientConfirmed,
		RoutingNumber: "bad-routing",
	}

	rejectedCorrelation := uuid.New()
	a.FailedDomesticTransfers = append(a.FailedDomesticTransfers, FailedDomesticTransfer{
		CorrelationID: rejectedCorrelation,
		RecipientID:   recipientID,
		Amount:        money.New(75),
		Reason:        RejectInvalidAccountInfo,
	})

	editCmd := Command{
		Envelope: envelopeFor(a, uuid.New()),
		Kind:     CmdEditDomesticTransferRecipient,
		Data: CommandData{
			RecipientID: recipientID,
			Recipient: Recipient{
				Kind:          RecipientDomestic,
				Status:        RecipientConfirmed,
				RoutingNumber: "fixed-routing",
			},
		},
	}

	evt, err := Decide(a, editCmd)
	require.NoError(t, err)
	assert.Equal(t, EventDomesticRecipientEdited, evt.Kind)

	next := Apply(a, evt)
	assert.Empty(t, next.FailedDomesticTransfers)
	assert.Equal(t, "fixed-routing", next.Recipients[recipientID].RoutingNumber)
}

func TestAutoTransferBatchRejectsAsWholeOnOverdraft(t *testing.T) {
	a := newActiveAccount(money.New(100))
	target := uuid.New()
	a.Recipients[target.String()] = Recipient{
		Kind:              RecipientInternalWithinOrg,
		Status:            RecipientConfirmed,
		InternalAccountID: target,
		InternalOrgID:     a.OrgID,
	}
	a.AutoTransferRules = []AutoTransferRule{
		{RuleID: uuid.New(), Kind: RulePeriodicDistribution, Frequency: FrequencyPerTransaction, TargetAccountID: target, Amount: money.New(80)},
		{RuleID: uuid.New(), Kind: RulePeriodicDistribution, Frequency: FrequencyPerTransaction, TargetAccountID: target, Amount: money.New(80)},
	}

	computed := ComputeAutoTransfers(a, FrequencyPerTransaction)
	require.Len(t, computed, 2)

	cmds := BuildAutoTransferCommands(a, computed, time.Now(), a.AccountID)
	_, err := DecideMany(a, cmds)
	require.Error(t, err)

	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
}

func TestClosureDrainRefusesNewCommandsAndDrains(t *testing.T) {
	a := newActiveAccount(money.New(500))
	correlation := uuid.New()
	a.InFlightTransfers[correlation] = InFlightTransfer{
		CorrelationID: correlation,
		Kind:          TransferDomestic,
		Direction:     DirectionOutbound,
		Progress:      ProgressPending,
		Amount:        money.New(50),
	}

	closeEvt, err := Decide(a, Command{Envelope: envelopeFor(a, uuid.New()), Kind: CmdCloseAccount})
	require.NoError(t, err)
	closed := Apply(a, closeEvt)
	assert.Equal(t, StatusClosed, closed.Status)

	_, err = Decide(closed, Command{Envelope: envelopeFor(closed, uuid.New()), Kind: CmdDepositCash, Data: CommandData{Amount: money.New(10)}})
	require.ErrorIs(t, err, ErrAccountNotActive)

	rejectEvt, err := Decide(closed, Command{
		Envelope: Envelope{EntityID: closed.AccountID, OrgID: closed.OrgID, CorrelationID: correlation, Timestamp: time.Now()},
		Kind:     CmdRejectDomesticTransfer,
		Data:     CommandData{RejectReason: RejectUnknown},
	})
	require.NoError(t, err)
	drained := Apply(closed, rejectEvt)

	_, err = Decide(drained, Command{Envelope: envelopeFor(drained, uuid.New()), Kind: CmdDeleteMessages})
	require.NoError(t, err)
}
