package accountactor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coreledger/internal/account"
	"coreledger/internal/billingstatement"
	"coreledger/internal/money"
	"coreledger/internal/notify"
)

// handleBillingCycle implements §4.7's per-account billing handler: fold the
// lookback window into a MaintenanceFeeCriteria snapshot, issue
// ChargeMaintenanceFee or SkipMaintenanceFee accordingly, append the
// statement, and queue the billing-ready notification.
func (a *Actor) handleBillingCycle(ctx context.Context, entityID uuid.UUID, state account.Account, evt account.Event) {
	criteria, err := a.evaluateFeeCriteria(ctx, entityID)
	if err != nil {
		if a.log != nil {
			a.log.Error("evaluate maintenance fee criteria", zap.String("account_id", entityID.String()), zap.Error(err))
		}
		return
	}

	cmd := account.Command{
		Envelope: account.Envelope{
			EntityID:      entityID,
			OrgID:         state.OrgID,
			CorrelationID: uuid.New(),
			InitiatedByID: entityID,
			Timestamp:     time.Now(),
		},
		Data: account.CommandData{FeeCriteria: criteria},
	}

	feeCharged := !criteria.FeeSkipped()
	if feeCharged {
		cmd.Kind = account.CmdChargeMaintenanceFee
		cmd.Data.Amount = a.feeAmount
	} else {
		cmd.Kind = account.CmdSkipMaintenanceFee
	}

	if _, err := a.Runtime.Ask(ctx, entityID, cmd); err != nil {
		if a.log != nil {
			a.log.Warn("maintenance fee decision rejected", zap.String("account_id", entityID.String()), zap.Error(err))
		}
		return
	}

	if a.statements != nil {
		feeAmount := money.Zero
		if feeCharged {
			feeAmount = a.feeAmount
		}
		_ = a.statements.Append(ctx, billingstatement.Statement{
			AccountID:   entityID,
			OrgID:       state.OrgID,
			Month:       evt.Data.BillingMonth,
			Year:        evt.Data.BillingYear,
			Balance:     state.Balance,
			FeeCharged:  feeCharged,
			FeeAmount:   feeAmount,
			GeneratedAt: time.Now(),
		})
	}

	if state.OwnerEmail != "" {
		feeAmountStr := ""
		if feeCharged {
			feeAmountStr = a.feeAmount.String()
		}
		_ = a.sendNotify(ctx, notify.Message{
			Kind:         notify.KindBillingStatement,
			Recipient:    state.OwnerEmail,
			OwnerName:    state.OwnerName,
			BillingMonth: fmt.Sprintf("%04d-%02d", evt.Data.BillingYear, evt.Data.BillingMonth),
			FeeCharged:   feeCharged,
			FeeAmount:    feeAmountStr,
		})
	}
}

// evaluateFeeCriteria replays this entity's own event stream (bounded to the
// lookback window for the observations it collects, but folded from the
// start so the balance at each observed day is correct) through account.Apply
// — not a hand-rolled balance reconstruction — so the criteria snapshot can
// never drift from what Apply itself considers the account's balance.
func (a *Actor) evaluateFeeCriteria(ctx context.Context, entityID uuid.UUID) (account.MaintenanceFeeCriteria, error) {
	since := time.Now().Add(-account.MaintenanceFeeLookback)

	out, errc := a.store.ReadEvents(ctx, entityID.String(), 0, 0)

	state := account.NewEmpty(entityID, uuid.Nil)
	var deposits []account.DepositObservation
	var balances []account.DailyBalanceObservation
	dayIndex := make(map[string]int)

	for rec := range out {
		var evt account.Event
		if err := json.Unmarshal(rec.Payload, &evt); err != nil {
			return account.MaintenanceFeeCriteria{}, fmt.Errorf("decode event seq %d: %w", rec.Seq, err)
		}
		state = account.Apply(state, evt)

		if evt.Timestamp.Before(since) {
			continue
		}
		if evt.Kind == account.EventDeposited {
			deposits = append(deposits, account.DepositObservation{Date: evt.Timestamp, Amount: evt.Data.Amount})
		}

		day := evt.Timestamp.Format("2006-01-02")
		if idx, ok := dayIndex[day]; ok {
			balances[idx].Balance = state.Balance
		} else {
			dayIndex[day] = len(balances)
			balances = append(balances, account.DailyBalanceObservation{Date: evt.Timestamp, Balance: state.Balance})
		}
	}
	if err := <-errc; err != nil {
		return account.MaintenanceFeeCriteria{}, fmt.Errorf("replay: %w", err)
	}

	return account.EvaluateMaintenanceFeeCriteria(balances, deposits, a.feeThreshold), nil
}
