package account

import (
	"time"

	"coreledger/internal/money"
)

// MaintenanceFeeLookback is the window over which deposit/balance criteria
// are folded, per §4.1.
const MaintenanceFeeLookback = 27 * 24 * time.Hour

// DailyBalanceObservation is one day's closing balance, as reconstructed
// from the event stream for the lookback window.
type DailyBalanceObservation struct {
	Date    time.Time
	Balance money.Amount
}

// DepositObservation is one deposit event in the lookback window.
type DepositObservation struct {
	Date   time.Time
	Amount money.Amount
}

// EvaluateMaintenanceFeeCriteria folds the lookback window's daily balances
// and deposits into the two-boolean criteria snapshot described in §4.1:
// balanceCriteria turns false the moment any observed daily balance falls
// below threshold; depositCriteria turns true (and short-circuits further
// scanning of deposits) on the first qualifying deposit >= threshold.
func EvaluateMaintenanceFeeCriteria(balances []DailyBalanceObservation, deposits []DepositObservation, threshold money.Amount) MaintenanceFeeCriteria {
	criteria := MaintenanceFeeCriteria{
		BalanceThresholdHeldAllDays: true,
		QualifyingDepositFound:      false,
	}

	for _, b := range balances {
		if b.Balance.LessThan(threshold) {
			criteria.BalanceThresholdHeldAllDays = false
			break
		}
	}

	for _, d := range deposits {
		if d.Amount.GreaterThanOrEqual(threshold) {
			criteria.QualifyingDepositFound = true
			break
		}
	}

	return criteria
}
