package employee

import (
	"errors"
	"fmt"
)

var (
	ErrInviteNotPending    = errors.New("invite not pending")
	ErrEmployeeNotActive   = errors.New("employee not active")
	ErrCardNotFound        = errors.New("card not found")
	ErrCardNotActive       = errors.New("card not active")
	ErrPurchaseNotPending  = errors.New("purchase not pending")
	ErrPurchaseNoChange    = errors.New("purchase progress no change")
	ErrDebitAmountNotPositive = errors.New("debit amount not positive")
)

// ExceededCardLimitError reports a purchase request that would exceed the
// card's own daily or monthly spend window, independent of the originating
// account's limits (which decide in the account package checks separately).
type ExceededCardLimitError struct {
	Window  string // "daily" or "monthly"
	Limit   string
	Accrued string
}

func (e *ExceededCardLimitError) Error() string {
	return fmt.Sprintf("exceeded card %s spend limit: limit %s, accrued %s", e.Window, e.Limit, e.Accrued)
}

// IsNoOp reports whether err is an idempotent-retry no-op that the employee
// actor should log at debug and otherwise ignore.
func IsNoOp(err error) bool {
	return errors.Is(err, ErrPurchaseNoChange)
}
