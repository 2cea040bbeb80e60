package account

import (
	"errors"
	"fmt"

	"coreledger/internal/money"
)

// Sentinel validation errors named directly in the domain's error taxonomy.
// decide never wraps business-rule rejections in anything but these (or
// ValidationFailure for the catch-all case), so callers can type-switch on
// them directly.
var (
	ErrAccountNotActive           = errors.New("account not active")
	ErrAccountCardLocked          = errors.New("account card locked")
	ErrTransferAlreadyProgressed  = errors.New("transfer already progressed")
	ErrTransferProgressNoChange   = errors.New("transfer progress no change")
	ErrAccountNotReadyToActivate  = errors.New("account not ready to activate")
	ErrDepositTooSmall            = errors.New("deposit too small")
	ErrDebitAmountNotPositive     = errors.New("debit amount not positive")
	ErrDateNotDefault             = errors.New("date not default")
	ErrSenderRegistrationRequired = errors.New("sender registration required")
	ErrRecipientNotRegistered     = errors.New("recipient not registered")
	ErrRecipientDeactivated       = errors.New("recipient deactivated")
)

// InsufficientBalanceError reports a debit or transfer that would push the
// balance below the account's overdraft floor.
type InsufficientBalanceError struct {
	Balance   money.Amount
	Requested money.Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %s, requested %s", e.Balance.String(), e.Requested.String())
}

// ExceededDailyDebitError reports a debit that would exceed the configured
// daily limit.
type ExceededDailyDebitError struct {
	Limit   money.Amount
	Accrued money.Amount
}

func (e *ExceededDailyDebitError) Error() string {
	return fmt.Sprintf("exceeded daily debit limit: limit %s, accrued %s", e.Limit.String(), e.Accrued.String())
}

// ExceededMonthlyDebitError reports a debit that would exceed the configured
// monthly limit.
type ExceededMonthlyDebitError struct {
	Limit   money.Amount
	Accrued money.Amount
}

func (e *ExceededMonthlyDebitError) Error() string {
	return fmt.Sprintf("exceeded monthly debit limit: limit %s, accrued %s", e.Limit.String(), e.Accrued.String())
}

// ValidationFailureError is the catch-all for a rejection that doesn't match
// one of the named business rules above.
type ValidationFailureError struct {
	Field  string
	Reason string
}

func (e *ValidationFailureError) Error() string {
	return fmt.Sprintf("validation failure: %s: %s", e.Field, e.Reason)
}

// IsNoOp reports whether err is one of the idempotent-retry no-op errors
// that handleValidationError (in the account actor) should log at debug and
// otherwise ignore, per §4.4.
func IsNoOp(err error) bool {
	return errors.Is(err, ErrTransferProgressNoChange) ||
		errors.Is(err, ErrTransferAlreadyProgressed) ||
		errors.Is(err, ErrAccountNotReadyToActivate)
}
