// Package money provides the decimal amount type used throughout the ledger
// domain so balances and transfer amounts never lose precision to floating
// point.
package money

import (
	"github.com/shopspring/decimal"
)

// Amount is a monetary value in a single currency's minor-unit-free decimal
// representation (e.g. 12.50 means twelve dollars fifty cents).
type Amount = decimal.Decimal

// Zero is the additive identity.
var Zero = decimal.Zero

// New constructs an Amount from a float64. Only safe for literals/tests;
// values coming from the wire should use NewFromString.
func New(f float64) Amount {
	return decimal.NewFromFloat(f)
}

// NewFromString parses a decimal string amount, rejecting malformed input.
func NewFromString(s string) (Amount, error) {
	return decimal.NewFromString(s)
}

// IsPositive reports whether amt is strictly greater than zero.
func IsPositive(amt Amount) bool {
	return amt.IsPositive()
}

// IsNegative reports whether amt is strictly less than zero.
func IsNegative(amt Amount) bool {
	return amt.IsNegative()
}
