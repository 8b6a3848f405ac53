package domain

import (
	"math"

	"subscription-ledger/pkg/apperror"
)

// credit returns balance+amount, rejecting non-positive amounts and sums
// that would overflow int64.
func credit(balance, amount int64) (int64, error) {
	if amount <= 0 {
		return balance, apperror.ErrInvalidArgument("amount must be positive")
	}
	if amount > math.MaxInt64-balance {
		return balance, apperror.ErrInvalidArgument("amount would overflow the balance")
	}
	return balance + amount, nil
}
