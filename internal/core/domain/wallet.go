package domain

import (
	"time"

	"subscription-ledger/pkg/apperror"

	"github.com/google/uuid"
)

// Wallet is a subscriber's escrow account. Owner is fixed at creation.
type Wallet struct {
	ID        uuid.UUID `json:"id"`
	Owner     uuid.UUID `json:"owner"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOwner reports whether caller owns the wallet.
func (w *Wallet) IsOwner(caller uuid.UUID) bool {
	return w.Owner == caller
}

// Deposit credits the wallet. Anyone may fund a wallet.
func (w *Wallet) Deposit(amount int64) error {
	balance, err := credit(w.Balance, amount)
	if err != nil {
		return err
	}
	w.Balance = balance
	return nil
}

// Charge debits a payment pull of price.
func (w *Wallet) Charge(price int64) error {
	if w.Balance < price {
		return apperror.ErrInsufficientFunds()
	}
	w.Balance -= price
	return nil
}

// WithdrawAll empties the wallet and returns the amount removed.
func (w *Wallet) WithdrawAll() (int64, error) {
	if w.Balance == 0 {
		return 0, apperror.ErrInsufficientFunds()
	}
	amount := w.Balance
	w.Balance = 0
	return amount, nil
}
