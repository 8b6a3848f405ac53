package domain

import (
	"time"
	"unicode/utf8"

	"subscription-ledger/pkg/apperror"

	"github.com/google/uuid"
)

// MaxManagerNameLen bounds the display name in characters.
const MaxManagerNameLen = 64

// Manager is a merchant's billing policy. Balance accrues from payment
// pulls and direct funding and is withdrawable by the owner.
type Manager struct {
	ID        uuid.UUID `json:"id"`
	Owner     uuid.UUID `json:"owner"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidatePrice rejects non-positive prices.
func ValidatePrice(price int64) error {
	if price <= 0 {
		return apperror.ErrInvalidArgument("price must be positive")
	}
	return nil
}

// ValidateName requires 1..MaxManagerNameLen characters.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n == 0 || n > MaxManagerNameLen {
		return apperror.ErrInvalidArgument("name must be 1-64 characters")
	}
	return nil
}

// IsOwner reports whether caller owns the manager.
func (m *Manager) IsOwner(caller uuid.UUID) bool {
	return m.Owner == caller
}

// Rename sets a validated name.
func (m *Manager) Rename(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	m.Name = name
	return nil
}

// Reprice sets a validated price. The old price is kept on error.
func (m *Manager) Reprice(price int64) error {
	if err := ValidatePrice(price); err != nil {
		return err
	}
	m.Price = price
	return nil
}

// Accrue credits amount to the withdrawable balance.
func (m *Manager) Accrue(amount int64) error {
	balance, err := credit(m.Balance, amount)
	if err != nil {
		return err
	}
	m.Balance = balance
	return nil
}

// WithdrawAll empties the accrued balance and returns the amount removed.
func (m *Manager) WithdrawAll() (int64, error) {
	if m.Balance == 0 {
		return 0, apperror.ErrInsufficientFunds()
	}
	amount := m.Balance
	m.Balance = 0
	return amount, nil
}

// WithdrawAmount removes exactly amount from the accrued balance.
func (m *Manager) WithdrawAmount(amount int64) error {
	if amount <= 0 {
		return apperror.ErrInvalidArgument("amount must be positive")
	}
	if amount > m.Balance {
		return apperror.ErrInsufficientFunds()
	}
	m.Balance -= amount
	return nil
}
