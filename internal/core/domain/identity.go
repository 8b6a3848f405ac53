package domain

import (
	"time"

	"subscription-ledger/pkg/apperror"

	"github.com/google/uuid"
)

// IdentityStatus represents the state of a caller identity.
type IdentityStatus string

const (
	IdentityStatusActive      IdentityStatus = "ACTIVE"
	IdentityStatusSuspended   IdentityStatus = "SUSPENDED"
	IdentityStatusDeactivated IdentityStatus = "DEACTIVATED"
)

// Identity is a caller of the ledger. Its Balance is the external account
// that deposits are drawn from and withdrawals are paid into.
type Identity struct {
	ID           uuid.UUID      `json:"id"`
	Username     string         `json:"username"`
	PasswordHash string         `json:"-"` // Never expose
	DisplayName  string         `json:"display_name"`
	AccessKey    string         `json:"access_key"`
	SecretKeyEnc string         `json:"-"` // Encrypted, never expose
	WebhookURL   *string        `json:"webhook_url,omitempty"`
	Status       IdentityStatus `json:"status"`
	Balance      int64          `json:"balance"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// IsActive returns true if the identity may call the ledger.
func (i *Identity) IsActive() bool {
	return i.Status == IdentityStatusActive
}

// Debit removes amount from the external account.
func (i *Identity) Debit(amount int64) error {
	if amount <= 0 {
		return apperror.ErrInvalidArgument("amount must be positive")
	}
	if i.Balance < amount {
		return apperror.ErrInsufficientFunds()
	}
	i.Balance -= amount
	return nil
}

// Credit adds amount to the external account.
func (i *Identity) Credit(amount int64) error {
	balance, err := credit(i.Balance, amount)
	if err != nil {
		return err
	}
	i.Balance = balance
	return nil
}
