package domain

import (
	"time"

	"subscription-ledger/pkg/apperror"

	"github.com/google/uuid"
)

// Subscription is the single record of the relation between a wallet and a
// manager. The wallet's subscription map and the manager's subscriber list
// and last-payment lookups are all read from it.
type Subscription struct {
	WalletID      uuid.UUID `json:"wallet_id"`
	ManagerID     uuid.UUID `json:"manager_id"`
	Active        bool      `json:"active"`
	LastPaymentAt time.Time `json:"last_payment_at"`
	SubscribedAt  time.Time `json:"subscribed_at"`
	Seq           int64     `json:"seq"` // first-subscribe order within the manager
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewSubscription starts an active subscription. The subscribe moment seeds
// the billing clock, so the first pull waits a full interval.
func NewSubscription(walletID, managerID uuid.UUID, now time.Time) *Subscription {
	return &Subscription{
		WalletID:      walletID,
		ManagerID:     managerID,
		Active:        true,
		LastPaymentAt: now,
		SubscribedAt:  now,
		UpdatedAt:     now,
	}
}

// Resubscribe reactivates the subscription without touching the billing
// clock. It reports false when the subscription was already active.
func (s *Subscription) Resubscribe(now time.Time) bool {
	if s.Active {
		return false
	}
	s.Active = true
	s.UpdatedAt = now
	return true
}

// Unsubscribe stops billing. Historical membership is kept.
func (s *Subscription) Unsubscribe(now time.Time) error {
	if !s.Active {
		return apperror.ErrNotSubscribed()
	}
	s.Active = false
	s.UpdatedAt = now
	return nil
}

// NextPaymentAt is the earliest time the next pull may succeed.
func (s *Subscription) NextPaymentAt(interval time.Duration) time.Time {
	return s.LastPaymentAt.Add(interval)
}

// RecordPayment advances the billing clock to now.
func (s *Subscription) RecordPayment(now time.Time) {
	s.LastPaymentAt = now
	s.UpdatedAt = now
}

// CheckPull applies the state and interval preconditions of a payment pull
// in order. A nil subscription is NotSubscribed. The interval comparison is
// exact: now must be at or after LastPaymentAt+interval.
func CheckPull(s *Subscription, now time.Time, interval time.Duration) error {
	if s == nil || !s.Active {
		return apperror.ErrNotSubscribed()
	}
	if now.Before(s.NextPaymentAt(interval)) {
		return apperror.ErrTooEarly()
	}
	return nil
}

// SubscriptionStatus is the public view of one relation. Unknown pairs
// report the zero value.
type SubscriptionStatus struct {
	WalletID      uuid.UUID  `json:"wallet_id"`
	ManagerID     uuid.UUID  `json:"manager_id"`
	Active        bool       `json:"active"`
	LastPaymentAt *time.Time `json:"last_payment_at"`
}

// StatusOf projects s, or the zero value for the pair when s is nil.
func StatusOf(walletID, managerID uuid.UUID, s *Subscription) SubscriptionStatus {
	st := SubscriptionStatus{WalletID: walletID, ManagerID: managerID}
	if s == nil {
		return st
	}
	last := s.LastPaymentAt
	st.Active = s.Active
	st.LastPaymentAt = &last
	return st
}

// Payment is the result of a successful pull.
type Payment struct {
	EventID       uuid.UUID `json:"event_id"`
	WalletID      uuid.UUID `json:"wallet_id"`
	ManagerID     uuid.UUID `json:"manager_id"`
	Amount        int64     `json:"amount"`
	PaidAt        time.Time `json:"paid_at"`
	NextPaymentAt time.Time `json:"next_payment_at"`
}
