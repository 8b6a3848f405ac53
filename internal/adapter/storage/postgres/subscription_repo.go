package postgres

import (
	"context"
	"errors"
	"fmt"

	"subscription-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const subscriptionColumns = `wallet_id, manager_id, active, last_payment_at, subscribed_at, seq, updated_at`

// SubscriptionRepo implements ports.SubscriptionRepository.
type SubscriptionRepo struct {
	pool Pool
}

// NewSubscriptionRepo creates a new SubscriptionRepo.
func NewSubscriptionRepo(pool Pool) *SubscriptionRepo {
	return &SubscriptionRepo{pool: pool}
}

// Get fetches the relation between a wallet and a manager (without locking).
func (r *SubscriptionRepo) Get(ctx context.Context, walletID, managerID uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE wallet_id = $1 AND manager_id = $2`
	return scanSubscription(r.pool.QueryRow(ctx, query, walletID, managerID), "get subscription")
}

// GetForUpdate fetches the relation with pessimistic locking.
// This MUST be called within a transaction.
func (r *SubscriptionRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, walletID, managerID uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE wallet_id = $1 AND manager_id = $2 FOR UPDATE`
	return scanSubscription(tx.QueryRow(ctx, query, walletID, managerID), "get subscription for update")
}

// Create inserts a new relation and fills in the assigned seq.
func (r *SubscriptionRepo) Create(ctx context.Context, tx pgx.Tx, s *domain.Subscription) error {
	query := `INSERT INTO subscriptions (wallet_id, manager_id, active, last_payment_at, subscribed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING seq`

	err := tx.QueryRow(ctx, query,
		s.WalletID, s.ManagerID, s.Active, s.LastPaymentAt, s.SubscribedAt, s.UpdatedAt,
	).Scan(&s.Seq)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// Update writes the active flag and the billing clock.
func (r *SubscriptionRepo) Update(ctx context.Context, tx pgx.Tx, s *domain.Subscription) error {
	query := `UPDATE subscriptions SET active = $1, last_payment_at = $2, updated_at = $3
		WHERE wallet_id = $4 AND manager_id = $5`

	tag, err := tx.Exec(ctx, query, s.Active, s.LastPaymentAt, s.UpdatedAt, s.WalletID, s.ManagerID)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscription not found: %s/%s", s.WalletID, s.ManagerID)
	}
	return nil
}

// ListByWallet returns every relation of a wallet in creation order.
func (r *SubscriptionRepo) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE wallet_id = $1 ORDER BY seq`
	return r.list(ctx, query, walletID)
}

// ListByManager returns every relation of a manager in first-subscribe order.
func (r *SubscriptionRepo) ListByManager(ctx context.Context, managerID uuid.UUID) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE manager_id = $1 ORDER BY seq`
	return r.list(ctx, query, managerID)
}

func (r *SubscriptionRepo) list(ctx context.Context, query string, id uuid.UUID) ([]domain.Subscription, error) {
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []domain.Subscription{}
	for rows.Next() {
		var s domain.Subscription
		if err := rows.Scan(
			&s.WalletID, &s.ManagerID, &s.Active, &s.LastPaymentAt,
			&s.SubscribedAt, &s.Seq, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan subscription row: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscription rows: %w", err)
	}
	return subs, nil
}

func scanSubscription(row pgx.Row, op string) (*domain.Subscription, error) {
	s := &domain.Subscription{}
	err := row.Scan(
		&s.WalletID, &s.ManagerID, &s.Active, &s.LastPaymentAt,
		&s.SubscribedAt, &s.Seq, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, lockError(fmt.Errorf("%s: %w", op, err))
	}
	return s, nil
}
