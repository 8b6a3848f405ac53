package postgres

import (
	"context"
	"errors"
	"fmt"

	"subscription-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const idempotencyColumns = `key, event_id, response_json, created_at`

// errDuplicateReceipt reports a second receipt for an already settled
// pull. The pull that lost the race rolls back.
var errDuplicateReceipt = errors.New("payment receipt already recorded")

// IdempotencyRepo stores payment receipts keyed by manager and reference.
type IdempotencyRepo struct {
	pool Pool
}

func NewIdempotencyRepo(pool Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// Create records the receipt inside the pull's transaction.
func (r *IdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	tag, err := tx.Exec(ctx,
		`INSERT INTO idempotency_logs (`+idempotencyColumns+`)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO NOTHING`,
		log.Key, log.EventID, log.ResponseJSON, log.CreatedAt)
	if err != nil {
		return lockError(fmt.Errorf("insert payment receipt: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insert payment receipt %q: %w", log.Key, errDuplicateReceipt)
	}
	return nil
}

// Get returns the receipt for key, or nil when the pull never settled.
func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	var log domain.IdempotencyLog
	err := r.pool.QueryRow(ctx,
		`SELECT `+idempotencyColumns+` FROM idempotency_logs WHERE key = $1`, key).
		Scan(&log.Key, &log.EventID, &log.ResponseJSON, &log.CreatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("get payment receipt: %w", err)
	}
	return &log, nil
}
