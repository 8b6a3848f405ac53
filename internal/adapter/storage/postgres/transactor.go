package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"subscription-ledger/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultLockTimeout bounds how long a ledger transaction waits on a row
// lock held by a concurrent operation on the same wallet or manager.
const DefaultLockTimeout = 5 * time.Second

// lockNotAvailable is the SQLSTATE raised when lock_timeout expires.
const lockNotAvailable = "55P03"

// Transactor implements ports.DBTransactor. Every transaction it opens
// carries a local lock_timeout so contended pulls fail with SYS_002 instead
// of queueing indefinitely.
type Transactor struct {
	pool        Pool
	lockTimeout time.Duration
}

// NewTransactor creates a Transactor using DefaultLockTimeout.
func NewTransactor(pool Pool) *Transactor {
	return &Transactor{pool: pool, lockTimeout: DefaultLockTimeout}
}

// Begin starts a transaction and applies the lock timeout to it.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if t.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", t.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("set lock timeout: %w", err)
		}
	}
	return tx, nil
}

// lockError maps an expired lock wait to apperror.ErrLockTimeout and leaves
// every other error untouched.
func lockError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
		return apperror.ErrLockTimeout(err)
	}
	return err
}
