package postgres

import (
	"context"
	"errors"
	"fmt"

	"subscription-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ManagerRepo implements ports.ManagerRepository.
type ManagerRepo struct {
	pool Pool
}

// NewManagerRepo creates a new ManagerRepo.
func NewManagerRepo(pool Pool) *ManagerRepo {
	return &ManagerRepo{pool: pool}
}

// Create inserts a new manager within a database transaction.
func (r *ManagerRepo) Create(ctx context.Context, tx pgx.Tx, m *domain.Manager) error {
	query := `INSERT INTO managers (id, owner_id, name, price, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, query, m.ID, m.Owner, m.Name, m.Price, m.Balance, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert manager: %w", err)
	}
	return nil
}

// GetByID fetches a manager by its UUID (without locking).
func (r *ManagerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Manager, error) {
	query := `SELECT id, owner_id, name, price, balance, created_at, updated_at
		FROM managers WHERE id = $1`

	return scanManager(r.pool.QueryRow(ctx, query, id), "get manager by id")
}

// GetByIDForUpdate fetches a manager with pessimistic locking.
// This MUST be called within a transaction.
func (r *ManagerRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Manager, error) {
	query := `SELECT id, owner_id, name, price, balance, created_at, updated_at
		FROM managers WHERE id = $1 FOR UPDATE`

	return scanManager(tx.QueryRow(ctx, query, id), "get manager for update")
}

// Update writes name, price and balance within a transaction.
func (r *ManagerRepo) Update(ctx context.Context, tx pgx.Tx, m *domain.Manager) error {
	query := `UPDATE managers SET name = $1, price = $2, balance = $3, updated_at = $4 WHERE id = $5`

	tag, err := tx.Exec(ctx, query, m.Name, m.Price, m.Balance, m.UpdatedAt, m.ID)
	if err != nil {
		return fmt.Errorf("update manager: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("manager not found: %s", m.ID)
	}
	return nil
}

func scanManager(row pgx.Row, op string) (*domain.Manager, error) {
	m := &domain.Manager{}
	err := row.Scan(&m.ID, &m.Owner, &m.Name, &m.Price, &m.Balance, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, lockError(fmt.Errorf("%s: %w", op, err))
	}
	return m, nil
}
