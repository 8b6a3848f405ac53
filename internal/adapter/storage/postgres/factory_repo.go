package postgres

import (
	"context"
	"errors"
	"fmt"

	"subscription-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// FactoryRepo implements ports.FactoryRepository.
type FactoryRepo struct {
	pool Pool
}

// NewFactoryRepo creates a new FactoryRepo.
func NewFactoryRepo(pool Pool) *FactoryRepo {
	return &FactoryRepo{pool: pool}
}

// Create inserts a new factory within a database transaction.
func (r *FactoryRepo) Create(ctx context.Context, tx pgx.Tx, f *domain.Factory) error {
	query := `INSERT INTO factories (id, kind, owner_id, created_at) VALUES ($1, $2, $3, $4)`

	_, err := tx.Exec(ctx, query, f.ID, f.Kind, f.Owner, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert factory: %w", err)
	}
	return nil
}

// GetByID fetches a factory by its UUID.
func (r *FactoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Factory, error) {
	query := `SELECT id, kind, owner_id, created_at FROM factories WHERE id = $1`

	f := &domain.Factory{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&f.ID, &f.Kind, &f.Owner, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get factory by id: %w", err)
	}
	return f, nil
}

// ListByOwner returns the factories deployed by owner, oldest first.
func (r *FactoryRepo) ListByOwner(ctx context.Context, owner uuid.UUID) ([]domain.Factory, error) {
	query := `SELECT id, kind, owner_id, created_at FROM factories
		WHERE owner_id = $1 ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("list factories: %w", err)
	}
	defer rows.Close()

	factories := []domain.Factory{}
	for rows.Next() {
		var f domain.Factory
		if err := rows.Scan(&f.ID, &f.Kind, &f.Owner, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan factory row: %w", err)
		}
		factories = append(factories, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate factory rows: %w", err)
	}
	return factories, nil
}
