package postgres

import (
	"context"
	"fmt"

	"subscription-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RegistryRepo implements ports.RegistryRepository.
type RegistryRepo struct {
	pool Pool
}

// NewRegistryRepo creates a new RegistryRepo.
func NewRegistryRepo(pool Pool) *RegistryRepo {
	return &RegistryRepo{pool: pool}
}

// Append records a deployment and fills in the assigned seq.
func (r *RegistryRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.RegistryEntry) error {
	query := `INSERT INTO registry_entries (factory_id, instance_id, kind, creator_id, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING seq`

	if err := tx.QueryRow(ctx, query, e.FactoryID, e.InstanceID, e.Kind, e.Creator, e.CreatedAt).Scan(&e.Seq); err != nil {
		return fmt.Errorf("insert registry entry: %w", err)
	}
	return nil
}

// Exists reports whether instanceID was deployed by factoryID.
func (r *RegistryRepo) Exists(ctx context.Context, factoryID, instanceID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM registry_entries WHERE factory_id = $1 AND instance_id = $2)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, factoryID, instanceID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check registry entry: %w", err)
	}
	return exists, nil
}

// ListByCreator returns the instances creator deployed through factoryID.
func (r *RegistryRepo) ListByCreator(ctx context.Context, factoryID, creator uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT instance_id FROM registry_entries
		WHERE factory_id = $1 AND creator_id = $2 ORDER BY seq`

	rows, err := r.pool.Query(ctx, query, factoryID, creator)
	if err != nil {
		return nil, fmt.Errorf("list registry entries: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan registry row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registry rows: %w", err)
	}
	return ids, nil
}
