package postgres

import (
	"context"
	"errors"
	"fmt"

	"subscription-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const identityColumns = `id, username, password_hash, display_name, access_key, secret_key_enc,
		webhook_url, status, balance, created_at, updated_at`

// IdentityRepo implements ports.IdentityRepository.
type IdentityRepo struct {
	pool Pool
}

// NewIdentityRepo creates a new IdentityRepo.
func NewIdentityRepo(pool Pool) *IdentityRepo {
	return &IdentityRepo{pool: pool}
}

// Create inserts a new identity into the database.
func (r *IdentityRepo) Create(ctx context.Context, i *domain.Identity) error {
	query := `INSERT INTO identities (` + identityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		i.ID, i.Username, i.PasswordHash, i.DisplayName,
		i.AccessKey, i.SecretKeyEnc, i.WebhookURL, i.Status,
		i.Balance, i.CreatedAt, i.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// GetByID fetches an identity by its UUID.
func (r *IdentityRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1`
	return scanIdentity(r.pool.QueryRow(ctx, query, id), "get identity by id")
}

// GetByAccessKey fetches an identity by its public access key.
func (r *IdentityRepo) GetByAccessKey(ctx context.Context, accessKey string) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE access_key = $1`
	return scanIdentity(r.pool.QueryRow(ctx, query, accessKey), "get identity by access_key")
}

// GetByUsername fetches an identity by username.
func (r *IdentityRepo) GetByUsername(ctx context.Context, username string) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE username = $1`
	return scanIdentity(r.pool.QueryRow(ctx, query, username), "get identity by username")
}

// GetByIDForUpdate fetches an identity with pessimistic locking.
// This MUST be called within a transaction.
func (r *IdentityRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1 FOR UPDATE`
	return scanIdentity(tx.QueryRow(ctx, query, id), "get identity for update")
}

// Update updates profile fields and keys. The balance is left untouched.
func (r *IdentityRepo) Update(ctx context.Context, i *domain.Identity) error {
	query := `UPDATE identities
		SET display_name=$1, webhook_url=$2, access_key=$3, secret_key_enc=$4, status=$5, updated_at=NOW()
		WHERE id=$6`
	tag, err := r.pool.Exec(ctx, query,
		i.DisplayName, i.WebhookURL, i.AccessKey, i.SecretKeyEnc, i.Status, i.ID,
	)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("identity not found: %s", i.ID)
	}
	return nil
}

// UpdateBalance sets the external account balance within a transaction.
func (r *IdentityRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance int64) error {
	query := `UPDATE identities SET balance = $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, balance, id)
	if err != nil {
		return fmt.Errorf("update identity balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("identity not found: %s", id)
	}
	return nil
}

func scanIdentity(row pgx.Row, op string) (*domain.Identity, error) {
	i := &domain.Identity{}
	err := row.Scan(
		&i.ID, &i.Username, &i.PasswordHash, &i.DisplayName,
		&i.AccessKey, &i.SecretKeyEnc, &i.WebhookURL, &i.Status,
		&i.Balance, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, lockError(fmt.Errorf("%s: %w", op, err))
	}
	return i, nil
}
