package postgres

import (
	"context"
	"testing"
	"time"

	"subscription-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var identityCols = []string{
	"id", "username", "password_hash", "display_name", "access_key", "secret_key_enc",
	"webhook_url", "status", "balance", "created_at", "updated_at",
}

func newTestIdentity() *domain.Identity {
	now := time.Now().UTC().Truncate(time.Microsecond)
	hook := "https://example.com/hooks"
	return &domain.Identity{
		ID:           uuid.New(),
		Username:     "alice",
		PasswordHash: "$2a$10$hash",
		DisplayName:  "Alice",
		AccessKey:    "ak_test",
		SecretKeyEnc: "enc_secret",
		WebhookURL:   &hook,
		Status:       domain.IdentityStatusActive,
		Balance:      1000,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func identityRow(i *domain.Identity) *pgxmock.Rows {
	return pgxmock.NewRows(identityCols).AddRow(
		i.ID, i.Username, i.PasswordHash, i.DisplayName, i.AccessKey, i.SecretKeyEnc,
		i.WebhookURL, i.Status, i.Balance, i.CreatedAt, i.UpdatedAt,
	)
}

func TestIdentityRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdentityRepo(mock)
	i := newTestIdentity()

	mock.ExpectExec("INSERT INTO identities").
		WithArgs(i.ID, i.Username, i.PasswordHash, i.DisplayName, i.AccessKey, i.SecretKeyEnc,
			i.WebhookURL, i.Status, i.Balance, i.CreatedAt, i.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), i))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepo_Lookups(t *testing.T) {
	i := newTestIdentity()

	tests := []struct {
		name  string
		query string
		arg   any
		call  func(*IdentityRepo) (*domain.Identity, error)
	}{
		{"by id", "SELECT .+ FROM identities WHERE id", i.ID, func(r *IdentityRepo) (*domain.Identity, error) {
			return r.GetByID(context.Background(), i.ID)
		}},
		{"by access key", "SELECT .+ FROM identities WHERE access_key", i.AccessKey, func(r *IdentityRepo) (*domain.Identity, error) {
			return r.GetByAccessKey(context.Background(), i.AccessKey)
		}},
		{"by username", "SELECT .+ FROM identities WHERE username", i.Username, func(r *IdentityRepo) (*domain.Identity, error) {
			return r.GetByUsername(context.Background(), i.Username)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectQuery(tt.query).WithArgs(tt.arg).WillReturnRows(identityRow(i))

			result, err := tt.call(NewIdentityRepo(mock))
			require.NoError(t, err)
			require.NotNil(t, result)
			assert.Equal(t, i.ID, result.ID)
			assert.Equal(t, int64(1000), result.Balance)
			assert.Equal(t, domain.IdentityStatusActive, result.Status)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestIdentityRepo_GetByUsername_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM identities WHERE username").
		WithArgs("nobody").
		WillReturnRows(pgxmock.NewRows(identityCols))

	result, err := NewIdentityRepo(mock).GetByUsername(context.Background(), "nobody")
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestIdentityRepo_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdentityRepo(mock)
	i := newTestIdentity()

	mock.ExpectExec("UPDATE identities").
		WithArgs(i.DisplayName, i.WebhookURL, i.AccessKey, i.SecretKeyEnc, i.Status, i.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.Update(context.Background(), i))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepo_Update_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdentityRepo(mock)
	i := newTestIdentity()

	mock.ExpectExec("UPDATE identities").
		WithArgs(i.DisplayName, i.WebhookURL, i.AccessKey, i.SecretKeyEnc, i.Status, i.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.Update(context.Background(), i)
	assert.ErrorContains(t, err, "identity not found")
}

func TestIdentityRepo_LockAndUpdateBalance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdentityRepo(mock)
	i := newTestIdentity()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM identities WHERE id .+ FOR UPDATE").
		WithArgs(i.ID).
		WillReturnRows(identityRow(i))
	mock.ExpectExec("UPDATE identities SET balance").
		WithArgs(int64(900), i.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	locked, err := repo.GetByIDForUpdate(context.Background(), tx, i.ID)
	require.NoError(t, err)
	require.NotNil(t, locked)

	require.NoError(t, repo.UpdateBalance(context.Background(), tx, i.ID, 900))
	assert.NoError(t, mock.ExpectationsWereMet())
}
