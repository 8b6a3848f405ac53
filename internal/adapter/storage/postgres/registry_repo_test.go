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

func TestFactoryRepo_CreateAndGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewFactoryRepo(mock)
	f := &domain.Factory{
		ID:        uuid.New(),
		Kind:      domain.FactoryKindWallet,
		Owner:     uuid.New(),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO factories").
		WithArgs(f.ID, f.Kind, f.Owner, f.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT .+ FROM factories WHERE id").
		WithArgs(f.ID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "kind", "owner_id", "created_at"}).
			AddRow(f.ID, f.Kind, f.Owner, f.CreatedAt))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), tx, f))

	got, err := repo.GetByID(context.Background(), f.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.FactoryKindWallet, got.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFactoryRepo_ListByOwner_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	owner := uuid.New()
	mock.ExpectQuery("SELECT .+ FROM factories WHERE owner_id").
		WithArgs(owner).
		WillReturnRows(pgxmock.NewRows([]string{"id", "kind", "owner_id", "created_at"}))

	got, err := NewFactoryRepo(mock).ListByOwner(context.Background(), owner)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRegistryRepo_Append(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRegistryRepo(mock)
	e := &domain.RegistryEntry{
		FactoryID:  uuid.New(),
		Kind:       domain.FactoryKindManager,
		InstanceID: uuid.New(),
		Creator:    uuid.New(),
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO registry_entries .+ RETURNING seq").
		WithArgs(e.FactoryID, e.InstanceID, e.Kind, e.Creator, e.CreatedAt).
		WillReturnRows(pgxmock.NewRows([]string{"seq"}).AddRow(int64(7)))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	require.NoError(t, repo.Append(context.Background(), tx, e))
	assert.Equal(t, int64(7), e.Seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistryRepo_Exists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	factoryID, instanceID := uuid.New(), uuid.New()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(factoryID, instanceID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := NewRegistryRepo(mock).Exists(context.Background(), factoryID, instanceID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistryRepo_ListByCreator(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	factoryID, creator := uuid.New(), uuid.New()
	first, second := uuid.New(), uuid.New()
	mock.ExpectQuery("SELECT instance_id FROM registry_entries .+ ORDER BY seq").
		WithArgs(factoryID, creator).
		WillReturnRows(pgxmock.NewRows([]string{"instance_id"}).AddRow(first).AddRow(second))

	ids, err := NewRegistryRepo(mock).ListByCreator(context.Background(), factoryID, creator)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first, second}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
