package postgres

import (
	"context"
	"errors"
	"testing"

	"subscription-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactor_BeginSetsLockTimeout(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout = '5000ms'").
		WillReturnResult(pgxmock.NewResult("SET", 0))

	tx, err := NewTransactor(mock).Begin(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tx)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_BeginFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err = NewTransactor(mock).Begin(context.Background())
	assert.ErrorContains(t, err, "too many connections")
}

func TestTransactor_LockTimeoutRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	_, err = NewTransactor(mock).Begin(context.Background())
	assert.ErrorContains(t, err, "set lock timeout")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockError_MapsExpiredLockWait(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, owner_id, balance").
		WithArgs(id).
		WillReturnError(&pgconn.PgError{Code: lockNotAvailable, Message: "canceling statement due to lock timeout"})

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	_, err = NewWalletRepo(mock).GetByIDForUpdate(context.Background(), tx, id)
	require.Error(t, err)
	assert.Equal(t, "SYS_002", apperror.CodeOf(err))
	assert.Equal(t, "SYS_002", apperror.InternalError(err).Code)
}

func TestLockError_PassesOtherErrors(t *testing.T) {
	err := lockError(&pgconn.PgError{Code: "40001"})
	assert.Equal(t, "SYS_000", apperror.CodeOf(err))
	assert.Nil(t, lockError(nil))
}
