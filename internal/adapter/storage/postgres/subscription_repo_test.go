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

var subscriptionCols = []string{"wallet_id", "manager_id", "active", "last_payment_at", "subscribed_at", "seq", "updated_at"}

func subscriptionRow(rows *pgxmock.Rows, s *domain.Subscription) *pgxmock.Rows {
	return rows.AddRow(s.WalletID, s.ManagerID, s.Active, s.LastPaymentAt, s.SubscribedAt, s.Seq, s.UpdatedAt)
}

func TestSubscriptionRepo_CreateAssignsSeq(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC().Truncate(time.Microsecond)
	s := domain.NewSubscription(uuid.New(), uuid.New(), now)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO subscriptions .+ RETURNING seq").
		WithArgs(s.WalletID, s.ManagerID, true, now, now, now).
		WillReturnRows(pgxmock.NewRows([]string{"seq"}).AddRow(int64(3)))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	require.NoError(t, NewSubscriptionRepo(mock).Create(context.Background(), tx, s))
	assert.Equal(t, int64(3), s.Seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepo_GetForUpdateAndUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSubscriptionRepo(mock)
	now := time.Now().UTC().Truncate(time.Microsecond)
	s := domain.NewSubscription(uuid.New(), uuid.New(), now)
	s.Seq = 1

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM subscriptions WHERE wallet_id .+ FOR UPDATE").
		WithArgs(s.WalletID, s.ManagerID).
		WillReturnRows(subscriptionRow(pgxmock.NewRows(subscriptionCols), s))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	locked, err := repo.GetForUpdate(context.Background(), tx, s.WalletID, s.ManagerID)
	require.NoError(t, err)
	require.NotNil(t, locked)
	assert.True(t, locked.Active)

	later := now.Add(time.Hour)
	require.NoError(t, locked.Unsubscribe(later))
	mock.ExpectExec("UPDATE subscriptions SET active").
		WithArgs(false, now, later, s.WalletID, s.ManagerID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Update(context.Background(), tx, locked))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepo_Get_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	w, m := uuid.New(), uuid.New()
	mock.ExpectQuery("SELECT .+ FROM subscriptions WHERE wallet_id").
		WithArgs(w, m).
		WillReturnRows(pgxmock.NewRows(subscriptionCols))

	got, err := NewSubscriptionRepo(mock).Get(context.Background(), w, m)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestSubscriptionRepo_ListByManager(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	managerID := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)
	a := domain.NewSubscription(uuid.New(), managerID, now)
	a.Seq = 1
	b := domain.NewSubscription(uuid.New(), managerID, now)
	b.Seq = 2
	b.Active = false

	rows := subscriptionRow(subscriptionRow(pgxmock.NewRows(subscriptionCols), a), b)
	mock.ExpectQuery("SELECT .+ FROM subscriptions WHERE manager_id .+ ORDER BY seq").
		WithArgs(managerID).
		WillReturnRows(rows)

	subs, err := NewSubscriptionRepo(mock).ListByManager(context.Background(), managerID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, a.WalletID, subs[0].WalletID)
	assert.False(t, subs[1].Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}
