package service

import (
	"context"
	"fmt"
	"time"

	"subscription-ledger/internal/core/domain"
	"subscription-ledger/internal/core/ports"
	"subscription-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ledger carries the storage, time and event plumbing shared by the
// state-changing services.
type ledger struct {
	repos    ports.Repositories
	clock    ports.Clock
	dispatch ports.EventDispatcher
	log      zerolog.Logger
}

func newLedger(repos ports.Repositories, clock ports.Clock, dispatch ports.EventDispatcher, log zerolog.Logger) ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	return ledger{repos: repos, clock: clock, dispatch: dispatch, log: log}
}

// now is truncated to the precision the stores keep.
func (l *ledger) now() time.Time {
	return l.clock.Now().UTC().Truncate(time.Microsecond)
}

func (l *ledger) begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := l.repos.Transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	return tx, nil
}

// commit appends events to the log inside tx, commits, then hands the
// events to the dispatcher.
func (l *ledger) commit(ctx context.Context, tx pgx.Tx, events ...*domain.Event) error {
	if len(events) > 0 {
		if err := l.repos.Events.Append(ctx, tx, events...); err != nil {
			return apperror.InternalError(fmt.Errorf("append events: %w", err))
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	if l.dispatch != nil && len(events) > 0 {
		l.dispatch.Dispatch(ctx, events...)
	}
	return nil
}

func (l *ledger) event(typ domain.EventType, instance, owner, actor uuid.UUID, payload any, now time.Time) (*domain.Event, error) {
	e, err := domain.NewEvent(typ, instance, owner, actor, payload, now)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return e, nil
}

// debitIdentity locks the caller's external account and removes amount.
func (l *ledger) debitIdentity(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (*domain.Identity, error) {
	ident, err := l.repos.Identities.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock identity: %w", err))
	}
	if ident == nil {
		return nil, apperror.ErrNotFound("identity")
	}
	if err := ident.Debit(amount); err != nil {
		return nil, err
	}
	if err := l.repos.Identities.UpdateBalance(ctx, tx, ident.ID, ident.Balance); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update identity balance: %w", err))
	}
	return ident, nil
}

// creditIdentity locks an external account and adds amount.
func (l *ledger) creditIdentity(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (*domain.Identity, error) {
	ident, err := l.repos.Identities.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock identity: %w", err))
	}
	if ident == nil {
		return nil, apperror.ErrNotFound("identity")
	}
	if err := ident.Credit(amount); err != nil {
		return nil, err
	}
	if err := l.repos.Identities.UpdateBalance(ctx, tx, ident.ID, ident.Balance); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update identity balance: %w", err))
	}
	return ident, nil
}
