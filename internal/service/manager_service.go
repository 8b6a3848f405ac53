package service

import (
	"context"
	"fmt"
	"time"

	"subscription-ledger/internal/core/domain"
	"subscription-ledger/internal/core/ports"
	"subscription-ledger/pkg/apperror"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const idempotencyTTL = 24 * time.Hour

// ManagerServiceImpl implements ports.ManagerService.
type ManagerServiceImpl struct {
	ledger
	interval   time.Duration
	idempCache ports.IdempotencyCache
	metrics    ports.Metrics
}

// NewManagerService creates a new ManagerServiceImpl. interval is the
// minimum time between two pulls on the same pair.
func NewManagerService(
	repos ports.Repositories,
	idempCache ports.IdempotencyCache,
	clock ports.Clock,
	dispatch ports.EventDispatcher,
	metrics ports.Metrics,
	interval time.Duration,
	log zerolog.Logger,
) *ManagerServiceImpl {
	return &ManagerServiceImpl{
		ledger:     newLedger(repos, clock, dispatch, log),
		interval:   interval,
		idempCache: idempCache,
		metrics:    metrics,
	}
}

// Get returns the public view of a manager.
func (s *ManagerServiceImpl) Get(ctx context.Context, managerID uuid.UUID) (*domain.Manager, error) {
	m, err := s.repos.Managers.GetByID(ctx, managerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get manager: %w", err))
	}
	if m == nil {
		return nil, apperror.ErrNotFound("manager")
	}
	return m, nil
}

// UpdateName renames the policy.
func (s *ManagerServiceImpl) UpdateName(ctx context.Context, caller, managerID uuid.UUID, name string) (*domain.Manager, error) {
	var old string
	return s.update(ctx, caller, managerID, "rename this manager",
		func(m *domain.Manager) error {
			old = m.Name
			return m.Rename(name)
		},
		func(m *domain.Manager) (domain.EventType, any) {
			return domain.EventNameUpdated, domain.NameUpdatedPayload{OldName: old, NewName: m.Name}
		},
	)
}

// UpdatePrice reprices the policy. Pulls after commit charge the new price.
func (s *ManagerServiceImpl) UpdatePrice(ctx context.Context, caller, managerID uuid.UUID, price int64) (*domain.Manager, error) {
	var old int64
	return s.update(ctx, caller, managerID, "reprice this manager",
		func(m *domain.Manager) error {
			old = m.Price
			return m.Reprice(price)
		},
		func(m *domain.Manager) (domain.EventType, any) {
			return domain.EventPriceUpdated, domain.PriceUpdatedPayload{OldPrice: old, NewPrice: m.Price}
		},
	)
}

func (s *ManagerServiceImpl) update(
	ctx context.Context,
	caller, managerID uuid.UUID,
	action string,
	apply func(*domain.Manager) error,
	describe func(*domain.Manager) (domain.EventType, any),
) (*domain.Manager, error) {
	dbTx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	m, err := s.repos.Managers.GetByIDForUpdate(ctx, dbTx, managerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock manager: %w", err))
	}
	if m == nil {
		return nil, apperror.ErrNotFound("manager")
	}
	if !m.IsOwner(caller) {
		return nil, apperror.ErrUnauthorized(action)
	}
	if err := apply(m); err != nil {
		return nil, err
	}

	now := s.now()
	m.UpdatedAt = now
	if err := s.repos.Managers.Update(ctx, dbTx, m); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update manager: %w", err))
	}

	typ, payload := describe(m)
	evt, err := s.event(typ, m.ID, m.Owner, caller, payload, now)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, dbTx, evt); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("manager_id", m.ID.String()).
		Str("event", string(typ)).
		Msg("manager updated")
	return m, nil
}

// Subscribers lists every wallet that ever subscribed, in first-subscribe
// order. Unsubscribed wallets stay in the list.
func (s *ManagerServiceImpl) Subscribers(ctx context.Context, caller, managerID uuid.UUID) ([]uuid.UUID, error) {
	if _, err := s.owned(ctx, caller, managerID, "list subscribers"); err != nil {
		return nil, err
	}
	subs, err := s.repos.Subscriptions.ListByManager(ctx, managerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list subscribers: %w", err))
	}
	ids := make([]uuid.UUID, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.WalletID)
	}
	return ids, nil
}

// OwnerCheckLastPaymentDate returns the billing clock of walletID, or the
// zero time for wallets that never subscribed.
func (s *ManagerServiceImpl) OwnerCheckLastPaymentDate(ctx context.Context, caller, managerID, walletID uuid.UUID) (time.Time, error) {
	sub, err := s.ownedSubscription(ctx, caller, managerID, walletID)
	if err != nil || sub == nil {
		return time.Time{}, err
	}
	return sub.LastPaymentAt, nil
}

// OwnerCheckSubscriptionStatus reports whether walletID is currently billed.
func (s *ManagerServiceImpl) OwnerCheckSubscriptionStatus(ctx context.Context, caller, managerID, walletID uuid.UUID) (bool, error) {
	sub, err := s.ownedSubscription(ctx, caller, managerID, walletID)
	if err != nil {
		return false, err
	}
	return sub != nil && sub.Active, nil
}

// RequestPayment pulls one period's price from a subscribed wallet.
func (s *ManagerServiceImpl) RequestPayment(ctx context.Context, req ports.PaymentRequest) (*domain.Payment, error) {
	p, err := s.requestPayment(ctx, req)
	if s.metrics != nil {
		s.metrics.IncPaymentRequests(apperror.CodeOf(err))
	}
	return p, err
}

func (s *ManagerServiceImpl) requestPayment(ctx context.Context, req ports.PaymentRequest) (*domain.Payment, error) {
	if _, err := s.owned(ctx, req.Caller, req.ManagerID, "request payment"); err != nil {
		return nil, err
	}

	var idempKey string
	if req.ReferenceID != "" {
		idempKey = domain.BuildPaymentIdempotencyKey(req.ManagerID, req.WalletID, req.ReferenceID)
		if p, err := s.replay(ctx, idempKey); p != nil || err != nil {
			return p, err
		}
	}

	dbTx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	m, err := s.repos.Managers.GetByIDForUpdate(ctx, dbTx, req.ManagerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock manager: %w", err))
	}
	if m == nil {
		return nil, apperror.ErrNotFound("manager")
	}
	if !m.IsOwner(req.Caller) {
		return nil, apperror.ErrUnauthorized("request payment")
	}
	if idempKey != "" {
		// A retry with the same reference may have committed while this one waited for the lock.
		if p, err := s.replay(ctx, idempKey); p != nil || err != nil {
			return p, err
		}
	}

	w, err := s.repos.Wallets.GetByIDForUpdate(ctx, dbTx, req.WalletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrNotSubscribed()
	}

	sub, err := s.repos.Subscriptions.GetForUpdate(ctx, dbTx, req.WalletID, req.ManagerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock subscription: %w", err))
	}

	now := s.now()
	if err := domain.CheckPull(sub, now, s.interval); err != nil {
		return nil, err
	}
	if err := w.Charge(m.Price); err != nil {
		return nil, err
	}
	if err := m.Accrue(m.Price); err != nil {
		return nil, err
	}
	sub.RecordPayment(now)
	m.UpdatedAt = now

	if err := s.repos.Wallets.UpdateBalance(ctx, dbTx, w.ID, w.Balance); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update wallet balance: %w", err))
	}
	if err := s.repos.Managers.Update(ctx, dbTx, m); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update manager: %w", err))
	}
	if err := s.repos.Subscriptions.Update(ctx, dbTx, sub); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update subscription: %w", err))
	}

	evt, err := s.event(domain.EventPaymentReceived, m.ID, m.Owner, req.Caller,
		domain.PaymentReceivedPayload{WalletID: w.ID, ManagerID: m.ID, Amount: m.Price, Timestamp: now}, now)
	if err != nil {
		return nil, err
	}

	payment := &domain.Payment{
		EventID:       evt.ID,
		WalletID:      w.ID,
		ManagerID:     m.ID,
		Amount:        m.Price,
		PaidAt:        now,
		NextPaymentAt: sub.NextPaymentAt(s.interval),
	}

	var respJSON []byte
	if idempKey != "" {
		respJSON, err = json.Marshal(payment)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
		}
		entry := &domain.IdempotencyLog{
			Key:          idempKey,
			EventID:      evt.ID,
			ResponseJSON: respJSON,
			CreatedAt:    now,
		}
		if err := s.repos.Idempotency.Create(ctx, dbTx, entry); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("save idempotency log: %w", err))
		}
	}

	if err := s.commit(ctx, dbTx, evt); err != nil {
		return nil, err
	}

	if idempKey != "" && s.idempCache != nil {
		if err := s.idempCache.Set(ctx, idempKey, respJSON, idempotencyTTL); err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
		}
	}
	if s.metrics != nil {
		s.metrics.AddPaymentVolume(payment.Amount)
	}

	s.log.Info().
		Str("event_id", evt.ID.String()).
		Str("manager_id", m.ID.String()).
		Str("wallet_id", w.ID.String()).
		Int64("amount", payment.Amount).
		Msg("payment received")
	return payment, nil
}

// replay returns the stored result of an earlier pull with the same
// reference, checking redis first and the database second.
func (s *ManagerServiceImpl) replay(ctx context.Context, key string) (*domain.Payment, error) {
	if s.idempCache != nil {
		cached, err := s.idempCache.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, falling through to DB")
		}
		if cached != nil {
			return unmarshalPayment(cached)
		}
	}

	idempLog, err := s.repos.Idempotency.Get(ctx, key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if idempLog == nil {
		return nil, nil
	}
	return unmarshalPayment(idempLog.ResponseJSON)
}

func unmarshalPayment(data []byte) (*domain.Payment, error) {
	var p domain.Payment
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached payment: %w", err))
	}
	return &p, nil
}

// Fund moves amount from the caller's external account into the manager's
// withdrawable balance.
func (s *ManagerServiceImpl) Fund(ctx context.Context, caller, managerID uuid.UUID, amount int64) (*domain.Manager, error) {
	if amount <= 0 {
		return nil, apperror.ErrInvalidArgument("amount must be positive")
	}

	dbTx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	m, err := s.repos.Managers.GetByIDForUpdate(ctx, dbTx, managerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock manager: %w", err))
	}
	if m == nil {
		return nil, apperror.ErrNotFound("manager")
	}
	if _, err := s.debitIdentity(ctx, dbTx, caller, amount); err != nil {
		return nil, err
	}
	if err := m.Accrue(amount); err != nil {
		return nil, err
	}

	now := s.now()
	m.UpdatedAt = now
	if err := s.repos.Managers.Update(ctx, dbTx, m); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update manager: %w", err))
	}

	evt, err := s.event(domain.EventDeposited, m.ID, m.Owner, caller,
		domain.DepositedPayload{From: caller, To: m.ID, Amount: amount}, now)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, dbTx, evt); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("manager_id", m.ID.String()).
		Str("from", caller.String()).
		Int64("amount", amount).
		Msg("manager funded")
	return m, nil
}

// Withdraw moves the whole accrued balance to the owner's external account.
func (s *ManagerServiceImpl) Withdraw(ctx context.Context, caller, managerID uuid.UUID) (int64, error) {
	return s.withdraw(ctx, caller, managerID, func(m *domain.Manager) (int64, error) {
		return m.WithdrawAll()
	})
}

// WithdrawAmount moves exactly amount to the owner's external account.
func (s *ManagerServiceImpl) WithdrawAmount(ctx context.Context, caller, managerID uuid.UUID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, apperror.ErrInvalidArgument("amount must be positive")
	}
	return s.withdraw(ctx, caller, managerID, func(m *domain.Manager) (int64, error) {
		return amount, m.WithdrawAmount(amount)
	})
}

func (s *ManagerServiceImpl) withdraw(ctx context.Context, caller, managerID uuid.UUID, take func(*domain.Manager) (int64, error)) (int64, error) {
	dbTx, err := s.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	m, err := s.repos.Managers.GetByIDForUpdate(ctx, dbTx, managerID)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("lock manager: %w", err))
	}
	if m == nil {
		return 0, apperror.ErrNotFound("manager")
	}
	if !m.IsOwner(caller) {
		return 0, apperror.ErrUnauthorized("withdraw from this manager")
	}

	amount, err := take(m)
	if err != nil {
		return 0, err
	}

	now := s.now()
	m.UpdatedAt = now
	if err := s.repos.Managers.Update(ctx, dbTx, m); err != nil {
		return 0, apperror.InternalError(fmt.Errorf("update manager: %w", err))
	}
	if _, err := s.creditIdentity(ctx, dbTx, m.Owner, amount); err != nil {
		return 0, err
	}

	evt, err := s.event(domain.EventWithdrawn, m.ID, m.Owner, caller,
		domain.WithdrawnPayload{Owner: m.Owner, Amount: amount}, now)
	if err != nil {
		return 0, err
	}
	if err := s.commit(ctx, dbTx, evt); err != nil {
		return 0, err
	}

	s.log.Info().
		Str("manager_id", m.ID.String()).
		Int64("amount", amount).
		Int64("balance", m.Balance).
		Msg("manager withdrawn")
	return amount, nil
}

// owned returns the manager after the ownership check.
func (s *ManagerServiceImpl) owned(ctx context.Context, caller, managerID uuid.UUID, action string) (*domain.Manager, error) {
	m, err := s.Get(ctx, managerID)
	if err != nil {
		return nil, err
	}
	if !m.IsOwner(caller) {
		return nil, apperror.ErrUnauthorized(action)
	}
	return m, nil
}

func (s *ManagerServiceImpl) ownedSubscription(ctx context.Context, caller, managerID, walletID uuid.UUID) (*domain.Subscription, error) {
	if _, err := s.owned(ctx, caller, managerID, "inspect subscribers"); err != nil {
		return nil, err
	}
	sub, err := s.repos.Subscriptions.Get(ctx, walletID, managerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get subscription: %w", err))
	}
	return sub, nil
}
