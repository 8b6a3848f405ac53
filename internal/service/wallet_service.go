package service

import (
	"context"
	"fmt"
	"time"

	"subscription-ledger/internal/core/domain"
	"subscription-ledger/internal/core/ports"
	"subscription-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WalletServiceImpl implements ports.WalletService.
type WalletServiceImpl struct {
	ledger
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(
	repos ports.Repositories,
	clock ports.Clock,
	dispatch ports.EventDispatcher,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{ledger: newLedger(repos, clock, dispatch, log)}
}

// Get returns the public view of a wallet.
func (s *WalletServiceImpl) Get(ctx context.Context, walletID uuid.UUID) (*domain.Wallet, error) {
	w, err := s.repos.Wallets.GetByID(ctx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	return w, nil
}

// Subscribe starts or resumes billing of walletID by managerID. Subscribing
// an already active pair changes nothing and emits no event.
func (s *WalletServiceImpl) Subscribe(ctx context.Context, caller, walletID, managerID uuid.UUID) (*domain.Subscription, error) {
	dbTx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	w, err := s.repos.Wallets.GetByIDForUpdate(ctx, dbTx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	if !w.IsOwner(caller) {
		return nil, apperror.ErrUnauthorized("subscribe this wallet")
	}

	m, err := s.repos.Managers.GetByID(ctx, managerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get manager: %w", err))
	}
	if m == nil {
		return nil, apperror.ErrNotFound("manager")
	}

	sub, err := s.repos.Subscriptions.GetForUpdate(ctx, dbTx, walletID, managerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock subscription: %w", err))
	}

	now := s.now()
	switch {
	case sub == nil:
		sub = domain.NewSubscription(walletID, managerID, now)
		if err := s.repos.Subscriptions.Create(ctx, dbTx, sub); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("create subscription: %w", err))
		}
	case sub.Resubscribe(now):
		if err := s.repos.Subscriptions.Update(ctx, dbTx, sub); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("update subscription: %w", err))
		}
	default:
		return sub, nil
	}

	evt, err := s.event(domain.EventSubscribed, managerID, m.Owner, caller,
		domain.SubscriptionPayload{WalletID: walletID, ManagerID: managerID}, now)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, dbTx, evt); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("wallet_id", walletID.String()).
		Str("manager_id", managerID.String()).
		Time("last_payment_at", sub.LastPaymentAt).
		Msg("wallet subscribed")
	return sub, nil
}

// Unsubscribe stops billing of walletID by managerID.
func (s *WalletServiceImpl) Unsubscribe(ctx context.Context, caller, walletID, managerID uuid.UUID) (*domain.Subscription, error) {
	dbTx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	w, err := s.repos.Wallets.GetByIDForUpdate(ctx, dbTx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	if !w.IsOwner(caller) {
		return nil, apperror.ErrUnauthorized("unsubscribe this wallet")
	}

	sub, err := s.repos.Subscriptions.GetForUpdate(ctx, dbTx, walletID, managerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock subscription: %w", err))
	}
	if sub == nil {
		return nil, apperror.ErrNotSubscribed()
	}

	now := s.now()
	if err := sub.Unsubscribe(now); err != nil {
		return nil, err
	}
	if err := s.repos.Subscriptions.Update(ctx, dbTx, sub); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update subscription: %w", err))
	}

	// Owner is immutable; read without a lock.
	m, err := s.repos.Managers.GetByID(ctx, managerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get manager: %w", err))
	}
	owner := caller
	if m != nil {
		owner = m.Owner
	}

	evt, err := s.event(domain.EventUnsubscribed, managerID, owner, caller,
		domain.SubscriptionPayload{WalletID: walletID, ManagerID: managerID}, now)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, dbTx, evt); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("wallet_id", walletID.String()).
		Str("manager_id", managerID.String()).
		Msg("wallet unsubscribed")
	return sub, nil
}

// CheckSubscriptionStatus reports whether walletID is currently billed by
// managerID. Unknown managers report false.
func (s *WalletServiceImpl) CheckSubscriptionStatus(ctx context.Context, walletID, managerID uuid.UUID) (bool, error) {
	sub, err := s.subscription(ctx, walletID, managerID)
	if err != nil {
		return false, err
	}
	return sub != nil && sub.Active, nil
}

// CheckLastPaymentDate returns the billing clock of the pair, or the zero
// time for unknown managers.
func (s *WalletServiceImpl) CheckLastPaymentDate(ctx context.Context, walletID, managerID uuid.UUID) (time.Time, error) {
	sub, err := s.subscription(ctx, walletID, managerID)
	if err != nil || sub == nil {
		return time.Time{}, err
	}
	return sub.LastPaymentAt, nil
}

// ListSubscriptions returns every relation of the wallet, active or not.
func (s *WalletServiceImpl) ListSubscriptions(ctx context.Context, walletID uuid.UUID) ([]domain.Subscription, error) {
	if _, err := s.Get(ctx, walletID); err != nil {
		return nil, err
	}
	subs, err := s.repos.Subscriptions.ListByWallet(ctx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list subscriptions: %w", err))
	}
	return subs, nil
}

// Deposit moves amount from the caller's external account into the wallet.
// Anyone may fund any wallet.
func (s *WalletServiceImpl) Deposit(ctx context.Context, caller, walletID uuid.UUID, amount int64) (*domain.Wallet, error) {
	if amount <= 0 {
		return nil, apperror.ErrInvalidArgument("amount must be positive")
	}

	dbTx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	w, err := s.repos.Wallets.GetByIDForUpdate(ctx, dbTx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	if _, err := s.debitIdentity(ctx, dbTx, caller, amount); err != nil {
		return nil, err
	}
	if err := w.Deposit(amount); err != nil {
		return nil, err
	}

	now := s.now()
	w.UpdatedAt = now
	if err := s.repos.Wallets.UpdateBalance(ctx, dbTx, w.ID, w.Balance); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update wallet balance: %w", err))
	}

	evt, err := s.event(domain.EventDeposited, w.ID, w.Owner, caller,
		domain.DepositedPayload{From: caller, To: w.ID, Amount: amount}, now)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, dbTx, evt); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("wallet_id", w.ID.String()).
		Str("from", caller.String()).
		Int64("amount", amount).
		Int64("balance", w.Balance).
		Msg("wallet funded")
	return w, nil
}

// Withdraw moves the whole wallet balance to the owner's external account.
func (s *WalletServiceImpl) Withdraw(ctx context.Context, caller, walletID uuid.UUID) (int64, error) {
	dbTx, err := s.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	w, err := s.repos.Wallets.GetByIDForUpdate(ctx, dbTx, walletID)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if w == nil {
		return 0, apperror.ErrNotFound("wallet")
	}
	if !w.IsOwner(caller) {
		return 0, apperror.ErrUnauthorized("withdraw from this wallet")
	}

	amount, err := w.WithdrawAll()
	if err != nil {
		return 0, err
	}
	if err := s.repos.Wallets.UpdateBalance(ctx, dbTx, w.ID, w.Balance); err != nil {
		return 0, apperror.InternalError(fmt.Errorf("update wallet balance: %w", err))
	}
	if _, err := s.creditIdentity(ctx, dbTx, w.Owner, amount); err != nil {
		return 0, err
	}

	now := s.now()
	evt, err := s.event(domain.EventWithdrawn, w.ID, w.Owner, caller,
		domain.WithdrawnPayload{Owner: w.Owner, Amount: amount}, now)
	if err != nil {
		return 0, err
	}
	if err := s.commit(ctx, dbTx, evt); err != nil {
		return 0, err
	}

	s.log.Info().
		Str("wallet_id", w.ID.String()).
		Int64("amount", amount).
		Msg("wallet withdrawn")
	return amount, nil
}

// subscription reads the pair after checking the wallet exists.
func (s *WalletServiceImpl) subscription(ctx context.Context, walletID, managerID uuid.UUID) (*domain.Subscription, error) {
	if _, err := s.Get(ctx, walletID); err != nil {
		return nil, err
	}
	sub, err := s.repos.Subscriptions.Get(ctx, walletID, managerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get subscription: %w", err))
	}
	return sub, nil
}
