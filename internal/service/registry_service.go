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

// RegistryServiceImpl implements ports.RegistryService.
type RegistryServiceImpl struct {
	ledger
}

// NewRegistryService creates a new RegistryServiceImpl.
func NewRegistryService(
	repos ports.Repositories,
	clock ports.Clock,
	dispatch ports.EventDispatcher,
	log zerolog.Logger,
) *RegistryServiceImpl {
	return &RegistryServiceImpl{ledger: newLedger(repos, clock, dispatch, log)}
}

// DeployFactory creates a new registry owned by caller.
func (s *RegistryServiceImpl) DeployFactory(ctx context.Context, caller uuid.UUID, kind domain.FactoryKind) (*domain.Factory, error) {
	return s.deployFactory(ctx, uuid.New(), kind, caller)
}

// EnsureFactory creates the factory if it does not exist yet. An existing
// factory of another kind is rejected.
func (s *RegistryServiceImpl) EnsureFactory(ctx context.Context, id uuid.UUID, kind domain.FactoryKind, owner uuid.UUID) (*domain.Factory, error) {
	f, err := s.repos.Factories.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get factory: %w", err))
	}
	if f != nil {
		if f.Kind != kind {
			return nil, apperror.ErrInvalidArgument(fmt.Sprintf("factory %s is a %s factory", id, f.Kind))
		}
		return f, nil
	}
	return s.deployFactory(ctx, id, kind, owner)
}

func (s *RegistryServiceImpl) deployFactory(ctx context.Context, id uuid.UUID, kind domain.FactoryKind, owner uuid.UUID) (*domain.Factory, error) {
	if _, err := domain.ParseFactoryKind(string(kind)); err != nil {
		return nil, err
	}

	dbTx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := s.now()
	f := &domain.Factory{ID: id, Kind: kind, Owner: owner, CreatedAt: now}
	if err := s.repos.Factories.Create(ctx, dbTx, f); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create factory: %w", err))
	}

	evt, err := s.event(domain.EventFactoryDeployed, f.ID, owner, owner,
		domain.FactoryDeployedPayload{FactoryID: f.ID, Kind: kind, Owner: owner}, now)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, dbTx, evt); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("factory_id", f.ID.String()).
		Str("kind", string(kind)).
		Str("owner", owner.String()).
		Msg("factory deployed")
	return f, nil
}

// GetFactory returns a registry by id.
func (s *RegistryServiceImpl) GetFactory(ctx context.Context, id uuid.UUID) (*domain.Factory, error) {
	f, err := s.repos.Factories.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get factory: %w", err))
	}
	if f == nil {
		return nil, apperror.ErrNotFound("factory")
	}
	return f, nil
}

// ListFactories returns the registries deployed by owner.
func (s *RegistryServiceImpl) ListFactories(ctx context.Context, owner uuid.UUID) ([]domain.Factory, error) {
	factories, err := s.repos.Factories.ListByOwner(ctx, owner)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list factories: %w", err))
	}
	return factories, nil
}

// CreateWallet mints a wallet owned by caller through a wallet factory.
func (s *RegistryServiceImpl) CreateWallet(ctx context.Context, caller, factoryID uuid.UUID) (*domain.Wallet, error) {
	f, err := s.factoryOf(ctx, factoryID, domain.FactoryKindWallet)
	if err != nil {
		return nil, err
	}
	return s.mintWallet(ctx, caller, f)
}

// DeployWallet mints a wallet with no registry entry.
func (s *RegistryServiceImpl) DeployWallet(ctx context.Context, caller uuid.UUID) (*domain.Wallet, error) {
	return s.mintWallet(ctx, caller, nil)
}

// CreateManager mints a manager owned by caller through a manager factory.
func (s *RegistryServiceImpl) CreateManager(ctx context.Context, caller, factoryID uuid.UUID, name string, price int64) (*domain.Manager, error) {
	if err := validatePolicy(name, price); err != nil {
		return nil, err
	}
	f, err := s.factoryOf(ctx, factoryID, domain.FactoryKindManager)
	if err != nil {
		return nil, err
	}
	return s.mintManager(ctx, caller, f, name, price)
}

// DeployManager mints a manager with no registry entry.
func (s *RegistryServiceImpl) DeployManager(ctx context.Context, caller uuid.UUID, name string, price int64) (*domain.Manager, error) {
	if err := validatePolicy(name, price); err != nil {
		return nil, err
	}
	return s.mintManager(ctx, caller, nil, name, price)
}

// Verify reports whether instanceID was minted by factoryID.
func (s *RegistryServiceImpl) Verify(ctx context.Context, factoryID, instanceID uuid.UUID) (bool, error) {
	ok, err := s.repos.Registry.Exists(ctx, factoryID, instanceID)
	if err != nil {
		return false, apperror.InternalError(fmt.Errorf("verify instance: %w", err))
	}
	return ok, nil
}

// List returns the instances caller created through factoryID.
func (s *RegistryServiceImpl) List(ctx context.Context, factoryID, caller uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.repos.Registry.ListByCreator(ctx, factoryID, caller)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list instances: %w", err))
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return ids, nil
}

func (s *RegistryServiceImpl) factoryOf(ctx context.Context, id uuid.UUID, kind domain.FactoryKind) (*domain.Factory, error) {
	f, err := s.GetFactory(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.Kind != kind {
		return nil, apperror.ErrInvalidArgument(fmt.Sprintf("factory does not mint %s instances", kind))
	}
	return f, nil
}

func (s *RegistryServiceImpl) mintWallet(ctx context.Context, caller uuid.UUID, f *domain.Factory) (*domain.Wallet, error) {
	dbTx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := s.now()
	w := &domain.Wallet{ID: uuid.New(), Owner: caller, CreatedAt: now, UpdatedAt: now}
	if err := s.repos.Wallets.Create(ctx, dbTx, w); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}

	payload := domain.InstanceCreatedPayload{Creator: caller, InstanceID: w.ID}
	if f != nil {
		if err := s.record(ctx, dbTx, f, w.ID, caller, now); err != nil {
			return nil, err
		}
		payload.FactoryID = &f.ID
	}

	evt, err := s.event(domain.EventWalletCreated, w.ID, caller, caller, payload, now)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, dbTx, evt); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("wallet_id", w.ID.String()).
		Str("owner", caller.String()).
		Bool("registered", f != nil).
		Msg("wallet created")
	return w, nil
}

func (s *RegistryServiceImpl) mintManager(ctx context.Context, caller uuid.UUID, f *domain.Factory, name string, price int64) (*domain.Manager, error) {
	dbTx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := s.now()
	m := &domain.Manager{
		ID:        uuid.New(),
		Owner:     caller,
		Name:      name,
		Price:     price,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repos.Managers.Create(ctx, dbTx, m); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create manager: %w", err))
	}

	payload := domain.InstanceCreatedPayload{Creator: caller, InstanceID: m.ID, Name: name, Price: price}
	if f != nil {
		if err := s.record(ctx, dbTx, f, m.ID, caller, now); err != nil {
			return nil, err
		}
		payload.FactoryID = &f.ID
	}

	evt, err := s.event(domain.EventManagerCreated, m.ID, caller, caller, payload, now)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, dbTx, evt); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("manager_id", m.ID.String()).
		Str("owner", caller.String()).
		Int64("price", price).
		Bool("registered", f != nil).
		Msg("manager created")
	return m, nil
}

func (s *RegistryServiceImpl) record(ctx context.Context, tx pgx.Tx, f *domain.Factory, instanceID, creator uuid.UUID, now time.Time) error {
	entry := &domain.RegistryEntry{
		FactoryID:  f.ID,
		Kind:       f.Kind,
		InstanceID: instanceID,
		Creator:    creator,
		CreatedAt:  now,
	}
	if err := s.repos.Registry.Append(ctx, tx, entry); err != nil {
		return apperror.InternalError(fmt.Errorf("append registry entry: %w", err))
	}
	return nil
}

func validatePolicy(name string, price int64) error {
	if err := domain.ValidatePrice(price); err != nil {
		return err
	}
	return domain.ValidateName(name)
}
