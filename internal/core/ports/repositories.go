package ports

import (
	"context"

	"subscription-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// IdentityRepository defines persistence operations for caller identities.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type IdentityRepository interface {
	Create(ctx context.Context, identity *domain.Identity) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error)
	GetByAccessKey(ctx context.Context, accessKey string) (*domain.Identity, error)
	GetByUsername(ctx context.Context, username string) (*domain.Identity, error)
	Update(ctx context.Context, identity *domain.Identity) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Identity, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance int64) error
}

// FactoryRepository defines persistence operations for registries.
type FactoryRepository interface {
	Create(ctx context.Context, tx pgx.Tx, factory *domain.Factory) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Factory, error)
	ListByOwner(ctx context.Context, owner uuid.UUID) ([]domain.Factory, error)
}

// RegistryRepository is the append-only provenance index of each factory.
type RegistryRepository interface {
	// Append records entry and assigns its Seq.
	Append(ctx context.Context, tx pgx.Tx, entry *domain.RegistryEntry) error
	Exists(ctx context.Context, factoryID, instanceID uuid.UUID) (bool, error)
	// ListByCreator returns instance ids in creation order.
	ListByCreator(ctx context.Context, factoryID, creator uuid.UUID) ([]uuid.UUID, error)
}

// WalletRepository defines persistence operations for escrow wallets.
type WalletRepository interface {
	Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance int64) error
}

// ManagerRepository defines persistence operations for billing policies.
type ManagerRepository interface {
	Create(ctx context.Context, tx pgx.Tx, manager *domain.Manager) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Manager, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Manager, error)
	// Update writes name, price and balance.
	Update(ctx context.Context, tx pgx.Tx, manager *domain.Manager) error
}

// SubscriptionRepository stores the single (wallet, manager) relation row.
type SubscriptionRepository interface {
	Get(ctx context.Context, walletID, managerID uuid.UUID) (*domain.Subscription, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, walletID, managerID uuid.UUID) (*domain.Subscription, error)
	// Create inserts a new relation and assigns its Seq.
	Create(ctx context.Context, tx pgx.Tx, sub *domain.Subscription) error
	// Update writes the active flag and last payment time.
	Update(ctx context.Context, tx pgx.Tx, sub *domain.Subscription) error
	ListByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.Subscription, error)
	// ListByManager returns relations in first-subscribe order.
	ListByManager(ctx context.Context, managerID uuid.UUID) ([]domain.Subscription, error)
}

// EventRepository is the durable, hash-chained event log.
type EventRepository interface {
	// Append seals events after the current head and stores them.
	Append(ctx context.Context, tx pgx.Tx, events ...*domain.Event) error
	List(ctx context.Context, params EventListParams) ([]domain.Event, error)
}

// EventListParams filters the log. Results are ordered by Seq ascending.
type EventListParams struct {
	// Viewer restricts results to events the identity owns or caused.
	Viewer     *uuid.UUID
	InstanceID *uuid.UUID
	OwnerID    *uuid.UUID
	Type       *domain.EventType
	AfterSeq   int64
	Limit      int // 0 = no limit
}

// Matches reports whether e passes every filter except paging.
func (p EventListParams) Matches(e *domain.Event) bool {
	if p.Viewer != nil && e.OwnerID != *p.Viewer && e.ActorID != *p.Viewer {
		return false
	}
	if p.InstanceID != nil && e.InstanceID != *p.InstanceID {
		return false
	}
	if p.OwnerID != nil && e.OwnerID != *p.OwnerID {
		return false
	}
	if p.Type != nil && e.Type != *p.Type {
		return false
	}
	return true
}

// IdempotencyRepository defines persistence for idempotency logs (DB backup).
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error
	Get(ctx context.Context, key string) (*domain.IdempotencyLog, error)
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// WebhookRepository persists webhook delivery attempts.
type WebhookRepository interface {
	Create(ctx context.Context, log *domain.WebhookDeliveryLog) error
	Update(ctx context.Context, log *domain.WebhookDeliveryLog) error
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.WebhookDeliveryLog, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repositories bundles one storage backend.
type Repositories struct {
	Identities    IdentityRepository
	Factories     FactoryRepository
	Registry      RegistryRepository
	Wallets       WalletRepository
	Managers      ManagerRepository
	Subscriptions SubscriptionRepository
	Events        EventRepository
	Idempotency   IdempotencyRepository
	Audit         AuditRepository
	Webhooks      WebhookRepository
	Transactor    DBTransactor
}
