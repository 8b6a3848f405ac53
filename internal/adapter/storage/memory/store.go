// Package memory is an in-process ledger substrate. Transactions are
// serialized by a single lock and work on a private copy of the state that
// replaces the committed state on Commit.
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"subscription-ledger/internal/core/domain"
	"subscription-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var errForeignTx = errors.New("memory: transaction was not started by this store")

type subKey struct {
	wallet  uuid.UUID
	manager uuid.UUID
}

type regKey struct {
	factory  uuid.UUID
	instance uuid.UUID
}

type state struct {
	identities map[uuid.UUID]domain.Identity
	accessKeys map[string]uuid.UUID
	usernames  map[string]uuid.UUID
	factories  map[uuid.UUID]domain.Factory
	registry   []domain.RegistryEntry
	regIndex   map[regKey]struct{}
	wallets    map[uuid.UUID]domain.Wallet
	managers   map[uuid.UUID]domain.Manager
	subs       map[subKey]domain.Subscription
	subSeq     int64
	events     []domain.Event
	idem       map[string]domain.IdempotencyLog
}

func newState() *state {
	return &state{
		identities: map[uuid.UUID]domain.Identity{},
		accessKeys: map[string]uuid.UUID{},
		usernames:  map[string]uuid.UUID{},
		factories:  map[uuid.UUID]domain.Factory{},
		regIndex:   map[regKey]struct{}{},
		wallets:    map[uuid.UUID]domain.Wallet{},
		managers:   map[uuid.UUID]domain.Manager{},
		subs:       map[subKey]domain.Subscription{},
		idem:       map[string]domain.IdempotencyLog{},
	}
}

// clone copies every map. Slices are clipped so appends in the copy never
// write into the committed backing array.
func (s *state) clone() *state {
	return &state{
		identities: maps.Clone(s.identities),
		accessKeys: maps.Clone(s.accessKeys),
		usernames:  maps.Clone(s.usernames),
		factories:  maps.Clone(s.factories),
		registry:   slices.Clip(s.registry),
		regIndex:   maps.Clone(s.regIndex),
		wallets:    maps.Clone(s.wallets),
		managers:   maps.Clone(s.managers),
		subs:       maps.Clone(s.subs),
		subSeq:     s.subSeq,
		events:     slices.Clip(s.events),
		idem:       maps.Clone(s.idem),
	}
}

// Store holds the committed ledger state.
type Store struct {
	txMu sync.Mutex   // held by the open transaction and by direct writes
	mu   sync.RWMutex // guards state
	st   *state

	// audit and webhook logs are append-mostly side records outside transactions
	logMu    sync.Mutex
	audit    []domain.AuditLog
	webhooks []domain.WebhookDeliveryLog
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// Repositories exposes the store through the repository ports.
func (s *Store) Repositories() ports.Repositories {
	return ports.Repositories{
		Identities:    &IdentityRepo{s: s},
		Factories:     &FactoryRepo{s: s},
		Registry:      &RegistryRepo{s: s},
		Wallets:       &WalletRepo{s: s},
		Managers:      &ManagerRepo{s: s},
		Subscriptions: &SubscriptionRepo{s: s},
		Events:        &EventRepo{s: s},
		Idempotency:   &IdempotencyRepo{s: s},
		Audit:         &AuditRepo{s: s},
		Webhooks:      &WebhookRepo{s: s},
		Transactor:    s,
	}
}

// Begin starts a transaction. It blocks while another transaction is open.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.txMu.Lock()
	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()
	return &Tx{store: s, st: work}, nil
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(_ context.Context) error { return nil }

// Name implements ports.HealthChecker.
func (s *Store) Name() string { return "memory" }

// read runs fn against the committed state.
func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.st)
}

// write applies fn to the committed state outside any transaction.
func (s *Store) write(fn func(st *state) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	work := s.st.clone()
	if err := fn(work); err != nil {
		return err
	}
	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

// Tx is a memory transaction. Only Commit and Rollback are supported; the
// embedded pgx.Tx is nil and any other method panics.
type Tx struct {
	pgx.Tx
	store *Store
	st    *state
	done  bool
}

func (t *Tx) Commit(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.mu.Lock()
	t.store.st = t.st
	t.store.mu.Unlock()
	t.store.txMu.Unlock()
	return nil
}

// Rollback discards the transaction. It is a no-op after Commit.
func (t *Tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.txMu.Unlock()
	return nil
}

func (s *Store) stateOf(tx pgx.Tx) (*state, error) {
	t, ok := tx.(*Tx)
	if !ok || t.store != s {
		return nil, errForeignTx
	}
	if t.done {
		return nil, pgx.ErrTxClosed
	}
	return t.st, nil
}
