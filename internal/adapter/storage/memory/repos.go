package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"subscription-ledger/internal/core/domain"
	"subscription-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ---- Identities ----

type IdentityRepo struct{ s *Store }

func (r *IdentityRepo) Create(_ context.Context, identity *domain.Identity) error {
	return r.s.write(func(st *state) error {
		if _, ok := st.identities[identity.ID]; ok {
			return fmt.Errorf("create identity: duplicate id %s", identity.ID)
		}
		if _, ok := st.usernames[identity.Username]; ok {
			return fmt.Errorf("create identity: duplicate username %q", identity.Username)
		}
		if _, ok := st.accessKeys[identity.AccessKey]; ok {
			return errors.New("create identity: duplicate access key")
		}
		st.putIdentity(*identity)
		return nil
	})
}

func (r *IdentityRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Identity, error) {
	var out *domain.Identity
	r.s.read(func(st *state) { out = st.identity(id) })
	return out, nil
}

func (r *IdentityRepo) GetByAccessKey(_ context.Context, accessKey string) (*domain.Identity, error) {
	var out *domain.Identity
	r.s.read(func(st *state) {
		if id, ok := st.accessKeys[accessKey]; ok {
			out = st.identity(id)
		}
	})
	return out, nil
}

func (r *IdentityRepo) GetByUsername(_ context.Context, username string) (*domain.Identity, error) {
	var out *domain.Identity
	r.s.read(func(st *state) {
		if id, ok := st.usernames[username]; ok {
			out = st.identity(id)
		}
	})
	return out, nil
}

// Update writes profile fields and keys. The balance is only changed through UpdateBalance.
func (r *IdentityRepo) Update(_ context.Context, identity *domain.Identity) error {
	return r.s.write(func(st *state) error {
		cur, ok := st.identities[identity.ID]
		if !ok {
			return fmt.Errorf("identity not found: %s", identity.ID)
		}
		next := *identity
		next.Balance = cur.Balance
		delete(st.accessKeys, cur.AccessKey)
		st.putIdentity(next)
		return nil
	})
}

func (r *IdentityRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Identity, error) {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return nil, err
	}
	return st.identity(id), nil
}

func (r *IdentityRepo) UpdateBalance(_ context.Context, tx pgx.Tx, id uuid.UUID, balance int64) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	cur, ok := st.identities[id]
	if !ok {
		return fmt.Errorf("identity not found: %s", id)
	}
	cur.Balance = balance
	st.identities[id] = cur
	return nil
}

func (st *state) identity(id uuid.UUID) *domain.Identity {
	i, ok := st.identities[id]
	if !ok {
		return nil
	}
	return &i
}

func (st *state) putIdentity(i domain.Identity) {
	st.identities[i.ID] = i
	st.usernames[i.Username] = i.ID
	st.accessKeys[i.AccessKey] = i.ID
}

// ---- Factories ----

type FactoryRepo struct{ s *Store }

func (r *FactoryRepo) Create(_ context.Context, tx pgx.Tx, factory *domain.Factory) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	if _, ok := st.factories[factory.ID]; ok {
		return fmt.Errorf("create factory: duplicate id %s", factory.ID)
	}
	st.factories[factory.ID] = *factory
	return nil
}

func (r *FactoryRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Factory, error) {
	var out *domain.Factory
	r.s.read(func(st *state) {
		if f, ok := st.factories[id]; ok {
			out = &f
		}
	})
	return out, nil
}

func (r *FactoryRepo) ListByOwner(_ context.Context, owner uuid.UUID) ([]domain.Factory, error) {
	var out []domain.Factory
	r.s.read(func(st *state) {
		for _, f := range st.factories {
			if f.Owner == owner {
				out = append(out, f)
			}
		}
	})
	slices.SortFunc(out, func(a, b domain.Factory) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

// ---- Registry ----

type RegistryRepo struct{ s *Store }

func (r *RegistryRepo) Append(_ context.Context, tx pgx.Tx, entry *domain.RegistryEntry) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	key := regKey{entry.FactoryID, entry.InstanceID}
	if _, ok := st.regIndex[key]; ok {
		return fmt.Errorf("append registry entry: %s already registered", entry.InstanceID)
	}
	entry.Seq = int64(len(st.registry)) + 1
	st.registry = append(st.registry, *entry)
	st.regIndex[key] = struct{}{}
	return nil
}

func (r *RegistryRepo) Exists(_ context.Context, factoryID, instanceID uuid.UUID) (bool, error) {
	var ok bool
	r.s.read(func(st *state) { _, ok = st.regIndex[regKey{factoryID, instanceID}] })
	return ok, nil
}

func (r *RegistryRepo) ListByCreator(_ context.Context, factoryID, creator uuid.UUID) ([]uuid.UUID, error) {
	out := []uuid.UUID{}
	r.s.read(func(st *state) {
		for _, e := range st.registry {
			if e.FactoryID == factoryID && e.Creator == creator {
				out = append(out, e.InstanceID)
			}
		}
	})
	return out, nil
}

// ---- Wallets ----

type WalletRepo struct{ s *Store }

func (r *WalletRepo) Create(_ context.Context, tx pgx.Tx, wallet *domain.Wallet) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	if _, ok := st.wallets[wallet.ID]; ok {
		return fmt.Errorf("create wallet: duplicate id %s", wallet.ID)
	}
	st.wallets[wallet.ID] = *wallet
	return nil
}

func (r *WalletRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Wallet, error) {
	var out *domain.Wallet
	r.s.read(func(st *state) { out = st.wallet(id) })
	return out, nil
}

func (r *WalletRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return nil, err
	}
	return st.wallet(id), nil
}

func (r *WalletRepo) UpdateBalance(_ context.Context, tx pgx.Tx, id uuid.UUID, balance int64) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	w, ok := st.wallets[id]
	if !ok {
		return fmt.Errorf("wallet not found: %s", id)
	}
	if balance < 0 {
		return fmt.Errorf("wallet %s: negative balance %d", id, balance)
	}
	w.Balance = balance
	st.wallets[id] = w
	return nil
}

func (st *state) wallet(id uuid.UUID) *domain.Wallet {
	w, ok := st.wallets[id]
	if !ok {
		return nil
	}
	return &w
}

// ---- Managers ----

type ManagerRepo struct{ s *Store }

func (r *ManagerRepo) Create(_ context.Context, tx pgx.Tx, manager *domain.Manager) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	if _, ok := st.managers[manager.ID]; ok {
		return fmt.Errorf("create manager: duplicate id %s", manager.ID)
	}
	st.managers[manager.ID] = *manager
	return nil
}

func (r *ManagerRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Manager, error) {
	var out *domain.Manager
	r.s.read(func(st *state) { out = st.manager(id) })
	return out, nil
}

func (r *ManagerRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Manager, error) {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return nil, err
	}
	return st.manager(id), nil
}

func (r *ManagerRepo) Update(_ context.Context, tx pgx.Tx, manager *domain.Manager) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	cur, ok := st.managers[manager.ID]
	if !ok {
		return fmt.Errorf("manager not found: %s", manager.ID)
	}
	if manager.Price <= 0 || manager.Balance < 0 {
		return fmt.Errorf("manager %s: constraint violated", manager.ID)
	}
	cur.Name = manager.Name
	cur.Price = manager.Price
	cur.Balance = manager.Balance
	cur.UpdatedAt = manager.UpdatedAt
	st.managers[manager.ID] = cur
	return nil
}

func (st *state) manager(id uuid.UUID) *domain.Manager {
	m, ok := st.managers[id]
	if !ok {
		return nil
	}
	return &m
}

// ---- Subscriptions ----

type SubscriptionRepo struct{ s *Store }

func (r *SubscriptionRepo) Get(_ context.Context, walletID, managerID uuid.UUID) (*domain.Subscription, error) {
	var out *domain.Subscription
	r.s.read(func(st *state) { out = st.sub(walletID, managerID) })
	return out, nil
}

func (r *SubscriptionRepo) GetForUpdate(_ context.Context, tx pgx.Tx, walletID, managerID uuid.UUID) (*domain.Subscription, error) {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return nil, err
	}
	return st.sub(walletID, managerID), nil
}

func (r *SubscriptionRepo) Create(_ context.Context, tx pgx.Tx, sub *domain.Subscription) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	key := subKey{sub.WalletID, sub.ManagerID}
	if _, ok := st.subs[key]; ok {
		return errors.New("create subscription: pair already exists")
	}
	st.subSeq++
	sub.Seq = st.subSeq
	st.subs[key] = *sub
	return nil
}

func (r *SubscriptionRepo) Update(_ context.Context, tx pgx.Tx, sub *domain.Subscription) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	key := subKey{sub.WalletID, sub.ManagerID}
	cur, ok := st.subs[key]
	if !ok {
		return errors.New("subscription not found")
	}
	cur.Active = sub.Active
	cur.LastPaymentAt = sub.LastPaymentAt
	cur.UpdatedAt = sub.UpdatedAt
	st.subs[key] = cur
	return nil
}

func (r *SubscriptionRepo) ListByWallet(_ context.Context, walletID uuid.UUID) ([]domain.Subscription, error) {
	return r.list(func(s domain.Subscription) bool { return s.WalletID == walletID }), nil
}

func (r *SubscriptionRepo) ListByManager(_ context.Context, managerID uuid.UUID) ([]domain.Subscription, error) {
	return r.list(func(s domain.Subscription) bool { return s.ManagerID == managerID }), nil
}

func (r *SubscriptionRepo) list(match func(domain.Subscription) bool) []domain.Subscription {
	out := []domain.Subscription{}
	r.s.read(func(st *state) {
		for _, s := range st.subs {
			if match(s) {
				out = append(out, s)
			}
		}
	})
	slices.SortFunc(out, func(a, b domain.Subscription) int { return cmp.Compare(a.Seq, b.Seq) })
	return out
}

func (st *state) sub(walletID, managerID uuid.UUID) *domain.Subscription {
	s, ok := st.subs[subKey{walletID, managerID}]
	if !ok {
		return nil
	}
	return &s
}

// ---- Events ----

type EventRepo struct{ s *Store }

func (r *EventRepo) Append(_ context.Context, tx pgx.Tx, events ...*domain.Event) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	seq, prev := int64(0), domain.GenesisHash
	if n := len(st.events); n > 0 {
		seq, prev = st.events[n-1].Seq, st.events[n-1].Hash
	}
	for _, e := range events {
		seq++
		e.Seal(seq, prev)
		prev = e.Hash
		st.events = append(st.events, *e)
	}
	return nil
}

func (r *EventRepo) List(_ context.Context, p ports.EventListParams) ([]domain.Event, error) {
	out := []domain.Event{}
	r.s.read(func(st *state) {
		// events are stored in seq order starting at 1
		start := max(p.AfterSeq, 0)
		if start > int64(len(st.events)) {
			return
		}
		for _, e := range st.events[start:] {
			if !p.Matches(&e) {
				continue
			}
			out = append(out, e)
			if p.Limit > 0 && len(out) == p.Limit {
				return
			}
		}
	})
	return out, nil
}

// ---- Idempotency ----

type IdempotencyRepo struct{ s *Store }

func (r *IdempotencyRepo) Create(_ context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	if _, ok := st.idem[log.Key]; ok {
		return fmt.Errorf("create idempotency log: duplicate key %q", log.Key)
	}
	st.idem[log.Key] = *log
	return nil
}

func (r *IdempotencyRepo) Get(_ context.Context, key string) (*domain.IdempotencyLog, error) {
	var out *domain.IdempotencyLog
	r.s.read(func(st *state) {
		if l, ok := st.idem[key]; ok {
			out = &l
		}
	})
	return out, nil
}

// ---- Audit & webhooks ----

type AuditRepo struct{ s *Store }

func (r *AuditRepo) Create(_ context.Context, log *domain.AuditLog) error {
	r.s.logMu.Lock()
	defer r.s.logMu.Unlock()
	r.s.audit = append(r.s.audit, *log)
	return nil
}

// AuditLogs returns a copy of the recorded audit entries.
func (s *Store) AuditLogs() []domain.AuditLog {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	return slices.Clone(s.audit)
}

type WebhookRepo struct{ s *Store }

func (r *WebhookRepo) Create(_ context.Context, log *domain.WebhookDeliveryLog) error {
	r.s.logMu.Lock()
	defer r.s.logMu.Unlock()
	r.s.webhooks = append(r.s.webhooks, *log)
	return nil
}

func (r *WebhookRepo) Update(_ context.Context, log *domain.WebhookDeliveryLog) error {
	r.s.logMu.Lock()
	defer r.s.logMu.Unlock()
	for i := range r.s.webhooks {
		if r.s.webhooks[i].ID == log.ID {
			r.s.webhooks[i] = *log
			return nil
		}
	}
	return fmt.Errorf("webhook delivery log not found: %s", log.ID)
}

func (r *WebhookRepo) ListByEvent(_ context.Context, eventID uuid.UUID) ([]domain.WebhookDeliveryLog, error) {
	r.s.logMu.Lock()
	defer r.s.logMu.Unlock()
	out := []domain.WebhookDeliveryLog{}
	for _, l := range r.s.webhooks {
		if l.EventID == eventID {
			out = append(out, l)
		}
	}
	return out, nil
}
