package domain

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// EventType names a state change on the ledger.
type EventType string

const (
	EventWalletCreated   EventType = "WALLET_CREATED"
	EventManagerCreated  EventType = "MANAGER_CREATED"
	EventFactoryDeployed EventType = "FACTORY_DEPLOYED"
	EventSubscribed      EventType = "SUBSCRIBED"
	EventUnsubscribed    EventType = "UNSUBSCRIBED"
	EventPaymentReceived EventType = "PAYMENT_RECEIVED"
	EventDeposited       EventType = "DEPOSITED"
	EventWithdrawn       EventType = "WITHDRAWN"
	EventNameUpdated     EventType = "NAME_UPDATED"
	EventPriceUpdated    EventType = "PRICE_UPDATED"
	EventAccountToppedUp EventType = "ACCOUNT_TOPPED_UP"
)

// GenesisHash is the PrevHash of the first event in the log.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Event is one entry of the append-only, hash-chained ledger log.
// InstanceID is the entity that emitted it; OwnerID is the identity whose
// webhook is notified; ActorID is the caller.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Seq        int64           `json:"seq"`
	Type       EventType       `json:"type"`
	InstanceID uuid.UUID       `json:"instance_id"`
	OwnerID    uuid.UUID       `json:"owner_id"`
	ActorID    uuid.UUID       `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
	PrevHash   string          `json:"prev_hash"`
	Hash       string          `json:"hash"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewEvent builds an unsealed event. Seq and hashes are assigned on append.
func NewEvent(typ EventType, instanceID, ownerID, actorID uuid.UUID, payload any, now time.Time) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return &Event{
		ID:         uuid.New(),
		Type:       typ,
		InstanceID: instanceID,
		OwnerID:    ownerID,
		ActorID:    actorID,
		Payload:    raw,
		CreatedAt:  now.UTC().Truncate(time.Microsecond),
	}, nil
}

// Seal places the event after prevHash at position seq.
func (e *Event) Seal(seq int64, prevHash string) {
	e.Seq = seq
	e.PrevHash = prevHash
	e.Hash = e.computeHash()
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

func (e *Event) computeHash() string {
	var num [8]byte
	h := blake3.New()
	h.Write([]byte(e.PrevHash))
	binary.BigEndian.PutUint64(num[:], uint64(e.Seq))
	h.Write(num[:])
	h.Write([]byte(e.Type))
	h.Write(e.InstanceID[:])
	h.Write(e.OwnerID[:])
	h.Write(e.ActorID[:])
	binary.BigEndian.PutUint64(num[:], uint64(e.CreatedAt.UnixMicro()))
	h.Write(num[:])
	h.Write(e.Payload)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyChain checks that events form an unbroken chain from the genesis
// hash. It returns the sequence number of the first bad event.
func VerifyChain(events []*Event) (int64, error) {
	prev := GenesisHash
	for i, e := range events {
		if e.Seq != int64(i+1) {
			return e.Seq, fmt.Errorf("event %s: expected seq %d, got %d", e.ID, i+1, e.Seq)
		}
		if e.PrevHash != prev {
			return e.Seq, fmt.Errorf("event %d: prev hash mismatch", e.Seq)
		}
		if e.computeHash() != e.Hash {
			return e.Seq, fmt.Errorf("event %d: hash mismatch", e.Seq)
		}
		prev = e.Hash
	}
	return 0, nil
}

// ---- Payloads ----

type InstanceCreatedPayload struct {
	FactoryID  *uuid.UUID `json:"factory_id,omitempty"` // nil for provenance-less deployments
	Creator    uuid.UUID  `json:"creator"`
	InstanceID uuid.UUID  `json:"instance_id"`
	Name       string     `json:"name,omitempty"`
	Price      int64      `json:"price,omitempty"`
}

type FactoryDeployedPayload struct {
	FactoryID uuid.UUID   `json:"factory_id"`
	Kind      FactoryKind `json:"kind"`
	Owner     uuid.UUID   `json:"owner"`
}

type SubscriptionPayload struct {
	WalletID  uuid.UUID `json:"wallet_id"`
	ManagerID uuid.UUID `json:"manager_id"`
}

type PaymentReceivedPayload struct {
	WalletID  uuid.UUID `json:"wallet_id"`
	ManagerID uuid.UUID `json:"manager_id"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

type DepositedPayload struct {
	From   uuid.UUID `json:"from"`
	To     uuid.UUID `json:"to"`
	Amount int64     `json:"amount"`
}

type WithdrawnPayload struct {
	Owner  uuid.UUID `json:"owner"`
	Amount int64     `json:"amount"`
}

type NameUpdatedPayload struct {
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

type PriceUpdatedPayload struct {
	OldPrice int64 `json:"old_price"`
	NewPrice int64 `json:"new_price"`
}

type ToppedUpPayload struct {
	Identity uuid.UUID `json:"identity"`
	Amount   int64     `json:"amount"`
	Balance  int64     `json:"balance"`
}
