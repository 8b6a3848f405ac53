package domain

import (
	"strings"
	"time"

	"subscription-ledger/pkg/apperror"

	"github.com/google/uuid"
)

// FactoryKind is the instance kind a registry mints.
type FactoryKind string

const (
	FactoryKindWallet  FactoryKind = "WALLET"
	FactoryKindManager FactoryKind = "MANAGER"
)

// ParseFactoryKind accepts the kind name in any case.
func ParseFactoryKind(s string) (FactoryKind, error) {
	switch FactoryKind(strings.ToUpper(strings.TrimSpace(s))) {
	case FactoryKindWallet:
		return FactoryKindWallet, nil
	case FactoryKindManager:
		return FactoryKindManager, nil
	}
	return "", apperror.ErrInvalidArgument("kind must be WALLET or MANAGER")
}

// Factory is a registry that mints instances of one kind. Owner is the
// deployer and has no authority over the instances it mints.
type Factory struct {
	ID        uuid.UUID   `json:"id"`
	Kind      FactoryKind `json:"kind"`
	Owner     uuid.UUID   `json:"owner"`
	CreatedAt time.Time   `json:"created_at"`
}

// RegistryEntry records that InstanceID was minted by FactoryID on behalf
// of Creator. Entries are append-only; Seq orders them by creation.
type RegistryEntry struct {
	FactoryID  uuid.UUID   `json:"factory_id"`
	Kind       FactoryKind `json:"kind"`
	InstanceID uuid.UUID   `json:"instance_id"`
	Creator    uuid.UUID   `json:"creator"`
	Seq        int64       `json:"seq"`
	CreatedAt  time.Time   `json:"created_at"`
}
