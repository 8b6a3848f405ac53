package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyLog stores the result of a payment pull to prevent double-processing
// of a retried request.
type IdempotencyLog struct {
	Key          string    `json:"key"` // Format: "manager_id:wallet_id:pull:reference_id"
	EventID      uuid.UUID `json:"event_id"`
	ResponseJSON []byte    `json:"response_json"` // Cached response to return
	CreatedAt    time.Time `json:"created_at"`
}

// BuildPaymentIdempotencyKey constructs the key for a payment pull retry.
// References are scoped to one wallet, so the same invoice number can be
// pulled from different subscribers.
func BuildPaymentIdempotencyKey(managerID, walletID uuid.UUID, referenceID string) string {
	return managerID.String() + ":" + walletID.String() + ":pull:" + referenceID
}
