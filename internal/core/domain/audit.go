package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionRegister       AuditAction = "REGISTER"
	AuditActionLogin          AuditAction = "LOGIN"
	AuditActionRotateKeys     AuditAction = "ROTATE_KEYS"
	AuditActionUpdateWebhook  AuditAction = "UPDATE_WEBHOOK"
	AuditActionTopup          AuditAction = "TOPUP"
	AuditActionDeployFactory  AuditAction = "DEPLOY_FACTORY"
	AuditActionCreateWallet   AuditAction = "CREATE_WALLET"
	AuditActionCreateManager  AuditAction = "CREATE_MANAGER"
	AuditActionDeposit        AuditAction = "DEPOSIT"
	AuditActionSubscribe      AuditAction = "SUBSCRIBE"
	AuditActionUnsubscribe    AuditAction = "UNSUBSCRIBE"
	AuditActionWithdraw       AuditAction = "WITHDRAW"
	AuditActionRequestPayment AuditAction = "REQUEST_PAYMENT"
	AuditActionUpdateName     AuditAction = "UPDATE_NAME"
	AuditActionUpdatePrice    AuditAction = "UPDATE_PRICE"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	IdentityID   *uuid.UUID  `json:"identity_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
