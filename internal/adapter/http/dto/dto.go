package dto

import (
	"time"

	"subscription-ledger/internal/core/domain"
	"subscription-ledger/internal/core/ports"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// --- Auth DTOs ---

type RegisterRequest struct {
	Username    string  `json:"username" binding:"required,min=3,max=50,safe_id"`
	Password    string  `json:"password" binding:"required,min=8,max=128"`
	DisplayName string  `json:"display_name" binding:"required,min=1,max=255"`
	WebhookURL  *string `json:"webhook_url,omitempty" binding:"omitempty,url,safe_url"`
}

type RegisterResponse struct {
	IdentityID string `json:"identity_id"`
	AccessKey  string `json:"access_key"`
	SecretKey  string `json:"secret_key"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"`
}

// --- Identity DTOs ---

type ProfileResponse struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	AccessKey   string  `json:"access_key"`
	WebhookURL  *string `json:"webhook_url"`
	Status      string  `json:"status"`
	Balance     int64   `json:"balance"`
	CreatedAt   string  `json:"created_at"`
}

func NewProfileResponse(i *domain.Identity) ProfileResponse {
	return ProfileResponse{
		ID:          i.ID.String(),
		Username:    i.Username,
		DisplayName: i.DisplayName,
		AccessKey:   i.AccessKey,
		WebhookURL:  i.WebhookURL,
		Status:      string(i.Status),
		Balance:     i.Balance,
		CreatedAt:   formatTime(i.CreatedAt),
	}
}

type BalanceResponse struct {
	IdentityID string `json:"identity_id"`
	Balance    int64  `json:"balance"`
}

// AmountRequest is the body of topup, deposit and fund calls. Range checks
// happen in the domain so every transport reports the same error.
type AmountRequest struct {
	Amount int64 `json:"amount"`
}

type UpdateWebhookRequest struct {
	WebhookURL *string `json:"webhook_url" binding:"omitempty,url,safe_url"`
}

type RotateKeysResponse struct {
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
}

// --- Registry DTOs ---

type DeployFactoryRequest struct {
	Kind string `json:"kind" binding:"required,factory_kind"`
}

type CreateManagerRequest struct {
	Name  string `json:"name" sanitize:"trim"`
	Price int64  `json:"price"`
}

type FactoryResponse struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Owner     string `json:"owner"`
	CreatedAt string `json:"created_at"`
}

func NewFactoryResponse(f *domain.Factory) FactoryResponse {
	return FactoryResponse{
		ID:        f.ID.String(),
		Kind:      string(f.Kind),
		Owner:     f.Owner.String(),
		CreatedAt: formatTime(f.CreatedAt),
	}
}

type InstancesResponse struct {
	FactoryID string   `json:"factory_id"`
	Creator   string   `json:"creator"`
	Instances []string `json:"instances"`
}

type VerifyResponse struct {
	FactoryID  string `json:"factory_id"`
	InstanceID string `json:"instance_id"`
	Verified   bool   `json:"verified"`
}

// --- Wallet DTOs ---

type WalletResponse struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Balance   int64  `json:"balance"`
	CreatedAt string `json:"created_at"`
}

func NewWalletResponse(w *domain.Wallet) WalletResponse {
	return WalletResponse{
		ID:        w.ID.String(),
		Owner:     w.Owner.String(),
		Balance:   w.Balance,
		CreatedAt: formatTime(w.CreatedAt),
	}
}

type SubscribeRequest struct {
	ManagerID string `json:"manager_id" binding:"required,uuid"`
}

type SubscriptionResponse struct {
	WalletID      string  `json:"wallet_id"`
	ManagerID     string  `json:"manager_id"`
	Active        bool    `json:"active"`
	LastPaymentAt *string `json:"last_payment_at"`
	SubscribedAt  *string `json:"subscribed_at,omitempty"`
}

func NewSubscriptionResponse(s *domain.Subscription) SubscriptionResponse {
	last := formatTime(s.LastPaymentAt)
	since := formatTime(s.SubscribedAt)
	return SubscriptionResponse{
		WalletID:      s.WalletID.String(),
		ManagerID:     s.ManagerID.String(),
		Active:        s.Active,
		LastPaymentAt: &last,
		SubscribedAt:  &since,
	}
}

// NewStatusResponse renders a status query. An unknown pair reports
// inactive with no last payment.
func NewStatusResponse(walletID, managerID uuid.UUID, active bool, last time.Time) SubscriptionResponse {
	resp := SubscriptionResponse{
		WalletID:  walletID.String(),
		ManagerID: managerID.String(),
		Active:    active,
	}
	if !last.IsZero() {
		s := formatTime(last)
		resp.LastPaymentAt = &s
	}
	return resp
}

type WithdrawResponse struct {
	InstanceID string `json:"instance_id"`
	Amount     int64  `json:"amount"`
}

// --- Manager DTOs ---

type ManagerResponse struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Balance   int64  `json:"balance"`
	CreatedAt string `json:"created_at"`
}

func NewManagerResponse(m *domain.Manager) ManagerResponse {
	return ManagerResponse{
		ID:        m.ID.String(),
		Owner:     m.Owner.String(),
		Name:      m.Name,
		Price:     m.Price,
		Balance:   m.Balance,
		CreatedAt: formatTime(m.CreatedAt),
	}
}

type UpdateNameRequest struct {
	Name string `json:"name" sanitize:"trim"`
}

type UpdatePriceRequest struct {
	Price int64 `json:"price"`
}

// ManagerWithdrawRequest withdraws Amount when set, else the whole balance.
type ManagerWithdrawRequest struct {
	Amount *int64 `json:"amount,omitempty"`
}

type PaymentRequest struct {
	WalletID    string `json:"wallet_id" binding:"required,uuid"`
	ReferenceID string `json:"reference_id,omitempty" binding:"omitempty,max=100,safe_id"`
}

type PaymentResponse struct {
	EventID       string `json:"event_id"`
	WalletID      string `json:"wallet_id"`
	ManagerID     string `json:"manager_id"`
	Amount        int64  `json:"amount"`
	PaidAt        string `json:"paid_at"`
	NextPaymentAt string `json:"next_payment_at"`
}

func NewPaymentResponse(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		EventID:       p.EventID.String(),
		WalletID:      p.WalletID.String(),
		ManagerID:     p.ManagerID.String(),
		Amount:        p.Amount,
		PaidAt:        formatTime(p.PaidAt),
		NextPaymentAt: formatTime(p.NextPaymentAt),
	}
}

// --- Event DTOs ---

type EventResponse struct {
	ID         string          `json:"id"`
	Seq        int64           `json:"seq"`
	Type       string          `json:"type"`
	InstanceID string          `json:"instance_id"`
	OwnerID    string          `json:"owner_id"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
	PrevHash   string          `json:"prev_hash"`
	Hash       string          `json:"hash"`
	CreatedAt  string          `json:"created_at"`
}

func NewEventResponse(e *domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID.String(),
		Seq:        e.Seq,
		Type:       string(e.Type),
		InstanceID: e.InstanceID.String(),
		OwnerID:    e.OwnerID.String(),
		ActorID:    e.ActorID.String(),
		Payload:    e.Payload,
		PrevHash:   e.PrevHash,
		Hash:       e.Hash,
		CreatedAt:  formatTime(e.CreatedAt),
	}
}

type ChainReportResponse = ports.ChainReport

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
