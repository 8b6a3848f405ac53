package ports

import (
	"context"
	"time"

	"subscription-ledger/internal/core/domain"

	"github.com/google/uuid"
)

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(identityID uuid.UUID, accessKey string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	IdentityID uuid.UUID
	AccessKey  string
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NonceStore manages nonce uniqueness for replay attack prevention.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, identityID string, nonce string, ttl time.Duration) (bool, error)
}

// Clock is the ledger's monotonic time source.
type Clock interface {
	Now() time.Time
}

// EventStream fans committed events out to live consumers.
type EventStream interface {
	Publish(ctx context.Context, event *domain.Event) error
	// Subscribe delivers events until ctx is cancelled, then closes the channel.
	Subscribe(ctx context.Context) (<-chan domain.Event, error)
}

// EventDispatcher receives events after their transaction committed.
// Dispatch is best-effort and never fails the operation.
type EventDispatcher interface {
	Dispatch(ctx context.Context, events ...*domain.Event)
}

// Metrics records operational counters.
type Metrics interface {
	IncPaymentRequests(outcome string)
	AddPaymentVolume(amount int64)
	IncEvents(eventType domain.EventType)
	IncHTTPRequests(route string, status int)
	ObserveHTTPDuration(route string, d time.Duration)
}

// --- Service Ports (Business Logic) ---

// AuthService defines authentication business logic.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error)
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
}

// RegisterRequest holds input for identity registration.
type RegisterRequest struct {
	Username    string
	Password    string
	DisplayName string
	WebhookURL  *string
}

// RegisterResponse holds the registration result shown once.
type RegisterResponse struct {
	IdentityID uuid.UUID
	AccessKey  string
	SecretKey  string // Plaintext, shown only at registration
}

// IdentityService manages an identity's profile, keys and external account.
type IdentityService interface {
	GetProfile(ctx context.Context, identityID uuid.UUID) (*domain.Identity, error)
	UpdateWebhookURL(ctx context.Context, identityID uuid.UUID, webhookURL *string) error
	RotateKeys(ctx context.Context, identityID uuid.UUID) (*RotateKeysResponse, error)
	// Topup credits the external account from outside the ledger.
	Topup(ctx context.Context, identityID uuid.UUID, amount int64) (*domain.Identity, error)
	Balance(ctx context.Context, identityID uuid.UUID) (int64, error)
}

// RotateKeysResponse holds the fresh key pair shown once.
type RotateKeysResponse struct {
	AccessKey string
	SecretKey string
}

// RegistryService implements the wallet and manager factories.
type RegistryService interface {
	DeployFactory(ctx context.Context, caller uuid.UUID, kind domain.FactoryKind) (*domain.Factory, error)
	// EnsureFactory creates the factory if it does not exist yet.
	EnsureFactory(ctx context.Context, id uuid.UUID, kind domain.FactoryKind, owner uuid.UUID) (*domain.Factory, error)
	GetFactory(ctx context.Context, id uuid.UUID) (*domain.Factory, error)
	ListFactories(ctx context.Context, owner uuid.UUID) ([]domain.Factory, error)
	CreateWallet(ctx context.Context, caller, factoryID uuid.UUID) (*domain.Wallet, error)
	CreateManager(ctx context.Context, caller, factoryID uuid.UUID, name string, price int64) (*domain.Manager, error)
	// DeployWallet and DeployManager mint instances outside any registry.
	DeployWallet(ctx context.Context, caller uuid.UUID) (*domain.Wallet, error)
	DeployManager(ctx context.Context, caller uuid.UUID, name string, price int64) (*domain.Manager, error)
	// Verify reports whether instanceID was minted by factoryID. Unknown ids yield false.
	Verify(ctx context.Context, factoryID, instanceID uuid.UUID) (bool, error)
	// List returns the instances caller created through factoryID, oldest first.
	List(ctx context.Context, factoryID, caller uuid.UUID) ([]uuid.UUID, error)
}

// WalletService implements the subscriber side of the protocol.
type WalletService interface {
	Get(ctx context.Context, walletID uuid.UUID) (*domain.Wallet, error)
	Subscribe(ctx context.Context, caller, walletID, managerID uuid.UUID) (*domain.Subscription, error)
	Unsubscribe(ctx context.Context, caller, walletID, managerID uuid.UUID) (*domain.Subscription, error)
	CheckSubscriptionStatus(ctx context.Context, walletID, managerID uuid.UUID) (bool, error)
	CheckLastPaymentDate(ctx context.Context, walletID, managerID uuid.UUID) (time.Time, error)
	ListSubscriptions(ctx context.Context, walletID uuid.UUID) ([]domain.Subscription, error)
	Deposit(ctx context.Context, caller, walletID uuid.UUID, amount int64) (*domain.Wallet, error)
	// Withdraw moves the whole balance to the owner's external account.
	Withdraw(ctx context.Context, caller, walletID uuid.UUID) (int64, error)
}

// ManagerService implements the merchant side of the protocol.
type ManagerService interface {
	Get(ctx context.Context, managerID uuid.UUID) (*domain.Manager, error)
	UpdateName(ctx context.Context, caller, managerID uuid.UUID, name string) (*domain.Manager, error)
	UpdatePrice(ctx context.Context, caller, managerID uuid.UUID, price int64) (*domain.Manager, error)
	// Subscribers lists every wallet that ever subscribed, in first-subscribe order.
	Subscribers(ctx context.Context, caller, managerID uuid.UUID) ([]uuid.UUID, error)
	OwnerCheckLastPaymentDate(ctx context.Context, caller, managerID, walletID uuid.UUID) (time.Time, error)
	OwnerCheckSubscriptionStatus(ctx context.Context, caller, managerID, walletID uuid.UUID) (bool, error)
	RequestPayment(ctx context.Context, req PaymentRequest) (*domain.Payment, error)
	Fund(ctx context.Context, caller, managerID uuid.UUID, amount int64) (*domain.Manager, error)
	Withdraw(ctx context.Context, caller, managerID uuid.UUID) (int64, error)
	WithdrawAmount(ctx context.Context, caller, managerID uuid.UUID, amount int64) (int64, error)
}

// PaymentRequest holds validated input for a payment pull.
type PaymentRequest struct {
	Caller      uuid.UUID
	ManagerID   uuid.UUID
	WalletID    uuid.UUID
	ReferenceID string // optional; makes retries idempotent
}

// EventService exposes the event log to observers.
type EventService interface {
	EventDispatcher
	// List and Subscribe only return events the viewer owns or caused.
	List(ctx context.Context, viewer uuid.UUID, params EventListParams) ([]domain.Event, error)
	Subscribe(ctx context.Context, viewer uuid.UUID, params EventListParams) (<-chan domain.Event, error)
	// VerifyLog recomputes the hash chain over the whole log.
	VerifyLog(ctx context.Context) (*ChainReport, error)
}

// ChainReport is the result of a full log verification.
type ChainReport struct {
	Events  int    `json:"events"`
	Valid   bool   `json:"valid"`
	Head    string `json:"head"`
	BadSeq  int64  `json:"bad_seq,omitempty"`
	Problem string `json:"problem,omitempty"`
}

// WebhookService defines async webhook delivery.
type WebhookService interface {
	EnqueueWebhook(ctx context.Context, event *domain.Event) error
}

// AuditService records audited actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// HealthChecker reports whether a backing dependency is usable.
type HealthChecker interface {
	// Ping returns nil when the dependency is healthy.
	Ping(ctx context.Context) error
	// Name identifies the dependency in the health report.
	Name() string
}
