package handler

import (
	"net/http"

	"subscription-ledger/internal/adapter/http/middleware"
	"subscription-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	IdentitySvc    ports.IdentityService
	RegistrySvc    ports.RegistryService
	WalletSvc      ports.WalletService
	ManagerSvc     ports.ManagerService
	EventSvc       ports.EventService
	IdentityRepo   ports.IdentityRepository
	EncSvc         ports.EncryptionService
	SigSvc         ports.SignatureService
	NonceStore     ports.NonceStore
	TokenSvc       ports.TokenService
	RateLimitStore middleware.Limiter // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	Metrics        ports.Metrics      // nil = request metrics disabled
	MetricsHandler http.Handler       // nil = no scrape endpoint
	MetricsPath    string
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}
	r.Use(middleware.MaxBodySize(maxBodyBytes))

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.MetricsHandler != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(deps.MetricsHandler))
	}

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	hmacAuth := middleware.HMACAuth(deps.IdentityRepo, deps.EncSvc, deps.SigSvc, deps.NonceStore, deps.Logger)

	// --- Identity self-service (JWT) ---
	identityHandler := NewIdentityHandler(deps.IdentitySvc)
	me := v1.Group("/identities/me", jwtAuth)
	{
		me.GET("", rl("queries"), identityHandler.GetProfile)
		me.GET("/balance", rl("queries"), identityHandler.GetBalance)
		me.POST("/topup", rl("topup"), identityHandler.Topup)
		me.PUT("/webhook", rl("mutations"), identityHandler.UpdateWebhookURL)
		me.POST("/rotate-keys", rl("mutations"), identityHandler.RotateKeys)
	}

	registryHandler := NewRegistryHandler(deps.RegistrySvc)
	walletHandler := NewWalletHandler(deps.WalletSvc)
	managerHandler := NewManagerHandler(deps.ManagerSvc)
	eventHandler := NewEventHandler(deps.EventSvc)

	// --- Queries (JWT) ---
	q := v1.Group("", jwtAuth, rl("queries"))
	{
		q.GET("/factories", registryHandler.ListFactories)
		q.GET("/factories/:id", registryHandler.GetFactory)
		q.GET("/factories/:id/instances", registryHandler.ListInstances)
		q.GET("/factories/:id/verify/:instance", registryHandler.Verify)

		q.GET("/wallets/:id", walletHandler.Get)
		q.GET("/wallets/:id/subscriptions", walletHandler.ListSubscriptions)
		q.GET("/wallets/:id/subscriptions/:manager", walletHandler.GetSubscription)

		q.GET("/managers/:id", managerHandler.Get)
		q.GET("/managers/:id/subscribers", managerHandler.Subscribers)
		q.GET("/managers/:id/subscribers/:wallet", managerHandler.GetSubscriber)

		q.GET("/events", eventHandler.List)
		q.GET("/events/stream", eventHandler.Stream)
		q.GET("/events/verify", eventHandler.Verify)
	}

	// --- Mutations (HMAC) ---
	m := v1.Group("", hmacAuth)
	{
		m.POST("/factories", rl("registry"), registryHandler.DeployFactory)
		m.POST("/factories/:id/wallets", rl("registry"), registryHandler.CreateWallet)
		m.POST("/factories/:id/managers", rl("registry"), registryHandler.CreateManager)
		m.POST("/wallets/deploy", rl("registry"), registryHandler.DeployWallet)
		m.POST("/managers/deploy", rl("registry"), registryHandler.DeployManager)

		m.POST("/wallets/:id/deposit", rl("mutations"), walletHandler.Deposit)
		m.POST("/wallets/:id/subscribe", rl("mutations"), walletHandler.Subscribe)
		m.POST("/wallets/:id/unsubscribe", rl("mutations"), walletHandler.Unsubscribe)
		m.POST("/wallets/:id/withdraw", rl("mutations"), walletHandler.Withdraw)

		m.POST("/managers/:id/fund", rl("mutations"), managerHandler.Fund)
		m.POST("/managers/:id/payments", rl("payments"), managerHandler.RequestPayment)
		m.POST("/managers/:id/withdraw", rl("mutations"), managerHandler.Withdraw)
		m.PUT("/managers/:id/name", rl("mutations"), managerHandler.UpdateName)
		m.PUT("/managers/:id/price", rl("mutations"), managerHandler.UpdatePrice)
	}

	return r
}
