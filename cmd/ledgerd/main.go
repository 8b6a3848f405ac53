package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"subscription-ledger/config"
	httpHandler "subscription-ledger/internal/adapter/http/handler"
	"subscription-ledger/internal/adapter/metrics"
	"subscription-ledger/internal/adapter/storage/cache"
	"subscription-ledger/internal/adapter/storage/memory"
	pgStorage "subscription-ledger/internal/adapter/storage/postgres"
	redisStorage "subscription-ledger/internal/adapter/storage/redis"
	"subscription-ledger/internal/core/domain"
	"subscription-ledger/internal/core/ports"
	"subscription-ledger/internal/service"
	"subscription-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "ledgerd",
		Usage: "Recurring escrow subscription ledger",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to a config file"},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "migrate", Usage: "Apply the schema before serving"}},
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Apply the PostgreSQL schema and exit",
				Action: migrate,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerd: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid config: %w", err)
	}
	return cfg, logger.New(cfg.Log.Level, cfg.Log.Pretty), nil
}

func migrate(c *cli.Context) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Storage.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate requires the %s driver", config.DriverPostgres)
	}

	pool, err := pgStorage.NewPool(c.Context, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	if err := pgStorage.Migrate(c.Context, pool); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	log.Info().Msg("Schema applied")
	return nil
}

// storage is the selected ledger backend.
type storage struct {
	repos   ports.Repositories
	checker ports.HealthChecker
	close   func()
}

func openStorage(ctx context.Context, cfg *config.Config, runMigrate bool, log zerolog.Logger) (*storage, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		store := memory.New()
		log.Warn().Msg("Using in-memory storage, state is lost on exit")
		return &storage{repos: store.Repositories(), checker: store, close: func() {}}, nil
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if runMigrate {
		if err := pgStorage.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
		log.Info().Msg("Schema applied")
	}
	log.Info().Msg("PostgreSQL connected")
	return &storage{
		repos:   pgStorage.NewRepositories(pool),
		checker: pgStorage.NewHealthCheck(pool),
		close:   pool.Close,
	}, nil
}

func serve(c *cli.Context) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("storage", cfg.Storage.Driver).
		Int("port", cfg.Server.Port).
		Dur("min_interval", cfg.Billing.MinInterval).
		Msg("Starting subscription ledger")

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(ctx, cfg, c.Bool("migrate"), log)
	if err != nil {
		return err
	}
	defer st.close()

	repos := st.repos
	if cfg.Cache.VerifySizeMB > 0 {
		repos.Registry = cache.NewRegistryCache(repos.Registry, cfg.Cache.VerifySizeMB)
	}

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	nonceStore := redisStorage.NewNonceStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)
	stream := redisStorage.NewEventStream(rdb, cfg.Events.Channel, log)

	// Core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		return fmt.Errorf("failed to initialize encryption service: %w", err)
	}
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	clock := service.SystemClock{}
	m := metrics.New(cfg.Metrics.Enabled, prometheus.DefaultRegisterer)

	// Business services
	webhookSvc := service.NewWebhookService(repos.Identities, repos.Webhooks, encSvc, sigSvc, &http.Client{Timeout: cfg.Events.WebhookTimeout}, logger.Component(log, "webhook"))
	eventSvc := service.NewEventService(repos.Events, stream, webhookSvc, m, logger.Component(log, "events"))
	authSvc := service.NewAuthService(repos.Identities, hashSvc, encSvc, tokenSvc, log)
	identitySvc := service.NewIdentityService(repos, encSvc, clock, eventSvc, log)
	registrySvc := service.NewRegistryService(repos, clock, eventSvc, logger.Component(log, "registry"))
	walletSvc := service.NewWalletService(repos, clock, eventSvc, logger.Component(log, "wallet"))
	managerSvc := service.NewManagerService(repos, idempotencyCache, clock, eventSvc, m, cfg.Billing.MinInterval, logger.Component(log, "billing"))
	auditSvc := service.NewAuditService(repos.Audit, logger.Component(log, "audit"))

	if err := ensureFactories(ctx, registrySvc, cfg.Registry, log); err != nil {
		return err
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = promhttp.Handler()
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		IdentitySvc:    identitySvc,
		RegistrySvc:    registrySvc,
		WalletSvc:      walletSvc,
		ManagerSvc:     managerSvc,
		EventSvc:       eventSvc,
		IdentityRepo:   repos.Identities,
		EncSvc:         encSvc,
		SigSvc:         sigSvc,
		NonceStore:     nonceStore,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{st.checker, redisStorage.NewHealthCheck(rdb)},
		AuditSvc:       auditSvc,
		Metrics:        m,
		MetricsHandler: metricsHandler,
		MetricsPath:    cfg.Metrics.Path,
		Logger:         log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := auditSvc.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Audit queue not drained")
	}

	log.Info().Msg("Server exited")
	return nil
}

// ensureFactories deploys the well-known wallet and manager factories on
// first start so clients can mint instances without deploying their own.
func ensureFactories(ctx context.Context, registry ports.RegistryService, cfg config.RegistryConfig, log zerolog.Logger) error {
	deployer, err := uuid.Parse(cfg.Deployer)
	if err != nil {
		return fmt.Errorf("invalid registry.deployer: %w", err)
	}
	for _, f := range []struct {
		id   string
		kind domain.FactoryKind
	}{
		{cfg.WalletFactoryID, domain.FactoryKindWallet},
		{cfg.ManagerFactoryID, domain.FactoryKindManager},
	} {
		id, err := uuid.Parse(f.id)
		if err != nil {
			return fmt.Errorf("invalid %s factory id: %w", f.kind, err)
		}
		if _, err := registry.EnsureFactory(ctx, id, f.kind, deployer); err != nil {
			return fmt.Errorf("ensure %s factory: %w", f.kind, err)
		}
		log.Info().Str("factory_id", id.String()).Str("kind", string(f.kind)).Msg("Factory ready")
	}
	return nil
}
