// Package app wires together all dependencies and runs the accounts service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ViddeM/accounts/internal/config"
	"github.com/ViddeM/accounts/internal/event"
	handler "github.com/ViddeM/accounts/internal/handler/http"
	"github.com/ViddeM/accounts/internal/mailer"
	"github.com/ViddeM/accounts/internal/oauth"
	"github.com/ViddeM/accounts/internal/password"
	repo "github.com/ViddeM/accounts/internal/repository/postgres"
	"github.com/ViddeM/accounts/internal/service"
	"github.com/ViddeM/accounts/internal/session"
	"github.com/ViddeM/accounts/internal/sweeper"
	"github.com/ViddeM/accounts/migrations"
	"github.com/ViddeM/accounts/pkg/database"
	"github.com/ViddeM/accounts/pkg/health"
	pkgkafka "github.com/ViddeM/accounts/pkg/kafka"
	"github.com/ViddeM/accounts/pkg/middleware"
	"github.com/ViddeM/accounts/pkg/tracing"
)

// App holds the long-lived resources of the accounts service so that they can
// be shut down in order.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	pool     *pgxpool.Pool
	rdb      *redis.Client
	producer *pkgkafka.Producer
	sweeper  *sweeper.Sweeper

	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp builds the full dependency graph: tracing, PostgreSQL (with
// migrations), Redis, Kafka, repositories, services and the HTTP router.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	traceCfg := tracing.DefaultConfig("accounts")
	traceCfg.Environment = cfg.Environment
	traceCfg.OTLPEndpoint = cfg.OTELEndpoint
	traceCfg.SampleRate = cfg.OTELSampleRate
	traceCfg.Enabled = cfg.OTELEnabled
	tracerShutdown, err := tracing.InitTracer(ctx, traceCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pgCfg := database.DefaultPostgresConfig()
	pgCfg.Host = cfg.PostgresHost
	pgCfg.Port = cfg.PostgresPort
	pgCfg.User = cfg.PostgresUser
	pgCfg.Password = cfg.PostgresPass
	pgCfg.DBName = cfg.PostgresDB
	pgCfg.SSLMode = cfg.PostgresSSL

	pool, err := database.NewPostgresPoolWithLogger(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	database.RegisterPoolMetrics(pool, "accounts")
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	kafkaProducer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)

	// Repositories
	accountRepo := repo.NewAccountRepository(pool)
	loginRepo := repo.NewLoginDetailsRepository(pool)
	activationRepo := repo.NewActivationCodeRepository(pool)
	resetRepo := repo.NewPasswordResetRepository(pool)
	whitelistRepo := repo.NewWhitelistRepository(pool)
	clientRepo := repo.NewOauthClientRepository(pool)
	consentRepo := repo.NewConsentRepository(pool)
	txRunner := repo.NewTxRunner(pool)

	codec, err := password.NewCodec(cfg.Pepper())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init password codec: %w", err)
	}

	sessions := session.NewManager(rdb, logger)

	var signer *oauth.IDTokenSigner
	if key := cfg.IDTokenKey(); key != nil {
		signer = oauth.NewIDTokenSigner(key, cfg.BaseURL)
	} else {
		logger.Warn("no ID token signing key configured, id_token issuance disabled")
	}
	engine := oauth.NewEngine(clientRepo, consentRepo, rdb, signer, logger)

	producer := event.NewProducer(kafkaProducer, logger)

	var mail mailer.Sender
	if cfg.MailProviderURL != "" {
		mail = mailer.NewHTTPSender(mailer.HTTPSenderConfig{
			URL:    cfg.MailProviderURL,
			APIKey: cfg.MailProviderAPIKey,
			From:   cfg.MailFrom,
		}, logger)
	} else {
		logger.Warn("no mail provider configured, emails will only be logged")
		mail = mailer.NewLogSender(logger)
	}

	// Services
	accountService := service.NewAccountService(
		accountRepo, loginRepo, activationRepo, resetRepo, whitelistRepo,
		txRunner, codec, sessions, mail, producer, cfg.BaseURL, logger,
	)
	clientService := service.NewClientService(clientRepo, logger)
	userInfoService := service.NewUserInfoService(engine, accountRepo, loginRepo, logger)

	sweep := sweeper.New(txRunner, producer, logger)

	// HTTP surface
	cookies := handler.NewCookieCodec([]byte(cfg.CookieSigningKey))
	sessionAuth := handler.NewSessionAuth(cookies, sessions, accountRepo, logger)

	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", pool.Ping)
	healthHandler.Register("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthHandler.Register("kafka", kafkaProducer.Ping)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins

	router := handler.NewRouter(handler.RouterConfig{
		Accounts:    accountService,
		Clients:     clientService,
		UserInfo:    userInfoService,
		Engine:      engine,
		Signer:      signer,
		SessionAuth: sessionAuth,
		Cookies:     cookies,
		Health:      healthHandler,
		BaseURL:     cfg.BaseURL,
		CORS:        corsCfg,
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		rdb:            rdb,
		producer:       kafkaProducer,
		sweeper:        sweep,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the retention sweeper and the HTTP server, then blocks until the
// context is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go a.sweeper.Run(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
		return a.Shutdown()
	case err := <-errCh:
		a.logger.Error("HTTP server failed", slog.String("error", err.Error()))
		shutdownErr := a.Shutdown()
		return errors.Join(err, shutdownErr)
	}
}

// Shutdown drains the HTTP server and closes resources in dependency order.
func (a *App) Shutdown() error {
	var errs []error

	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(drainCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	flushCtx, cancelFlush := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelFlush()
	if err := a.tracerShutdown(flushCtx); err != nil {
		errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
	}

	if err := a.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("kafka close: %w", err))
	}
	if err := a.rdb.Close(); err != nil {
		errs = append(errs, fmt.Errorf("redis close: %w", err))
	}
	a.pool.Close()

	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
