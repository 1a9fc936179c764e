package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/api"
	"github.com/ayo6706/wallet-ledger/internal/api/middleware"
	"github.com/ayo6706/wallet-ledger/internal/cache"
	"github.com/ayo6706/wallet-ledger/internal/config"
	"github.com/ayo6706/wallet-ledger/internal/db"
	"github.com/ayo6706/wallet-ledger/internal/idempotency"
	"github.com/ayo6706/wallet-ledger/internal/notify"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/ayo6706/wallet-ledger/internal/policy"
	"github.com/ayo6706/wallet-ledger/internal/rail"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/ayo6706/wallet-ledger/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Components is the wired object graph shared by the HTTP server and walletctl.
type Components struct {
	Config    *config.Config
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Cache     cache.Cache
	Repo      *repository.Repository
	Store     *repository.Store
	Ledger    *repository.Ledger
	Rail      rail.Rail
	Publisher notify.Publisher
	Evaluator *policy.Evaluator
	Services  api.Services
}

// Build connects to the datastores and wires every service. Redis and RabbitMQ
// are optional: when unreachable the in-memory cache and the no-op publisher
// take their place and a warning is logged.
func Build(ctx context.Context, cfg *config.Config) (*Components, error) {
	logger := zap.L()

	pool, err := db.Connect(ctx, cfg.DatabaseURL, 0)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	c := &Components{Config: cfg, Pool: pool}

	c.Cache = cache.NewMemory()
	if cfg.RedisURL != "" {
		client, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable; using in-memory cache", zap.Error(err))
		} else {
			c.Redis = client
			c.Cache = cache.NewRedis(client)
		}
	}

	rules := policy.DefaultRules()
	if cfg.LimitsFile != "" {
		rules, err = policy.LoadFile(cfg.LimitsFile)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("load limits file: %w", err)
		}
		logger.Info("limits table loaded", zap.String("path", cfg.LimitsFile))
	}
	c.Evaluator = policy.NewEvaluator(rules)

	mappingPolicy, err := service.ParseMappingPolicy(cfg.VirtualAccountPolicy)
	if err != nil {
		c.Close()
		return nil, err
	}

	if cfg.Sandbox() {
		c.Rail = rail.NewSandbox()
	} else {
		c.Rail = rail.NewClient(rail.Config{
			BaseURL:        cfg.RailBaseURL,
			AccessToken:    cfg.RailAccessToken,
			ConsumerKey:    cfg.RailConsumerKey,
			ConsumerSecret: cfg.RailConsumerSecret,
			Timeout:        cfg.RailTimeout,
		}, c.Cache)
	}

	c.Publisher = &notify.EventProducerFallback{}
	if cfg.AMQPURL != "" {
		producer, err := notify.NewEventProducer(cfg.AMQPURL, cfg.NotifyExchange)
		if err != nil {
			logger.Warn("rabbitmq unavailable; notifications disabled", zap.Error(err))
		} else {
			c.Publisher = producer
		}
	}

	c.Repo = repository.NewRepository(pool)
	c.Store = repository.NewStore(pool)
	c.Ledger = repository.NewLedger(c.Store, c.Cache, cfg.CacheTTL)
	guard := idempotency.NewGuard(c.Store.Queries(), c.Cache, cfg.CacheTTL, cfg.IdempotencyWaitTimeout)
	audit := service.NewAuditService()
	limits := service.NewLimitService(c.Store, c.Evaluator, cfg.LimitTimezone)

	c.Services = api.Services{
		Accounts: service.NewAccountService(c.Repo, c.Ledger, c.Rail),
		Limits:   limits,
		Transfers: service.NewTransferOrchestrator(c.Ledger, guard, limits, c.Rail, c.Publisher, audit, service.TransferConfig{
			LocalBankCode: cfg.LocalBankCode,
			PoolAccount:   cfg.RailPoolAccount,
			StatusRetries: cfg.RailStatusRetries,
			StatusBackoff: cfg.RailStatusBackoff,
		}),
		Inbound: service.NewInboundCreditProcessor(c.Ledger, guard, c.Publisher, audit, mappingPolicy, cfg.WebhookHMACKey, cfg.WebhookSkipSignature),
		Reconciler: service.NewBalanceReconciler(c.Ledger, c.Repo, c.Rail, audit, service.ReconcileConfig{
			Sandbox:   cfg.Sandbox(),
			Tolerance: cfg.ReconcileToleranceKobo,
		}),
		Integrity: service.NewIntegrityService(c.Store),
	}
	return c, nil
}

// Close releases connections in reverse order of acquisition.
func (c *Components) Close() {
	if c.Publisher != nil {
		c.Publisher.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// Run bootstraps the HTTP server, the recovery worker and the scheduler,
// blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	recovery := worker.NewRecoveryWorker(c.Store, c.Services.Transfers).
		WithPollInterval(cfg.RecoveryInterval).
		WithStaleAfter(cfg.RecoveryStaleAfter)
	stopRecovery := recovery.Run(ctx)
	logger.Info("recovery worker started", zap.Stringer("worker", recovery))

	scheduler, err := worker.NewScheduler(worker.ScheduleConfig{
		ReconcileSpec: cfg.ReconcileSchedule,
		IntegritySpec: cfg.IntegritySchedule,
	}, c.Services.Reconciler, c.Services.Integrity)
	if err != nil {
		stopRecovery()
		return err
	}
	scheduler.Start()

	var redisClient redis.Cmdable
	if c.Redis != nil {
		redisClient = c.Redis
	}
	router := api.NewRouter(cfg, logger, c.Pool, c.Repo, c.Ledger, redisClient, c.Services)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.ServerWriteTimeout(),
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort), zap.String("rail_mode", cfg.RailMode))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			stopRecovery()
			<-scheduler.Stop().Done()
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("stopping background jobs")
	stopRecovery()
	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("scheduled job still running at shutdown")
	}

	logger.Info("shutdown complete")
	return nil
}

// NewLogger builds the production JSON logger at the configured level.
func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
