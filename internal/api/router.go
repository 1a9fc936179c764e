package api

import (
	"net/http"

	"github.com/ayo6706/wallet-ledger/internal/api/handler"
	"github.com/ayo6706/wallet-ledger/internal/api/middleware"
	"github.com/ayo6706/wallet-ledger/internal/api/spec"
	"github.com/ayo6706/wallet-ledger/internal/config"
	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Services are the domain components the HTTP surface drives.
type Services struct {
	Accounts   *service.AccountService
	Limits     *service.LimitService
	Transfers  *service.TransferOrchestrator
	Inbound    *service.InboundCreditProcessor
	Reconciler *service.BalanceReconciler
	Integrity  *service.IntegrityService
}

type Router struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *pgxpool.Pool
	repo   *repository.Repository
	ledger *repository.Ledger
	redis  redis.Cmdable
	svc    Services
}

// NewRouter wires handlers over already-built services. redisClient may be nil.
func NewRouter(cfg *config.Config, logger *zap.Logger, db *pgxpool.Pool, repo *repository.Repository, ledger *repository.Ledger, redisClient redis.Cmdable, svc Services) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		cfg:    cfg,
		logger: logger,
		db:     db,
		repo:   repo,
		ledger: ledger,
		redis:  redisClient,
		svc:    svc,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	if len(api.cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   api.cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key"},
			ExposedHeaders:   []string{"X-Trace-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	authHandler := handler.NewAuthHandler(api.repo)
	userHandler := handler.NewUserHandler(api.repo)
	accountHandler := handler.NewAccountHandler(api.svc.Accounts, api.ledger, api.svc.Limits)
	transferHandler := handler.NewTransferHandler(api.svc.Transfers, api.ledger)
	webhookHandler := handler.NewWebhookHandler(api.svc.Inbound)
	reconcileHandler := handler.NewReconcileHandler(api.svc.Reconciler, api.svc.Integrity)

	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Post("/v1/auth/login", authHandler.Login)
		r.Post("/v1/users", userHandler.CreateUser)
		r.Post("/v1/webhooks/inbound-credit", webhookHandler.InboundCredit)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Get("/v1/accounts/{id}", accountHandler.GetAccount)
		r.Get("/v1/accounts/{id}/transactions", accountHandler.GetStatement)
		r.Get("/v1/accounts/{id}/settings", accountHandler.GetSettings)
		r.Put("/v1/accounts/{id}/settings", accountHandler.UpdateSettings)
		r.Put("/v1/accounts/{id}/pin", accountHandler.SetPIN)
		r.Post("/v1/accounts/{id}/limits/check", accountHandler.CheckLimits)
		r.Get("/v1/accounts/{id}/virtual-accounts", accountHandler.ListVirtualAccounts)
		r.Post("/v1/accounts/{id}/virtual-accounts", accountHandler.ProvisionVirtualAccount)

		r.Post("/v1/transfers", transferHandler.CreateTransfer)
		r.Get("/v1/transfers/{reference}", transferHandler.GetTransfer)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))
			r.Post("/v1/accounts", accountHandler.CreateAccount)
			r.Post("/v1/accounts/{id}/reconcile", reconcileHandler.ReconcileAccount)
			r.Post("/v1/admin/reconcile", reconcileHandler.ReconcileAll)
			r.Get("/v1/admin/integrity", reconcileHandler.Integrity)
		})
	})

	return r
}
