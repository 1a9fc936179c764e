package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const readinessTimeout = time.Second

// HealthHandler exposes Kubernetes-style liveness and readiness endpoints.
type HealthHandler struct {
	db    *pgxpool.Pool
	redis redis.Cmdable
}

// NewHealthHandler builds the probes. redis may be nil when the in-memory cache is in use.
func NewHealthHandler(db *pgxpool.Pool, redis redis.Cmdable) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready pings every configured dependency. The ledger cannot serve without
// Postgres; a configured Redis that is down also fails readiness because
// snapshot invalidation would silently stop.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := map[string]string{"database": "ok"}
	var failed []string
	if err := h.db.Ping(ctx); err != nil {
		checks["database"] = "unavailable"
		failed = append(failed, "database")
		zap.L().Warn("readiness: database ping failed", zap.Error(err))
	}
	if h.redis != nil {
		checks["redis"] = "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "unavailable"
			failed = append(failed, "redis")
			zap.L().Warn("readiness: redis ping failed", zap.Error(err))
		}
	}

	if len(failed) > 0 {
		RespondError(w, r, http.StatusServiceUnavailable, "health/dependency-unavailable", strings.Join(failed, ", ")+" unavailable")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"status": "ready", "checks": checks})
}
