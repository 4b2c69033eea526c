// Package handler provides HTTP handlers for all API endpoints.
// Handlers call the domain packages directly; there is no service layer.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/albapepper/expirywatch/internal/api/respond"
	"github.com/albapepper/expirywatch/internal/cache"
	"github.com/albapepper/expirywatch/internal/digest"
	"github.com/albapepper/expirywatch/internal/expiry"
	"github.com/albapepper/expirywatch/internal/notifications"
)

// HealthChecker is satisfied by *db.Pool.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ProductLister is the live product query.
type ProductLister interface {
	ListProducts(ctx context.Context) ([]expiry.Product, error)
}

// Scheduler is the part of *notifications.Scheduler the API exposes.
type Scheduler interface {
	State() notifications.State
	Products() []expiry.Product
	UpdateProducts(products []expiry.Product)
}

// StateReader reads the persisted last fired day.
type StateReader interface {
	LastFiredDay(ctx context.Context) (expiry.Day, bool, error)
}

// DigestRunner runs the digest job on demand.
type DigestRunner interface {
	Run(ctx context.Context) (digest.RunResult, error)
}

// Deps are the handler collaborators. DB, Products and Digest may be nil.
type Deps struct {
	DB        HealthChecker
	Cache     *cache.Cache
	Products  ProductLister
	Scheduler Scheduler
	State     StateReader
	Digest    DigestRunner
	Channels  []string
	Location  *time.Location
	CacheTTL  time.Duration
	Now       func() time.Time
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	Deps
}

// New creates a Handler with shared dependencies.
func New(d Deps) *Handler {
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.CacheTTL <= 0 {
		d.CacheTTL = cache.DefaultTTL
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Handler{Deps: d}
}

func (h *Handler) today() time.Time {
	return h.Now().In(h.Location)
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, status, and registered notification channels.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"name":     "Expirywatch API",
		"version":  "1.0.0",
		"status":   "running",
		"docs":     "/docs",
		"channels": h.Channels,
		"digest":   h.Digest != nil,
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity. Reports "disabled" when no database is configured.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if h.DB == nil {
		respond.WriteJSONObject(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"database":  "disabled",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	if err := h.DB.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Description Returns in-memory cache statistics (active keys, expired keys).
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"cache":     h.Cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
