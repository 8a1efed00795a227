package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ejmockler/frontier-meals/internal/database"
	mw "github.com/ejmockler/frontier-meals/internal/middleware"
	inats "github.com/ejmockler/frontier-meals/internal/nats"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Kiosk-facing redemption
	Redeem http.HandlerFunc

	// Admin session management
	IssueSession   http.HandlerFunc
	ListSessions   http.HandlerFunc
	RevokeSession  http.HandlerFunc
	RevokeKioskAll http.HandlerFunc

	// Admin audit trail
	ListAudit http.HandlerFunc

	// Scheduler surface
	SetEntitlement http.HandlerFunc
	IssueTokens    http.HandlerFunc

	// Kiosk session authentication
	SessionMiddleware func(http.Handler) http.Handler

	// Machine-to-machine key gates
	AdminKeyMiddleware     func(http.Handler) http.Handler
	SchedulerKeyMiddleware func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	// EdgeRateLimiter fronts the redemption route; nil when Redis is absent.
	EdgeRateLimiter func(http.Handler) http.Handler
	// RedemptionRateLimiter is the authoritative per-kiosk window limiter.
	RedemptionRateLimiter func(http.Handler) http.Handler
	// AdminRateLimiter throttles credential-guessing on the key-gated surfaces.
	AdminRateLimiter func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, natsClient *inats.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe — always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe — checks DB and NATS
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"nats":     "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if natsClient != nil && !natsClient.Healthy() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else if natsClient == nil {
			health["nats"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Kiosk surface. Edge limiter runs before session validation so a
		// flood of junk credentials never reaches the database; the
		// authoritative limiter runs after it, keyed per kiosk.
		r.Group(func(r chi.Router) {
			if cfg.EdgeRateLimiter != nil {
				r.Use(cfg.EdgeRateLimiter)
			}
			r.Use(h.SessionMiddleware)
			if cfg.RedemptionRateLimiter != nil {
				r.Use(cfg.RedemptionRateLimiter)
			}
			r.Post("/redemptions", h.Redeem)
		})

		// Admin surface — bcrypt-verified API key
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.AdminKeyMiddleware)
			if cfg.AdminRateLimiter != nil {
				r.Use(cfg.AdminRateLimiter)
			}

			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", h.IssueSession)
				r.Get("/", h.ListSessions)
				r.Delete("/{jti}", h.RevokeSession)
			})
			r.Delete("/kiosks/{kioskID}/sessions", h.RevokeKioskAll)

			r.Get("/audit", h.ListAudit)
		})

		// Scheduler surface — separate key so the meal planner's
		// credential cannot touch session administration
		r.Route("/schedule", func(r chi.Router) {
			r.Use(h.SchedulerKeyMiddleware)
			if cfg.AdminRateLimiter != nil {
				r.Use(cfg.AdminRateLimiter)
			}

			r.Put("/entitlements", h.SetEntitlement)
			r.Post("/tokens/issue", h.IssueTokens)
		})
	})

	return r
}
