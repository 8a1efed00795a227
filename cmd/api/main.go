package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/ejmockler/frontier-meals/internal/api"
	"github.com/ejmockler/frontier-meals/internal/audit"
	"github.com/ejmockler/frontier-meals/internal/config"
	"github.com/ejmockler/frontier-meals/internal/customers"
	"github.com/ejmockler/frontier-meals/internal/database"
	"github.com/ejmockler/frontier-meals/internal/entitlements"
	"github.com/ejmockler/frontier-meals/internal/kiosk"
	mw "github.com/ejmockler/frontier-meals/internal/middleware"
	inats "github.com/ejmockler/frontier-meals/internal/nats"
	"github.com/ejmockler/frontier-meals/internal/ratelimit"
	"github.com/ejmockler/frontier-meals/internal/redemption"
	iredis "github.com/ejmockler/frontier-meals/internal/redis"
	"github.com/ejmockler/frontier-meals/internal/schedule"
	"github.com/ejmockler/frontier-meals/internal/server"
	"github.com/ejmockler/frontier-meals/internal/tokens"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	loc, err := time.LoadLocation(cfg.Meals.Timezone)
	if err != nil {
		slog.Error("loading operating timezone", "error", err, "timezone", cfg.Meals.Timezone)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// Redis (edge rate limiting); the engine runs without it
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("connecting to redis, edge rate limiting disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	// NATS JetStream (forensic event pipeline)
	var natsClient *inats.Client
	var publisher *inats.Publisher
	if cfg.NATS.Enabled {
		natsClient, err = inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to nats", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		publisher = inats.NewPublisher(natsClient.JetStream())
	}

	// Repositories
	customerRepo := customers.NewRepository(pool)
	entitlementRepo := entitlements.NewRepository(pool)
	tokenRepo := tokens.NewRepository(pool)
	redemptionRepo := redemption.NewRepository(pool)
	sessionRepo := kiosk.NewRepository(pool)
	auditRepo := audit.NewRepository(pool)

	// Kiosk sessions
	jwtManager := kiosk.NewJWTManager(cfg.Session.SigningSecret)
	sessionSvc := kiosk.NewService(pool, sessionRepo, auditRepo, jwtManager, publisher, cfg.Session.DefaultExpiry)
	sessionHandler := kiosk.NewHandler(sessionSvc)

	// Tokens and redemption
	tokenSvc := tokens.NewService(tokenRepo, customerRepo, loc)
	redemptionSvc := redemption.NewService(pool, customerRepo, entitlementRepo, tokenRepo,
		redemptionRepo, auditRepo, publisher, cfg.Meals.LockTimeout)
	redemptionHandler := redemption.NewHandler(redemptionSvc)

	// Back-office surfaces
	scheduleHandler := schedule.NewHandler(entitlementRepo, customerRepo, tokenSvc, auditRepo)
	auditHandler := audit.NewHandler(auditRepo)

	// Rate limiting: authoritative Postgres windows plus a Redis edge layer
	limiterStore := ratelimit.NewStore(pool)
	go ratelimit.StartCleanupLoop(ctx, limiterStore, cfg.RateLimit.CleanupInterval, cfg.RateLimit.Retention)

	routerCfg := api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		RedemptionRateLimiter: ratelimit.Middleware(limiterStore, auditRepo, publisher, "redemption",
			kioskKey, cfg.RateLimit.RedemptionMax, cfg.RateLimit.RedemptionWindow),
		AdminRateLimiter: ratelimit.Middleware(limiterStore, auditRepo, publisher, "admin",
			mw.ClientIP, cfg.RateLimit.AuthMax, cfg.RateLimit.AuthWindow),
	}
	if redisClient != nil {
		edge := mw.NewEdgeRateLimiter(redisClient, cfg.RateLimit.EdgeMax, cfg.RateLimit.EdgeWindowSec)
		routerCfg.EdgeRateLimiter = edge.Middleware
	}

	// Forensic event consumer
	if natsClient != nil {
		consumer := audit.NewConsumer(auditRepo, inats.NewConsumerManager(natsClient.JetStream()))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("audit consumer stopped", "error", err)
			}
		}()
	}

	// Router
	router := api.NewRouter(pool, natsClient, routerCfg, api.HandlerSet{
		Redeem: redemptionHandler.Redeem,

		IssueSession:   sessionHandler.Issue,
		ListSessions:   sessionHandler.ListActive,
		RevokeSession:  sessionHandler.Revoke,
		RevokeKioskAll: sessionHandler.RevokeAll,

		ListAudit: auditHandler.List,

		SetEntitlement: scheduleHandler.SetEntitlement,
		IssueTokens:    scheduleHandler.IssueTokens,

		SessionMiddleware:      kiosk.Middleware(sessionSvc, jwtManager),
		AdminKeyMiddleware:     api.APIKey(cfg.Keys.AdminKeyHash),
		SchedulerKeyMiddleware: api.APIKey(cfg.Keys.SchedulerKeyHash),
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// kioskKey keys the authoritative limiter per kiosk device. It runs
// behind the session middleware, so the session is always present.
func kioskKey(r *http.Request) string {
	if session := kiosk.GetSession(r.Context()); session != nil {
		return session.KioskID
	}
	return mw.ClientIP(r)
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
