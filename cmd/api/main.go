package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisadapter "github.com/robertarktes/travel-reservations/internal/adapters/redis"
	"github.com/robertarktes/travel-reservations/internal/app"
	"github.com/robertarktes/travel-reservations/internal/auth"
	"github.com/robertarktes/travel-reservations/internal/config"
	httphandler "github.com/robertarktes/travel-reservations/internal/http"
	"github.com/robertarktes/travel-reservations/internal/idempotency"
	"github.com/robertarktes/travel-reservations/internal/inventory"
	"github.com/robertarktes/travel-reservations/internal/observability"
	"github.com/robertarktes/travel-reservations/internal/rateLimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg, "travel-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger(cfg.LogLevel)
	observability.InitMetrics()

	deps, err := app.Open(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("failed to open backends: %v", err)
	}
	defer deps.Close()

	orch, err := deps.Orchestrator()
	if err != nil {
		log.Fatalf("failed to build orchestrator: %v", err)
	}
	verifier, err := auth.NewVerifier(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("failed to load jwt key: %v", err)
	}

	var redisCache *redisadapter.Cache
	var idemp *idempotency.Idempotency
	if deps.Redis != nil {
		redisCache = redisadapter.NewCache(deps.Redis)
		idemp = idempotency.NewIdempotency(redisadapter.NewIdempotency(deps.Redis), idempotency.DefaultTTL)
	}

	checks := make(map[string]httphandler.ReadinessCheck, len(deps.Checks))
	for name, check := range deps.Checks {
		checks[name] = check
	}

	inv := inventory.NewStore(deps.Store, deps.Catalog, deps.Clock)
	handlers := httphandler.NewHandlers(orch, deps.Catalog, inv, deps.Clock, logger, cfg.StripeWebhook, checks)
	if deps.Audit != nil {
		handlers.WithAudit(deps.Audit)
	}
	r := httphandler.SetupRouter(handlers, logger, httphandler.RouterConfig{
		Verifier:    verifier,
		RateLimiter: rateLimit.NewRateLimiter(redisCache, logger),
		Idempotency: idemp,
		Limits:      httphandler.Limits{User: cfg.RateLimitUser, IP: cfg.RateLimitIP},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
