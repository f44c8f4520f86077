package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robertarktes/travel-reservations/internal/app"
	"github.com/robertarktes/travel-reservations/internal/config"
	"github.com/robertarktes/travel-reservations/internal/expiry"
	"github.com/robertarktes/travel-reservations/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "travel-expiry-worker")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

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

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.WithField("interval", cfg.SweepInterval.String()).Info("expiry worker started")
	expiry.NewWorker(orch, logger, cfg.SweepInterval).Run(ctx)
	logger.Info("Shutdown expiry worker")
}
