package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/travel-reservations/internal/adapters/rabbit"
	"github.com/robertarktes/travel-reservations/internal/app"
	"github.com/robertarktes/travel-reservations/internal/config"
	"github.com/robertarktes/travel-reservations/internal/observability"
	"github.com/robertarktes/travel-reservations/internal/outbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.StoreBackend != config.StoreCRDB {
		log.Fatalf("outbox publisher needs STORE_BACKEND=%s", config.StoreCRDB)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "travel-outbox-publisher")
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

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}
	defer rabbitPub.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("Outbox publisher started")
	outbox.NewPublisher(deps.Store, rabbitPub, logger, deps.Clock, outbox.WithInterval(cfg.OutboxInterval)).Run(ctx)
	logger.Info("Shutdown outbox publisher")
}
