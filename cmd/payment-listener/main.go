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
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "travel-payment-listener")
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

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, rabbit.PaymentsQueue, logger)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.WithField("queue", rabbit.PaymentsQueue).Info("payment listener started")
	if err := consumer.Run(ctx, app.PaymentHandler(orch, logger)); err != nil {
		logger.WithError(err).Error("payment listener stopped")
	}
	logger.Info("Shutdown payment listener")
}
