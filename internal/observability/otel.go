package observability

import (
	"context"

	"github.com/robertarktes/travel-reservations/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// SetupOTel installs an OTLP trace exporter when an endpoint is configured and
// returns the matching shutdown func. Without an endpoint tracing stays a no-op.
func SetupOTel(ctx context.Context, cfg *config.Config, service string) (func(), error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	if cfg.OTLPEndpoint == "" {
		return func() {}, nil
	}

	exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(resourceAttributes(cfg, service)...))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	return func() {
		tp.Shutdown(context.Background())
	}, nil
}

// resourceAttributes tag every span with the backends and booking mode the
// process runs with.
func resourceAttributes(cfg *config.Config, service string) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.ServiceName(service),
		semconv.ServiceNamespace("travel-reservations"),
		attribute.String("travel.store_backend", cfg.StoreBackend),
		attribute.String("travel.catalog_backend", cfg.CatalogBackend),
		attribute.String("travel.payment_currency", cfg.PaymentCurrency),
		attribute.String("travel.hold_ttl", cfg.HoldTTL.String()),
		attribute.Bool("travel.demo_mode", cfg.DemoMode),
		attribute.Bool("travel.payments_enabled", cfg.StripeSecretKey != ""),
	}
}
