package observability

import (
	"context"
	"testing"
	"time"

	"github.com/robertarktes/travel-reservations/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestResourceAttributes(t *testing.T) {
	cfg := &config.Config{
		StoreBackend:    config.StoreCRDB,
		CatalogBackend:  config.CatalogMongo,
		PaymentCurrency: "eur",
		HoldTTL:         15 * time.Minute,
		DemoMode:        true,
	}

	set := attribute.NewSet(resourceAttributes(cfg, "travel-api")...)
	for key, want := range map[attribute.Key]attribute.Value{
		"service.name":            attribute.StringValue("travel-api"),
		"travel.store_backend":    attribute.StringValue("crdb"),
		"travel.catalog_backend":  attribute.StringValue("mongo"),
		"travel.payment_currency": attribute.StringValue("eur"),
		"travel.hold_ttl":         attribute.StringValue("15m0s"),
		"travel.demo_mode":        attribute.BoolValue(true),
		"travel.payments_enabled": attribute.BoolValue(false),
	} {
		got, ok := set.Value(key)
		require.True(t, ok, "missing %s", key)
		assert.Equal(t, want, got, string(key))
	}
}

func TestSetupOTel_NoEndpoint(t *testing.T) {
	shutdown, err := SetupOTel(context.Background(), &config.Config{}, "travel-api")
	require.NoError(t, err)
	shutdown()
}
