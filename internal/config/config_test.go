package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("CATALOG_BACKEND", "")
	t.Setenv("HOLD_TTL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, CatalogFile, cfg.CatalogBackend)
	assert.Equal(t, 10*time.Minute, cfg.HoldTTL)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, "usd", cfg.PaymentCurrency)
	assert.False(t, cfg.DemoMode)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "CRDB")
	t.Setenv("CRDB_DSN", "postgresql://root@localhost:26257/travel")
	t.Setenv("CATALOG_BACKEND", "mongo")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("HOLD_TTL", "15m")
	t.Setenv("RATE_LIMIT_USER", "25")
	t.Setenv("DEMO_MODE", "true")
	t.Setenv("PAYMENT_CURRENCY", "EUR")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreCRDB, cfg.StoreBackend)
	assert.Equal(t, CatalogMongo, cfg.CatalogBackend)
	assert.Equal(t, 15*time.Minute, cfg.HoldTTL)
	assert.Equal(t, 25, cfg.RateLimitUser)
	assert.True(t, cfg.DemoMode)
	assert.Equal(t, "eur", cfg.PaymentCurrency)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad ttl", map[string]string{"STORE_BACKEND": "memory", "HOLD_TTL": "ten"}},
		{"negative ttl", map[string]string{"STORE_BACKEND": "memory", "HOLD_TTL": "-1m"}},
		{"unknown store", map[string]string{"STORE_BACKEND": "sqlite"}},
		{"crdb without dsn", map[string]string{"STORE_BACKEND": "crdb", "CRDB_DSN": ""}},
		{"mongo without uri", map[string]string{"STORE_BACKEND": "memory", "CATALOG_BACKEND": "mongo", "MONGO_URI": ""}},
		{"bad demo flag", map[string]string{"STORE_BACKEND": "memory", "DEMO_MODE": "maybe"}},
		{"stripe without webhook secret", map[string]string{"STORE_BACKEND": "memory", "STRIPE_SECRET_KEY": "sk_test_1", "STRIPE_WEBHOOK_SECRET": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
