package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

const (
	StoreCRDB   = "crdb"
	StoreMemory = "memory"

	CatalogFile  = "file"
	CatalogMongo = "mongo"
)

type Config struct {
	HTTPAddr        string
	CRDBDSN         string
	MongoURI        string
	MongoDB         string
	RedisAddr       string
	RabbitURL       string
	JWTPublicKey    string
	HoldTTL         time.Duration
	StoreBackend    string
	CatalogBackend  string
	CatalogFile     string
	CatalogCacheTTL time.Duration
	StripeSecretKey string
	StripeAPIURL    string
	StripeWebhook   string
	PaymentCurrency string
	SweepInterval   time.Duration
	OutboxInterval  time.Duration
	RateLimitUser   int
	RateLimitIP     int
	DemoMode        bool
	LogLevel        string
	OTLPEndpoint    string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		CRDBDSN:         os.Getenv("CRDB_DSN"),
		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDB:         getenv("MONGO_DB", "travel"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RabbitURL:       os.Getenv("RABBIT_URL"),
		JWTPublicKey:    os.Getenv("JWT_PUBLIC_KEY"),
		StoreBackend:    strings.ToLower(getenv("STORE_BACKEND", StoreCRDB)),
		CatalogBackend:  strings.ToLower(getenv("CATALOG_BACKEND", CatalogFile)),
		CatalogFile:     getenv("CATALOG_FILE", "data/catalog.json"),
		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		StripeAPIURL:    os.Getenv("STRIPE_API_URL"),
		StripeWebhook:   os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PaymentCurrency: strings.ToLower(getenv("PAYMENT_CURRENCY", "usd")),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	var err error
	if cfg.HoldTTL, err = duration("HOLD_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CatalogCacheTTL, err = duration("CATALOG_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = duration("SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.OutboxInterval, err = duration("OUTBOX_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.RateLimitUser, err = integer("RATE_LIMIT_USER", 10); err != nil {
		return nil, err
	}
	if cfg.RateLimitIP, err = integer("RATE_LIMIT_IP", 100); err != nil {
		return nil, err
	}
	if v := os.Getenv("DEMO_MODE"); v != "" {
		if cfg.DemoMode, err = strconv.ParseBool(v); err != nil {
			return nil, errors.Wrapf(err, "parse DEMO_MODE")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreCRDB:
		if c.CRDBDSN == "" {
			return errors.New("CRDB_DSN is required when STORE_BACKEND=crdb")
		}
	case StoreMemory:
	default:
		return errors.Newf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.CatalogBackend {
	case CatalogFile:
		if c.CatalogFile == "" {
			return errors.New("CATALOG_FILE is required when CATALOG_BACKEND=file")
		}
	case CatalogMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required when CATALOG_BACKEND=mongo")
		}
	default:
		return errors.Newf("unknown CATALOG_BACKEND %q", c.CatalogBackend)
	}
	if c.HoldTTL <= 0 {
		return errors.New("HOLD_TTL must be positive")
	}
	if c.StripeSecretKey != "" && c.StripeWebhook == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return d, nil
}

func integer(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return n, nil
}
