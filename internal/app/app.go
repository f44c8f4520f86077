// Package app opens the configured backends shared by the binaries.
package app

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/travel-reservations/internal/adapters/crdb"
	"github.com/robertarktes/travel-reservations/internal/adapters/memory"
	mongoadapter "github.com/robertarktes/travel-reservations/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/travel-reservations/internal/adapters/redis"
	"github.com/robertarktes/travel-reservations/internal/booking"
	"github.com/robertarktes/travel-reservations/internal/catalog"
	"github.com/robertarktes/travel-reservations/internal/clock"
	"github.com/robertarktes/travel-reservations/internal/config"
	"github.com/robertarktes/travel-reservations/internal/inventory"
	"github.com/robertarktes/travel-reservations/internal/observability"
	"github.com/robertarktes/travel-reservations/internal/outbox"
	"github.com/robertarktes/travel-reservations/internal/payment"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store is implemented by the memory and CockroachDB backends.
type Store interface {
	inventory.ReservationStore
	booking.Accounts
	outbox.Source
}

// Deps holds the opened backends. Redis and Mongo are nil when not
// configured.
type Deps struct {
	Config  *config.Config
	Logger  observability.Logger
	Clock   clock.Clock
	Store   Store
	Catalog catalog.Repository
	Redis   *redisclient.Client
	Mongo   *mongo.Database
	Auditor booking.Auditor
	Audit   *mongoadapter.AuditLogger
	Checks  map[string]func(ctx context.Context) error

	closers []func()
}

// Open connects every backend cfg names. On error the backends opened so far
// are closed.
func Open(ctx context.Context, cfg *config.Config, logger observability.Logger) (*Deps, error) {
	d := &Deps{
		Config: cfg,
		Logger: logger,
		Clock:  clock.NewSystem(),
		Checks: map[string]func(ctx context.Context) error{},
	}
	if err := d.open(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Deps) open(ctx context.Context) error {
	cfg := d.Config

	switch cfg.StoreBackend {
	case config.StoreCRDB:
		pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
		if err != nil {
			return errors.Wrap(err, "connect to crdb")
		}
		d.closers = append(d.closers, pool.Close)
		repo := crdb.NewRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			return errors.Wrap(err, "migrate crdb")
		}
		d.Store = repo
		d.Checks["crdb"] = repo.Ping
	default:
		d.Logger.Warn("using in-memory reservation store, state is lost on restart")
		d.Store = memory.NewStore()
	}

	if cfg.MongoURI != "" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return errors.Wrap(err, "connect to mongo")
		}
		d.closers = append(d.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		})
		d.Mongo = client.Database(cfg.MongoDB)
		d.Audit = mongoadapter.NewAuditLogger(d.Mongo, d.Logger)
		d.Auditor = d.Audit
		d.Checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
	}

	switch cfg.CatalogBackend {
	case config.CatalogMongo:
		d.Catalog = mongoadapter.NewCatalogRepository(d.Mongo, d.Logger)
	default:
		repo, err := catalog.LoadFile(cfg.CatalogFile)
		if err != nil {
			return errors.Wrapf(err, "load catalog %s", cfg.CatalogFile)
		}
		d.Catalog = repo
	}

	if cfg.RedisAddr != "" {
		d.Redis = redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
		d.closers = append(d.closers, func() { _ = d.Redis.Close() })
		d.Catalog = redisadapter.NewCatalogCache(redisadapter.NewCache(d.Redis), d.Catalog, cfg.CatalogCacheTTL, d.Logger)
		d.Checks["redis"] = func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() }
	}
	return nil
}

// Orchestrator builds the booking orchestrator over the opened backends.
func (d *Deps) Orchestrator() (*booking.Orchestrator, error) {
	gw, err := payment.New(payment.ConfigFrom(d.Config))
	if err != nil {
		return nil, errors.Wrap(err, "payment gateway")
	}
	opts := []booking.Option{
		booking.WithHoldTTL(d.Config.HoldTTL),
		booking.WithCurrency(d.Config.PaymentCurrency),
		booking.WithDemo(d.Config.DemoMode),
		booking.WithLogger(d.Logger),
	}
	if d.Auditor != nil {
		opts = append(opts, booking.WithAuditor(d.Auditor))
	}
	return booking.New(d.Store, d.Catalog, d.Store, gw, d.Clock, opts...), nil
}

// Close releases the backends in reverse order of opening.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
