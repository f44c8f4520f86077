package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/travel-reservations/internal/catalog"
	"github.com/robertarktes/travel-reservations/internal/domain"
	"github.com/robertarktes/travel-reservations/internal/observability"
)

const catalogPrefix = "catalog:"

var _ catalog.Repository = (*CatalogCache)(nil)

// CatalogCache is a read-through cache in front of a catalog backend. Redis
// failures fall through to the backend; not-found results are not cached.
type CatalogCache struct {
	cache  *Cache
	next   catalog.Repository
	ttl    time.Duration
	logger observability.Logger
}

func NewCatalogCache(cache *Cache, next catalog.Repository, ttl time.Duration, logger observability.Logger) *CatalogCache {
	return &CatalogCache{cache: cache, next: next, ttl: ttl, logger: logger}
}

func cached[T any](ctx context.Context, c *CatalogCache, key string, load func() (T, error)) (T, error) {
	key = catalogPrefix + key

	var v T
	err := c.cache.GetJSON(ctx, key, &v)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, ErrMiss) {
		c.logger.WithError(err).WithField("key", key).Warn("catalog cache read failed")
	}

	v, err = load()
	if err != nil {
		return v, err
	}
	if err := c.cache.SetJSON(ctx, key, v, c.ttl); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("catalog cache write failed")
	}
	return v, nil
}

func day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (c *CatalogCache) Flight(ctx context.Context, flightNumber string, date time.Time) (catalog.FlightOffer, error) {
	return cached(ctx, c, "flight:"+strings.ToUpper(flightNumber)+":"+day(date), func() (catalog.FlightOffer, error) {
		return c.next.Flight(ctx, flightNumber, date)
	})
}

func (c *CatalogCache) Hotel(ctx context.Context, slug string) (catalog.HotelOffer, error) {
	return cached(ctx, c, "hotel:"+slug, func() (catalog.HotelOffer, error) {
		return c.next.Hotel(ctx, slug)
	})
}

func (c *CatalogCache) SearchFlights(ctx context.Context, q catalog.FlightQuery) ([]catalog.FlightOffer, error) {
	key := fmt.Sprintf("flights:%s:%s:%s:%s:%d",
		strings.ToUpper(q.From), strings.ToUpper(q.To), dateKey(q.Date), strings.ToLower(q.Class), q.Passengers)
	return cached(ctx, c, key, func() ([]catalog.FlightOffer, error) {
		return c.next.SearchFlights(ctx, q)
	})
}

func (c *CatalogCache) SearchHotels(ctx context.Context, city string) ([]catalog.HotelOffer, error) {
	return cached(ctx, c, "hotels:"+strings.ToLower(city), func() ([]catalog.HotelOffer, error) {
		return c.next.SearchHotels(ctx, city)
	})
}

func (c *CatalogCache) Cities(ctx context.Context, query string, limit int) ([]catalog.City, error) {
	return cached(ctx, c, fmt.Sprintf("cities:%s:%d", strings.ToLower(strings.TrimSpace(query)), limit), func() ([]catalog.City, error) {
		return c.next.Cities(ctx, query, limit)
	})
}

// FlightDateRange depends on the clock and is not cached.
func (c *CatalogCache) FlightDateRange(ctx context.Context, now time.Time) (catalog.DateRange, error) {
	return c.next.FlightDateRange(ctx, now)
}

func (c *CatalogCache) Unit(ctx context.Context, unitID string) (domain.InventoryUnit, error) {
	return cached(ctx, c, "unit:"+unitID, func() (domain.InventoryUnit, error) {
		return c.next.Unit(ctx, unitID)
	})
}

func dateKey(t time.Time) string {
	if t.IsZero() {
		return "any"
	}
	return day(t)
}
