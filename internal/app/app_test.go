package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/robertarktes/travel-reservations/internal/adapters/memory"
	"github.com/robertarktes/travel-reservations/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/travel-reservations/internal/adapters/redis"
	"github.com/robertarktes/travel-reservations/internal/booking"
	"github.com/robertarktes/travel-reservations/internal/config"
	"github.com/robertarktes/travel-reservations/internal/domain"
	"github.com/robertarktes/travel-reservations/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		StoreBackend:    config.StoreMemory,
		CatalogBackend:  config.CatalogFile,
		CatalogFile:     filepath.Join("..", "catalog", "testdata", "catalog.json"),
		CatalogCacheTTL: time.Minute,
		HoldTTL:         10 * time.Minute,
		PaymentCurrency: "usd",
	}
}

func TestOpen_Memory(t *testing.T) {
	deps, err := Open(context.Background(), testConfig(), observability.NewNopLogger())
	require.NoError(t, err)
	defer deps.Close()

	assert.IsType(t, &memory.Store{}, deps.Store)
	assert.Nil(t, deps.Redis)
	assert.Empty(t, deps.Checks)

	orch, err := deps.Orchestrator()
	require.NoError(t, err)
	s := &domain.Session{UserID: "u1", Email: "u1@example.com", Role: domain.RoleCustomer}
	res := orch.ReserveHotel(context.Background(), s, booking.HotelReserveInput{
		Slug:          "grand-plaza",
		CheckIn:       time.Now().AddDate(0, 0, 10),
		CheckOut:      time.Now().AddDate(0, 0, 12),
		Rooms:         []string{"grand-plaza:101"},
		Guests:        []domain.Traveller{{FirstName: "Ada", LastName: "Lovelace", Type: "adult", IsPrimary: true, Email: "ada@example.com", Phone: "+441234567"}},
		PaymentMethod: domain.PaymentCash,
	})
	require.True(t, res.Success, res.Message)

	list, err := deps.Store.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestOpen_RedisWrapsCatalog(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisAddr = mr.Addr()

	deps, err := Open(context.Background(), cfg, observability.NewNopLogger())
	require.NoError(t, err)
	defer deps.Close()

	assert.IsType(t, &redisadapter.CatalogCache{}, deps.Catalog)
	require.Contains(t, deps.Checks, "redis")
	assert.NoError(t, deps.Checks["redis"](context.Background()))

	_, err = deps.Catalog.Hotel(context.Background(), "grand-plaza")
	require.NoError(t, err)
	assert.NotEmpty(t, mr.Keys())
}

func TestOpen_MissingCatalog(t *testing.T) {
	cfg := testConfig()
	cfg.CatalogFile = filepath.Join(t.TempDir(), "missing.json")

	_, err := Open(context.Background(), cfg, observability.NewNopLogger())
	assert.Error(t, err)
}

func TestPaymentHandler(t *testing.T) {
	deps, err := Open(context.Background(), testConfig(), observability.NewNopLogger())
	require.NoError(t, err)
	defer deps.Close()
	orch, err := deps.Orchestrator()
	require.NoError(t, err)

	s := &domain.Session{UserID: "u1", Email: "u1@example.com", Role: domain.RoleCustomer}
	res := orch.ReserveHotel(context.Background(), s, booking.HotelReserveInput{
		Slug:     "grand-plaza",
		CheckIn:  time.Now().AddDate(0, 0, 10),
		CheckOut: time.Now().AddDate(0, 0, 11),
		Rooms:    []string{"grand-plaza:102"},
		Guests:   []domain.Traveller{{FirstName: "Ada", LastName: "Lovelace", Type: "adult", IsPrimary: true, Email: "ada@example.com", Phone: "+441234567"}},
	})
	require.True(t, res.Success, res.Message)
	code := res.Data.(booking.ReservationView).Code

	handle := PaymentHandler(orch, observability.NewNopLogger())
	ctx := context.Background()

	assert.NoError(t, handle(ctx, []byte(`{"type":"customer.created","data":{"object":{}}}`)))
	assert.ErrorIs(t, handle(ctx, []byte(`not json`)), rabbit.ErrPermanent)
	assert.ErrorIs(t, handle(ctx, []byte(`{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","metadata":{"reservationCode":"HT-NOPE"}}}}`)), rabbit.ErrPermanent)

	_, err = deps.Store.SetPaymentIntent(ctx, code, "pi_1")
	require.NoError(t, err)

	foreign := `{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_2","metadata":{"reservationCode":"` + code + `"}}}}`
	assert.ErrorIs(t, handle(ctx, []byte(foreign)), rabbit.ErrPermanent)

	event := `{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","metadata":{"reservationCode":"` + code + `"}}}}`
	require.NoError(t, handle(ctx, []byte(event)))
	require.NoError(t, handle(ctx, []byte(event)), "redelivery is a no-op")

	got, err := deps.Store.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, domain.BookingConfirmed, got.BookingStatus)
}
