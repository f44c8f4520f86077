package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/travel-reservations/internal/adapters/memory"
	mongoadapter "github.com/robertarktes/travel-reservations/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/travel-reservations/internal/adapters/redis"
	"github.com/robertarktes/travel-reservations/internal/auth"
	"github.com/robertarktes/travel-reservations/internal/booking"
	"github.com/robertarktes/travel-reservations/internal/catalog"
	"github.com/robertarktes/travel-reservations/internal/clock"
	"github.com/robertarktes/travel-reservations/internal/domain"
	"github.com/robertarktes/travel-reservations/internal/idempotency"
	"github.com/robertarktes/travel-reservations/internal/inventory"
	"github.com/robertarktes/travel-reservations/internal/observability"
	"github.com/robertarktes/travel-reservations/internal/payment"
	"github.com/robertarktes/travel-reservations/internal/rateLimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
)

var start = time.Date(2030, 7, 1, 9, 0, 0, 0, time.UTC)

const webhookSecret = "whsec_test"

type stubGateway struct {
	intents map[string]payment.Intent
}

func (g *stubGateway) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	return "cus_" + email, nil
}

func (g *stubGateway) CreatePaymentIntent(ctx context.Context, req payment.IntentRequest) (payment.Intent, error) {
	if intent, ok := g.intents[req.IdempotencyKey]; ok {
		return intent, nil
	}
	intent := payment.Intent{ID: "pi_" + req.IdempotencyKey, ClientSecret: "secret", Amount: req.Amount, Currency: req.Currency}
	g.intents[req.IdempotencyKey] = intent
	return intent, nil
}

type server struct {
	t     *testing.T
	key   *rsa.PrivateKey
	store *memory.Store
	clock *clock.Manual
	h     *Handlers
	srv   *httptest.Server
}

func newServer(t *testing.T, limits Limits, checks map[string]ReadinessCheck) *server {
	t.Helper()
	observability.InitMetrics()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	verifier, err := auth.NewVerifier(string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})))
	require.NoError(t, err)

	cat, err := catalog.LoadFile(filepath.Join("..", "catalog", "testdata", "catalog.json"))
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := &server{t: t, key: key, store: memory.NewStore(), clock: clock.NewManual(start)}
	logger := observability.NewNopLogger()
	orch := booking.New(s.store, cat, s.store, &stubGateway{intents: map[string]payment.Intent{}}, s.clock,
		booking.WithRetry(3, 0), booking.WithLogger(logger))
	inv := inventory.NewStore(s.store, cat, s.clock)

	s.h = NewHandlers(orch, cat, inv, s.clock, logger, webhookSecret, checks)
	router := SetupRouter(s.h, logger, RouterConfig{
		Verifier:    verifier,
		RateLimiter: rateLimit.NewRateLimiter(redisadapter.NewCache(client), logger),
		Idempotency: idempotency.NewIdempotency(redisadapter.NewIdempotency(client), time.Hour),
		Limits:      limits,
	})
	s.srv = httptest.NewServer(router)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *server) token(sub, role string) string {
	claims := auth.Claims{
		Email: sub + "@example.com",
		Name:  "User " + sub,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	require.NoError(s.t, err)
	return tok
}

type reply struct {
	status int
	header http.Header
	result domain.Result
	raw    []byte
}

func (s *server) do(method, path, user string, body any, headers ...string) reply {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	if user != "" {
		role := domain.RoleCustomer
		if user == "ops" {
			role = domain.RoleOperator
		}
		headers = append([]string{"Authorization", "Bearer " + s.token(user, role)}, headers...)
	}
	return s.raw(method, path, buf.Bytes(), headers...)
}

// callback posts a processor event, signed with secret unless it is empty.
func (s *server) callback(payload, secret string) reply {
	s.t.Helper()
	headers := []string{}
	if secret != "" {
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: []byte(payload), Secret: secret})
		headers = append(headers, "Stripe-Signature", signed.Header)
	}
	return s.raw(http.MethodPost, "/v1/payments/callback", []byte(payload), headers...)
}

func (s *server) raw(method, path string, body []byte, headers ...string) reply {
	s.t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, bytes.NewReader(body))
	require.NoError(s.t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var raw bytes.Buffer
	_, err = raw.ReadFrom(resp.Body)
	require.NoError(s.t, err)
	out := reply{status: resp.StatusCode, header: resp.Header, raw: raw.Bytes()}
	_ = json.Unmarshal(out.raw, &out.result)
	return out
}

func flightBody(seats ...string) map[string]any {
	passengers := make([]map[string]any, len(seats))
	for i := range seats {
		p := map[string]any{"first_name": "Ada", "last_name": "Lovelace", "type": "adult", "is_primary": i == 0}
		if i == 0 {
			p["email"] = "ada@example.com"
			p["phone"] = "+441234567"
		}
		passengers[i] = p
	}
	return map[string]any{"date": "2030-07-20", "seats": seats, "passengers": passengers}
}

func TestReserveFlight_Contention(t *testing.T) {
	s := newServer(t, Limits{}, nil)

	first := s.do(http.MethodPost, "/v1/flights/TK1980/reservations", "u1", flightBody("TK1980-2030-07-20:12A"))
	require.Equal(t, http.StatusCreated, first.status, string(first.raw))
	assert.True(t, first.result.Success)

	second := s.do(http.MethodPost, "/v1/flights/TK1980/reservations", "u2", flightBody("TK1980-2030-07-20:12A"))
	assert.Equal(t, http.StatusConflict, second.status)
	assert.Equal(t, domain.CodeUnavailable, second.result.Code)

	detail := s.do(http.MethodGet, "/v1/flights/TK1980?date=2030-07-20", "", nil)
	require.Equal(t, http.StatusOK, detail.status)
	var body struct {
		Data struct {
			Available []string `json:"available_seats"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(detail.raw, &body))
	assert.ElementsMatch(t, []string{"TK1980-2030-07-20:2A", "TK1980-2030-07-20:12B"}, body.Data.Available)
}

func TestReserve_RequiresSession(t *testing.T) {
	s := newServer(t, Limits{}, nil)

	r := s.do(http.MethodPost, "/v1/flights/TK1980/reservations", "", flightBody("TK1980-2030-07-20:12A"))
	assert.Equal(t, http.StatusUnauthorized, r.status)
	assert.Equal(t, domain.CodeUnauthenticated, r.result.Code)

	r = s.do(http.MethodGet, "/v1/me/reservations", "", nil, "Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, r.status)
}

func TestReserve_Validation(t *testing.T) {
	s := newServer(t, Limits{}, nil)

	body := flightBody("TK1980-2030-07-20:12A")
	body["date"] = "20/07/2030"
	r := s.do(http.MethodPost, "/v1/flights/TK1980/reservations", "u1", body)
	assert.Equal(t, http.StatusBadRequest, r.status)
	assert.Contains(t, r.result.Errors, "date")

	r = s.do(http.MethodPost, "/v1/hotels/grand-plaza/reservations", "u1", map[string]any{"check_in": "2030-07-10", "check_out": "2030-07-12", "nope": true})
	assert.Equal(t, http.StatusBadRequest, r.status)

	r = s.do(http.MethodGet, "/v1/flights/XX1/reservations", "u1", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, r.status)
}

func TestIdempotentReplay(t *testing.T) {
	s := newServer(t, Limits{}, nil)
	key := "0b8a7d3e-5a8c-4d8c-9d35-7f2d1b1c7a10"

	first := s.do(http.MethodPost, "/v1/flights/TK1980/reservations", "u1", flightBody("TK1980-2030-07-20:12B"), idempotency.Header, key)
	require.Equal(t, http.StatusCreated, first.status)

	s.clock.Advance(time.Minute)
	second := s.do(http.MethodPost, "/v1/flights/TK1980/reservations", "u1", flightBody("TK1980-2030-07-20:12B"), idempotency.Header, key)
	assert.Equal(t, http.StatusCreated, second.status)
	assert.Equal(t, "true", second.header.Get(idempotency.ReplayedHdr))
	assert.JSONEq(t, string(first.raw), string(second.raw))

	list, err := s.store.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	short := s.do(http.MethodPost, "/v1/flights/TK1980/reservations", "u1", flightBody("TK1980-2030-07-20:12B"), idempotency.Header, "short")
	assert.Equal(t, http.StatusBadRequest, short.status)
}

func TestIdempotencyKeyReusedWithDifferentBody(t *testing.T) {
	s := newServer(t, Limits{}, nil)
	key := "5f0c2a61-3b7e-4c44-a0d2-9e8f6b1d2c33"

	first := s.do(http.MethodPost, "/v1/flights/TK1980/reservations", "u1", flightBody("TK1980-2030-07-20:12B"), idempotency.Header, key)
	require.Equal(t, http.StatusCreated, first.status)

	other := s.do(http.MethodPost, "/v1/flights/TK1980/reservations", "u1", flightBody("TK1980-2030-07-20:2A"), idempotency.Header, key)
	assert.Equal(t, http.StatusUnprocessableEntity, other.status)
	assert.Equal(t, domain.CodeValidation, other.result.Code)
	assert.Empty(t, other.header.Get(idempotency.ReplayedHdr))

	list, err := s.store.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"TK1980-2030-07-20:12B"}, list[0].Units)

	same := s.do(http.MethodPost, "/v1/flights/TK1980/reservations", "u1", flightBody("TK1980-2030-07-20:12B"), idempotency.Header, key)
	assert.Equal(t, http.StatusCreated, same.status)
	assert.Equal(t, "true", same.header.Get(idempotency.ReplayedHdr))
}

func TestExpiredHoldIsGone(t *testing.T) {
	s := newServer(t, Limits{}, nil)

	r := s.do(http.MethodPost, "/v1/flights/TK1980/reservations", "u1", flightBody("TK1980-2030-07-20:2A"))
	require.Equal(t, http.StatusCreated, r.status)

	s.clock.Advance(11 * time.Minute)
	r = s.do(http.MethodGet, "/v1/me/reservations/flight?flightNumber=TK1980&date=2030-07-20", "u1", nil)
	assert.Equal(t, http.StatusGone, r.status)
	assert.Equal(t, domain.CodeExpired, r.result.Code)

	r = s.do(http.MethodGet, "/v1/me/reservations/flight?flightNumber=TK1980&date=2030-07-20", "u1", nil)
	assert.Equal(t, http.StatusNotFound, r.status)
	assert.Equal(t, domain.CodeNotReserved, r.result.Code)
}

func TestHotelPaymentFlow(t *testing.T) {
	s := newServer(t, Limits{}, nil)

	guests := []map[string]any{{"first_name": "Grace", "last_name": "Hopper", "type": "adult", "is_primary": true, "email": "grace@example.com", "phone": "+15550100"}}
	r := s.do(http.MethodPost, "/v1/hotels/grand-plaza/reservations", "u1", map[string]any{
		"check_in": "2030-07-10", "check_out": "2030-07-13", "rooms": []string{"grand-plaza:101"}, "guests": guests, "payment_method": "card",
	})
	require.Equal(t, http.StatusCreated, r.status, string(r.raw))

	intent := s.do(http.MethodPost, "/v1/payments/hotel-intents", "u1", map[string]any{"slug": "grand-plaza", "check_in": "2030-07-10", "check_out": "2030-07-13"})
	require.Equal(t, http.StatusCreated, intent.status, string(intent.raw))
	var view struct {
		Data struct {
			Reservation struct {
				Code string `json:"code"`
			} `json:"reservation"`
			IntentID string `json:"payment_intent_id"`
			Amount   int64  `json:"amount"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(intent.raw, &view))
	assert.Equal(t, int64(24150), view.Data.Amount)

	ignored := s.callback(`{"type":"charge.refunded","data":{"object":{}}}`, webhookSecret)
	assert.Equal(t, http.StatusOK, ignored.status)

	event := fmt.Sprintf(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":%q,"metadata":{"reservationCode":%q}}}}`,
		view.Data.IntentID, view.Data.Reservation.Code)
	done := s.callback(event, webhookSecret)
	require.Equal(t, http.StatusOK, done.status, string(done.raw))

	got, err := s.store.Get(context.Background(), view.Data.Reservation.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, domain.BookingConfirmed, got.BookingStatus)

	bad := s.callback(`{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_x"}}}`, webhookSecret)
	assert.Equal(t, http.StatusBadRequest, bad.status)
}

func TestPaymentCallback_RejectsForgedEvents(t *testing.T) {
	s := newServer(t, Limits{}, nil)

	guests := []map[string]any{{"first_name": "Grace", "last_name": "Hopper", "type": "adult", "is_primary": true, "email": "grace@example.com", "phone": "+15550100"}}
	r := s.do(http.MethodPost, "/v1/hotels/grand-plaza/reservations", "u1", map[string]any{
		"check_in": "2030-07-10", "check_out": "2030-07-13", "rooms": []string{"grand-plaza:101"}, "guests": guests, "payment_method": "card",
	})
	require.Equal(t, http.StatusCreated, r.status, string(r.raw))
	list, err := s.store.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	code := list[0].Code

	forged := fmt.Sprintf(`{"id":"evt_f","type":"payment_intent.succeeded","data":{"object":{"id":"pi_forged","metadata":{"reservationCode":%q}}}}`, code)

	unsigned := s.callback(forged, "")
	assert.Equal(t, http.StatusUnauthorized, unsigned.status)

	wrongKey := s.callback(forged, "whsec_other")
	assert.Equal(t, http.StatusUnauthorized, wrongKey.status)

	noIntent := s.callback(forged, webhookSecret)
	assert.Equal(t, http.StatusBadRequest, noIntent.status, "the reservation has no payment intent yet")
	assert.Equal(t, domain.CodeValidation, noIntent.result.Code)

	s.h.webhookSecret = ""
	disabled := s.callback(forged, "")
	assert.Equal(t, http.StatusServiceUnavailable, disabled.status)

	got, err := s.store.Get(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, got.PaymentStatus)
	assert.Equal(t, domain.BookingPending, got.BookingStatus)
}

func TestCancelAndBlock(t *testing.T) {
	s := newServer(t, Limits{}, nil)

	r := s.do(http.MethodPost, "/v1/flights/TK1980/reservations", "u1", flightBody("TK1980-2030-07-20:12A"))
	require.Equal(t, http.StatusCreated, r.status)
	list, err := s.store.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	code := list[0].Code

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/v1/reservations/"+code, "u2", nil).status)
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/reservations/"+code+"/cancel", "u1", nil).status)
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/reservations/"+code+"/cancel", "u1", nil).status)

	block := map[string]any{"units": []string{"grand-plaza:102"}, "start": "2030-07-10", "end": "2030-07-12", "reason": "walk-in"}
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/v1/admin/blocks", "u1", block).status)
	assert.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/v1/admin/blocks", "ops", block).status)

	hotel := s.do(http.MethodGet, "/v1/hotels/grand-plaza?checkIn=2030-07-11&checkOut=2030-07-12", "", nil)
	require.Equal(t, http.StatusOK, hotel.status)
	assert.Contains(t, string(hotel.raw), `"available_rooms":["grand-plaza:101"]`)
}

type fakeAudit struct {
	entries []mongoadapter.AuditLog
	err     error
	userID  string
	limit   int64
}

func (a *fakeAudit) Recent(ctx context.Context, userID string, limit int64) ([]mongoadapter.AuditLog, error) {
	a.userID, a.limit = userID, limit
	return a.entries, a.err
}

func TestAuditTrail(t *testing.T) {
	s := newServer(t, Limits{}, nil)

	r := s.do(http.MethodGet, "/v1/admin/audit?userId=u1", "ops", nil)
	assert.Equal(t, http.StatusServiceUnavailable, r.status)

	audit := &fakeAudit{entries: []mongoadapter.AuditLog{
		{ID: "a2", Action: domain.EventReservationCanceled, UserID: "u1", Timestamp: start.Add(time.Minute)},
		{ID: "a1", Action: domain.EventReservationHeld, UserID: "u1", Timestamp: start},
	}}
	s.h.WithAudit(audit)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/v1/admin/audit?userId=u1", "", nil).status)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/v1/admin/audit?userId=u1", "u1", nil).status)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/v1/admin/audit", "ops", nil).status)

	r = s.do(http.MethodGet, "/v1/admin/audit?userId=u1&limit=5000", "ops", nil)
	require.Equal(t, http.StatusOK, r.status, string(r.raw))
	assert.Equal(t, "u1", audit.userID)
	assert.Equal(t, int64(500), audit.limit)
	var body struct {
		Data []struct {
			ID     string `json:"id"`
			Action string `json:"action"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(r.raw, &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "a2", body.Data[0].ID)

	audit.err = errors.New("mongo down")
	r = s.do(http.MethodGet, "/v1/admin/audit?userId=u1", "ops", nil)
	assert.Equal(t, http.StatusBadGateway, r.status)
	assert.Equal(t, int64(50), audit.limit)
}

func TestRateLimit(t *testing.T) {
	s := newServer(t, Limits{User: 1, IP: 100}, nil)

	first := s.do(http.MethodPost, "/v1/flights/TK1980/reservations", "u1", flightBody("TK1980-2030-07-20:12A"))
	require.Equal(t, http.StatusCreated, first.status)

	second := s.do(http.MethodPost, "/v1/flights/TK1980/reservations", "u1", flightBody("TK1980-2030-07-20:12B"))
	assert.Equal(t, http.StatusTooManyRequests, second.status)
	assert.Equal(t, "60", second.header.Get("Retry-After"))

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/me/reservations", "u1", nil).status, "reads are limited per ip only")
}

func TestCatalogRoutes(t *testing.T) {
	s := newServer(t, Limits{}, nil)

	r := s.do(http.MethodGet, "/v1/flights?from=IST&to=LHR&passengers=1", "", nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.Len(t, r.result.Data, 2)

	r = s.do(http.MethodGet, "/v1/flights/cities?q=lon", "", nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.Len(t, r.result.Data, 1)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/flights/date-range", "", nil).status)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/hotels?city=London", "", nil).status)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/v1/hotels/nowhere", "", nil).status)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/v1/flights/TK1980", "", nil).status)
}

func TestHealthAndReadiness(t *testing.T) {
	s := newServer(t, Limits{}, map[string]ReadinessCheck{
		"crdb":  func(ctx context.Context) error { return nil },
		"redis": func(ctx context.Context) error { return errors.New("connection refused") },
	})

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/healthz", "", nil).status)
	r := s.do(http.MethodGet, "/v1/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, r.status)
	assert.Contains(t, string(r.raw), "connection refused")

	m := s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, m.status)
	assert.Contains(t, string(m.raw), "travel_requests_total")
}

func TestStatusFor(t *testing.T) {
	tests := map[domain.ResultCode]int{
		domain.CodeValidation:      http.StatusBadRequest,
		domain.CodeUnavailable:     http.StatusConflict,
		domain.CodeExpired:         http.StatusGone,
		domain.CodeConflict:        http.StatusConflict,
		domain.CodeUpstream:        http.StatusBadGateway,
		domain.CodeUnauthenticated: http.StatusUnauthorized,
		domain.CodeForbidden:       http.StatusForbidden,
		domain.CodeNotFound:        http.StatusNotFound,
		domain.CodeNotReserved:     http.StatusNotFound,
	}
	for code, want := range tests {
		assert.Equal(t, want, StatusFor(code), code)
	}
}
