package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/travel-reservations/internal/auth"
	"github.com/robertarktes/travel-reservations/internal/idempotency"
	"github.com/robertarktes/travel-reservations/internal/observability"
	"github.com/robertarktes/travel-reservations/internal/rateLimit"
)

// RouterConfig carries the optional request guards. Nil members are skipped.
type RouterConfig struct {
	Verifier    *auth.Verifier
	RateLimiter *rateLimit.RateLimiter
	Idempotency *idempotency.Idempotency
	Limits      Limits
}

func SetupRouter(h *Handlers, logger observability.Logger, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	// Signed by the payment processor, not by a user token.
	r.Post("/v1/payments/callback", h.PaymentCallback)

	r.Group(func(r chi.Router) {
		r.Use(SessionMiddleware(cfg.Verifier))
		r.Use(RateLimitMiddleware(cfg.RateLimiter, cfg.Limits))
		r.Use(IdempotencyMiddleware(cfg.Idempotency, logger))

		r.Route("/v1/flights", func(r chi.Router) {
			r.Get("/", h.SearchFlights)
			r.Get("/cities", h.Cities)
			r.Get("/date-range", h.FlightDateRange)
			r.Get("/{flightNumber}", h.GetFlight)
			r.Post("/{flightNumber}/reservations", h.ReserveFlight)
		})
		r.Route("/v1/hotels", func(r chi.Router) {
			r.Get("/", h.SearchHotels)
			r.Get("/{slug}", h.GetHotel)
			r.Post("/{slug}/reservations", h.ReserveHotel)
		})

		r.Get("/v1/me/reservations", h.MyReservations)
		r.Get("/v1/me/reservations/flight", h.MyFlightReservation)
		r.Get("/v1/me/reservations/hotel", h.MyHotelReservation)
		r.Get("/v1/reservations/{code}", h.GetReservation)
		r.Post("/v1/reservations/{code}/cancel", h.CancelReservation)

		r.Post("/v1/payments/flight-intents", h.FlightPaymentIntent)
		r.Post("/v1/payments/hotel-intents", h.HotelPaymentIntent)

		r.Post("/v1/admin/blocks", h.BlockUnits)
		r.Get("/v1/admin/audit", h.AuditTrail)
	})

	return r
}
