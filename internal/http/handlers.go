package http

import (
	"context"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	mongoadapter "github.com/robertarktes/travel-reservations/internal/adapters/mongo"
	"github.com/robertarktes/travel-reservations/internal/auth"
	"github.com/robertarktes/travel-reservations/internal/booking"
	"github.com/robertarktes/travel-reservations/internal/catalog"
	"github.com/robertarktes/travel-reservations/internal/clock"
	"github.com/robertarktes/travel-reservations/internal/domain"
	"github.com/robertarktes/travel-reservations/internal/inventory"
	"github.com/robertarktes/travel-reservations/internal/observability"
	"github.com/robertarktes/travel-reservations/internal/payment"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// AuditReader lists a user's audit trail, newest first.
type AuditReader interface {
	Recent(ctx context.Context, userID string, limit int64) ([]mongoadapter.AuditLog, error)
}

type Handlers struct {
	booking       *booking.Orchestrator
	catalog       catalog.Repository
	inventory     *inventory.Store
	clock         clock.Clock
	logger        observability.Logger
	webhookSecret string
	checks        map[string]ReadinessCheck
	audit         AuditReader
}

func NewHandlers(orch *booking.Orchestrator, cat catalog.Repository, inv *inventory.Store, clk clock.Clock, logger observability.Logger, webhookSecret string, checks map[string]ReadinessCheck) *Handlers {
	return &Handlers{
		booking:       orch,
		catalog:       cat,
		inventory:     inv,
		clock:         clk,
		logger:        logger,
		webhookSecret: webhookSecret,
		checks:        checks,
	}
}

// WithAudit serves the operator audit trail from a.
func (h *Handlers) WithAudit(a AuditReader) *Handlers {
	h.audit = a
	return h
}

func (h *Handlers) SearchFlights(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	d := newDates()
	query := catalog.FlightQuery{
		From:       q.Get("from"),
		To:         q.Get("to"),
		Date:       d.parse("date", q.Get("date"), false),
		Class:      q.Get("class"),
		Passengers: queryInt(r, "passengers", 1),
	}
	if err := d.errs.Err(); err != nil {
		writeError(w, err)
		return
	}

	flights, err := h.catalog.SearchFlights(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	upcoming := make([]catalog.FlightOffer, 0, len(flights))
	now := h.clock.Now()
	for _, f := range flights {
		if !f.Departed(now) {
			upcoming = append(upcoming, f)
		}
	}
	writeJSON(w, http.StatusOK, domain.OK("Flights found", upcoming))
}

type flightDetail struct {
	catalog.FlightOffer
	Available []string `json:"available_seats"`
}

func (h *Handlers) GetFlight(w http.ResponseWriter, r *http.Request) {
	d := newDates()
	date := d.parse("date", r.URL.Query().Get("date"), true)
	if err := d.errs.Err(); err != nil {
		writeError(w, err)
		return
	}

	f, err := h.catalog.Flight(r.Context(), chi.URLParam(r, "flightNumber"), date)
	if err != nil {
		writeError(w, err)
		return
	}
	free, err := h.inventory.AvailableUnits(r.Context(), catalog.Units(f.Seats), f.Window())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.OK("Flight found", flightDetail{FlightOffer: f, Available: free}))
}

func (h *Handlers) Cities(w http.ResponseWriter, r *http.Request) {
	cities, err := h.catalog.Cities(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit", catalog.DefaultCityLimit))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.OK("Cities found", cities))
}

func (h *Handlers) FlightDateRange(w http.ResponseWriter, r *http.Request) {
	dr, err := h.catalog.FlightDateRange(r.Context(), h.clock.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.OK("Date range found", dr))
}

func (h *Handlers) SearchHotels(w http.ResponseWriter, r *http.Request) {
	hotels, err := h.catalog.SearchHotels(r.Context(), r.URL.Query().Get("city"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.OK("Hotels found", hotels))
}

type hotelDetail struct {
	catalog.HotelOffer
	Available []string `json:"available_rooms,omitempty"`
}

// GetHotel lists the rooms free for the stay when checkIn and checkOut are
// given.
func (h *Handlers) GetHotel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	d := newDates()
	checkIn := d.parse("checkIn", q.Get("checkIn"), false)
	checkOut := d.parse("checkOut", q.Get("checkOut"), false)
	if err := d.errs.Err(); err != nil {
		writeError(w, err)
		return
	}

	hotel, err := h.catalog.Hotel(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	detail := hotelDetail{HotelOffer: hotel}
	if !checkIn.IsZero() && checkOut.After(checkIn) {
		detail.Available, err = h.inventory.AvailableUnits(r.Context(), catalog.Units(hotel.Rooms), domain.NewWindow(checkIn, checkOut))
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, domain.OK("Hotel found", detail))
}

type flightReservationRequest struct {
	Date       string             `json:"date"`
	Seats      []string           `json:"seats"`
	Passengers []domain.Traveller `json:"passengers"`
}

func (h *Handlers) ReserveFlight(w http.ResponseWriter, r *http.Request) {
	var req flightReservationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	d := newDates()
	date := d.parse("date", req.Date, true)
	if err := d.errs.Err(); err != nil {
		writeError(w, err)
		return
	}

	res := h.booking.ReserveFlight(r.Context(), auth.SessionFrom(r.Context()), booking.FlightReserveInput{
		FlightNumber: chi.URLParam(r, "flightNumber"),
		Date:         date,
		Seats:        req.Seats,
		Passengers:   req.Passengers,
	})
	writeResult(w, res, http.StatusCreated)
}

type hotelReservationRequest struct {
	CheckIn       string               `json:"check_in"`
	CheckOut      string               `json:"check_out"`
	Rooms         []string             `json:"rooms"`
	Guests        []domain.Traveller   `json:"guests"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
}

func (h *Handlers) ReserveHotel(w http.ResponseWriter, r *http.Request) {
	var req hotelReservationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	d := newDates()
	checkIn := d.parse("checkIn", req.CheckIn, true)
	checkOut := d.parse("checkOut", req.CheckOut, true)
	if err := d.errs.Err(); err != nil {
		writeError(w, err)
		return
	}

	res := h.booking.ReserveHotel(r.Context(), auth.SessionFrom(r.Context()), booking.HotelReserveInput{
		Slug:          chi.URLParam(r, "slug"),
		CheckIn:       checkIn,
		CheckOut:      checkOut,
		Rooms:         req.Rooms,
		Guests:        req.Guests,
		PaymentMethod: req.PaymentMethod,
	})
	writeResult(w, res, http.StatusCreated)
}

func (h *Handlers) MyReservations(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.booking.List(r.Context(), auth.SessionFrom(r.Context())), http.StatusOK)
}

func (h *Handlers) MyFlightReservation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	d := newDates()
	date := d.parse("date", q.Get("date"), true)
	if err := d.errs.Err(); err != nil {
		writeError(w, err)
		return
	}
	res := h.booking.GetReservedFlight(r.Context(), auth.SessionFrom(r.Context()), q.Get("flightNumber"), date)
	writeResult(w, res, http.StatusOK)
}

func (h *Handlers) MyHotelReservation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	d := newDates()
	checkIn := d.parse("checkIn", q.Get("checkIn"), true)
	checkOut := d.parse("checkOut", q.Get("checkOut"), true)
	if err := d.errs.Err(); err != nil {
		writeError(w, err)
		return
	}
	res := h.booking.GetReservedHotel(r.Context(), auth.SessionFrom(r.Context()), q.Get("slug"), checkIn, checkOut)
	writeResult(w, res, http.StatusOK)
}

func (h *Handlers) GetReservation(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.booking.Get(r.Context(), auth.SessionFrom(r.Context()), chi.URLParam(r, "code")), http.StatusOK)
}

func (h *Handlers) CancelReservation(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.booking.Cancel(r.Context(), auth.SessionFrom(r.Context()), chi.URLParam(r, "code")), http.StatusOK)
}

type paymentIntentRequest struct {
	FlightNumber string `json:"flight_number"`
	Date         string `json:"date"`
	Slug         string `json:"slug"`
	CheckIn      string `json:"check_in"`
	CheckOut     string `json:"check_out"`
}

func (h *Handlers) FlightPaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req paymentIntentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	d := newDates()
	in := booking.PaymentIntentInput{FlightNumber: req.FlightNumber, Date: d.parse("date", req.Date, true)}
	if strings.TrimSpace(req.FlightNumber) == "" {
		d.errs.Add("flightNumber", "Flight number is required")
	}
	if err := d.errs.Err(); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, h.booking.CreateFlightPaymentIntent(r.Context(), auth.SessionFrom(r.Context()), in), http.StatusCreated)
}

func (h *Handlers) HotelPaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req paymentIntentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	d := newDates()
	in := booking.PaymentIntentInput{
		Slug:     req.Slug,
		CheckIn:  d.parse("checkIn", req.CheckIn, true),
		CheckOut: d.parse("checkOut", req.CheckOut, true),
	}
	if strings.TrimSpace(req.Slug) == "" {
		d.errs.Add("slug", "Hotel is required")
	}
	if err := d.errs.Err(); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, h.booking.CreateHotelPaymentIntent(r.Context(), auth.SessionFrom(r.Context()), in), http.StatusCreated)
}

// PaymentCallback settles a reservation from a payment processor webhook.
// Without a webhook secret no event can be authenticated, so none is accepted.
func (h *Handlers) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret == "" {
		writeJSON(w, http.StatusServiceUnavailable, domain.Fail(domain.CodeUpstream, "Payment callbacks are not configured"))
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, domain.Fail(domain.CodeValidation, "Unable to read payload"))
		return
	}

	outcome, err := payment.ParseEvent(payload, r.Header.Get("Stripe-Signature"), h.webhookSecret)
	switch {
	case errors.Is(err, payment.ErrIgnoredEvent):
		writeJSON(w, http.StatusOK, domain.OK("Event ignored", nil))
		return
	case errors.Is(err, domain.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, domain.Fail(domain.CodeUnauthenticated, "Invalid signature"))
		return
	case err != nil:
		loggerFrom(r.Context(), h.logger).WithError(err).Warn("rejected payment event")
		writeJSON(w, http.StatusBadRequest, domain.Fail(domain.CodeValidation, "Invalid payment event"))
		return
	}

	res := h.booking.CompletePayment(r.Context(), outcome.ReservationCode, outcome.Succeeded, outcome.IntentID)
	writeResult(w, res, http.StatusOK)
}

type blockRequest struct {
	Units  []string `json:"units"`
	Start  string   `json:"start"`
	End    string   `json:"end"`
	Reason string   `json:"reason"`
}

func (h *Handlers) BlockUnits(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	d := newDates()
	in := booking.BlockInput{
		Units:  req.Units,
		Start:  d.parse("start", req.Start, true),
		End:    d.parse("end", req.End, true),
		Reason: req.Reason,
	}
	if err := d.errs.Err(); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, h.booking.BlockUnits(r.Context(), auth.SessionFrom(r.Context()), in), http.StatusCreated)
}

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditTrail lists the booking actions recorded for a user. Operators only.
func (h *Handlers) AuditTrail(w http.ResponseWriter, r *http.Request) {
	s := auth.SessionFrom(r.Context())
	switch {
	case s == nil:
		writeError(w, domain.ErrUnauthenticated)
		return
	case !s.IsOperator():
		writeError(w, domain.ErrForbidden)
		return
	case h.audit == nil:
		writeJSON(w, http.StatusServiceUnavailable, domain.Fail(domain.CodeUpstream, "Audit trail is not configured"))
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		v := domain.NewValidationError()
		v.Add("userId", "User id is required")
		writeError(w, v)
		return
	}
	limit := queryInt(r, "limit", defaultAuditLimit)
	switch {
	case limit == 0:
		limit = defaultAuditLimit
	case limit > maxAuditLimit:
		limit = maxAuditLimit
	}

	entries, err := h.audit.Recent(r.Context(), userID, int64(limit))
	if err != nil {
		loggerFrom(r.Context(), h.logger).WithError(err).WithField("user_id", userID).Error("read audit trail")
		writeError(w, &domain.UpstreamError{Op: "read audit trail", Err: err})
		return
	}
	if entries == nil {
		entries = []mongoadapter.AuditLog{}
	}
	writeJSON(w, http.StatusOK, domain.OK("Audit trail", entries))
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := map[string]string{}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		res := domain.Fail(domain.CodeUpstream, "Not ready")
		res.Errors = failed
		writeJSON(w, http.StatusServiceUnavailable, res)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}
