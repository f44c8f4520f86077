package domain

import (
	"encoding/base32"
	"slices"
	"time"

	"github.com/google/uuid"
)

const DefaultHoldTTL = 10 * time.Minute

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewCode returns a booking reference such as FL-5KQ2M7XA3B. The code is also
// the idempotency key for payment intents, so it never changes after creation.
func NewCode(kind ReservationKind) string {
	id := uuid.New()
	prefix := "HT"
	if kind == KindFlight {
		prefix = "FL"
	}
	return prefix + "-" + codeEncoding.EncodeToString(id[:])[:10]
}

type NewReservationParams struct {
	Kind          ReservationKind
	UserID        string
	OfferRef      string
	Units         []string
	Window        Window
	Travellers    []Traveller
	Fare          Fare
	PaymentMethod PaymentMethod
	Demo          bool
}

func NewReservation(p NewReservationParams, now time.Time, ttl time.Duration) Reservation {
	if ttl <= 0 {
		ttl = DefaultHoldTTL
	}
	method := p.PaymentMethod
	if method == "" {
		method = PaymentCard
	}
	status := BookingPending
	if method == PaymentCash {
		status = BookingConfirmed
	}
	return Reservation{
		Code:            NewCode(p.Kind),
		Kind:            p.Kind,
		UserID:          p.UserID,
		OfferRef:        p.OfferRef,
		Units:           slices.Clone(p.Units),
		Window:          p.Window,
		Travellers:      p.Travellers,
		CreatedAt:       now,
		GuaranteedUntil: now.Add(ttl),
		PaymentStatus:   PaymentPending,
		BookingStatus:   status,
		PaymentMethod:   method,
		Fare:            p.Fare,
		Demo:            p.Demo,
	}
}

func (r Reservation) Canceled() bool {
	return r.BookingStatus == BookingCanceled
}

// guaranteed reports whether the hold stands regardless of the clock: paid
// bookings and confirmed cash bookings never lapse.
func (r Reservation) guaranteed() bool {
	if r.PaymentStatus == PaymentPaid {
		return true
	}
	return r.BookingStatus == BookingConfirmed && r.PaymentMethod == PaymentCash
}

func (r Reservation) settlesAtProperty() bool {
	return !r.Canceled() && r.BookingStatus == BookingConfirmed && r.PaymentMethod == PaymentCash && r.PaymentStatus != PaymentPaid
}

// AwaitingPayment reports whether r is live and unpaid: a pending hold or a
// cash booking to be paid at the property.
func (r Reservation) AwaitingPayment() bool {
	return r.BookingStatus == BookingPending && r.PaymentStatus != PaymentPaid || r.settlesAtProperty()
}

// Holds reports whether r currently blocks its units for other claimants.
func (r Reservation) Holds(now time.Time) bool {
	if r.Canceled() {
		return false
	}
	if r.guaranteed() {
		return true
	}
	return r.BookingStatus == BookingPending && r.GuaranteedUntil.After(now)
}

// Expired reports a pending hold whose guarantee window has elapsed but which
// has not been canceled yet.
func (r Reservation) Expired(now time.Time) bool {
	if r.Canceled() || r.guaranteed() {
		return false
	}
	return !r.GuaranteedUntil.After(now)
}

// Cancel returns r canceled with c. Canceling an already canceled reservation
// returns it unchanged and false.
func (r Reservation) Cancel(c Cancellation) (Reservation, bool) {
	if r.Canceled() {
		return r, false
	}
	if c.By == "" {
		c.By = ActorSystem
	}
	r.BookingStatus = BookingCanceled
	r.Cancellation = &c
	return r, true
}

// Covers reports whether r claims exactly units over w.
func (r Reservation) Covers(units []string, w Window) bool {
	if !r.Window.Equal(w) || len(units) != len(r.Units) {
		return false
	}
	a := slices.Clone(units)
	b := slices.Clone(r.Units)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

func (r Reservation) HasUnit(unitID string) bool {
	return slices.Contains(r.Units, unitID)
}

func (r Reservation) State(now time.Time) State {
	if r.Canceled() {
		if r.Cancellation == nil {
			return StateCanceled
		}
		return CancelState(r.Cancellation.Code)
	}
	if r.guaranteed() {
		return StateConfirmed
	}
	if r.Expired(now) {
		return StateExpired
	}
	if r.PaymentIntentID != "" {
		return StatePaying
	}
	return StateHeld
}

func (r Reservation) PrimaryTraveller() (Traveller, bool) {
	for _, t := range r.Travellers {
		if t.IsPrimary {
			return t, true
		}
	}
	return Traveller{}, false
}
