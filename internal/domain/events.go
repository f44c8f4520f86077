package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventReservationHeld      = "reservation.held"
	EventReservationExtended  = "reservation.extended"
	EventReservationCanceled  = "reservation.canceled"
	EventReservationExpired   = "reservation.expired"
	EventReservationConflict  = "reservation.conflicted"
	EventReservationConfirmed = "reservation.confirmed"
	EventPaymentIntentCreated = "payment.intent_created"
	EventPaymentFailed        = "payment.failed"
	EventUnitsBlocked         = "units.blocked"
)

// Event is an outbox entry describing a reservation change.
type Event struct {
	ID          uuid.UUID
	Type        string
	AggregateID string
	Payload     []byte
	CreatedAt   time.Time
}

type eventPayload struct {
	Code            string          `json:"code"`
	Kind            ReservationKind `json:"kind"`
	UserID          string          `json:"user_id"`
	OfferRef        string          `json:"offer_ref"`
	Units           []string        `json:"units"`
	State           State           `json:"state"`
	GuaranteedUntil time.Time       `json:"guaranteed_until"`
	Total           string          `json:"total"`
	Currency        string          `json:"currency"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty"`
	Cancellation    *Cancellation   `json:"cancellation,omitempty"`
	Demo            bool            `json:"demo"`
}

func NewEvent(eventType string, r Reservation, now time.Time) Event {
	payload, _ := json.Marshal(eventPayload{
		Code:            r.Code,
		Kind:            r.Kind,
		UserID:          r.UserID,
		OfferRef:        r.OfferRef,
		Units:           r.Units,
		State:           r.State(now),
		GuaranteedUntil: r.GuaranteedUntil,
		Total:           r.Fare.Total.StringFixed(2),
		Currency:        r.Fare.Currency,
		PaymentIntentID: r.PaymentIntentID,
		Cancellation:    r.Cancellation,
		Demo:            r.Demo,
	})
	return Event{
		ID:          uuid.New(),
		Type:        eventType,
		AggregateID: r.Code,
		Payload:     payload,
		CreatedAt:   now,
	}
}

// CancelEventType picks the event emitted for a cancellation.
func CancelEventType(c CancelCode) string {
	switch c {
	case CancelExpired, CancelDeparted:
		return EventReservationExpired
	case CancelConflict:
		return EventReservationConflict
	default:
		return EventReservationCanceled
	}
}
