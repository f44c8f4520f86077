package payment

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/travel-reservations/internal/domain"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// ErrIgnoredEvent is returned for processor events that do not settle a
// payment intent.
var ErrIgnoredEvent = errors.New("payment event ignored")

// Outcome is the settlement of a payment intent.
type Outcome struct {
	ReservationCode string
	IntentID        string
	Succeeded       bool
}

// ParseEvent verifies the Stripe-Signature header value of a webhook delivery
// against secret and decodes the event. An empty secret verifies nothing and
// is rejected.
func ParseEvent(payload []byte, signature, secret string) (Outcome, error) {
	if secret == "" {
		return Outcome{}, errors.Wrap(domain.ErrUnauthenticated, "no webhook secret configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Outcome{}, errors.Mark(errors.Wrap(err, "verify payment event"), domain.ErrUnauthenticated)
	}
	return outcomeOf(event)
}

// DecodeEvent decodes an event relayed onto the payments queue, which only
// carries events whose signature the relay already verified.
func DecodeEvent(payload []byte) (Outcome, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Outcome{}, errors.Mark(errors.Wrap(err, "decode payment event"), domain.ErrInvalidInput)
	}
	return outcomeOf(event)
}

func outcomeOf(event stripe.Event) (Outcome, error) {
	var succeeded bool
	switch event.Type {
	case "payment_intent.succeeded":
		succeeded = true
	case "payment_intent.payment_failed":
	default:
		return Outcome{}, errors.Wrapf(ErrIgnoredEvent, "type %s", event.Type)
	}
	if event.Data == nil {
		return Outcome{}, errors.Wrap(domain.ErrInvalidInput, "payment event without data")
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return Outcome{}, errors.Mark(errors.Wrap(err, "decode payment intent"), domain.ErrInvalidInput)
	}
	code := pi.Metadata[MetaReservationCode]
	if code == "" {
		return Outcome{}, errors.Wrapf(domain.ErrInvalidInput, "payment intent %s has no reservation code", pi.ID)
	}
	return Outcome{ReservationCode: code, IntentID: pi.ID, Succeeded: succeeded}, nil
}
