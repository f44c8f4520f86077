package booking

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/travel-reservations/internal/domain"
	"github.com/robertarktes/travel-reservations/internal/observability"
	"github.com/robertarktes/travel-reservations/internal/payment"
)

// PaymentIntentInput identifies the reservation to pay: a flight by number
// and date or a hotel stay by slug and dates.
type PaymentIntentInput struct {
	FlightNumber string
	Date         time.Time
	Slug         string
	CheckIn      time.Time
	CheckOut     time.Time
}

type PaymentIntentView struct {
	Reservation  ReservationView `json:"reservation"`
	IntentID     string          `json:"payment_intent_id"`
	ClientSecret string          `json:"client_secret"`
	Amount       int64           `json:"amount"`
	Currency     string          `json:"currency"`
}

func (o *Orchestrator) CreateFlightPaymentIntent(ctx context.Context, s *domain.Session, in PaymentIntentInput) domain.Result {
	return o.run(ctx, "create_flight_payment_intent", s, func(ctx context.Context) (domain.Result, error) {
		r, found, err := o.reservedFlight(ctx, s, in.FlightNumber, in.Date)
		if err != nil || !found {
			return notReserved(domain.KindFlight), err
		}
		return o.createIntent(ctx, s, r)
	})
}

func (o *Orchestrator) CreateHotelPaymentIntent(ctx context.Context, s *domain.Session, in PaymentIntentInput) domain.Result {
	return o.run(ctx, "create_hotel_payment_intent", s, func(ctx context.Context) (domain.Result, error) {
		r, found, err := o.reservedHotel(ctx, s, in.Slug, in.CheckIn, in.CheckOut)
		if err != nil || !found {
			return notReserved(domain.KindHotel), err
		}
		return o.createIntent(ctx, s, r)
	})
}

// createIntent asks the processor for an intent keyed by the reservation code,
// so repeated requests for one reservation yield the same intent.
func (o *Orchestrator) createIntent(ctx context.Context, s *domain.Session, r domain.Reservation) (domain.Result, error) {
	if err := r.CheckTransition(domain.StatePaying, o.clock.Now()); err != nil {
		return domain.Result{}, err
	}
	kind := string(r.Kind)
	amount, err := r.Fare.MinorUnits()
	if err != nil {
		return domain.Result{}, err
	}

	customerID, err := o.customer(ctx, s)
	if err != nil {
		observability.PaymentIntents.WithLabelValues(kind, "failed").Inc()
		return domain.Result{}, err
	}

	req := payment.IntentRequest{
		Amount:         amount,
		Currency:       r.Fare.Currency,
		CustomerID:     customerID,
		ReceiptEmail:   s.Email,
		Description:    fmt.Sprintf("%s reservation %s", kind, r.Code),
		IdempotencyKey: r.Code,
		Metadata: map[string]string{
			"type":                      kind,
			payment.MetaReservationCode: r.Code,
			"offerRef":                  r.OfferRef,
			"userId":                    s.UserID,
			"userEmail":                 s.Email,
			"demo":                      strconv.FormatBool(r.Demo),
		},
	}
	if primary, ok := r.PrimaryTraveller(); ok && primary.Email != "" {
		req.ReceiptEmail = primary.Email
	}

	intent, err := o.payments.CreatePaymentIntent(ctx, req)
	if err != nil {
		observability.PaymentIntents.WithLabelValues(kind, "failed").Inc()
		return domain.Result{}, err
	}

	now := o.clock.Now()
	var updated domain.Reservation
	if err := o.tx(ctx, func(ctx context.Context) error {
		var err error
		if updated, err = o.store.SetPaymentIntent(ctx, r.Code, intent.ID); err != nil {
			return err
		}
		return o.store.AppendEvent(ctx, domain.NewEvent(domain.EventPaymentIntentCreated, updated, now))
	}); err != nil {
		return domain.Result{}, errors.Wrapf(err, "store payment intent of %s", r.Code)
	}

	observability.PaymentIntents.WithLabelValues(kind, "created").Inc()
	o.auditLog(ctx, domain.EventPaymentIntentCreated, s.UserID, updated)
	return domain.OK("Payment intent created", PaymentIntentView{
		Reservation:  o.view(updated),
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       amount,
		Currency:     r.Fare.Currency,
	}), nil
}

// customer returns the caller's processor customer, creating it on the first
// payment.
func (o *Orchestrator) customer(ctx context.Context, s *domain.Session) (string, error) {
	acct, err := o.accounts.Account(ctx, s.UserID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		acct = domain.Account{ID: s.UserID, Email: s.Email, Name: s.Name}
	case err != nil:
		return "", errors.Wrap(err, "load account")
	}
	if acct.CustomerID != "" {
		return acct.CustomerID, nil
	}

	id, err := o.payments.CreateCustomer(ctx, s.Name, s.Email)
	if err != nil {
		return "", err
	}
	acct.CustomerID = id
	if err := o.accounts.SaveAccount(ctx, acct); err != nil {
		return "", errors.Wrap(err, "save account")
	}
	return id, nil
}

// CompletePayment applies a processor outcome to the reservation. A paid
// reservation is confirmed; a failed payment keeps the hold until its
// guarantee ends. Outcomes for canceled or lapsed reservations, and outcomes
// whose intent is not the reservation's own, change nothing.
func (o *Orchestrator) CompletePayment(ctx context.Context, code string, succeeded bool, intentID string) domain.Result {
	return o.run(ctx, "complete_payment", nil, func(ctx context.Context) (domain.Result, error) {
		r, err := o.store.Get(ctx, code)
		if err != nil {
			return domain.Result{}, err
		}
		log := o.logger.WithField("code", code).WithField("payment_intent_id", intentID)

		if r.Canceled() {
			log.WithField("succeeded", succeeded).Warn("payment outcome for canceled reservation")
			return domain.Fail(domain.CodeConflict, "The reservation was canceled before the payment completed"), nil
		}
		if intentID == "" || intentID != r.PaymentIntentID {
			log.WithField("reservation_intent_id", r.PaymentIntentID).Warn("payment intent does not match reservation")
			v := domain.NewValidationError()
			v.Add("paymentIntentId", "Payment intent does not belong to this reservation")
			return domain.Result{}, v
		}
		if r.PaymentStatus == domain.PaymentPaid {
			return domain.OK("Payment already recorded", o.view(r)), nil
		}

		to, paymentStatus, bookingStatus, event, msg := domain.StatePaying, domain.PaymentFailed, r.BookingStatus, domain.EventPaymentFailed, "Payment failed"
		if succeeded {
			to, paymentStatus, bookingStatus, event, msg = domain.StateConfirmed, domain.PaymentPaid, domain.BookingConfirmed, domain.EventReservationConfirmed, "Booking confirmed"
		}

		now := o.clock.Now()
		if err := r.CheckTransition(to, now); err != nil {
			log.WithField("succeeded", succeeded).Warn("payment outcome for a hold that no longer stands")
			return domain.Result{}, err
		}
		var updated domain.Reservation
		if err := o.tx(ctx, func(ctx context.Context) error {
			var err error
			if updated, err = o.store.SetPaymentStatus(ctx, code, paymentStatus, bookingStatus); err != nil {
				return err
			}
			return o.store.AppendEvent(ctx, domain.NewEvent(event, updated, now))
		}); err != nil {
			return domain.Result{}, err
		}

		o.auditLog(ctx, event, r.UserID, updated)
		return domain.OK(msg, o.view(updated)), nil
	})
}
