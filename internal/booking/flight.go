package booking

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/travel-reservations/internal/domain"
)

type FlightReserveInput struct {
	FlightNumber string
	Date         time.Time
	Seats        []string
	Passengers   []domain.Traveller
}

// ReserveFlight holds the selected seats for the caller, or extends the
// caller's identical pending hold.
func (o *Orchestrator) ReserveFlight(ctx context.Context, s *domain.Session, in FlightReserveInput) domain.Result {
	return o.run(ctx, "reserve_flight", s, func(ctx context.Context) (domain.Result, error) {
		if s == nil {
			return domain.Result{}, domain.ErrUnauthenticated
		}
		offer, err := o.catalog.Flight(ctx, in.FlightNumber, in.Date)
		if err != nil {
			return domain.Result{}, err
		}

		now := o.clock.Now()
		passengers, seats, err := validateFlight(offer, in, now)
		if err != nil {
			return domain.Result{}, err
		}

		r := domain.NewReservation(domain.NewReservationParams{
			Kind:          domain.KindFlight,
			UserID:        s.UserID,
			OfferRef:      offer.ID,
			Units:         in.Seats,
			Window:        offer.Window(),
			Travellers:    passengers,
			Fare:          domain.SeatFare(seats, o.currency),
			PaymentMethod: domain.PaymentCard,
			Demo:          o.demo,
		}, now, o.holdTTL)
		return o.hold(ctx, r, now)
	})
}

// GetReservedFlight returns the caller's pending reservation on the flight
// after checking that it still holds its seats.
func (o *Orchestrator) GetReservedFlight(ctx context.Context, s *domain.Session, flightNumber string, date time.Time) domain.Result {
	return o.run(ctx, "get_reserved_flight", s, func(ctx context.Context) (domain.Result, error) {
		r, found, err := o.reservedFlight(ctx, s, flightNumber, date)
		if err != nil || !found {
			return notReserved(domain.KindFlight), err
		}
		return domain.OK("Reservation is valid", o.view(r)), nil
	})
}

func (o *Orchestrator) reservedFlight(ctx context.Context, s *domain.Session, flightNumber string, date time.Time) (domain.Reservation, bool, error) {
	if s == nil {
		return domain.Reservation{}, false, domain.ErrUnauthenticated
	}
	offer, err := o.catalog.Flight(ctx, flightNumber, date)
	if err != nil {
		return domain.Reservation{}, false, err
	}

	r, err := o.store.FindPending(ctx, s.UserID, domain.KindFlight, offer.ID, nil)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Reservation{}, false, nil
	}
	if err != nil {
		return domain.Reservation{}, false, errors.Wrap(err, "find pending flight reservation")
	}

	now := o.clock.Now()
	lapsed := ""
	if offer.Departed(now) {
		lapsed = "Flight expired"
	}
	r, err = o.revalidate(ctx, r, now, lapsed)
	if err != nil {
		return domain.Reservation{}, false, err
	}
	return r, true, nil
}
