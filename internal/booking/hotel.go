package booking

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/travel-reservations/internal/domain"
)

type HotelReserveInput struct {
	Slug          string
	CheckIn       time.Time
	CheckOut      time.Time
	Rooms         []string
	Guests        []domain.Traveller
	PaymentMethod domain.PaymentMethod
}

// ReserveHotel holds the selected rooms for the stay. Cash bookings are
// confirmed straight away and paid at the property.
func (o *Orchestrator) ReserveHotel(ctx context.Context, s *domain.Session, in HotelReserveInput) domain.Result {
	return o.run(ctx, "reserve_hotel", s, func(ctx context.Context) (domain.Result, error) {
		if s == nil {
			return domain.Result{}, domain.ErrUnauthenticated
		}
		offer, err := o.catalog.Hotel(ctx, in.Slug)
		if err != nil {
			return domain.Result{}, err
		}

		now := o.clock.Now()
		rooms, err := validateHotel(offer, in, now)
		if err != nil {
			return domain.Result{}, err
		}

		w := stayWindow(in.CheckIn, in.CheckOut)
		r := domain.NewReservation(domain.NewReservationParams{
			Kind:          domain.KindHotel,
			UserID:        s.UserID,
			OfferRef:      offer.ID,
			Units:         in.Rooms,
			Window:        w,
			Travellers:    in.Guests,
			Fare:          domain.RoomFare(rooms, w.Nights(), o.currency),
			PaymentMethod: in.PaymentMethod,
			Demo:          o.demo,
		}, now, o.holdTTL)
		return o.hold(ctx, r, now)
	})
}

// GetReservedHotel returns the caller's pending reservation for the stay after
// checking that it still holds its rooms.
func (o *Orchestrator) GetReservedHotel(ctx context.Context, s *domain.Session, slug string, checkIn, checkOut time.Time) domain.Result {
	return o.run(ctx, "get_reserved_hotel", s, func(ctx context.Context) (domain.Result, error) {
		r, found, err := o.reservedHotel(ctx, s, slug, checkIn, checkOut)
		if err != nil || !found {
			return notReserved(domain.KindHotel), err
		}
		return domain.OK("Reservation is valid", o.view(r)), nil
	})
}

func (o *Orchestrator) reservedHotel(ctx context.Context, s *domain.Session, slug string, checkIn, checkOut time.Time) (domain.Reservation, bool, error) {
	if s == nil {
		return domain.Reservation{}, false, domain.ErrUnauthenticated
	}
	offer, err := o.catalog.Hotel(ctx, slug)
	if err != nil {
		return domain.Reservation{}, false, err
	}

	w := stayWindow(checkIn, checkOut)
	r, err := o.store.FindPending(ctx, s.UserID, domain.KindHotel, offer.ID, &w)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Reservation{}, false, nil
	}
	if err != nil {
		return domain.Reservation{}, false, errors.Wrap(err, "find pending hotel reservation")
	}

	now := o.clock.Now()
	lapsed := ""
	if startOfDay(checkIn).Before(startOfDay(now)) {
		lapsed = "Check-in date has passed"
	}
	r, err = o.revalidate(ctx, r, now, lapsed)
	if err != nil {
		return domain.Reservation{}, false, err
	}
	return r, true, nil
}
