package booking

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/travel-reservations/internal/domain"
	"github.com/robertarktes/travel-reservations/internal/observability"
)

func (o *Orchestrator) owned(ctx context.Context, s *domain.Session, code string) (domain.Reservation, error) {
	if s == nil {
		return domain.Reservation{}, domain.ErrUnauthenticated
	}
	r, err := o.store.Get(ctx, code)
	if err != nil {
		return domain.Reservation{}, err
	}
	if r.UserID != s.UserID && !s.IsOperator() {
		return domain.Reservation{}, errors.Wrapf(domain.ErrForbidden, "reservation %s", code)
	}
	return r, nil
}

func (o *Orchestrator) Get(ctx context.Context, s *domain.Session, code string) domain.Result {
	return o.run(ctx, "get", s, func(ctx context.Context) (domain.Result, error) {
		r, err := o.owned(ctx, s, code)
		if err != nil {
			return domain.Result{}, err
		}
		return domain.OK("Reservation found", o.view(r)), nil
	})
}

func (o *Orchestrator) List(ctx context.Context, s *domain.Session) domain.Result {
	return o.run(ctx, "list", s, func(ctx context.Context) (domain.Result, error) {
		if s == nil {
			return domain.Result{}, domain.ErrUnauthenticated
		}
		rs, err := o.store.ListByUser(ctx, s.UserID)
		if err != nil {
			return domain.Result{}, errors.Wrap(err, "list reservations")
		}
		views := make([]ReservationView, 0, len(rs))
		for _, r := range rs {
			views = append(views, o.view(r))
		}
		return domain.OK("Reservations found", views), nil
	})
}

// Cancel cancels the caller's reservation. Canceling twice succeeds and keeps
// the first cancellation.
func (o *Orchestrator) Cancel(ctx context.Context, s *domain.Session, code string) domain.Result {
	return o.run(ctx, "cancel", s, func(ctx context.Context) (domain.Result, error) {
		r, err := o.owned(ctx, s, code)
		if err != nil {
			return domain.Result{}, err
		}
		if r.PaymentStatus == domain.PaymentPaid && !r.Canceled() {
			v := domain.NewValidationError()
			v.Add("code", "Paid reservations cannot be canceled online")
			return domain.Result{}, v
		}

		c := domain.Cancellation{Code: domain.CancelUser, Reason: "Canceled by user", At: o.clock.Now(), By: s.UserID}
		if r.Expired(c.At) {
			c.Code, c.Reason = domain.CancelExpired, "expired"
		}
		canceled, _, err := o.cancel(ctx, r, c)
		if err != nil {
			return domain.Result{}, err
		}
		o.auditLog(ctx, domain.EventReservationCanceled, s.UserID, canceled)
		return domain.OK("Reservation canceled", o.view(canceled)), nil
	})
}

type BlockInput struct {
	Units  []string
	Start  time.Time
	End    time.Time
	Reason string
}

type BlockView struct {
	Reservation ReservationView `json:"reservation"`
	Displaced   []string        `json:"displaced"`
}

// BlockUnits takes units out of sale for operators, e.g. for walk-in guests
// or sales on another channel. Current holders are not canceled; they find
// out when they next revalidate.
func (o *Orchestrator) BlockUnits(ctx context.Context, s *domain.Session, in BlockInput) domain.Result {
	return o.run(ctx, "block_units", s, func(ctx context.Context) (domain.Result, error) {
		if s == nil {
			return domain.Result{}, domain.ErrUnauthenticated
		}
		if !s.IsOperator() {
			return domain.Result{}, errors.Wrap(domain.ErrForbidden, "block units")
		}

		v := domain.NewValidationError()
		if len(in.Units) == 0 {
			v.Add("units", "Please select at least one unit")
		}
		if in.Start.IsZero() {
			v.Add("start", "Start date is required")
		}
		if !in.End.IsZero() && in.End.Before(in.Start) {
			v.Add("end", "End must not be before start")
		}
		if err := v.Err(); err != nil {
			return domain.Result{}, err
		}

		var first domain.InventoryUnit
		for i, id := range in.Units {
			u, err := o.catalog.Unit(ctx, id)
			if errors.Is(err, domain.ErrNotFound) {
				v.Add("units", "Unknown unit "+id)
				continue
			}
			if err != nil {
				return domain.Result{}, errors.Wrapf(err, "lookup unit %s", id)
			}
			if i == 0 {
				first = u
			} else if u.Container != first.Container {
				v.Add("units", "All units must belong to the same flight or hotel")
			}
		}
		if err := v.Err(); err != nil {
			return domain.Result{}, err
		}

		kind := domain.KindHotel
		if first.Kind == domain.UnitKindSeat {
			kind = domain.KindFlight
		}
		end := in.End
		if end.IsZero() {
			end = in.Start
		}

		now := o.clock.Now()
		r := domain.NewReservation(domain.NewReservationParams{
			Kind:     kind,
			UserID:   s.UserID,
			OfferRef: first.Container,
			Units:    in.Units,
			Window:   domain.NewWindow(in.Start, end),
			Demo:     o.demo,
		}, now, o.holdTTL)
		r.PaymentStatus = domain.PaymentPaid
		r.BookingStatus = domain.BookingConfirmed

		var displaced []string
		if err := o.tx(ctx, func(ctx context.Context) error {
			var err error
			if displaced, err = o.store.ForceClaim(ctx, r); err != nil {
				return err
			}
			return o.store.AppendEvent(ctx, domain.NewEvent(domain.EventUnitsBlocked, r, now))
		}); err != nil {
			return domain.Result{}, err
		}

		o.logger.WithField("code", r.Code).WithField("displaced", displaced).WithField("reason", in.Reason).Info("units blocked")
		o.auditLog(ctx, domain.EventUnitsBlocked, s.UserID, r)
		return domain.OK("Units blocked", BlockView{Reservation: o.view(r), Displaced: displaced}), nil
	})
}

// SweepExpired cancels up to limit holds whose guarantee has ended and
// returns how many it canceled.
func (o *Orchestrator) SweepExpired(ctx context.Context, limit int) (int, error) {
	now := o.clock.Now()
	due, err := o.store.DueForExpiry(ctx, now, limit)
	if err != nil {
		return 0, errors.Wrap(err, "load expired holds")
	}

	swept := 0
	for _, r := range due {
		c := domain.Cancellation{Code: domain.CancelExpired, Reason: "expired", At: now, By: domain.ActorSystem}
		_, changed, err := o.cancel(ctx, r, c)
		if err != nil {
			return swept, err
		}
		if changed {
			swept++
			observability.HoldsExpired.WithLabelValues("sweeper").Inc()
		}
	}
	return swept, nil
}
