// Package inventory answers whether seats and rooms are free and who holds
// them. Every answer is derived from the reservation store at the moment of
// the call; nothing here caches holder state.
package inventory

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/travel-reservations/internal/clock"
	"github.com/robertarktes/travel-reservations/internal/domain"
)

// ClaimResult lists the reservations a successful claim released: stale holds
// canceled as expired and the claimant's own pending holds it superseded.
type ClaimResult struct {
	Released []domain.Reservation
}

// ReservationStore persists reservations and their per-day unit claims. At
// most one active claim exists per (unit, day); Claim enforces it atomically.
type ReservationStore interface {
	// WithTx runs fn in one transaction; store calls made with the context
	// passed to fn join it.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// Claim inserts r and claims all of its units for every day of its window,
	// or nothing. Holders whose guarantee lapsed by now are canceled as expired
	// and r.UserID's own pending holds on the units are superseded. Any other
	// valid holder fails the claim with *domain.UnavailableError.
	Claim(ctx context.Context, r domain.Reservation, now time.Time) (ClaimResult, error)

	// ForceClaim inserts r and takes its unit days from whoever holds them.
	// Displaced reservations are left as they are.
	ForceClaim(ctx context.Context, r domain.Reservation) (displaced []string, err error)

	Get(ctx context.Context, code string) (domain.Reservation, error)

	// FindPending returns the user's most recent reservation for offerRef that
	// is still awaiting payment: a pending hold or an unpaid cash booking. A
	// non-nil window must match exactly.
	FindPending(ctx context.Context, userID string, kind domain.ReservationKind, offerRef string, w *domain.Window) (domain.Reservation, error)

	ListByUser(ctx context.Context, userID string) ([]domain.Reservation, error)

	// Holders returns the reservations with an active claim on unitID for a
	// day of w that still hold at now.
	Holders(ctx context.Context, unitID string, w domain.Window, now time.Time) ([]domain.Reservation, error)

	// Cancel cancels the reservation and releases its claims. Canceling twice
	// returns the stored record and false.
	Cancel(ctx context.Context, code string, c domain.Cancellation) (domain.Reservation, bool, error)

	Extend(ctx context.Context, code string, until time.Time) (domain.Reservation, error)

	// DueForExpiry lists pending holds whose guarantee ended at or before now.
	DueForExpiry(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)

	SetPaymentIntent(ctx context.Context, code, intentID string) (domain.Reservation, error)

	SetPaymentStatus(ctx context.Context, code string, payment domain.PaymentStatus, booking domain.BookingStatus) (domain.Reservation, error)

	// AppendEvent writes e to the outbox, inside the caller's transaction when
	// there is one.
	AppendEvent(ctx context.Context, e domain.Event) error
}

// UnitLookup resolves a unit id to its catalog entry. Unknown units return
// domain.ErrNotFound.
type UnitLookup interface {
	Unit(ctx context.Context, unitID string) (domain.InventoryUnit, error)
}

type Store struct {
	reservations ReservationStore
	units        UnitLookup
	clock        clock.Clock
}

func NewStore(reservations ReservationStore, units UnitLookup, clk clock.Clock) *Store {
	return &Store{reservations: reservations, units: units, clock: clk}
}

// IsUnitFree reports whether unitID can be held by userID over [start, end).
// Holds of userID itself do not count. Units missing from the catalog are
// never free.
func (s *Store) IsUnitFree(ctx context.Context, unitID string, start, end time.Time, userID string) (bool, error) {
	if _, err := s.units.Unit(ctx, unitID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrapf(err, "lookup unit %s", unitID)
	}

	now := s.clock.Now()
	holders, err := s.reservations.Holders(ctx, unitID, domain.NewWindow(start, end), now)
	if err != nil {
		return false, errors.Wrapf(err, "holders of %s", unitID)
	}
	for _, h := range holders {
		if h.Holds(now) && h.UserID != userID {
			return false, nil
		}
	}
	return true, nil
}

// AvailableUnits filters units down to those nobody holds over w, keeping
// their order.
func (s *Store) AvailableUnits(ctx context.Context, units []string, w domain.Window) ([]string, error) {
	now := s.clock.Now()
	free := make([]string, 0, len(units))
	for _, id := range units {
		holders, err := s.reservations.Holders(ctx, id, w, now)
		if err != nil {
			return nil, errors.Wrapf(err, "holders of %s", id)
		}
		held := false
		for _, h := range holders {
			if h.Holds(now) {
				held = true
				break
			}
		}
		if !held {
			free = append(free, id)
		}
	}
	return free, nil
}
