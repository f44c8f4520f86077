package inventory

import (
	"time"

	"github.com/robertarktes/travel-reservations/internal/domain"
)

// Disposition is what a claim does with an existing holder of a unit day.
type Disposition int

const (
	// Conflicts: the holder is valid and blocks the claim.
	Conflicts Disposition = iota
	// ReleaseExpired: the holder's guarantee lapsed; cancel it as expired.
	ReleaseExpired
	// Supersede: the holder is the claimant's own pending hold with no payment
	// in flight.
	Supersede
	// Ignore: the holder no longer holds anything, only a stale claim row.
	Ignore
)

// Dispose classifies holder for a claim made by claimant at now. Every store
// backend applies the same rules.
func Dispose(holder domain.Reservation, claimant string, now time.Time) Disposition {
	switch {
	case holder.Canceled():
		return Ignore
	case holder.Expired(now):
		return ReleaseExpired
	case !holder.Holds(now):
		return Ignore
	case holder.UserID == claimant && holder.BookingStatus == domain.BookingPending && holder.PaymentStatus != domain.PaymentPaid && holder.PaymentIntentID == "":
		return Supersede
	default:
		return Conflicts
	}
}

// ReleaseCancellation is the cancellation recorded on a holder a claim released.
func ReleaseCancellation(d Disposition, now time.Time) domain.Cancellation {
	if d == Supersede {
		return domain.Cancellation{Code: domain.CancelSuperseded, Reason: "Replaced by a newer reservation", At: now, By: domain.ActorSystem}
	}
	return domain.Cancellation{Code: domain.CancelExpired, Reason: "expired", At: now, By: domain.ActorSystem}
}
