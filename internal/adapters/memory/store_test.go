package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/robertarktes/travel-reservations/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func window() domain.Window {
	return domain.NewWindow(time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC), time.Date(2026, 6, 3, 11, 0, 0, 0, time.UTC))
}

func hold(user string, units ...string) domain.Reservation {
	return domain.NewReservation(domain.NewReservationParams{
		Kind:     domain.KindHotel,
		UserID:   user,
		OfferRef: "grand-plaza",
		Units:    units,
		Window:   window(),
	}, now, 10*time.Minute)
}

func TestClaim_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, err := s.Claim(ctx, hold("u1", "r2"), now)
	require.NoError(t, err)

	_, err = s.Claim(ctx, hold("u2", "r1", "r2", "r3"), now)
	var unavailable *domain.UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, []string{"r2"}, unavailable.Units)

	for _, unit := range []string{"r1", "r3"} {
		holders, err := s.Holders(ctx, unit, window(), now)
		require.NoError(t, err)
		assert.Empty(t, holders, "unit %s must stay unclaimed", unit)
	}
}

func TestClaim_ReleasesExpiredHolder(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	first := hold("u1", "r1")
	_, err := s.Claim(ctx, first, now)
	require.NoError(t, err)

	later := now.Add(11 * time.Minute)
	res, err := s.Claim(ctx, hold("u2", "r1"), later)
	require.NoError(t, err)
	require.Len(t, res.Released, 1)
	assert.Equal(t, first.Code, res.Released[0].Code)

	stored, err := s.Get(ctx, first.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.StateExpired, stored.State(later))
	assert.Equal(t, domain.CancelExpired, stored.Cancellation.Code)
}

func TestClaim_SupersedesOwnPendingHold(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	first := hold("u1", "r1")
	_, err := s.Claim(ctx, first, now)
	require.NoError(t, err)

	res, err := s.Claim(ctx, hold("u1", "r1", "r2"), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, res.Released, 1)
	assert.Equal(t, domain.CancelSuperseded, res.Released[0].Cancellation.Code)
}

func TestClaim_ConcurrentClaimantsOneWinner(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	const claimants = 16
	var (
		wg   sync.WaitGroup
		errs = make([]error, claimants)
	)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Claim(ctx, hold(fmt.Sprintf("u%d", i), "r1"), now)
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		var unavailable *domain.UnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, []string{"r1"}, unavailable.Units)
	}
	assert.Equal(t, 1, won)

	holders, err := s.Holders(ctx, "r1", window(), now)
	require.NoError(t, err)
	assert.Len(t, holders, 1)
}

func TestClaim_KeepsOwnHoldWithPaymentInFlight(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	first := hold("u1", "r1")
	_, err := s.Claim(ctx, first, now)
	require.NoError(t, err)
	_, err = s.SetPaymentIntent(ctx, first.Code, "pi_1")
	require.NoError(t, err)

	_, err = s.Claim(ctx, hold("u1", "r1", "r2"), now.Add(time.Minute))
	var unavailable *domain.UnavailableError
	require.ErrorAs(t, err, &unavailable)

	stored, err := s.Get(ctx, first.Code)
	require.NoError(t, err)
	assert.False(t, stored.Canceled())
	assert.Equal(t, "pi_1", stored.PaymentIntentID)
}

func TestFindPending_UnpaidCashBooking(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	cash := hold("u1", "r1")
	cash.PaymentMethod = domain.PaymentCash
	cash.BookingStatus = domain.BookingConfirmed
	_, err := s.Claim(ctx, cash, now)
	require.NoError(t, err)

	w := window()
	got, err := s.FindPending(ctx, "u1", domain.KindHotel, "grand-plaza", &w)
	require.NoError(t, err)
	assert.Equal(t, cash.Code, got.Code)

	_, err = s.SetPaymentStatus(ctx, cash.Code, domain.PaymentPaid, domain.BookingConfirmed)
	require.NoError(t, err)
	_, err = s.FindPending(ctx, "u1", domain.KindHotel, "grand-plaza", &w)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestForceClaim_DisplacesWithoutCanceling(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	victim := hold("u1", "r1")
	_, err := s.Claim(ctx, victim, now)
	require.NoError(t, err)

	block := hold("ops", "r1")
	block.BookingStatus = domain.BookingConfirmed
	block.PaymentStatus = domain.PaymentPaid
	displaced, err := s.ForceClaim(ctx, block)
	require.NoError(t, err)
	assert.Equal(t, []string{victim.Code}, displaced)

	stored, err := s.Get(ctx, victim.Code)
	require.NoError(t, err)
	assert.False(t, stored.Canceled())

	holders, err := s.Holders(ctx, "r1", window(), now)
	require.NoError(t, err)
	require.Len(t, holders, 1)
	assert.Equal(t, "ops", holders[0].UserID)
}

func TestHolders_FiltersExpired(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, err := s.Claim(ctx, hold("u1", "r1"), now)
	require.NoError(t, err)

	holders, err := s.Holders(ctx, "r1", window(), now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, holders)
}

func TestCancel_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	r := hold("u1", "r1")
	_, err := s.Claim(ctx, r, now)
	require.NoError(t, err)

	first, changed, err := s.Cancel(ctx, r.Code, domain.Cancellation{Code: domain.CancelUser, At: now, By: "u1"})
	require.NoError(t, err)
	assert.True(t, changed)

	second, changed, err := s.Cancel(ctx, r.Code, domain.Cancellation{Code: domain.CancelExpired, At: now.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, first.Cancellation.At, second.Cancellation.At)

	_, err = s.Extend(ctx, r.Code, now.Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, _, err = s.Cancel(ctx, "HT-MISSING", domain.Cancellation{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindPending_MostRecent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, err := s.Claim(ctx, hold("u1", "r1"), now)
	require.NoError(t, err)
	second := hold("u1", "r2")
	_, err = s.Claim(ctx, second, now)
	require.NoError(t, err)

	w := window()
	got, err := s.FindPending(ctx, "u1", domain.KindHotel, "grand-plaza", &w)
	require.NoError(t, err)
	assert.Equal(t, second.Code, got.Code)

	other := domain.NewWindow(w.Start.AddDate(0, 0, 1), w.End.AddDate(0, 0, 1))
	_, err = s.FindPending(ctx, "u1", domain.KindHotel, "grand-plaza", &other)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDueForExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	a := hold("u1", "r1")
	_, err := s.Claim(ctx, a, now)
	require.NoError(t, err)

	cash := hold("u2", "r2")
	cash.PaymentMethod = domain.PaymentCash
	cash.BookingStatus = domain.BookingConfirmed
	_, err = s.Claim(ctx, cash, now)
	require.NoError(t, err)

	due, err := s.DueForExpiry(ctx, now.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, a.Code, due[0].Code)
}

func TestOutbox(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	r := hold("u1", "r1")
	require.NoError(t, s.AppendEvent(ctx, domain.NewEvent(domain.EventReservationHeld, r, now)))
	require.NoError(t, s.AppendEvent(ctx, domain.NewEvent(domain.EventReservationCanceled, r, now)))

	recs, err := s.Unpublished(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.EventReservationHeld, recs[0].EventType)

	require.NoError(t, s.MarkPublished(ctx, recs[0].ID, now))
	recs, err = s.Unpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.EventReservationCanceled, recs[0].EventType)
}
