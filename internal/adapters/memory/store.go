// Package memory is an in-process reservation store for development, demos
// and tests. A single mutex makes every operation atomic; WithTx adds no
// isolation on top of that.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/travel-reservations/internal/domain"
	"github.com/robertarktes/travel-reservations/internal/inventory"
	"github.com/robertarktes/travel-reservations/internal/outbox"
)

type claimKey struct {
	unit string
	slot string
}

type Store struct {
	mu           sync.Mutex
	reservations map[string]domain.Reservation
	order        map[string]int
	seq          int
	claims       map[claimKey]string
	accounts     map[string]domain.Account
	outbox       []outbox.Record
}

func NewStore() *Store {
	return &Store{
		reservations: map[string]domain.Reservation{},
		order:        map[string]int{},
		claims:       map[claimKey]string{},
		accounts:     map[string]domain.Account{},
	}
}

var _ inventory.ReservationStore = (*Store)(nil)

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *Store) Claim(ctx context.Context, r domain.Reservation, now time.Time) (inventory.ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reservations[r.Code]; ok {
		return inventory.ClaimResult{}, errors.Wrapf(domain.ErrConflict, "reservation %s exists", r.Code)
	}

	release := map[string]inventory.Disposition{}
	var conflicts []string
	for _, unit := range r.Units {
		for _, slot := range r.Window.Slots() {
			code, ok := s.claims[claimKey{unit, slot}]
			if !ok {
				continue
			}
			switch d := inventory.Dispose(s.reservations[code], r.UserID, now); d {
			case inventory.Conflicts:
				if !slices.Contains(conflicts, unit) {
					conflicts = append(conflicts, unit)
				}
			case inventory.ReleaseExpired, inventory.Supersede:
				release[code] = d
			case inventory.Ignore:
				delete(s.claims, claimKey{unit, slot})
			}
		}
	}
	if len(conflicts) > 0 {
		return inventory.ClaimResult{}, &domain.UnavailableError{Units: conflicts}
	}

	var res inventory.ClaimResult
	for _, code := range sortedKeys(release) {
		released, _ := s.cancelLocked(code, inventory.ReleaseCancellation(release[code], now))
		res.Released = append(res.Released, released)
	}
	s.insertLocked(r)
	return res, nil
}

func (s *Store) ForceClaim(ctx context.Context, r domain.Reservation) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reservations[r.Code]; ok {
		return nil, errors.Wrapf(domain.ErrConflict, "reservation %s exists", r.Code)
	}

	var displaced []string
	for _, unit := range r.Units {
		for _, slot := range r.Window.Slots() {
			if code, ok := s.claims[claimKey{unit, slot}]; ok && !slices.Contains(displaced, code) {
				displaced = append(displaced, code)
			}
		}
	}
	s.insertLocked(r)
	return displaced, nil
}

func (s *Store) insertLocked(r domain.Reservation) {
	s.reservations[r.Code] = r
	s.seq++
	s.order[r.Code] = s.seq
	for _, unit := range r.Units {
		for _, slot := range r.Window.Slots() {
			s.claims[claimKey{unit, slot}] = r.Code
		}
	}
}

func (s *Store) Get(ctx context.Context, code string) (domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(code)
}

func (s *Store) getLocked(code string) (domain.Reservation, error) {
	r, ok := s.reservations[code]
	if !ok {
		return domain.Reservation{}, errors.Wrapf(domain.ErrNotFound, "reservation %s", code)
	}
	return r, nil
}

func (s *Store) FindPending(ctx context.Context, userID string, kind domain.ReservationKind, offerRef string, w *domain.Window) (domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		found domain.Reservation
		best  = -1
	)
	for code, r := range s.reservations {
		if r.UserID != userID || r.Kind != kind || r.OfferRef != offerRef {
			continue
		}
		if !r.AwaitingPayment() {
			continue
		}
		if w != nil && !r.Window.Equal(*w) {
			continue
		}
		if s.order[code] > best {
			best = s.order[code]
			found = r
		}
	}
	if best < 0 {
		return domain.Reservation{}, errors.Wrapf(domain.ErrNotFound, "pending %s reservation for %s", kind, offerRef)
	}
	return found, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Reservation
	for _, r := range s.reservations {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.order[out[i].Code] > s.order[out[j].Code]
	})
	return out, nil
}

func (s *Store) Holders(ctx context.Context, unitID string, w domain.Window, now time.Time) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		out  []domain.Reservation
		seen = map[string]bool{}
	)
	for _, slot := range w.Slots() {
		code, ok := s.claims[claimKey{unitID, slot}]
		if !ok || seen[code] {
			continue
		}
		seen[code] = true
		if r := s.reservations[code]; r.Holds(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) Cancel(ctx context.Context, code string, c domain.Cancellation) (domain.Reservation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getLocked(code); err != nil {
		return domain.Reservation{}, false, err
	}
	r, changed := s.cancelLocked(code, c)
	return r, changed, nil
}

func (s *Store) cancelLocked(code string, c domain.Cancellation) (domain.Reservation, bool) {
	r, changed := s.reservations[code].Cancel(c)
	if !changed {
		return r, false
	}
	s.reservations[code] = r
	for k, holder := range s.claims {
		if holder == code {
			delete(s.claims, k)
		}
	}
	return r, true
}

func (s *Store) Extend(ctx context.Context, code string, until time.Time) (domain.Reservation, error) {
	return s.update(code, func(r *domain.Reservation) {
		r.GuaranteedUntil = until
	})
}

func (s *Store) DueForExpiry(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []domain.Reservation
	for _, r := range s.reservations {
		if r.Expired(now) {
			due = append(due, r)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].GuaranteedUntil.Before(due[j].GuaranteedUntil)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *Store) SetPaymentIntent(ctx context.Context, code, intentID string) (domain.Reservation, error) {
	return s.update(code, func(r *domain.Reservation) {
		r.PaymentIntentID = intentID
	})
}

func (s *Store) SetPaymentStatus(ctx context.Context, code string, payment domain.PaymentStatus, booking domain.BookingStatus) (domain.Reservation, error) {
	return s.update(code, func(r *domain.Reservation) {
		r.PaymentStatus = payment
		r.BookingStatus = booking
	})
}

// update applies fn to a reservation that is not canceled.
func (s *Store) update(code string, fn func(r *domain.Reservation)) (domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.getLocked(code)
	if err != nil {
		return domain.Reservation{}, err
	}
	if r.Canceled() {
		return r, errors.Wrapf(domain.ErrConflict, "reservation %s is canceled", code)
	}
	fn(&r)
	s.reservations[code] = r
	return r, nil
}

func (s *Store) AppendEvent(ctx context.Context, e domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox = append(s.outbox, outbox.FromEvent(e))
	return nil
}

func (s *Store) Unpublished(ctx context.Context, limit int) ([]outbox.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []outbox.Record
	for _, rec := range s.outbox {
		if rec.Status != outbox.StatusNew {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.outbox {
		if s.outbox[i].ID == id {
			at := publishedAt
			s.outbox[i].Status = outbox.StatusPublished
			s.outbox[i].PublishedAt = &at
			return nil
		}
	}
	return errors.Wrapf(domain.ErrNotFound, "outbox record %s", id)
}

// Events returns the types of every outbox record in append order.
func (s *Store) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	types := make([]string, 0, len(s.outbox))
	for _, rec := range s.outbox {
		types = append(types, rec.EventType)
	}
	return types
}

func (s *Store) Account(ctx context.Context, id string) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, errors.Wrapf(domain.ErrNotFound, "account %s", id)
	}
	return a, nil
}

func (s *Store) SaveAccount(ctx context.Context, a domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
