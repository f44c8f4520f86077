package crdb

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/travel-reservations/internal/domain"
	"github.com/robertarktes/travel-reservations/internal/inventory"
)

var _ inventory.ReservationStore = (*Repository)(nil)

const reservationColumns = `code, kind, user_id, offer_ref, units, window_start, window_end, travellers, fare,
	created_at, guaranteed_until, payment_status, booking_status, payment_method, payment_intent_id,
	cancel_code, cancel_reason, canceled_at, canceled_by, demo`

// holdsAt filters reservations that still hold their units at $now.
const holdsAt = `booking_status <> 'canceled'
	AND (payment_status = 'paid'
		OR (booking_status = 'confirmed' AND payment_method = 'cash')
		OR (booking_status = 'pending' AND guaranteed_until > @now))`

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var (
		r                      domain.Reservation
		travellers, fare       []byte
		cancelCode, reason, by *string
		canceledAt             *time.Time
	)
	err := row.Scan(&r.Code, &r.Kind, &r.UserID, &r.OfferRef, &r.Units, &r.Window.Start, &r.Window.End,
		&travellers, &fare, &r.CreatedAt, &r.GuaranteedUntil, &r.PaymentStatus, &r.BookingStatus,
		&r.PaymentMethod, &r.PaymentIntentID, &cancelCode, &reason, &canceledAt, &by, &r.Demo)
	if err != nil {
		return domain.Reservation{}, err
	}
	if err := json.Unmarshal(travellers, &r.Travellers); err != nil {
		return domain.Reservation{}, errors.Wrapf(err, "decode travellers of %s", r.Code)
	}
	if err := json.Unmarshal(fare, &r.Fare); err != nil {
		return domain.Reservation{}, errors.Wrapf(err, "decode fare of %s", r.Code)
	}
	r.Window = domain.NewWindow(r.Window.Start, r.Window.End)
	r.CreatedAt = r.CreatedAt.UTC()
	r.GuaranteedUntil = r.GuaranteedUntil.UTC()
	if cancelCode != nil {
		r.Cancellation = &domain.Cancellation{Code: domain.CancelCode(*cancelCode)}
		if reason != nil {
			r.Cancellation.Reason = *reason
		}
		if canceledAt != nil {
			r.Cancellation.At = canceledAt.UTC()
		}
		if by != nil {
			r.Cancellation.By = *by
		}
	}
	return r, nil
}

func (r *Repository) queryReservations(ctx context.Context, sql string, args ...any) ([]domain.Reservation, error) {
	rows, err := r.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *Repository) insertReservation(ctx context.Context, res domain.Reservation) error {
	travellers, err := json.Marshal(res.Travellers)
	if err != nil {
		return errors.Wrap(err, "encode travellers")
	}
	if res.Travellers == nil {
		travellers = []byte("[]")
	}
	fare, err := json.Marshal(res.Fare)
	if err != nil {
		return errors.Wrap(err, "encode fare")
	}

	_, err = r.q(ctx).Exec(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NULL, NULL, NULL, NULL, $16)
	`, res.Code, res.Kind, res.UserID, res.OfferRef, res.Units, res.Window.Start, res.Window.End,
		travellers, fare, res.CreatedAt, res.GuaranteedUntil, res.PaymentStatus, res.BookingStatus,
		res.PaymentMethod, res.PaymentIntentID, res.Demo)
	if isUniqueViolation(err) {
		return errors.Wrapf(domain.ErrConflict, "reservation %s exists", res.Code)
	}
	return err
}

// insertClaims claims every unit day of res. Units that already have an
// active claim are returned.
func (r *Repository) insertClaims(ctx context.Context, res domain.Reservation) ([]string, error) {
	b := &pgx.Batch{}
	type claim struct{ unit, slot string }
	var queued []claim
	for _, unit := range res.Units {
		for _, slot := range res.Window.Slots() {
			b.Queue(`
				INSERT INTO reservation_units (code, unit_id, slot, active)
				VALUES ($1, $2, $3, true)
				ON CONFLICT (unit_id, slot) WHERE active DO NOTHING
			`, res.Code, unit, slot)
			queued = append(queued, claim{unit, slot})
		}
	}

	br := r.q(ctx).SendBatch(ctx, b)
	defer br.Close()

	var taken []string
	for _, c := range queued {
		tag, err := br.Exec()
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 0 && !slices.Contains(taken, c.unit) {
			taken = append(taken, c.unit)
		}
	}
	return taken, nil
}

type activeClaim struct {
	unit string
	code string
}

func (r *Repository) activeClaims(ctx context.Context, units, slots []string) ([]activeClaim, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT unit_id, code FROM reservation_units
		WHERE active AND unit_id = ANY($1) AND slot = ANY($2)
		ORDER BY unit_id, slot
	`, units, slots)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []activeClaim
	for rows.Next() {
		var c activeClaim
		if err := rows.Scan(&c.unit, &c.code); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) Claim(ctx context.Context, res domain.Reservation, now time.Time) (inventory.ClaimResult, error) {
	var out inventory.ClaimResult
	err := r.WithTx(ctx, func(ctx context.Context) error {
		claims, err := r.activeClaims(ctx, res.Units, res.Window.Slots())
		if err != nil {
			return errors.Wrap(err, "load active claims")
		}

		holders := map[string]domain.Reservation{}
		release := map[string]inventory.Disposition{}
		var conflicts []string
		for _, c := range claims {
			holder, ok := holders[c.code]
			if !ok {
				if holder, err = r.Get(ctx, c.code); err != nil {
					return err
				}
				holders[c.code] = holder
			}
			switch d := inventory.Dispose(holder, res.UserID, now); d {
			case inventory.Conflicts:
				if !slices.Contains(conflicts, c.unit) {
					conflicts = append(conflicts, c.unit)
				}
			case inventory.ReleaseExpired, inventory.Supersede:
				release[c.code] = d
			case inventory.Ignore:
				if _, err := r.q(ctx).Exec(ctx, `UPDATE reservation_units SET active = false WHERE code = $1 AND active`, c.code); err != nil {
					return err
				}
			}
		}
		if len(conflicts) > 0 {
			return &domain.UnavailableError{Units: conflicts}
		}

		codes := make([]string, 0, len(release))
		for code := range release {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		for _, code := range codes {
			released, _, err := r.Cancel(ctx, code, inventory.ReleaseCancellation(release[code], now))
			if err != nil {
				return err
			}
			out.Released = append(out.Released, released)
		}

		if err := r.insertReservation(ctx, res); err != nil {
			return err
		}
		taken, err := r.insertClaims(ctx, res)
		if err != nil {
			return errors.Wrap(err, "insert claims")
		}
		if len(taken) > 0 {
			return &domain.UnavailableError{Units: taken}
		}
		return nil
	})
	if err != nil {
		return inventory.ClaimResult{}, err
	}
	return out, nil
}

func (r *Repository) ForceClaim(ctx context.Context, res domain.Reservation) ([]string, error) {
	var displaced []string
	err := r.WithTx(ctx, func(ctx context.Context) error {
		claims, err := r.activeClaims(ctx, res.Units, res.Window.Slots())
		if err != nil {
			return errors.Wrap(err, "load active claims")
		}
		for _, c := range claims {
			if !slices.Contains(displaced, c.code) {
				displaced = append(displaced, c.code)
			}
		}

		if _, err := r.q(ctx).Exec(ctx, `
			UPDATE reservation_units SET active = false
			WHERE active AND unit_id = ANY($1) AND slot = ANY($2)
		`, res.Units, res.Window.Slots()); err != nil {
			return err
		}
		if err := r.insertReservation(ctx, res); err != nil {
			return err
		}
		taken, err := r.insertClaims(ctx, res)
		if err != nil {
			return errors.Wrap(err, "insert claims")
		}
		if len(taken) > 0 {
			return &domain.UnavailableError{Units: taken}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return displaced, nil
}

func (r *Repository) Get(ctx context.Context, code string) (domain.Reservation, error) {
	res, err := scanReservation(r.q(ctx).QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reservation{}, errors.Wrapf(domain.ErrNotFound, "reservation %s", code)
	}
	return res, err
}

func (r *Repository) FindPending(ctx context.Context, userID string, kind domain.ReservationKind, offerRef string, w *domain.Window) (domain.Reservation, error) {
	args := pgx.NamedArgs{"user": userID, "kind": kind, "offer": offerRef}
	sql := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE user_id = @user AND kind = @kind AND offer_ref = @offer
			AND payment_status <> 'paid'
			AND (booking_status = 'pending' OR (booking_status = 'confirmed' AND payment_method = 'cash'))`
	if w != nil {
		sql += ` AND window_start = @start AND window_end = @end`
		args["start"] = w.Start
		args["end"] = w.End
	}
	sql += ` ORDER BY created_at DESC LIMIT 1`

	res, err := scanReservation(r.q(ctx).QueryRow(ctx, sql, args))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reservation{}, errors.Wrapf(domain.ErrNotFound, "pending %s reservation for %s", kind, offerRef)
	}
	return res, err
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.Reservation, error) {
	return r.queryReservations(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
}

func (r *Repository) Holders(ctx context.Context, unitID string, w domain.Window, now time.Time) ([]domain.Reservation, error) {
	return r.queryReservations(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE code IN (
			SELECT code FROM reservation_units WHERE active AND unit_id = @unit AND slot = ANY(@slots)
		) AND `+holdsAt+`
		ORDER BY created_at
	`, pgx.NamedArgs{"unit": unitID, "slots": w.Slots(), "now": now})
}

func (r *Repository) Cancel(ctx context.Context, code string, c domain.Cancellation) (domain.Reservation, bool, error) {
	if c.By == "" {
		c.By = domain.ActorSystem
	}

	var (
		res     domain.Reservation
		changed bool
	)
	err := r.WithTx(ctx, func(ctx context.Context) error {
		var err error
		res, err = scanReservation(r.q(ctx).QueryRow(ctx, `
			UPDATE reservations
			SET booking_status = 'canceled', cancel_code = $2, cancel_reason = $3, canceled_at = $4, canceled_by = $5
			WHERE code = $1 AND booking_status <> 'canceled'
			RETURNING `+reservationColumns,
			code, c.Code, c.Reason, c.At, c.By))
		if errors.Is(err, pgx.ErrNoRows) {
			res, err = r.Get(ctx, code)
			return err
		}
		if err != nil {
			return err
		}
		changed = true
		_, err = r.q(ctx).Exec(ctx, `UPDATE reservation_units SET active = false WHERE code = $1 AND active`, code)
		return err
	})
	if err != nil {
		return domain.Reservation{}, false, err
	}
	return res, changed, nil
}

// update runs a RETURNING update on a reservation that is not canceled.
func (r *Repository) update(ctx context.Context, code, set string, args ...any) (domain.Reservation, error) {
	res, err := scanReservation(r.q(ctx).QueryRow(ctx, `
		UPDATE reservations SET `+set+`
		WHERE code = $1 AND booking_status <> 'canceled'
		RETURNING `+reservationColumns,
		append([]any{code}, args...)...))
	if !errors.Is(err, pgx.ErrNoRows) {
		return res, err
	}
	if _, err := r.Get(ctx, code); err != nil {
		return domain.Reservation{}, err
	}
	return domain.Reservation{}, errors.Wrapf(domain.ErrConflict, "reservation %s is canceled", code)
}

func (r *Repository) Extend(ctx context.Context, code string, until time.Time) (domain.Reservation, error) {
	return r.update(ctx, code, `guaranteed_until = $2`, until)
}

func (r *Repository) SetPaymentIntent(ctx context.Context, code, intentID string) (domain.Reservation, error) {
	return r.update(ctx, code, `payment_intent_id = $2`, intentID)
}

func (r *Repository) SetPaymentStatus(ctx context.Context, code string, payment domain.PaymentStatus, booking domain.BookingStatus) (domain.Reservation, error) {
	return r.update(ctx, code, `payment_status = $2, booking_status = $3`, payment, booking)
}

func (r *Repository) DueForExpiry(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	return r.queryReservations(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE booking_status = 'pending' AND payment_status <> 'paid' AND guaranteed_until <= $1
		ORDER BY guaranteed_until
		LIMIT $2
	`, now, limit)
}
