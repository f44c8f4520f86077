// Package booking drives flight and hotel reservations from the first hold to
// a confirmed payment.
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/travel-reservations/internal/catalog"
	"github.com/robertarktes/travel-reservations/internal/clock"
	"github.com/robertarktes/travel-reservations/internal/domain"
	"github.com/robertarktes/travel-reservations/internal/inventory"
	"github.com/robertarktes/travel-reservations/internal/observability"
	"github.com/robertarktes/travel-reservations/internal/payment"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Accounts interface {
	Account(ctx context.Context, id string) (domain.Account, error)
	SaveAccount(ctx context.Context, a domain.Account) error
}

// Auditor records user-visible booking actions. Failures are logged and never
// fail the booking.
type Auditor interface {
	LogEvent(ctx context.Context, action, userID string, data map[string]interface{}) error
}

type nopAuditor struct{}

func (nopAuditor) LogEvent(ctx context.Context, action, userID string, data map[string]interface{}) error {
	return nil
}

type Orchestrator struct {
	store    inventory.ReservationStore
	checker  *inventory.Checker
	catalog  catalog.Repository
	accounts Accounts
	payments payment.Gateway
	audit    Auditor
	clock    clock.Clock
	logger   observability.Logger
	tracer   trace.Tracer

	holdTTL  time.Duration
	currency string
	demo     bool
	attempts int
	backoff  time.Duration
}

type Option func(*Orchestrator)

// WithHoldTTL overrides how long a new or extended hold is guaranteed.
func WithHoldTTL(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.holdTTL = d
		}
	}
}

func WithCurrency(c string) Option {
	return func(o *Orchestrator) {
		if c != "" {
			o.currency = c
		}
	}
}

// WithDemo tags every new reservation as a demo booking.
func WithDemo(demo bool) Option {
	return func(o *Orchestrator) { o.demo = demo }
}

func WithAuditor(a Auditor) Option {
	return func(o *Orchestrator) {
		if a != nil {
			o.audit = a
		}
	}
}

func WithLogger(l observability.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRetry sets how often a transaction is attempted after serialization
// failures and the base delay between attempts.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(o *Orchestrator) {
		if attempts > 0 {
			o.attempts = attempts
		}
		o.backoff = backoff
	}
}

func New(store inventory.ReservationStore, cat catalog.Repository, accounts Accounts, payments payment.Gateway, clk clock.Clock, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		checker:  inventory.NewChecker(store, clk),
		catalog:  cat,
		accounts: accounts,
		payments: payments,
		audit:    nopAuditor{},
		clock:    clk,
		logger:   observability.NewNopLogger(),
		tracer:   otel.Tracer("github.com/robertarktes/travel-reservations/internal/booking"),
		holdTTL:  domain.DefaultHoldTTL,
		currency: "usd",
		attempts: 3,
		backoff:  50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run executes one operation and turns its error or panic into a failed
// Result.
func (o *Orchestrator) run(ctx context.Context, op string, s *domain.Session, fn func(ctx context.Context) (domain.Result, error)) (res domain.Result) {
	ctx, span := o.tracer.Start(ctx, "booking."+op)
	defer span.End()
	if s != nil {
		span.SetAttributes(attribute.String("user.id", s.UserID))
	}

	log := o.logger.WithField("op", op)
	defer func() {
		if p := recover(); p != nil {
			log.Error(fmt.Sprintf("panic: %v", p))
			span.SetStatus(codes.Error, "panic")
			res = domain.Fail(domain.CodeUpstream, "Something went wrong")
		}
	}()

	res, err := fn(ctx)
	if err == nil {
		return res
	}

	res = domain.ResultFromError(err)
	span.RecordError(err)
	span.SetAttributes(attribute.String("result.code", string(res.Code)))
	if res.Code == domain.CodeUpstream {
		span.SetStatus(codes.Error, err.Error())
		log.WithError(err).Error("booking operation failed")
	} else {
		log.WithError(err).Debug("booking operation rejected")
	}
	return res
}

// retry repeats fn while it fails with a serialization failure.
func (o *Orchestrator) retry(ctx context.Context, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, domain.ErrSerializationFailure) || attempt >= o.attempts {
			return err
		}
		observability.ClaimRetries.Inc()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.backoff << (attempt - 1)):
		}
	}
}

// tx runs fn in a store transaction with retries.
func (o *Orchestrator) tx(ctx context.Context, fn func(ctx context.Context) error) error {
	return o.retry(ctx, func() error {
		start := time.Now()
		err := o.store.WithTx(ctx, fn)
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
		return err
	})
}

func (o *Orchestrator) auditLog(ctx context.Context, action, userID string, r domain.Reservation) {
	data := map[string]interface{}{
		"code":      r.Code,
		"kind":      string(r.Kind),
		"offer_ref": r.OfferRef,
		"units":     r.Units,
		"state":     string(r.State(o.clock.Now())),
		"demo":      r.Demo,
	}
	if err := o.audit.LogEvent(ctx, action, userID, data); err != nil {
		o.logger.WithError(err).WithField("code", r.Code).Warn("audit log failed")
	}
}

// ReservationView is a reservation with its derived state.
type ReservationView struct {
	domain.Reservation
	State domain.State `json:"state"`
}

func (o *Orchestrator) view(r domain.Reservation) ReservationView {
	return ReservationView{Reservation: r, State: r.State(o.clock.Now())}
}

// hold extends the user's matching pending hold or claims r.
func (o *Orchestrator) hold(ctx context.Context, r domain.Reservation, now time.Time) (domain.Result, error) {
	w := r.Window
	existing, err := o.store.FindPending(ctx, r.UserID, r.Kind, r.OfferRef, &w)
	switch {
	case err == nil && existing.Covers(r.Units, r.Window) && existing.Holds(now):
		if existing.BookingStatus == domain.BookingConfirmed {
			return domain.OK("Reservation already confirmed", o.view(existing)), nil
		}
		return o.extend(ctx, existing, now)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return domain.Result{}, errors.Wrap(err, "find pending reservation")
	}
	if to := r.State(now); !domain.CanTransition(domain.StateValidating, to) {
		return domain.Result{}, &domain.TransitionError{Code: r.Code, From: domain.StateValidating, To: to}
	}

	if err := o.tx(ctx, func(ctx context.Context) error {
		res, err := o.store.Claim(ctx, r, now)
		if err != nil {
			return err
		}
		for _, released := range res.Released {
			if released.Cancellation.Code == domain.CancelExpired {
				observability.HoldsExpired.WithLabelValues("claim").Inc()
			}
			if err := o.store.AppendEvent(ctx, domain.NewEvent(domain.CancelEventType(released.Cancellation.Code), released, now)); err != nil {
				return err
			}
		}
		return o.store.AppendEvent(ctx, domain.NewEvent(domain.EventReservationHeld, r, now))
	}); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			observability.HoldConflicts.WithLabelValues(string(r.Kind), "claim").Inc()
		}
		return domain.Result{}, err
	}

	observability.HoldsCreated.WithLabelValues(string(r.Kind), "created").Inc()
	o.auditLog(ctx, domain.EventReservationHeld, r.UserID, r)
	return domain.OK("Reservation created", o.view(r)), nil
}

func (o *Orchestrator) extend(ctx context.Context, r domain.Reservation, now time.Time) (domain.Result, error) {
	to := domain.StateHeld
	if r.PaymentIntentID != "" {
		to = domain.StatePaying
	}
	if err := r.CheckTransition(to, now); err != nil {
		return domain.Result{}, err
	}

	var extended domain.Reservation
	if err := o.tx(ctx, func(ctx context.Context) error {
		var err error
		if extended, err = o.store.Extend(ctx, r.Code, now.Add(o.holdTTL)); err != nil {
			return err
		}
		return o.store.AppendEvent(ctx, domain.NewEvent(domain.EventReservationExtended, extended, now))
	}); err != nil {
		return domain.Result{}, err
	}

	observability.HoldsCreated.WithLabelValues(string(r.Kind), "extended").Inc()
	o.auditLog(ctx, domain.EventReservationExtended, r.UserID, extended)
	return domain.OK("Reservation extended", o.view(extended)), nil
}

// cancel cancels r with c and emits the matching event when the reservation
// changed. Canceling an already canceled reservation is a no-op.
func (o *Orchestrator) cancel(ctx context.Context, r domain.Reservation, c domain.Cancellation) (domain.Reservation, bool, error) {
	if !r.Canceled() {
		if err := r.CheckTransition(domain.CancelState(c.Code), c.At); err != nil {
			return domain.Reservation{}, false, err
		}
	}

	var (
		canceled domain.Reservation
		changed  bool
	)
	err := o.tx(ctx, func(ctx context.Context) error {
		var err error
		canceled, changed, err = o.store.Cancel(ctx, r.Code, c)
		if err != nil || !changed {
			return err
		}
		return o.store.AppendEvent(ctx, domain.NewEvent(domain.CancelEventType(c.Code), canceled, c.At))
	})
	if err != nil {
		return domain.Reservation{}, false, errors.Wrapf(err, "cancel %s", r.Code)
	}
	return canceled, changed, nil
}

// revalidate confirms that r still holds its units at now. An expired or
// displaced reservation is canceled and reported with the reason.
func (o *Orchestrator) revalidate(ctx context.Context, r domain.Reservation, now time.Time, lapsed string) (domain.Reservation, error) {
	if lapsed != "" {
		code := domain.CancelDeparted
		if r.Kind == domain.KindHotel {
			code = domain.CancelExpired
		}
		if _, _, err := o.cancel(ctx, r, domain.Cancellation{Code: code, Reason: lapsed, At: now, By: domain.ActorSystem}); err != nil {
			return domain.Reservation{}, err
		}
		observability.HoldsExpired.WithLabelValues("read").Inc()
		return domain.Reservation{}, &domain.ExpiredHoldError{Code: r.Code, Reason: lapsed}
	}

	if r.Expired(now) {
		if _, _, err := o.cancel(ctx, r, domain.Cancellation{Code: domain.CancelExpired, Reason: "expired", At: now, By: domain.ActorSystem}); err != nil {
			return domain.Reservation{}, err
		}
		observability.HoldsExpired.WithLabelValues("read").Inc()
		return domain.Reservation{}, &domain.ExpiredHoldError{Code: r.Code, Reason: "Your reservation has expired, please reserve again"}
	}

	taken, err := o.checker.HeldByOther(ctx, r.Units, r.Window, r.UserID)
	if err != nil {
		return domain.Reservation{}, errors.Wrapf(err, "check holders of %s", r.Code)
	}
	if len(taken) > 0 {
		reason := "Your selection was taken by someone else"
		if _, _, err := o.cancel(ctx, r, domain.Cancellation{Code: domain.CancelConflict, Reason: reason, At: now, By: domain.ActorSystem}); err != nil {
			return domain.Reservation{}, err
		}
		observability.HoldConflicts.WithLabelValues(string(r.Kind), "payment").Inc()
		o.logger.WithField("code", r.Code).WithField("units", taken).Warn("reservation lost units to another holder")
		return domain.Reservation{}, &domain.ConflictDetectedError{Code: r.Code, Units: taken}
	}
	return r, nil
}

func notReserved(kind domain.ReservationKind) domain.Result {
	if kind == domain.KindFlight {
		return domain.Fail(domain.CodeNotReserved, "You have not reserved this flight")
	}
	return domain.Fail(domain.CodeNotReserved, "You have not reserved this hotel")
}
