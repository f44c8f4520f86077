package app

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/travel-reservations/internal/adapters/rabbit"
	"github.com/robertarktes/travel-reservations/internal/booking"
	"github.com/robertarktes/travel-reservations/internal/domain"
	"github.com/robertarktes/travel-reservations/internal/observability"
	"github.com/robertarktes/travel-reservations/internal/payment"
)

// PaymentHandler settles reservations from payment events relayed onto the
// payments queue. The relay verified the processor signature; the intent id
// must still match the reservation's own.
func PaymentHandler(orch *booking.Orchestrator, logger observability.Logger) rabbit.Handler {
	return func(ctx context.Context, body []byte) error {
		outcome, err := payment.DecodeEvent(body)
		if errors.Is(err, payment.ErrIgnoredEvent) {
			logger.WithError(err).Debug("skipping payment event")
			return nil
		}
		if err != nil {
			return errors.Mark(err, rabbit.ErrPermanent)
		}

		res := orch.CompletePayment(ctx, outcome.ReservationCode, outcome.Succeeded, outcome.IntentID)
		switch {
		case res.Success, res.Code == domain.CodeConflict:
			return nil
		case res.Code == domain.CodeUpstream:
			return errors.Newf("complete payment %s: %s", outcome.ReservationCode, res.Message)
		default:
			return errors.Mark(errors.Newf("complete payment %s: %s", outcome.ReservationCode, res.Message), rabbit.ErrPermanent)
		}
	}
}
