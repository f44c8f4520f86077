// Package expiry runs the active sweeper that cancels holds whose guarantee
// window has passed. Reads already treat such holds as free; the sweeper makes
// the cancellation durable and emits reservation.expired.
package expiry

import (
	"context"
	"time"

	"github.com/robertarktes/travel-reservations/internal/observability"
)

type Sweeper interface {
	SweepExpired(ctx context.Context, limit int) (int, error)
}

type Worker struct {
	sweeper  Sweeper
	logger   observability.Logger
	interval time.Duration
	batch    int
	retries  int
	backoff  time.Duration
}

func NewWorker(sweeper Sweeper, logger observability.Logger, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{
		sweeper:  sweeper,
		logger:   logger,
		interval: interval,
		batch:    100,
		retries:  3,
		backoff:  time.Second,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.Drain(ctx)
			if err != nil && ctx.Err() == nil {
				w.logger.WithError(err).Error("failed to sweep expired holds")
			}
			if n > 0 {
				w.logger.WithField("count", n).Info("expired holds swept")
			}
		}
	}
}

// Drain sweeps batches until a batch comes back short.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := w.sweepWithRetry(ctx)
		total += n
		if err != nil || n < w.batch {
			return total, err
		}
	}
}

func (w *Worker) sweepWithRetry(ctx context.Context) (int, error) {
	var (
		n   int
		err error
	)
	for i := 0; i < w.retries; i++ {
		n, err = w.sweeper.SweepExpired(ctx, w.batch)
		if err == nil {
			return n, nil
		}
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case <-time.After(time.Duration(1<<i) * w.backoff):
		}
	}
	return n, err
}
