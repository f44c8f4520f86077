package outbox

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/travel-reservations/internal/clock"
	"github.com/robertarktes/travel-reservations/internal/observability"
)

type Source interface {
	Unpublished(ctx context.Context, limit int) ([]Record, error)
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
}

type Sink interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

// Publisher relays outbox rows to the broker in creation order.
type Publisher struct {
	source   Source
	sink     Sink
	logger   observability.Logger
	clock    clock.Clock
	batch    int
	retries  int
	backoff  time.Duration
	interval time.Duration
}

type Option func(*Publisher)

func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batch = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithBackoff(d time.Duration) Option {
	return func(p *Publisher) { p.backoff = d }
}

func NewPublisher(source Source, sink Sink, logger observability.Logger, clk clock.Clock, opts ...Option) *Publisher {
	p := &Publisher{
		source:   source,
		sink:     sink,
		logger:   logger,
		clock:    clk,
		batch:    10,
		retries:  3,
		backoff:  time.Second,
		interval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Flush(ctx); err != nil && ctx.Err() == nil {
				p.logger.WithError(err).Error("outbox flush failed")
			}
		}
	}
}

// Flush publishes one batch and returns how many rows went out. It stops at
// the first row that cannot be published so later events never overtake it.
func (p *Publisher) Flush(ctx context.Context) (int, error) {
	records, err := p.source.Unpublished(ctx, p.batch)
	if err != nil {
		return 0, errors.Wrap(err, "load outbox")
	}

	sent := 0
	for _, rec := range records {
		msg := amqp.Publishing{
			MessageId:    rec.DedupeKey,
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    rec.CreatedAt,
			Type:         rec.EventType,
			Body:         rec.Payload,
		}
		if err := p.publishWithRetry(ctx, rec.EventType, msg); err != nil {
			return sent, errors.Wrapf(err, "publish %s", rec.ID)
		}

		now := p.clock.Now()
		if err := p.source.MarkPublished(ctx, rec.ID, now); err != nil {
			return sent, errors.Wrapf(err, "mark %s published", rec.ID)
		}
		observability.OutboxLag.Set(now.Sub(rec.CreatedAt).Seconds())
		sent++
	}
	return sent, nil
}

func (p *Publisher) publishWithRetry(ctx context.Context, key string, msg amqp.Publishing) error {
	var err error
	for i := 0; i < p.retries; i++ {
		if err = p.sink.Publish(ctx, key, msg); err == nil {
			return nil
		}
		observability.RabbitPublishRetries.Inc()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(1<<i) * p.backoff):
		}
	}
	return err
}
