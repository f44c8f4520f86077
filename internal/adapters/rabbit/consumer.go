package rabbit

import (
	"context"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/travel-reservations/internal/observability"
)

const PaymentsQueue = "payments.q"

type Consumer struct {
	ch     *amqp.Channel
	queue  string
	logger observability.Logger
}

func NewConsumer(conn *amqp.Connection, queue string, logger observability.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	_, err = ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(10, 0, false); err != nil {
		return nil, errors.Wrap(err, "set prefetch")
	}
	return &Consumer{ch: ch, queue: queue, logger: logger}, nil
}

func (c *Consumer) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	return c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
}

// Handler processes one message. A failed message is requeued once; errors
// marked ErrPermanent drop it right away.
type Handler func(ctx context.Context, body []byte) error

// ErrPermanent marks handler errors that redelivery cannot fix.
var ErrPermanent = errors.New("permanent failure")

// Run consumes until ctx is done or the channel closes.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	deliveries, err := c.Consume(ctx)
	if err != nil {
		return errors.Wrapf(err, "consume %s", c.queue)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.Newf("delivery channel for %s closed", c.queue)
			}
			c.dispatch(ctx, d, handle)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery, handle Handler) {
	log := c.logger.WithField("message_id", d.MessageId)
	err := handle(ctx, d.Body)
	switch {
	case err == nil:
		if err := d.Ack(false); err != nil {
			log.WithError(err).Error("ack failed")
		}
	case errors.Is(err, ErrPermanent):
		log.WithError(err).Error("dropping message")
		_ = d.Nack(false, false)
	default:
		log.WithError(err).Warn("requeueing message")
		_ = d.Nack(false, !d.Redelivered)
	}
}

func (c *Consumer) Close() error {
	return c.ch.Close()
}
