package outbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/travel-reservations/internal/adapters/memory"
	"github.com/robertarktes/travel-reservations/internal/clock"
	"github.com/robertarktes/travel-reservations/internal/domain"
	"github.com/robertarktes/travel-reservations/internal/observability"
	"github.com/robertarktes/travel-reservations/internal/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	keys     []string
	msgs     []amqp.Publishing
	failures int
}

func (s *fakeSink) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("channel closed")
	}
	s.keys = append(s.keys, key)
	s.msgs = append(s.msgs, msg)
	return nil
}

var now = time.Date(2030, 7, 1, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *memory.Store, types ...string) []domain.Event {
	t.Helper()
	r := domain.NewReservation(domain.NewReservationParams{
		Kind:     domain.KindHotel,
		UserID:   "u1",
		OfferRef: "grand-plaza",
		Units:    []string{"grand-plaza:101"},
		Window:   domain.NewWindow(now.AddDate(0, 0, 10), now.AddDate(0, 0, 12)),
	}, now, time.Minute)

	var events []domain.Event
	for i, typ := range types {
		e := domain.NewEvent(typ, r, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, store.AppendEvent(context.Background(), e))
		events = append(events, e)
	}
	return events
}

func TestFlush_PublishesInOrder(t *testing.T) {
	store := memory.NewStore()
	events := seed(t, store, domain.EventReservationHeld, domain.EventPaymentIntentCreated, domain.EventReservationConfirmed)
	sink := &fakeSink{}
	clk := clock.NewManual(now.Add(time.Minute))

	p := outbox.NewPublisher(store, sink, observability.NewNopLogger(), clk, outbox.WithBatchSize(2))

	n, err := p.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = p.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, []string{domain.EventReservationHeld, domain.EventPaymentIntentCreated, domain.EventReservationConfirmed}, sink.keys)
	assert.Equal(t, events[0].ID.String(), sink.msgs[0].MessageId)
	assert.Equal(t, amqp.Persistent, sink.msgs[0].DeliveryMode)

	rest, err := store.Unpublished(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestFlush_RetriesThenStops(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, domain.EventReservationHeld, domain.EventReservationCanceled)
	clk := clock.NewManual(now)

	sink := &fakeSink{failures: 2}
	p := outbox.NewPublisher(store, sink, observability.NewNopLogger(), clk, outbox.WithBackoff(time.Millisecond))
	n, err := p.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	seed(t, store, domain.EventReservationExpired)
	sink.failures = 10
	n, err = p.Flush(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, n)

	rest, err := store.Unpublished(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, rest, 1, "failed row stays in the outbox")
}
