package idempotency

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	redisadapter "github.com/robertarktes/travel-reservations/internal/adapters/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdempotency(t *testing.T) *Idempotency {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewIdempotency(redisadapter.NewIdempotency(client), 0)
}

func TestBeginEnd(t *testing.T) {
	ctx := context.Background()
	idem := newIdempotency(t)

	resp, err := idem.Begin(ctx, "u1:POST:/v1/reservations:abc")
	require.NoError(t, err)
	assert.Nil(t, resp)

	_, err = idem.Begin(ctx, "u1:POST:/v1/reservations:abc")
	assert.ErrorIs(t, err, ErrInFlight)

	require.NoError(t, idem.End(ctx, "u1:POST:/v1/reservations:abc", &Response{Status: 201, Result: []byte("{}")}))

	resp, err = idem.Begin(ctx, "u1:POST:/v1/reservations:abc")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 201, resp.Status)
}

func TestEndWithoutResponseReleasesKey(t *testing.T) {
	ctx := context.Background()
	idem := newIdempotency(t)

	_, err := idem.Begin(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, idem.End(ctx, "k", nil))

	resp, err := idem.Begin(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestStoredBodyHash(t *testing.T) {
	ctx := context.Background()
	idem := newIdempotency(t)

	hash := Fingerprint([]byte(`{"seats":["12A"]}`))
	_, err := idem.Begin(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, idem.End(ctx, "k", &Response{Status: 201, Result: []byte("{}"), BodyHash: hash}))

	resp, err := idem.Begin(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Answers(hash))
	assert.False(t, resp.Answers(Fingerprint([]byte(`{"seats":["2A"]}`))))
	assert.True(t, (&Response{}).Answers(hash), "entries without a hash answer any body")
}
