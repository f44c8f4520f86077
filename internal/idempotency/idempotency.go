// Package idempotency replays stored responses for repeated mutating requests
// that carry the same Idempotency-Key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/cockroachdb/errors"
	redisadapter "github.com/robertarktes/travel-reservations/internal/adapters/redis"
)

const (
	Header      = "Idempotency-Key"
	ReplayedHdr = "Idempotent-Replayed"

	DefaultTTL = 24 * time.Hour
	lockTTL    = 30 * time.Second
)

// ErrInFlight is returned by Begin while another request with the same key
// is being served.
var ErrInFlight = errors.New("request with this idempotency key is in progress")

type Idempotency struct {
	redis *redisadapter.Idempotency
	ttl   time.Duration
}

func NewIdempotency(redis *redisadapter.Idempotency, ttl time.Duration) *Idempotency {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Idempotency{redis: redis, ttl: ttl}
}

// Response is a stored reply. BodyHash is the Fingerprint of the request body
// it answered.
type Response struct {
	Status      int
	ContentType string
	Result      []byte
	BodyHash    string
}

// Fingerprint identifies a request body.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Answers reports whether r was stored for a request with body hash. Entries
// stored without a hash answer any body.
func (r *Response) Answers(hash string) bool {
	return r.BodyHash == "" || r.BodyHash == hash
}

func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	stored, err := i.redis.Get(ctx, key)
	if err != nil || stored == nil {
		return nil, err
	}
	return &Response{Status: stored.Status, ContentType: stored.ContentType, Result: stored.Result, BodyHash: stored.BodyHash}, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	return i.redis.Set(ctx, key, redisadapter.IdempResponse{
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Result:      resp.Result,
		BodyHash:    resp.BodyHash,
	}, i.ttl)
}

// Begin returns a stored response for key, or takes the in-flight lock and
// returns nil. Callers that got nil must call End.
func (i *Idempotency) Begin(ctx context.Context, key string) (*Response, error) {
	if resp, err := i.Get(ctx, key); err != nil || resp != nil {
		return resp, err
	}
	ok, err := i.redis.Lock(ctx, key, lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInFlight
	}
	return nil, nil
}

// End stores resp unless it is nil and releases the lock.
func (i *Idempotency) End(ctx context.Context, key string, resp *Response) error {
	var err error
	if resp != nil {
		err = i.Set(ctx, key, *resp)
	}
	return errors.CombineErrors(err, i.redis.Unlock(ctx, key))
}
