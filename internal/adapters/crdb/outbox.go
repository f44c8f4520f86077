package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/travel-reservations/internal/domain"
	"github.com/robertarktes/travel-reservations/internal/outbox"
)

var _ outbox.Source = (*Repository)(nil)

// AppendEvent writes e to the outbox. Called inside WithTx it commits or
// rolls back with the reservation change.
func (r *Repository) AppendEvent(ctx context.Context, e domain.Event) error {
	rec := outbox.FromEvent(e)
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, created_at, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.AggregateType, rec.AggregateID, rec.EventType, rec.Payload, rec.CreatedAt, rec.Status, rec.DedupeKey)
	return errors.Wrapf(err, "append %s event", e.Type)
}

func (r *Repository) Unpublished(ctx context.Context, limit int) ([]outbox.Record, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
		FROM outbox WHERE status = $1 ORDER BY created_at ASC LIMIT $2
	`, outbox.StatusNew, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []outbox.Record
	for rows.Next() {
		var rec outbox.Record
		err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Repository) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	_, err := r.q(ctx).Exec(ctx, `
		UPDATE outbox SET status = $2, published_at = $3 WHERE id = $1
	`, id, outbox.StatusPublished, publishedAt)
	return err
}
