package outbox

import (
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/travel-reservations/internal/domain"
)

const (
	StatusNew       = "NEW"
	StatusPublished = "PUBLISHED"
	StatusFailed    = "FAILED"

	AggregateReservation = "reservation"
)

type Record struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string
	DedupeKey     string
}

// FromEvent turns a reservation event into a NEW outbox row. The event id
// doubles as the message id consumers dedupe on.
func FromEvent(e domain.Event) Record {
	return Record{
		ID:            e.ID,
		AggregateType: AggregateReservation,
		AggregateID:   e.AggregateID,
		EventType:     e.Type,
		Payload:       e.Payload,
		CreatedAt:     e.CreatedAt,
		Status:        StatusNew,
		DedupeKey:     e.ID.String(),
	}
}
