package outbox

import (
	"time"

	"github.com/google/uuid"
)

// NotifyChannel is the Postgres NOTIFY channel the record store signals after
// committing an outbox row.
const NotifyChannel = "prediction_outbox_events"

// Event types written by the record store.
const (
	EventTypeVoteCast          = "VoteCast"
	EventTypePredictionCreated = "PredictionCreated"
)

// OutboxEvent is one committed, not-necessarily-published domain event.
type OutboxEvent struct {
	ID           uuid.UUID
	PredictionID uuid.UUID
	EventType    string
	Payload      []byte
	CreatedAt    time.Time
}
