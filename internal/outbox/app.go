package outbox

import (
	"context"

	"github.com/google/uuid"
)

// EventReader defines what the listener needs from the outbox repository.
type EventReader interface {
	FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
	FetchUnsent(ctx context.Context, limit int32) ([]OutboxEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
}

// Publisher delivers a committed event to the message bus.
type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}
