package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// ErrEventNotFound is returned when a notified event ID has no row, e.g. the
// row was already swept and published by the fallback pass.
var ErrEventNotFound = errors.New("outbox event not found")

// Repository reads and marks outbox rows. Writes happen in the record store's
// transactions; this side only relays.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FetchByID loads a single outbox event.
func (r *Repository) FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, prediction_id, event_type, payload, created_at
		 FROM prediction_outbox WHERE id = $1`, id)

	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox event: %w", err)
	}
	return event, nil
}

// FetchUnsent returns up to limit unpublished events, oldest first. This is
// the fallback sweep for notifications lost while the listener was down.
func (r *Repository) FetchUnsent(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, prediction_id, event_type, payload, created_at
		 FROM prediction_outbox
		 WHERE sent_at IS NULL
		 ORDER BY created_at
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var out []OutboxEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		out = append(out, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outbox events: %w", err)
	}
	return out, nil
}

// MarkSent stamps the event as published.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE prediction_outbox SET sent_at = now() WHERE id = $1 AND sent_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Already marked; the notify path and the fallback sweep can race.
		return nil
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*OutboxEvent, error) {
	var event OutboxEvent
	var payload pqtype.NullRawMessage
	if err := row.Scan(&event.ID, &event.PredictionID, &event.EventType, &payload, &event.CreatedAt); err != nil {
		return nil, err
	}
	if payload.Valid {
		event.Payload = payload.RawMessage
	}
	return &event, nil
}
