package events

import (
	"time"
)

// Event payload types shared between the prediction store, the outbox relay,
// and the gateway.

// VoteCastPayload is the payload for a VoteCast event, emitted after a vote
// increment has been confirmed by the store.
type VoteCastPayload struct {
	PredictionID string    `json:"prediction_id"`
	UpCount      int       `json:"up_count"`
	DownCount    int       `json:"down_count"`
	CastAt       time.Time `json:"cast_at"`
}

// PredictionCreatedPayload is the payload for a PredictionCreated event.
// New predictions are unreviewed, so connected list views treat this as a
// notice, not a list mutation.
type PredictionCreatedPayload struct {
	PredictionID string    `json:"prediction_id"`
	Tag          string    `json:"tag"`
	Owner        string    `json:"owner"`
	CreatedAt    time.Time `json:"created_at"`
}
