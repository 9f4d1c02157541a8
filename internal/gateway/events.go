package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskiranumut/crystal-ball/internal/countdown"
	"github.com/taskiranumut/crystal-ball/internal/models"
)

// Event is the envelope for every message pushed to a list view session.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType identifies the render instruction carried by an event.
type EventType string

const (
	EventTypeCountdownTick     EventType = "CountdownTick"
	EventTypeListLoading       EventType = "ListLoading"
	EventTypeList              EventType = "List"
	EventTypeListEmpty         EventType = "ListEmpty"
	EventTypeActiveTag         EventType = "ActiveTag"
	EventTypeVoteResult        EventType = "VoteResult"
	EventTypeVoteCast          EventType = "VoteCast"
	EventTypePredictionCreated EventType = "PredictionCreated"
	EventTypeError             EventType = "Error"
)

// CountdownTickPayload carries one prediction's countdown state for a tick.
type CountdownTickPayload struct {
	PredictionID string          `json:"prediction_id"`
	State        countdown.State `json:"state"`
}

// ListPayload carries the full prediction list for a view refresh.
type ListPayload struct {
	Predictions []models.Prediction `json:"predictions"`
}

// ActiveTagPayload names the tag filter currently applied to the view.
// An empty tag means the unfiltered list.
type ActiveTagPayload struct {
	Tag string `json:"tag"`
}

// VoteResultPayload carries confirmed counts back to the session that voted.
type VoteResultPayload struct {
	PredictionID string `json:"prediction_id"`
	UpCount      int    `json:"up_count"`
	DownCount    int    `json:"down_count"`
}

// ErrorPayload reports a rejected client action.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewEvent wraps a payload in the event envelope.
func NewEvent(eventType EventType, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}
