// Package vote serializes the read-modify-write cycle for a single vote
// action against a store with no idempotency key: fetch current counts,
// increment one side, persist the pair, and only then mark the client's
// ledger. At most one vote is in flight per list view at a time.
package vote

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/taskiranumut/crystal-ball/internal/ledger"
	"github.com/taskiranumut/crystal-ball/internal/models"
)

// Type is the direction of a vote.
type Type string

const (
	TypeUp   Type = "up"
	TypeDown Type = "down"
)

// Valid reports whether t is one of the two accepted vote types.
func (t Type) Valid() bool {
	return t == TypeUp || t == TypeDown
}

var (
	// ErrInvalidType is an invalid-argument failure: no I/O has happened.
	ErrInvalidType = errors.New("vote: invalid vote type")
	// ErrAlreadyVoted is returned when the client's ledger already holds the
	// prediction; no network call is made.
	ErrAlreadyVoted = errors.New("vote: already voted on this prediction")
	// ErrInFlight is returned to a second caster while one vote is mid-flight
	// on the same view. The rejected attempt is dropped, not queued.
	ErrInFlight = errors.New("vote: another vote is in flight")
)

// Store is the slice of the record store a vote needs.
type Store interface {
	FetchCounts(ctx context.Context, id uuid.UUID) (models.VoteCounts, error)
	PersistVoteCounts(ctx context.Context, id uuid.UUID, counts models.VoteCounts) (models.VoteCounts, error)
}

// Ledger gates and records per-client votes.
type Ledger interface {
	HasVoted(ctx context.Context, c *ledger.Client, id string) bool
	RecordVote(ctx context.Context, c *ledger.Client, id string) error
}

// Sink receives the confirmed result so the rendering layer can redraw the
// vote control as disabled-post-vote.
type Sink interface {
	EmitVoteResult(id uuid.UUID, counts models.VoteCounts)
}

// Coordinator runs vote actions for one list view. The in-flight gate is a
// cooperative flag: there is no queue and no lock hand-off.
type Coordinator struct {
	store  Store
	ledger Ledger
	sink   Sink

	inFlight atomic.Bool
}

// NewCoordinator creates a vote coordinator for a single list view.
func NewCoordinator(store Store, lg Ledger, sink Sink) *Coordinator {
	return &Coordinator{store: store, ledger: lg, sink: sink}
}

// CastVote performs one vote action end to end and returns the confirmed
// counts. Every failure before the persist confirmation leaves the ledger
// untouched, so the user may retry. There is no cancellation of the in-flight
// store calls; a slow call simply holds the gate until it resolves.
func (c *Coordinator) CastVote(ctx context.Context, client *ledger.Client, predictionID uuid.UUID, voteType Type) (models.VoteCounts, error) {
	if !voteType.Valid() {
		return models.VoteCounts{}, fmt.Errorf("%w: %q", ErrInvalidType, voteType)
	}

	if !c.inFlight.CompareAndSwap(false, true) {
		log.Debug().Str("prediction_id", predictionID.String()).Msg("vote ignored: one already in flight")
		return models.VoteCounts{}, ErrInFlight
	}
	defer c.inFlight.Store(false)

	// Re-verify the ledger inside the gate; the same client may have voted
	// through another request since the UI last checked.
	if c.ledger.HasVoted(ctx, client, predictionID.String()) {
		log.Warn().Str("prediction_id", predictionID.String()).Msg("vote aborted: ledger already has this prediction")
		return models.VoteCounts{}, ErrAlreadyVoted
	}

	counts, err := c.store.FetchCounts(ctx, predictionID)
	if err != nil {
		log.Error().Err(err).Str("prediction_id", predictionID.String()).Msg("vote failed: fetching current counts")
		return models.VoteCounts{}, fmt.Errorf("fetch current counts: %w", err)
	}

	switch voteType {
	case TypeUp:
		counts.UpCount++
	case TypeDown:
		counts.DownCount++
	}

	persisted, err := c.store.PersistVoteCounts(ctx, predictionID, counts)
	if err != nil {
		log.Error().Err(err).Str("prediction_id", predictionID.String()).Msg("vote failed: persisting counts")
		return models.VoteCounts{}, fmt.Errorf("persist vote counts: %w", err)
	}
	if persisted != counts {
		// The confirmation round-trip did not return what we wrote.
		log.Error().Str("prediction_id", predictionID.String()).
			Interface("sent", counts).Interface("confirmed", persisted).
			Msg("vote failed: store confirmation mismatch")
		return models.VoteCounts{}, fmt.Errorf("store confirmation mismatch for %s", predictionID)
	}

	// Only after a confirmed remote write does the ledger learn about the
	// vote. A ledger write failure at this point is logged but the vote
	// stands: the count is already durable.
	if err := c.ledger.RecordVote(ctx, client, predictionID.String()); err != nil {
		log.Error().Err(err).Str("prediction_id", predictionID.String()).Msg("vote recorded remotely but ledger write failed")
	}

	c.sink.EmitVoteResult(predictionID, persisted)

	log.Info().Str("prediction_id", predictionID.String()).Str("vote_type", string(voteType)).
		Int("up_count", persisted.UpCount).Int("down_count", persisted.DownCount).
		Msg("vote cast")
	return persisted, nil
}

// InFlight reports whether a vote is currently mid-flight on this view.
func (c *Coordinator) InFlight() bool {
	return c.inFlight.Load()
}
