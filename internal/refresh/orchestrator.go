// Package refresh owns the lifecycle of a list view: every (re)population of
// the prediction list tears down the previous countdown run and wires a fresh
// one over the newly fetched set, so no stale tick ever fires against
// discarded content.
package refresh

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/taskiranumut/crystal-ball/internal/countdown"
	"github.com/taskiranumut/crystal-ball/internal/ledger"
	"github.com/taskiranumut/crystal-ball/internal/models"
	"github.com/taskiranumut/crystal-ball/internal/vote"
)

// Source fetches prediction lists from the record store.
type Source interface {
	FetchAll(ctx context.Context) ([]models.Prediction, error)
	FetchByTag(ctx context.Context, tag models.Tag) ([]models.Prediction, error)
}

// Sink receives list-level render instructions. Countdown ticks and vote
// results flow through their own sinks.
type Sink interface {
	EmitListLoading()
	EmitList(predictions []models.Prediction)
	EmitListEmpty()
	EmitActiveTag(tag models.Tag)
}

// FetchFunc is one scoped fetch against the record store.
type FetchFunc func(ctx context.Context) ([]models.Prediction, error)

// Orchestrator coordinates the countdown engine and the vote coordinator for
// one list view. It owns the engine's run handle, so whether a countdown is
// currently running is an explicit, queryable condition.
type Orchestrator struct {
	source      Source
	engine      *countdown.Engine
	coordinator *vote.Coordinator
	sink        Sink

	// lifecycleMu serializes every stop-old-run/start-new-run transition.
	// Without it two concurrent refreshes could each pass stopRun and start
	// their own engine run, and the loser of the o.run write would tick until
	// the session died.
	lifecycleMu sync.Mutex

	mu        sync.Mutex
	run       *countdown.Run
	activeTag models.Tag // zero value means "all"
	formOpen  bool
}

// New wires an orchestrator for a single list view.
func New(source Source, engine *countdown.Engine, coordinator *vote.Coordinator, sink Sink) *Orchestrator {
	return &Orchestrator{
		source:      source,
		engine:      engine,
		coordinator: coordinator,
		sink:        sink,
	}
}

// Refresh repopulates the list for the currently active tag scope.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	return o.refreshWith(ctx, o.fetchForTag(o.ActiveTag()))
}

// FilterByTag re-runs the refresh scoped to the given tag (empty for "all").
// The active-tag bookkeeping only moves on success; a failed fetch leaves the
// previous scope untouched so the view shows no partial state.
func (o *Orchestrator) FilterByTag(ctx context.Context, tag models.Tag) error {
	if tag != "" && !tag.Valid() {
		return fmt.Errorf("invalid tag: %q", tag)
	}

	if err := o.refreshWith(ctx, o.fetchForTag(tag)); err != nil {
		return err
	}

	o.mu.Lock()
	o.activeTag = tag
	o.mu.Unlock()
	o.sink.EmitActiveTag(tag)
	return nil
}

// refreshWith is the single repopulation path: stop the old run, show the
// loading state, fetch, render, start a new run over exactly the fetched set.
func (o *Orchestrator) refreshWith(ctx context.Context, fetch FetchFunc) error {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()

	o.stopRun()
	o.sink.EmitListLoading()

	predictions, err := fetch(ctx)
	if err != nil {
		// Loading resolves to an empty list; the failure is logged and
		// reported to the caller, never retried automatically.
		log.Error().Err(err).Msg("list refresh: fetch failed")
		o.sink.EmitListEmpty()
		return fmt.Errorf("list refresh: %w", err)
	}

	if len(predictions) == 0 {
		o.sink.EmitListEmpty()
		return nil
	}
	o.sink.EmitList(predictions)

	run, err := o.engine.Start(ctx, predictions)
	if err != nil {
		// A malformed realization date in store data is a programming error,
		// not a transient condition.
		log.Error().Err(err).Msg("list refresh: countdown start failed")
		return fmt.Errorf("list refresh: %w", err)
	}

	o.mu.Lock()
	o.run = run
	o.formOpen = false
	o.mu.Unlock()

	log.Debug().Int("predictions", len(predictions)).Msg("list refreshed")
	return nil
}

// CastVote forwards a vote click to the view's coordinator. A click while a
// vote is mid-flight, or on an already-voted prediction, is reported via the
// coordinator's sentinel errors and produces no store traffic.
func (o *Orchestrator) CastVote(ctx context.Context, client *ledger.Client, predictionID uuid.UUID, voteType vote.Type) (models.VoteCounts, error) {
	return o.coordinator.CastVote(ctx, client, predictionID, voteType)
}

// OpenForm switches the view to the new-prediction form: the countdown stops
// and the list content is dropped so no background tick writes into it.
func (o *Orchestrator) OpenForm() {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()

	o.stopRun()
	o.mu.Lock()
	o.formOpen = true
	o.mu.Unlock()
}

// CloseForm returns from the form. A successful submission lands on the
// unfiltered list; a cancel restores whichever tag scope was active.
func (o *Orchestrator) CloseForm(ctx context.Context, submitted bool) error {
	if submitted {
		return o.FilterByTag(ctx, "")
	}
	return o.Refresh(ctx)
}

// Stop tears the view down, waiting out any refresh in flight so the run it
// starts is stopped too. Safe to call repeatedly.
func (o *Orchestrator) Stop() {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()
	o.stopRun()
}

// ActiveTag returns the current tag scope (empty for "all").
func (o *Orchestrator) ActiveTag() models.Tag {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeTag
}

// CountdownActive reports whether a countdown run is currently live.
func (o *Orchestrator) CountdownActive() bool {
	o.mu.Lock()
	run := o.run
	o.mu.Unlock()
	return run != nil && run.Active()
}

func (o *Orchestrator) stopRun() {
	o.mu.Lock()
	run := o.run
	o.run = nil
	o.mu.Unlock()

	if run != nil {
		run.Stop()
	}
}

func (o *Orchestrator) fetchForTag(tag models.Tag) FetchFunc {
	if tag == "" {
		return o.source.FetchAll
	}
	return func(ctx context.Context) ([]models.Prediction, error) {
		return o.source.FetchByTag(ctx, tag)
	}
}
