package countdown

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/taskiranumut/crystal-ball/internal/models"
)

// TickPeriod is the wall-clock repeat period for countdown recomputation.
// Not drift-corrected; each tick recomputes from the clock, so a late tick
// still reports correct remaining time.
const TickPeriod = time.Second

// item is a tracked prediction with its precomputed deadline.
type item struct {
	id       uuid.UUID
	deadline time.Time
}

// Engine computes remaining-time breakdowns for a list of predictions on a
// one-second tick and reports each prediction's expiry exactly once. One
// engine serves one list view; every (re)population of the list starts a
// fresh run and must stop the previous one first.
type Engine struct {
	clock clockwork.Clock
	sink  Sink
}

// NewEngine creates a countdown engine emitting to sink. Pass
// clockwork.NewRealClock() in production and a FakeClock in tests.
func NewEngine(clock clockwork.Clock, sink Sink) *Engine {
	return &Engine{clock: clock, sink: sink}
}

// Run is a single countdown run over a fixed prediction set. It is handed to
// its owner so "is a countdown currently running" stays an explicit,
// queryable condition rather than ambient state.
type Run struct {
	clock clockwork.Clock
	sink  Sink

	items []item

	mu      sync.Mutex
	expired map[uuid.UUID]bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Start begins a run over exactly the given predictions. Every realization
// date is parsed up front; a malformed date fails the whole call. The
// returned handle must be stopped before the list is discarded or replaced.
func (e *Engine) Start(ctx context.Context, predictions []models.Prediction) (*Run, error) {
	items := make([]item, 0, len(predictions))
	for _, p := range predictions {
		deadline, err := ParseRealizationDate(p.RealizationDate)
		if err != nil {
			return nil, fmt.Errorf("prediction %s: %w", p.ID, err)
		}
		items = append(items, item{id: p.ID, deadline: deadline})
	}

	r := &Run{
		clock:   e.clock,
		sink:    e.sink,
		items:   items,
		expired: make(map[uuid.UUID]bool),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	go r.loop(ctx)

	log.Debug().Int("predictions", len(items)).Msg("countdown run started")
	return r, nil
}

func (r *Run) loop(ctx context.Context) {
	defer close(r.doneCh)

	ticker := r.clock.NewTicker(TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.Chan():
			r.tick(r.clock.Now())
		}
	}
}

// tick recomputes every still-open prediction. The body is synchronous and
// fast relative to the one-second period, so ticks never overlap.
func (r *Run) tick(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, it := range r.items {
		if r.expired[it.id] {
			// Already reported expired this run; no redundant emissions.
			continue
		}

		remaining := it.deadline.Sub(now)
		if remaining < TickPeriod {
			r.expired[it.id] = true
			r.sink.EmitCountdown(it.id, State{HasNext: false})
			log.Debug().Str("prediction_id", it.id.String()).Msg("prediction expired")
			continue
		}

		r.sink.EmitCountdown(it.id, State{
			Breakdown: breakdownFromMillis(remaining.Milliseconds()),
			HasNext:   true,
		})
	}
}

// Stop cancels the run's tick process. Safe to call any number of times,
// including on a run that already finished; it blocks until the loop exits
// so no tick can fire against a discarded list.
func (r *Run) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	<-r.doneCh
}

// Active reports whether the run's tick process is still live.
func (r *Run) Active() bool {
	select {
	case <-r.doneCh:
		return false
	default:
		return true
	}
}
