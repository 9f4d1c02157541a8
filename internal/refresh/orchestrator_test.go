package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/taskiranumut/crystal-ball/internal/countdown"
	"github.com/taskiranumut/crystal-ball/internal/models"
	"github.com/taskiranumut/crystal-ball/internal/vote"
)

type fakeSource struct {
	mu      sync.Mutex
	all     []models.Prediction
	byTag   map[models.Tag][]models.Prediction
	failAll error
	failTag error
}

func (f *fakeSource) FetchAll(context.Context) ([]models.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	return f.all, nil
}

func (f *fakeSource) FetchByTag(_ context.Context, tag models.Tag) ([]models.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTag != nil {
		return nil, f.failTag
	}
	return f.byTag[tag], nil
}

// viewSink records list events and swallows countdown ticks.
type viewSink struct {
	mu     sync.Mutex
	events []string
	lists  [][]models.Prediction
	tags   []models.Tag
	ticks  int
}

func (s *viewSink) EmitListLoading() { s.record("loading") }

func (s *viewSink) EmitList(preds []models.Prediction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "list")
	s.lists = append(s.lists, preds)
}

func (s *viewSink) EmitListEmpty() { s.record("empty") }

func (s *viewSink) EmitActiveTag(tag models.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "active_tag")
	s.tags = append(s.tags, tag)
}

func (s *viewSink) EmitCountdown(uuid.UUID, countdown.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks++
}

func (s *viewSink) EmitVoteResult(uuid.UUID, models.VoteCounts) {}

func (s *viewSink) record(ev string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *viewSink) eventLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *viewSink) tickCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

func futurePrediction(tag models.Tag) models.Prediction {
	return models.Prediction{
		ID:              uuid.New(),
		Content:         "x",
		Tag:             tag,
		RealizationDate: time.Now().AddDate(1, 0, 0).Format("2006-01-02"),
		Reviewed:        true,
	}
}

type testView struct {
	orch   *Orchestrator
	sink   *viewSink
	source *fakeSource
	clock  *clockwork.FakeClock
}

func newTestView(t *testing.T) *testView {
	t.Helper()
	sink := &viewSink{}
	clock := clockwork.NewFakeClock()
	source := &fakeSource{byTag: make(map[models.Tag][]models.Prediction)}
	engine := countdown.NewEngine(clock, sink)
	coordinator := vote.NewCoordinator(nil, nil, sink)
	orch := New(source, engine, coordinator, sink)
	t.Cleanup(orch.Stop)
	return &testView{orch: orch, sink: sink, source: source, clock: clock}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRefreshRendersAndStartsCountdown(t *testing.T) {
	v := newTestView(t)
	v.source.all = []models.Prediction{futurePrediction(models.TagSports)}

	if err := v.orch.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := v.sink.eventLog(); !equalStrings(got, []string{"loading", "list"}) {
		t.Fatalf("events = %v, want [loading list]", got)
	}
	if !v.orch.CountdownActive() {
		t.Fatal("countdown should be running over the fetched set")
	}
}

func TestRefreshEmptyList(t *testing.T) {
	v := newTestView(t)

	if err := v.orch.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := v.sink.eventLog(); !equalStrings(got, []string{"loading", "empty"}) {
		t.Fatalf("events = %v, want [loading empty]", got)
	}
	if v.orch.CountdownActive() {
		t.Fatal("no countdown should run over an empty list")
	}
}

func TestRefreshFailureResolvesLoading(t *testing.T) {
	v := newTestView(t)
	v.source.failAll = errors.New("store down")

	if err := v.orch.Refresh(context.Background()); err == nil {
		t.Fatal("expected fetch failure")
	}
	if got := v.sink.eventLog(); !equalStrings(got, []string{"loading", "empty"}) {
		t.Fatalf("events = %v, want [loading empty]", got)
	}
}

func TestRefreshReplacesPreviousRun(t *testing.T) {
	v := newTestView(t)
	v.source.all = []models.Prediction{futurePrediction(models.TagSports)}
	ctx := context.Background()

	if err := v.orch.Refresh(ctx); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	if err := v.orch.Refresh(ctx); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	if !v.orch.CountdownActive() {
		t.Fatal("fresh run should be active after second refresh")
	}
}

func TestFilterByTag(t *testing.T) {
	v := newTestView(t)
	v.source.byTag[models.TagScience] = []models.Prediction{futurePrediction(models.TagScience)}
	ctx := context.Background()

	if err := v.orch.FilterByTag(ctx, models.TagScience); err != nil {
		t.Fatalf("FilterByTag: %v", err)
	}
	if got := v.orch.ActiveTag(); got != models.TagScience {
		t.Fatalf("ActiveTag = %q, want science", got)
	}
	if got := v.sink.eventLog(); !equalStrings(got, []string{"loading", "list", "active_tag"}) {
		t.Fatalf("events = %v", got)
	}
}

func TestFilterByTagRejectsUnknownTag(t *testing.T) {
	v := newTestView(t)
	if err := v.orch.FilterByTag(context.Background(), "gossip"); err == nil {
		t.Fatal("expected invalid tag error")
	}
	if got := v.sink.eventLog(); len(got) != 0 {
		t.Fatalf("invalid tag emitted events: %v", got)
	}
}

func TestFilterByTagFailureKeepsPreviousScope(t *testing.T) {
	v := newTestView(t)
	v.source.byTag[models.TagScience] = []models.Prediction{futurePrediction(models.TagScience)}
	ctx := context.Background()

	if err := v.orch.FilterByTag(ctx, models.TagScience); err != nil {
		t.Fatalf("FilterByTag: %v", err)
	}

	v.source.mu.Lock()
	v.source.failTag = errors.New("store down")
	v.source.mu.Unlock()

	if err := v.orch.FilterByTag(ctx, models.TagEconomy); err == nil {
		t.Fatal("expected fetch failure")
	}
	if got := v.orch.ActiveTag(); got != models.TagScience {
		t.Fatalf("ActiveTag moved to %q on a failed filter", got)
	}
}

// gatedSource holds every FetchAll call on a gate so refreshes can be forced
// to overlap.
type gatedSource struct {
	preds   []models.Prediction
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSource) FetchAll(context.Context) ([]models.Prediction, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.preds, nil
}

func (g *gatedSource) FetchByTag(context.Context, models.Tag) ([]models.Prediction, error) {
	return nil, nil
}

func TestConcurrentRefreshLeavesSingleRun(t *testing.T) {
	sink := &viewSink{}
	clock := clockwork.NewFakeClock()
	source := &gatedSource{
		preds:   []models.Prediction{futurePrediction(models.TagSports)},
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	engine := countdown.NewEngine(clock, sink)
	orch := New(source, engine, vote.NewCoordinator(nil, nil, sink), sink)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := orch.Refresh(context.Background()); err != nil {
				t.Errorf("Refresh: %v", err)
			}
		}()
	}
	<-source.entered
	close(source.release)
	wg.Wait()

	// Both refreshes completed; exactly one run may survive, and Stop must
	// take it down. A leaked run would keep emitting on clock advances.
	orch.Stop()
	before := sink.tickCount()
	clock.Advance(3 * countdown.TickPeriod)
	if got := sink.tickCount(); got != before {
		t.Fatalf("countdown still ticking after Stop: %d emissions", got-before)
	}
}

func TestOpenFormStopsTicking(t *testing.T) {
	v := newTestView(t)
	v.source.all = []models.Prediction{futurePrediction(models.TagSports)}

	if err := v.orch.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	v.orch.OpenForm()
	if v.orch.CountdownActive() {
		t.Fatal("countdown must stop when the form opens")
	}

	// With the run stopped, advancing the clock produces no tick emissions.
	before := v.sink.tickCount()
	v.clock.Advance(3 * countdown.TickPeriod)
	if got := v.sink.tickCount(); got != before {
		t.Fatalf("ticks fired after OpenForm: %d -> %d", before, got)
	}
}

func TestCloseFormAfterSubmitLandsOnAll(t *testing.T) {
	v := newTestView(t)
	v.source.all = []models.Prediction{futurePrediction(models.TagSports)}
	v.source.byTag[models.TagScience] = []models.Prediction{futurePrediction(models.TagScience)}
	ctx := context.Background()

	if err := v.orch.FilterByTag(ctx, models.TagScience); err != nil {
		t.Fatalf("FilterByTag: %v", err)
	}
	v.orch.OpenForm()
	if err := v.orch.CloseForm(ctx, true); err != nil {
		t.Fatalf("CloseForm: %v", err)
	}
	if got := v.orch.ActiveTag(); got != "" {
		t.Fatalf("ActiveTag = %q after submit, want all", got)
	}
	if !v.orch.CountdownActive() {
		t.Fatal("countdown should restart after returning from the form")
	}
}

func TestCloseFormCancelRestoresActiveTag(t *testing.T) {
	v := newTestView(t)
	v.source.byTag[models.TagScience] = []models.Prediction{futurePrediction(models.TagScience)}
	ctx := context.Background()

	if err := v.orch.FilterByTag(ctx, models.TagScience); err != nil {
		t.Fatalf("FilterByTag: %v", err)
	}
	v.orch.OpenForm()
	if err := v.orch.CloseForm(ctx, false); err != nil {
		t.Fatalf("CloseForm: %v", err)
	}
	if got := v.orch.ActiveTag(); got != models.TagScience {
		t.Fatalf("ActiveTag = %q after cancel, want science", got)
	}
}
