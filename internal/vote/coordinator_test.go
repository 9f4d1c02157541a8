package vote

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/taskiranumut/crystal-ball/internal/ledger"
	"github.com/taskiranumut/crystal-ball/internal/models"
)

// fakeStore is an in-memory record store with optional call gating so tests
// can hold a persist mid-flight.
type fakeStore struct {
	mu     sync.Mutex
	counts map[uuid.UUID]models.VoteCounts

	fetchCalls   atomic.Int32
	persistCalls atomic.Int32

	persistStarted chan struct{} // closed once a persist begins, if set
	persistRelease chan struct{} // persist blocks until closed, if set

	fetchErr   error
	persistErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{counts: make(map[uuid.UUID]models.VoteCounts)}
}

func (s *fakeStore) FetchCounts(_ context.Context, id uuid.UUID) (models.VoteCounts, error) {
	s.fetchCalls.Add(1)
	if s.fetchErr != nil {
		return models.VoteCounts{}, s.fetchErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	counts, ok := s.counts[id]
	if !ok {
		return models.VoteCounts{}, errors.New("no record for id")
	}
	return counts, nil
}

func (s *fakeStore) PersistVoteCounts(_ context.Context, id uuid.UUID, counts models.VoteCounts) (models.VoteCounts, error) {
	if s.persistStarted != nil {
		close(s.persistStarted)
		s.persistStarted = nil
	}
	if s.persistRelease != nil {
		<-s.persistRelease
	}
	s.persistCalls.Add(1)
	if s.persistErr != nil {
		return models.VoteCounts{}, s.persistErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[id] = counts
	return counts, nil
}

// memLedger is an in-memory two-store ledger equivalent.
type memLedger struct {
	mu    sync.Mutex
	voted map[string]bool
}

func newMemLedger() *memLedger {
	return &memLedger{voted: make(map[string]bool)}
}

func (l *memLedger) HasVoted(_ context.Context, _ *ledger.Client, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.voted[id]
}

func (l *memLedger) RecordVote(_ context.Context, _ *ledger.Client, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.voted[id] = true
	return nil
}

type resultSink struct {
	mu      sync.Mutex
	results []models.VoteCounts
}

func (s *resultSink) EmitVoteResult(_ uuid.UUID, counts models.VoteCounts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, counts)
}

func TestCastVoteEndToEnd(t *testing.T) {
	id := uuid.New()
	store := newFakeStore()
	store.counts[id] = models.VoteCounts{UpCount: 3, DownCount: 1}
	lg := newMemLedger()
	sink := &resultSink{}
	co := NewCoordinator(store, lg, sink)
	client := ledger.NewClient("client-1")
	ctx := context.Background()

	counts, err := co.CastVote(ctx, client, id, TypeUp)
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if counts != (models.VoteCounts{UpCount: 4, DownCount: 1}) {
		t.Fatalf("counts = %+v, want {4 1}", counts)
	}
	if store.counts[id] != (models.VoteCounts{UpCount: 4, DownCount: 1}) {
		t.Fatalf("store holds %+v", store.counts[id])
	}
	if !lg.HasVoted(ctx, client, id.String()) {
		t.Fatal("ledger not updated after confirmed persist")
	}
	if len(sink.results) != 1 || sink.results[0] != counts {
		t.Fatalf("sink results = %+v", sink.results)
	}

	// Second cast on the same prediction is rejected locally.
	fetchesBefore := store.fetchCalls.Load()
	if _, err := co.CastVote(ctx, client, id, TypeUp); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("second vote: err = %v, want ErrAlreadyVoted", err)
	}
	if store.fetchCalls.Load() != fetchesBefore {
		t.Fatal("rejected vote still reached the store")
	}
	if store.counts[id] != (models.VoteCounts{UpCount: 4, DownCount: 1}) {
		t.Fatal("rejected vote changed counts")
	}
}

func TestCastVoteInvalidType(t *testing.T) {
	store := newFakeStore()
	co := NewCoordinator(store, newMemLedger(), &resultSink{})

	_, err := co.CastVote(context.Background(), ledger.NewClient("c"), uuid.New(), "sideways")
	if !errors.Is(err, ErrInvalidType) {
		t.Fatalf("err = %v, want ErrInvalidType", err)
	}
	if store.fetchCalls.Load() != 0 {
		t.Fatal("invalid type must not reach the store")
	}
}

func TestCastVoteSingleFlight(t *testing.T) {
	id := uuid.New()
	store := newFakeStore()
	store.counts[id] = models.VoteCounts{UpCount: 0, DownCount: 0}
	store.persistStarted = make(chan struct{})
	store.persistRelease = make(chan struct{})

	co := NewCoordinator(store, newMemLedger(), &resultSink{})
	client := ledger.NewClient("client-1")
	ctx := context.Background()

	firstDone := make(chan error, 1)
	go func() {
		_, err := co.CastVote(ctx, client, id, TypeUp)
		firstDone <- err
	}()

	// Wait until the first vote is parked inside persist, then click again.
	<-store.persistStarted
	if _, err := co.CastVote(ctx, client, id, TypeDown); !errors.Is(err, ErrInFlight) {
		t.Fatalf("second click: err = %v, want ErrInFlight", err)
	}

	close(store.persistRelease)
	if err := <-firstDone; err != nil {
		t.Fatalf("first vote failed: %v", err)
	}

	if got := store.persistCalls.Load(); got != 1 {
		t.Fatalf("persist called %d times, want exactly 1", got)
	}
	if store.counts[id] != (models.VoteCounts{UpCount: 1, DownCount: 0}) {
		t.Fatalf("store holds %+v", store.counts[id])
	}
}

func TestCastVoteFailureLeavesLedgerUntouched(t *testing.T) {
	id := uuid.New()
	store := newFakeStore()
	store.counts[id] = models.VoteCounts{UpCount: 2, DownCount: 2}
	store.persistErr = errors.New("store rejected write")

	lg := newMemLedger()
	co := NewCoordinator(store, lg, &resultSink{})
	client := ledger.NewClient("client-1")
	ctx := context.Background()

	if _, err := co.CastVote(ctx, client, id, TypeDown); err == nil {
		t.Fatal("expected persist failure")
	}
	if lg.HasVoted(ctx, client, id.String()) {
		t.Fatal("failed vote must stay retryable: ledger was written")
	}

	// The retry goes through once the store recovers.
	store.persistErr = nil
	if _, err := co.CastVote(ctx, client, id, TypeDown); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if store.counts[id] != (models.VoteCounts{UpCount: 2, DownCount: 3}) {
		t.Fatalf("store holds %+v", store.counts[id])
	}
}

func TestCastVoteMissingRecord(t *testing.T) {
	store := newFakeStore()
	co := NewCoordinator(store, newMemLedger(), &resultSink{})

	if _, err := co.CastVote(context.Background(), ledger.NewClient("c"), uuid.New(), TypeUp); err == nil {
		t.Fatal("expected error for unknown prediction id")
	}
	if store.persistCalls.Load() != 0 {
		t.Fatal("persist must not run when the fetch fails")
	}
}
