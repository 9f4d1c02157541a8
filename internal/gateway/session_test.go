package gateway

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/taskiranumut/crystal-ball/internal/countdown"
	"github.com/taskiranumut/crystal-ball/internal/models"
)

func newDetachedSession(cm *ConnectionManager) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:      uuid.New().String(),
		send:    make(chan []byte, 2),
		manager: cm,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// A refresh goroutine can finish after its session has already torn down.
// Its emissions must be absorbed or dropped, never panic on the send queue.
func TestEmitAfterTeardownDoesNotPanic(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), nil)
	s := newDetachedSession(cm)

	cm.register(s)
	s.cancel()
	cm.unregister(s)

	s.EmitListLoading()
	s.EmitList([]models.Prediction{{ID: uuid.New()}})
	s.EmitCountdown(uuid.New(), countdown.State{})
	s.EmitVoteResult(uuid.New(), models.VoteCounts{UpCount: 1})

	if got := cm.SessionCount(); got != 0 {
		t.Fatalf("SessionCount = %d after unregister, want 0", got)
	}
}

// A full send queue on a live session drops the event instead of blocking the
// emitter.
func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), nil)
	s := newDetachedSession(cm)
	defer s.cancel()

	s.send <- []byte("a")
	s.send <- []byte("b")

	s.EmitListLoading()

	if got := len(s.send); got != 2 {
		t.Fatalf("send queue length = %d, want 2 (overflow dropped)", got)
	}
}
