package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/taskiranumut/crystal-ball/internal/countdown"
	"github.com/taskiranumut/crystal-ball/internal/refresh"
	"github.com/taskiranumut/crystal-ball/internal/vote"
)

// ViewSink receives every render instruction a list view produces: list
// refresh states, countdown ticks, and vote confirmations. Each session is
// its own ViewSink.
type ViewSink interface {
	refresh.Sink
	countdown.Sink
	vote.Sink
}

// ViewFactory builds the per-session view pipeline around the session's sink.
// Every session gets its own countdown engine and vote coordinator.
type ViewFactory func(sink ViewSink) *refresh.Orchestrator

// ConnectionManager tracks WebSocket sessions and fans bus events out to
// all of them.
type ConnectionManager struct {
	sessions map[*Session]bool
	mu       sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	factory  ViewFactory

	broadcastCh chan *Event
}

// ConnectionConfig holds configuration for WebSocket sessions.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a WebSocket session manager.
func NewConnectionManager(config ConnectionConfig, factory ViewFactory) *ConnectionManager {
	return &ConnectionManager{
		sessions: make(map[*Session]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		factory:     factory,
		broadcastCh: make(chan *Event, 1000),
	}
}

// Start begins processing broadcast messages. Blocks until ctx is done.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case event := <-cm.broadcastCh:
			cm.handleBroadcast(event)
		}
	}
}

// Broadcast queues an event for delivery to every active session.
func (cm *ConnectionManager) Broadcast(event *Event) {
	select {
	case cm.broadcastCh <- event:
	default:
		log.Warn().Str("event_type", string(event.Type)).Msg("broadcast channel full, dropping event")
	}
}

func (cm *ConnectionManager) register(s *Session) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.sessions[s] = true

	log.Debug().
		Str("session_id", s.ID).
		Int("total_sessions", len(cm.sessions)).
		Msg("session registered")
}

func (cm *ConnectionManager) unregister(s *Session) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.sessions[s]; !exists {
		return
	}
	delete(cm.sessions, s)

	log.Info().
		Str("session_id", s.ID).
		Int("total_sessions", len(cm.sessions)).
		Msg("session unregistered")
}

func (cm *ConnectionManager) handleBroadcast(event *Event) {
	cm.mu.RLock()
	targets := make([]*Session, 0, len(cm.sessions))
	for s := range cm.sessions {
		targets = append(targets, s)
	}
	cm.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, s := range targets {
		select {
		case s.send <- data:
		default:
			// Session is slow or dead, drop it.
			log.Warn().Str("session_id", s.ID).Msg("session send buffer full, closing session")
			cm.unregister(s)
			s.shutdown()
		}
	}

	log.Debug().
		Str("event_type", string(event.Type)).
		Int("sessions", len(targets)).
		Msg("event broadcasted")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.Lock()
	sessions := make([]*Session, 0, len(cm.sessions))
	for s := range cm.sessions {
		sessions = append(sessions, s)
	}
	cm.mu.Unlock()

	for _, s := range sessions {
		cm.unregister(s)
		s.shutdown()
	}
}

// SessionCount returns the number of active sessions.
func (cm *ConnectionManager) SessionCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.sessions)
}
