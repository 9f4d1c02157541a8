package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/taskiranumut/crystal-ball/internal/countdown"
	"github.com/taskiranumut/crystal-ball/internal/ledger"
	"github.com/taskiranumut/crystal-ball/internal/models"
	"github.com/taskiranumut/crystal-ball/internal/refresh"
	"github.com/taskiranumut/crystal-ball/internal/vote"
)

// ClientAction is a command sent by the browser over the session socket.
type ClientAction struct {
	Action       string `json:"action"`
	Tag          string `json:"tag,omitempty"`
	PredictionID string `json:"prediction_id,omitempty"`
	VoteType     string `json:"vote_type,omitempty"`
	Submitted    bool   `json:"submitted,omitempty"`
}

const (
	ActionRefresh   = "refresh"
	ActionFilterTag = "filter_tag"
	ActionVote      = "vote"
	ActionOpenForm  = "open_form"
	ActionCloseForm = "close_form"
)

// Session is one browser's list view: a WebSocket connection plus the view
// pipeline rendering into it. It implements ViewSink, so countdown ticks,
// list states and vote results all land on its send queue.
type Session struct {
	ID string

	conn    *websocket.Conn
	send    chan []byte
	manager *ConnectionManager

	client *ledger.Client
	view   *refresh.Orchestrator

	ctx    context.Context
	cancel context.CancelFunc

	ConnectedAt time.Time
}

// UpgradeSession upgrades an HTTP request to a WebSocket session and starts
// its view pipeline. The handshake response carries the client ID cookie for
// first-time visitors.
func (cm *ConnectionManager) UpgradeSession(w http.ResponseWriter, r *http.Request) error {
	client := ledger.ClientFromRequest(r)

	header := http.Header{}
	for _, ck := range client.PendingCookies() {
		header.Add("Set-Cookie", ck.String())
	}

	conn, err := cm.upgrader.Upgrade(w, r, header)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	session := &Session{
		ID:          uuid.New().String(),
		conn:        conn,
		send:        make(chan []byte, 256),
		manager:     cm,
		client:      client,
		ctx:         ctx,
		cancel:      cancel,
		ConnectedAt: time.Now(),
	}
	session.view = cm.factory(session)

	cm.register(session)

	go session.writePump()
	go session.readPump()

	// Every new view starts with a full list load.
	go func() {
		if err := session.view.Refresh(ctx); err != nil {
			log.Error().Err(err).Str("session_id", session.ID).Msg("initial list refresh failed")
		}
	}()

	log.Info().
		Str("session_id", session.ID).
		Str("client_id", client.ID).
		Msg("list view session established")

	return nil
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		s.teardown()
	}()

	for {
		select {
		case <-s.ctx.Done():
			s.conn.SetWriteDeadline(time.Now().Add(s.manager.config.WriteTimeout))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.manager.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("session_id", s.ID).Msg("failed to write to session socket")
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.manager.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) readPump() {
	defer s.teardown()

	s.conn.SetReadLimit(s.manager.config.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.manager.config.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("session_id", s.ID).Msg("unexpected session socket close")
			}
			break
		}
		s.handleAction(message)
		s.conn.SetReadDeadline(time.Now().Add(s.manager.config.ReadTimeout))
	}
}

func (s *Session) teardown() {
	s.cancel()
	s.view.Stop()
	s.manager.unregister(s)
	s.conn.Close()
}

// shutdown cancels the session and closes its socket. The send queue is left
// open: emitters may still be mid-flight, so closing it would panic them.
// readPump notices the closed socket and runs the full teardown.
func (s *Session) shutdown() {
	s.cancel()
	s.conn.Close()
}

func (s *Session) handleAction(message []byte) {
	var action ClientAction
	if err := json.Unmarshal(message, &action); err != nil {
		s.emitError("malformed action")
		return
	}

	log.Debug().
		Str("session_id", s.ID).
		Str("action", action.Action).
		Msg("received client action")

	var err error
	switch action.Action {
	case ActionRefresh:
		err = s.view.Refresh(s.ctx)
	case ActionFilterTag:
		err = s.view.FilterByTag(s.ctx, models.Tag(action.Tag))
	case ActionVote:
		err = s.handleVote(action)
	case ActionOpenForm:
		s.view.OpenForm()
	case ActionCloseForm:
		err = s.view.CloseForm(s.ctx, action.Submitted)
	default:
		s.emitError("unknown action: " + action.Action)
		return
	}

	if err != nil {
		log.Warn().
			Err(err).
			Str("session_id", s.ID).
			Str("action", action.Action).
			Msg("client action failed")
		s.emitError(err.Error())
	}
}

func (s *Session) handleVote(action ClientAction) error {
	predictionID, err := uuid.Parse(action.PredictionID)
	if err != nil {
		return errors.New("invalid prediction id")
	}
	_, err = s.view.CastVote(s.ctx, s.client, predictionID, vote.Type(action.VoteType))
	return err
}

// enqueue pushes a marshaled event onto the session's send queue. Sinks must
// not block, so a full queue drops the event rather than stalling a tick.
func (s *Session) enqueue(eventType EventType, payload any) {
	event, err := NewEvent(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Msg("failed to build session event")
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Msg("failed to marshal session event")
		return
	}
	select {
	case <-s.ctx.Done():
	case s.send <- data:
	default:
		log.Warn().
			Str("session_id", s.ID).
			Str("event_type", string(eventType)).
			Msg("session send buffer full, dropping event")
	}
}

func (s *Session) emitError(message string) {
	s.enqueue(EventTypeError, ErrorPayload{Message: message})
}

// EmitCountdown implements countdown.Sink.
func (s *Session) EmitCountdown(id uuid.UUID, state countdown.State) {
	s.enqueue(EventTypeCountdownTick, CountdownTickPayload{
		PredictionID: id.String(),
		State:        state,
	})
}

// EmitListLoading implements refresh.Sink.
func (s *Session) EmitListLoading() {
	s.enqueue(EventTypeListLoading, struct{}{})
}

// EmitList implements refresh.Sink.
func (s *Session) EmitList(predictions []models.Prediction) {
	s.enqueue(EventTypeList, ListPayload{Predictions: predictions})
}

// EmitListEmpty implements refresh.Sink.
func (s *Session) EmitListEmpty() {
	s.enqueue(EventTypeListEmpty, struct{}{})
}

// EmitActiveTag implements refresh.Sink.
func (s *Session) EmitActiveTag(tag models.Tag) {
	s.enqueue(EventTypeActiveTag, ActiveTagPayload{Tag: string(tag)})
}

// EmitVoteResult implements vote.Sink.
func (s *Session) EmitVoteResult(id uuid.UUID, counts models.VoteCounts) {
	s.enqueue(EventTypeVoteResult, VoteResultPayload{
		PredictionID: id.String(),
		UpCount:      counts.UpCount,
		DownCount:    counts.DownCount,
	})
}
