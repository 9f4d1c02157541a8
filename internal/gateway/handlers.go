package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/taskiranumut/crystal-ball/internal/ledger"
	"github.com/taskiranumut/crystal-ball/internal/models"
	"github.com/taskiranumut/crystal-ball/internal/prediction"
	"github.com/taskiranumut/crystal-ball/internal/vote"
)

// PredictionService is the slice of the prediction app the HTTP surface uses.
type PredictionService interface {
	FetchAll(ctx context.Context) ([]models.Prediction, error)
	FetchByTag(ctx context.Context, tag models.Tag) ([]models.Prediction, error)
	Create(ctx context.Context, req prediction.CreatePredictionRequest) (*models.Prediction, error)
	FetchCounts(ctx context.Context, id uuid.UUID) (models.VoteCounts, error)
	PersistVoteCounts(ctx context.Context, id uuid.UUID, counts models.VoteCounts) (models.VoteCounts, error)
}

// VoteLedger is the slice of the ledger the HTTP surface uses.
type VoteLedger interface {
	HasVoted(ctx context.Context, c *ledger.Client, id string) bool
	RecordVote(ctx context.Context, c *ledger.Client, id string) error
}

// APIHandler serves the JSON API and the WebSocket upgrade endpoint.
type APIHandler struct {
	predictions PredictionService
	votes       VoteLedger
	manager     *ConnectionManager
}

func NewAPIHandler(predictions PredictionService, votes VoteLedger, manager *ConnectionManager) *APIHandler {
	return &APIHandler{
		predictions: predictions,
		votes:       votes,
		manager:     manager,
	}
}

// RegisterRoutes registers the API routes on a mux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /api/predictions", h.handleListPredictions)
	mux.HandleFunc("POST /api/predictions", h.handleCreatePrediction)
	mux.HandleFunc("POST /api/predictions/{id}/vote", h.handleCastVote)
	mux.HandleFunc("GET /ws", h.handleSession)
}

func (h *APIHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListPredictions returns the reviewed prediction list, optionally
// filtered by ?tag=.
func (h *APIHandler) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	var (
		predictions []models.Prediction
		err         error
	)

	if tag := r.URL.Query().Get("tag"); tag != "" {
		if !models.Tag(tag).Valid() {
			writeError(w, http.StatusBadRequest, "invalid tag: "+tag)
			return
		}
		predictions, err = h.predictions.FetchByTag(r.Context(), models.Tag(tag))
	} else {
		predictions, err = h.predictions.FetchAll(r.Context())
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch predictions")
		writeError(w, http.StatusInternalServerError, "failed to fetch predictions")
		return
	}

	if predictions == nil {
		predictions = []models.Prediction{}
	}
	writeJSON(w, http.StatusOK, ListPayload{Predictions: predictions})
}

func (h *APIHandler) handleCreatePrediction(w http.ResponseWriter, r *http.Request) {
	var req prediction.CreatePredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.predictions.Create(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

type castVoteRequest struct {
	VoteType string `json:"vote_type"`
}

// handleCastVote runs the vote pipeline for a browser that is not holding a
// session socket. Each request gets its own coordinator; the in-flight gate
// only has meaning within a single view.
func (h *APIHandler) handleCastVote(w http.ResponseWriter, r *http.Request) {
	predictionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prediction id")
		return
	}

	var req castVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	client := ledger.ClientFromRequest(r)
	coordinator := vote.NewCoordinator(h.predictions, h.votes, discardSink{})

	counts, err := coordinator.CastVote(r.Context(), client, predictionID, vote.Type(req.VoteType))
	client.WriteCookies(w)
	if err != nil {
		switch {
		case errors.Is(err, vote.ErrInvalidType):
			writeError(w, http.StatusBadRequest, "invalid vote type")
		case errors.Is(err, vote.ErrAlreadyVoted):
			writeError(w, http.StatusConflict, "already voted on this prediction")
		case errors.Is(err, prediction.ErrNotFound):
			writeError(w, http.StatusNotFound, "prediction not found")
		default:
			log.Error().Err(err).Str("prediction_id", predictionID.String()).Msg("failed to cast vote")
			writeError(w, http.StatusInternalServerError, "failed to cast vote")
		}
		return
	}

	writeJSON(w, http.StatusOK, VoteResultPayload{
		PredictionID: predictionID.String(),
		UpCount:      counts.UpCount,
		DownCount:    counts.DownCount,
	})
}

func (h *APIHandler) handleSession(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.UpgradeSession(w, r); err != nil {
		log.Error().Err(err).Msg("failed to upgrade session socket")
	}
}

// discardSink backs HTTP votes, where the result travels in the response
// body instead of a render instruction.
type discardSink struct{}

func (discardSink) EmitVoteResult(uuid.UUID, models.VoteCounts) {}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response body")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
