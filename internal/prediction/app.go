package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/taskiranumut/crystal-ball/internal/countdown"
	"github.com/taskiranumut/crystal-ball/internal/events"
	"github.com/taskiranumut/crystal-ball/internal/models"
)

// PredictionRepository defines what the app layer needs from the record store.
type PredictionRepository interface {
	FetchAll(ctx context.Context, reviewedOnly bool) ([]models.Prediction, error)
	FetchByTag(ctx context.Context, tag models.Tag) ([]models.Prediction, error)
	FetchByID(ctx context.Context, id uuid.UUID) (*models.Prediction, error)
	FetchCounts(ctx context.Context, id uuid.UUID) (models.VoteCounts, error)
	PersistVoteCounts(ctx context.Context, id uuid.UUID, counts models.VoteCounts, eventPayload []byte) (models.VoteCounts, error)
	Create(ctx context.Context, rec createRecord) (*models.Prediction, error)
}

// App handles prediction business logic: validation, cache-aside reads, and
// outbox payload assembly around the repository.
type App struct {
	repo  PredictionRepository
	cache *Cache
	clock clockwork.Clock
}

// NewApp creates a new prediction App.
func NewApp(repo PredictionRepository, cache *Cache, clock clockwork.Clock) *App {
	return &App{repo: repo, cache: cache, clock: clock}
}

// FetchAll returns every reviewed prediction, through the list cache.
func (a *App) FetchAll(ctx context.Context) ([]models.Prediction, error) {
	if preds, ok := a.cache.GetList(ctx, allListKey); ok {
		return preds, nil
	}

	preds, err := a.repo.FetchAll(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch predictions: %w", err)
	}
	a.cache.SetList(ctx, allListKey, preds)
	return preds, nil
}

// FetchByTag returns reviewed predictions for one tag, through the cache.
func (a *App) FetchByTag(ctx context.Context, tag models.Tag) ([]models.Prediction, error) {
	if !tag.Valid() {
		return nil, fmt.Errorf("invalid tag: %q", tag)
	}

	key := tagListKey(tag)
	if preds, ok := a.cache.GetList(ctx, key); ok {
		return preds, nil
	}

	preds, err := a.repo.FetchByTag(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch predictions by tag: %w", err)
	}
	a.cache.SetList(ctx, key, preds)
	return preds, nil
}

// FetchByID returns a single prediction.
func (a *App) FetchByID(ctx context.Context, id uuid.UUID) (*models.Prediction, error) {
	return a.repo.FetchByID(ctx, id)
}

// FetchCounts returns the current vote pair for a prediction.
func (a *App) FetchCounts(ctx context.Context, id uuid.UUID) (models.VoteCounts, error) {
	return a.repo.FetchCounts(ctx, id)
}

// PersistVoteCounts writes the updated pair, emits the VoteCast outbox event
// in the same transaction, and invalidates the list cache.
func (a *App) PersistVoteCounts(ctx context.Context, id uuid.UUID, counts models.VoteCounts) (models.VoteCounts, error) {
	payload, err := json.Marshal(events.VoteCastPayload{
		PredictionID: id.String(),
		UpCount:      counts.UpCount,
		DownCount:    counts.DownCount,
		CastAt:       a.clock.Now().UTC(),
	})
	if err != nil {
		return models.VoteCounts{}, fmt.Errorf("failed to marshal VoteCast payload: %w", err)
	}

	persisted, err := a.repo.PersistVoteCounts(ctx, id, counts, payload)
	if err != nil {
		return models.VoteCounts{}, err
	}

	a.cache.InvalidateLists(ctx)
	return persisted, nil
}

// Create validates and stores a new, unreviewed prediction.
func (a *App) Create(ctx context.Context, req CreatePredictionRequest) (*models.Prediction, error) {
	if err := a.validateCreateRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	rec := createRecord{
		ID:              uuid.New(),
		Content:         strings.TrimSpace(req.Content),
		Tag:             req.Tag,
		RealizationDate: req.RealizationDate,
		Owner:           strings.TrimSpace(req.Owner),
		OwnerURL:        req.OwnerURL,
		CreatedAt:       a.clock.Now().UTC(),
	}

	created, err := a.repo.Create(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to create prediction: %w", err)
	}

	a.cache.InvalidateLists(ctx)
	log.Info().Str("prediction_id", created.ID.String()).Str("tag", string(created.Tag)).
		Msg("prediction created, pending review")
	return created, nil
}

func (a *App) validateCreateRequest(req CreatePredictionRequest) error {
	if strings.TrimSpace(req.Content) == "" {
		return fmt.Errorf("content is required")
	}
	if !req.Tag.Valid() {
		return fmt.Errorf("invalid tag: %q", req.Tag)
	}
	if strings.TrimSpace(req.Owner) == "" {
		return fmt.Errorf("owner is required")
	}
	if _, err := countdown.ParseRealizationDate(req.RealizationDate); err != nil {
		return err
	}
	return nil
}
