package prediction

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/taskiranumut/crystal-ball/internal/events"
	"github.com/taskiranumut/crystal-ball/internal/models"
)

// fakeRepo records calls; list fetches return canned data.
type fakeRepo struct {
	preds        []models.Prediction
	lastPayload  []byte
	lastCounts   models.VoteCounts
	createdRec   *createRecord
	persistErr   error
	fetchAllCall int
}

func (f *fakeRepo) FetchAll(_ context.Context, reviewedOnly bool) ([]models.Prediction, error) {
	f.fetchAllCall++
	if !reviewedOnly {
		return f.preds, nil
	}
	var out []models.Prediction
	for _, p := range f.preds {
		if p.Reviewed {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) FetchByTag(_ context.Context, tag models.Tag) ([]models.Prediction, error) {
	var out []models.Prediction
	for _, p := range f.preds {
		if p.Reviewed && p.Tag == tag {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) FetchByID(_ context.Context, id uuid.UUID) (*models.Prediction, error) {
	for i := range f.preds {
		if f.preds[i].ID == id {
			return &f.preds[i], nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeRepo) FetchCounts(ctx context.Context, id uuid.UUID) (models.VoteCounts, error) {
	p, err := f.FetchByID(ctx, id)
	if err != nil {
		return models.VoteCounts{}, err
	}
	return p.Counts(), nil
}

func (f *fakeRepo) PersistVoteCounts(_ context.Context, id uuid.UUID, counts models.VoteCounts, payload []byte) (models.VoteCounts, error) {
	if f.persistErr != nil {
		return models.VoteCounts{}, f.persistErr
	}
	f.lastCounts = counts
	f.lastPayload = payload
	for i := range f.preds {
		if f.preds[i].ID == id {
			f.preds[i].UpCount = counts.UpCount
			f.preds[i].DownCount = counts.DownCount
			return counts, nil
		}
	}
	return models.VoteCounts{}, ErrNotFound
}

func (f *fakeRepo) Create(_ context.Context, rec createRecord) (*models.Prediction, error) {
	f.createdRec = &rec
	p := models.Prediction{
		ID:              rec.ID,
		Content:         rec.Content,
		Tag:             rec.Tag,
		RealizationDate: rec.RealizationDate,
		Owner:           rec.Owner,
		OwnerURL:        rec.OwnerURL,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.CreatedAt,
	}
	f.preds = append(f.preds, p)
	return &p, nil
}

func newTestApp(repo *fakeRepo) *App {
	return NewApp(repo, NewCacheWithClient(nil), clockwork.NewFakeClockAt(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		req  CreatePredictionRequest
	}{
		{"empty content", CreatePredictionRequest{Tag: models.TagSports, RealizationDate: "2027-01-01", Owner: "ada"}},
		{"unknown tag", CreatePredictionRequest{Content: "x", Tag: "gossip", RealizationDate: "2027-01-01", Owner: "ada"}},
		{"empty owner", CreatePredictionRequest{Content: "x", Tag: models.TagSports, RealizationDate: "2027-01-01"}},
		{"bad date format", CreatePredictionRequest{Content: "x", Tag: models.TagSports, RealizationDate: "13/31/2024", Owner: "ada"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&fakeRepo{})
			if _, err := app.Create(context.Background(), tt.req); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCreateAssignsServerFields(t *testing.T) {
	repo := &fakeRepo{}
	app := newTestApp(repo)

	created, err := app.Create(context.Background(), CreatePredictionRequest{
		Content:         "  fusion power by 2040  ",
		Tag:             models.TagScience,
		RealizationDate: "2040-12-31",
		Owner:           "ada",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Fatal("expected a server-assigned id")
	}
	if created.Reviewed {
		t.Fatal("new predictions must start unreviewed")
	}
	if created.Content != "fusion power by 2040" {
		t.Fatalf("content not trimmed: %q", created.Content)
	}
}

func TestFetchByTagRejectsUnknownTag(t *testing.T) {
	app := newTestApp(&fakeRepo{})
	if _, err := app.FetchByTag(context.Background(), "gossip"); err == nil {
		t.Fatal("expected invalid tag error")
	}
}

func TestPersistVoteCountsBuildsOutboxPayload(t *testing.T) {
	id := uuid.New()
	repo := &fakeRepo{preds: []models.Prediction{{ID: id, Reviewed: true, UpCount: 3, DownCount: 1}}}
	app := newTestApp(repo)

	persisted, err := app.PersistVoteCounts(context.Background(), id, models.VoteCounts{UpCount: 4, DownCount: 1})
	if err != nil {
		t.Fatalf("PersistVoteCounts: %v", err)
	}
	if persisted != (models.VoteCounts{UpCount: 4, DownCount: 1}) {
		t.Fatalf("persisted = %+v", persisted)
	}

	var payload events.VoteCastPayload
	if err := json.Unmarshal(repo.lastPayload, &payload); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if payload.PredictionID != id.String() || payload.UpCount != 4 || payload.DownCount != 1 {
		t.Fatalf("payload = %+v", payload)
	}
	if payload.CastAt.IsZero() {
		t.Fatal("payload missing cast_at")
	}
}
