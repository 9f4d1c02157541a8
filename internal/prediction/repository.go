package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskiranumut/crystal-ball/internal/events"
	"github.com/taskiranumut/crystal-ball/internal/models"
	"github.com/taskiranumut/crystal-ball/internal/outbox"
	"github.com/taskiranumut/crystal-ball/internal/sqlutil"
)

// ErrNotFound is returned when the store has no record for a prediction ID.
var ErrNotFound = errors.New("prediction not found")

const predictionColumns = `id, content, tag, realization_date, up_count, down_count, owner, owner_url, reviewed, created_at, updated_at`

// Repository is the Postgres record store for predictions. Vote-count writes
// and creates insert their outbox event in the same transaction as the row
// change, then notify the outbox listener.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FetchAll returns predictions, newest first. List views always pass
// reviewedOnly=true; the moderation path may fetch everything.
func (r *Repository) FetchAll(ctx context.Context, reviewedOnly bool) ([]models.Prediction, error) {
	query := fmt.Sprintf(`SELECT %s FROM predictions ORDER BY created_at DESC`, predictionColumns)
	if reviewedOnly {
		query = fmt.Sprintf(`SELECT %s FROM predictions WHERE reviewed ORDER BY created_at DESC`, predictionColumns)
	}

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch predictions: %w", err)
	}
	defer rows.Close()

	return scanPredictions(rows)
}

// FetchByTag returns reviewed predictions for one tag, newest first.
func (r *Repository) FetchByTag(ctx context.Context, tag models.Tag) ([]models.Prediction, error) {
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM predictions WHERE reviewed AND tag = $1 ORDER BY created_at DESC`, predictionColumns),
		string(tag))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch predictions by tag: %w", err)
	}
	defer rows.Close()

	return scanPredictions(rows)
}

// FetchByID returns a single prediction or ErrNotFound.
func (r *Repository) FetchByID(ctx context.Context, id uuid.UUID) (*models.Prediction, error) {
	row := r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM predictions WHERE id = $1`, predictionColumns), id)

	p, err := scanPrediction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prediction: %w", err)
	}
	return p, nil
}

// FetchCounts returns just the vote pair for a prediction, or ErrNotFound.
func (r *Repository) FetchCounts(ctx context.Context, id uuid.UUID) (models.VoteCounts, error) {
	var counts models.VoteCounts
	err := r.pool.QueryRow(ctx,
		`SELECT up_count, down_count FROM predictions WHERE id = $1`, id).
		Scan(&counts.UpCount, &counts.DownCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.VoteCounts{}, ErrNotFound
	}
	if err != nil {
		return models.VoteCounts{}, fmt.Errorf("failed to fetch vote counts: %w", err)
	}
	return counts, nil
}

// PersistVoteCounts writes the full updated vote pair and returns what the
// store now holds, the confirmation round-trip. The VoteCast outbox event
// commits atomically with the count update.
func (r *Repository) PersistVoteCounts(ctx context.Context, id uuid.UUID, counts models.VoteCounts, eventPayload []byte) (models.VoteCounts, error) {
	var persisted models.VoteCounts

	err := sqlutil.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE predictions SET up_count = $2, down_count = $3, updated_at = now()
			 WHERE id = $1
			 RETURNING up_count, down_count`,
			id, counts.UpCount, counts.DownCount).
			Scan(&persisted.UpCount, &persisted.DownCount)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to persist vote counts: %w", err)
		}

		return insertOutboxEvent(ctx, tx, id, outbox.EventTypeVoteCast, eventPayload)
	})
	if err != nil {
		return models.VoteCounts{}, err
	}
	return persisted, nil
}

// Create inserts a new prediction row plus its PredictionCreated outbox event.
func (r *Repository) Create(ctx context.Context, rec createRecord) (*models.Prediction, error) {
	var created *models.Prediction

	err := sqlutil.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			fmt.Sprintf(`INSERT INTO predictions
				(id, content, tag, realization_date, up_count, down_count, owner, owner_url, reviewed, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, 0, 0, $5, $6, false, $7, $7)
			 RETURNING %s`, predictionColumns),
			rec.ID, rec.Content, string(rec.Tag), rec.RealizationDate, rec.Owner, rec.OwnerURL, rec.CreatedAt)

		p, err := scanPrediction(row)
		if err != nil {
			return fmt.Errorf("failed to create prediction: %w", err)
		}
		created = p

		payload, err := json.Marshal(events.PredictionCreatedPayload{
			PredictionID: rec.ID.String(),
			Tag:          string(rec.Tag),
			Owner:        rec.Owner,
			CreatedAt:    rec.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal PredictionCreated payload: %w", err)
		}
		return insertOutboxEvent(ctx, tx, rec.ID, outbox.EventTypePredictionCreated, payload)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// insertOutboxEvent writes an outbox row inside the caller's transaction and
// notifies the relay with the event ID. The notification only becomes visible
// once the surrounding transaction commits.
func insertOutboxEvent(ctx context.Context, tx pgx.Tx, predictionID uuid.UUID, eventType string, payload []byte) error {
	eventID := uuid.New()
	_, err := tx.Exec(ctx,
		`INSERT INTO prediction_outbox (id, prediction_id, event_type, payload, created_at)
		 VALUES ($1, $2, $3, $4, now())`,
		eventID, predictionID, eventType, payload)
	if err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", eventType, err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, outbox.NotifyChannel, eventID.String()); err != nil {
		return fmt.Errorf("failed to notify outbox channel: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrediction(row rowScanner) (*models.Prediction, error) {
	var p models.Prediction
	var tag string
	err := row.Scan(&p.ID, &p.Content, &tag, &p.RealizationDate, &p.UpCount, &p.DownCount,
		&p.Owner, &p.OwnerURL, &p.Reviewed, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Tag = models.Tag(tag)
	return &p, nil
}

func scanPredictions(rows pgx.Rows) ([]models.Prediction, error) {
	var out []models.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read predictions: %w", err)
	}
	return out, nil
}
