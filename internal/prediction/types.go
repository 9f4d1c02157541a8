package prediction

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskiranumut/crystal-ball/internal/models"
)

// CreatePredictionRequest represents a request to create a new prediction.
// Submissions start unreviewed; only reviewed predictions are ever fetched
// by the list views.
type CreatePredictionRequest struct {
	Content         string     `json:"content"`
	Tag             models.Tag `json:"tag"`
	RealizationDate string     `json:"realization_date"`
	Owner           string     `json:"owner"`
	OwnerURL        *string    `json:"owner_url,omitempty"`
}

// createRecord is the repository-level shape for an insert, with the
// server-assigned fields filled in by the app layer.
type createRecord struct {
	ID              uuid.UUID
	Content         string
	Tag             models.Tag
	RealizationDate string
	Owner           string
	OwnerURL        *string
	CreatedAt       time.Time
}
