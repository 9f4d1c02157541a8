package models

import (
	"time"

	"github.com/google/uuid"
)

// Tag defines the category a prediction belongs to.
type Tag string

const (
	TagTechnology Tag = "technology"
	TagEconomy    Tag = "economy"
	TagSports     Tag = "sports"
	TagPolitics   Tag = "politics"
	TagScience    Tag = "science"
	TagCulture    Tag = "culture"
	TagOther      Tag = "other"
)

// ValidTags is the fixed set of accepted prediction tags.
var ValidTags = map[Tag]bool{
	TagTechnology: true,
	TagEconomy:    true,
	TagSports:     true,
	TagPolitics:   true,
	TagScience:    true,
	TagCulture:    true,
	TagOther:      true,
}

// Valid reports whether t is a member of the fixed tag set.
func (t Tag) Valid() bool {
	return ValidTags[t]
}

// VoteCounts holds the up/down vote pair for a prediction.
type VoteCounts struct {
	UpCount   int `json:"up_count"`
	DownCount int `json:"down_count"`
}

// Prediction represents a shared prediction.
// RealizationDate is a calendar date in YYYY-MM-DD form with no time-of-day;
// for countdown purposes it is treated as 23:59:59 local time on that date.
type Prediction struct {
	ID              uuid.UUID `json:"id"`
	Content         string    `json:"content"`
	Tag             Tag       `json:"tag"`
	RealizationDate string    `json:"realization_date"`
	UpCount         int       `json:"up_count"`
	DownCount       int       `json:"down_count"`
	Owner           string    `json:"owner"`
	OwnerURL        *string   `json:"owner_url,omitempty"`
	Reviewed        bool      `json:"reviewed"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Counts returns the prediction's current vote pair.
func (p *Prediction) Counts() VoteCounts {
	return VoteCounts{UpCount: p.UpCount, DownCount: p.DownCount}
}
