package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateActivityRequest struct {
	Type            string `json:"type"`
	Note            string `json:"note,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	OccurredAt      string `json:"occurred_at,omitempty"` // RFC3339, defaults to now
}

type ActivityResponse struct {
	ID              uuid.UUID `json:"id"`
	Type            string    `json:"type"`
	Note            string    `json:"note,omitempty"`
	DurationMinutes int       `json:"duration_minutes,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
	CreatedAt       time.Time `json:"created_at"`
}

type ActivityListResponse struct {
	Activities []ActivityResponse `json:"activities"`
	Total      int64              `json:"total"`
	Page       int                `json:"page"`
	Limit      int                `json:"limit"`
}
