package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityLog is a self-reported pregnancy activity entry (walk, yoga,
// kick counting, hydration...).
type ActivityLog struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Type            string         `gorm:"size:50;not null;index" json:"type"`
	Note            string         `gorm:"type:varchar(500)" json:"note"`
	DurationMinutes int            `json:"duration_minutes"`
	OccurredAt      time.Time      `gorm:"not null;index" json:"occurred_at"`
	CreatedAt       time.Time      `json:"created_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

var ActivityTypes = []string{"walk", "yoga", "kick_count", "hydration", "meditation", "sleep", "nutrition"}
