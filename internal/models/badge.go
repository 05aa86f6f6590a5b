package models

import (
	"time"

	"github.com/google/uuid"
)

// Badge is an award attached to a user when an activity milestone is reached.
type Badge struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_badges_user_code" json:"user_id"`
	Code      string    `gorm:"size:50;not null;uniqueIndex:idx_badges_user_code" json:"code"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	AwardedAt time.Time `gorm:"not null" json:"awarded_at"`
}
