package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// QuestionnaireResponse stores one submitted questionnaire (e.g. the weekly
// wellbeing check) with free-form answers kept as JSONB.
type QuestionnaireResponse struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Questionnaire string         `gorm:"size:100;not null;index" json:"questionnaire"`
	Answers       datatypes.JSON `gorm:"type:jsonb;default:'{}'" json:"answers"`
	Score         int            `json:"score"`
	CreatedAt     time.Time      `json:"created_at"`
}
