package dto

import (
	"time"

	"github.com/google/uuid"
)

type SubmitQuestionnaireRequest struct {
	Questionnaire string                 `json:"questionnaire"`
	Answers       map[string]interface{} `json:"answers"`
	Score         int                    `json:"score,omitempty"`
}

type QuestionnaireResponseDTO struct {
	ID            uuid.UUID              `json:"id"`
	Questionnaire string                 `json:"questionnaire"`
	Answers       map[string]interface{} `json:"answers"`
	Score         int                    `json:"score"`
	CreatedAt     time.Time              `json:"created_at"`
}

type BadgeResponse struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	AwardedAt time.Time `json:"awarded_at"`
}
