package services

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/materna-health/materna-backend/internal/dto"
	"github.com/materna-health/materna-backend/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrQuestionnaireNotFound = errors.New("questionnaire response not found")

// QuestionnaireService stores submitted questionnaire responses with their
// answers as JSONB.
type QuestionnaireService struct {
	db *gorm.DB
}

func NewQuestionnaireService(db *gorm.DB) *QuestionnaireService {
	return &QuestionnaireService{db: db}
}

func (s *QuestionnaireService) Submit(userID uuid.UUID, req *dto.SubmitQuestionnaireRequest) (*dto.QuestionnaireResponseDTO, error) {
	if req.Questionnaire == "" {
		return nil, errors.New("questionnaire is required")
	}
	if len(req.Answers) == 0 {
		return nil, errors.New("answers are required")
	}

	answers, err := json.Marshal(req.Answers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode answers: %w", err)
	}

	record := models.QuestionnaireResponse{
		ID:            uuid.New(),
		UserID:        userID,
		Questionnaire: req.Questionnaire,
		Answers:       datatypes.JSON(answers),
		Score:         req.Score,
	}

	if err := s.db.Create(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to store questionnaire: %w", err)
	}

	return questionnaireDTO(&record)
}

func (s *QuestionnaireService) List(userID uuid.UUID) ([]dto.QuestionnaireResponseDTO, error) {
	var records []models.QuestionnaireResponse
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list questionnaires: %w", err)
	}

	out := make([]dto.QuestionnaireResponseDTO, 0, len(records))
	for i := range records {
		d, err := questionnaireDTO(&records[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

func (s *QuestionnaireService) Get(userID, id uuid.UUID) (*dto.QuestionnaireResponseDTO, error) {
	var record models.QuestionnaireResponse
	err := s.db.Where("id = ? AND user_id = ?", id, userID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestionnaireNotFound
		}
		return nil, fmt.Errorf("failed to load questionnaire: %w", err)
	}
	return questionnaireDTO(&record)
}

func questionnaireDTO(record *models.QuestionnaireResponse) (*dto.QuestionnaireResponseDTO, error) {
	answers := map[string]interface{}{}
	if len(record.Answers) > 0 {
		if err := json.Unmarshal(record.Answers, &answers); err != nil {
			return nil, fmt.Errorf("failed to decode answers: %w", err)
		}
	}
	return &dto.QuestionnaireResponseDTO{
		ID:            record.ID,
		Questionnaire: record.Questionnaire,
		Answers:       answers,
		Score:         record.Score,
		CreatedAt:     record.CreatedAt,
	}, nil
}
