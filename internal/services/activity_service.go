package services

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/materna-health/materna-backend/internal/dto"
	"github.com/materna-health/materna-backend/internal/models"
	"gorm.io/gorm"
)

var ErrActivityNotFound = errors.New("activity not found")

// activity milestones that award a badge
var activityMilestones = map[int64]struct{ code, name string }{
	1:  {"first_activity", "First Steps"},
	10: {"ten_activities", "Getting Into Rhythm"},
	50: {"fifty_activities", "Wellness Champion"},
}

// ActivityService manages self-reported pregnancy activity entries and
// awards badges when milestones are reached.
type ActivityService struct {
	db *gorm.DB
}

func NewActivityService(db *gorm.DB) *ActivityService {
	return &ActivityService{db: db}
}

func (s *ActivityService) Create(userID uuid.UUID, req *dto.CreateActivityRequest) (*dto.ActivityResponse, error) {
	if !slices.Contains(models.ActivityTypes, req.Type) {
		return nil, fmt.Errorf("unknown activity type %q", req.Type)
	}

	occurredAt := time.Now()
	if req.OccurredAt != "" {
		t, err := time.Parse(time.RFC3339, req.OccurredAt)
		if err != nil {
			return nil, errors.New("occurred_at must be RFC3339")
		}
		occurredAt = t
	}

	entry := models.ActivityLog{
		ID:              uuid.New(),
		UserID:          userID,
		Type:            req.Type,
		Note:            req.Note,
		DurationMinutes: req.DurationMinutes,
		OccurredAt:      occurredAt,
	}

	if err := s.db.Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("failed to create activity: %w", err)
	}

	s.maybeAwardBadge(userID)

	resp := activityResponse(&entry)
	return &resp, nil
}

func (s *ActivityService) List(userID uuid.UUID, page, limit int) (*dto.ActivityListResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int64
	if err := s.db.Model(&models.ActivityLog{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count activities: %w", err)
	}

	var entries []models.ActivityLog
	err := s.db.Where("user_id = ?", userID).
		Order("occurred_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}

	resp := dto.ActivityListResponse{
		Activities: make([]dto.ActivityResponse, 0, len(entries)),
		Total:      total,
		Page:       page,
		Limit:      limit,
	}
	for i := range entries {
		resp.Activities = append(resp.Activities, activityResponse(&entries[i]))
	}
	return &resp, nil
}

func (s *ActivityService) Delete(userID, activityID uuid.UUID) error {
	result := s.db.Where("id = ? AND user_id = ?", activityID, userID).Delete(&models.ActivityLog{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete activity: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrActivityNotFound
	}
	return nil
}

func (s *ActivityService) ListBadges(userID uuid.UUID) ([]dto.BadgeResponse, error) {
	var badges []models.Badge
	if err := s.db.Where("user_id = ?", userID).Order("awarded_at ASC").Find(&badges).Error; err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}

	resp := make([]dto.BadgeResponse, 0, len(badges))
	for _, b := range badges {
		resp = append(resp, dto.BadgeResponse{Code: b.Code, Name: b.Name, AwardedAt: b.AwardedAt})
	}
	return resp, nil
}

// maybeAwardBadge is best effort; a failed award never fails the activity.
func (s *ActivityService) maybeAwardBadge(userID uuid.UUID) {
	var count int64
	if err := s.db.Model(&models.ActivityLog{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return
	}

	milestone, ok := activityMilestones[count]
	if !ok {
		return
	}

	badge := models.Badge{
		ID:        uuid.New(),
		UserID:    userID,
		Code:      milestone.code,
		Name:      milestone.name,
		AwardedAt: time.Now(),
	}
	// Unique index on (user_id, code) makes a repeat award a no-op conflict.
	if err := s.db.Create(&badge).Error; err != nil {
		slog.Warn("badge award skipped", "user_id", userID.String(), "code", milestone.code, "error", err)
	}
}

func activityResponse(entry *models.ActivityLog) dto.ActivityResponse {
	return dto.ActivityResponse{
		ID:              entry.ID,
		Type:            entry.Type,
		Note:            entry.Note,
		DurationMinutes: entry.DurationMinutes,
		OccurredAt:      entry.OccurredAt,
		CreatedAt:       entry.CreatedAt,
	}
}
