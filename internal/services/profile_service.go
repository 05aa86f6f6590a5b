package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/materna-health/materna-backend/internal/clock"
	"github.com/materna-health/materna-backend/internal/dto"
	"github.com/materna-health/materna-backend/internal/repository"
	"github.com/materna-health/materna-backend/internal/uploads"
)

// ProfileService reads and updates the non-security profile attributes of an
// identity record.
type ProfileService struct {
	repo     repository.UserRepository
	uploader uploads.Uploader
	folder   string
	clock    clock.Clock
}

func NewProfileService(repo repository.UserRepository, uploader uploads.Uploader, folder string, clk clock.Clock) *ProfileService {
	return &ProfileService{repo: repo, uploader: uploader, folder: folder, clock: clk}
}

func (s *ProfileService) GetProfile(ctx context.Context, userID uuid.UUID) (*dto.UserResponse, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	resp := userResponse(user, s.clock.Now())
	return &resp, nil
}

func (s *ProfileService) UpdateProfile(ctx context.Context, userID uuid.UUID, req *dto.UpdateProfileRequest) (*dto.UserResponse, error) {
	fields := map[string]interface{}{}
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.Phone != nil {
		fields["phone"] = *req.Phone
	}
	if req.Age != nil {
		fields["age"] = *req.Age
	}
	if req.LastPeriodDate != nil {
		d, err := time.Parse("2006-01-02", *req.LastPeriodDate)
		if err != nil {
			return nil, errors.New("last_period_date must be YYYY-MM-DD")
		}
		fields["last_period_date"] = d
	}
	if len(fields) == 0 {
		return s.GetProfile(ctx, userID)
	}

	user, err := s.repo.Update(ctx, userID, fields)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	resp := userResponse(user, s.clock.Now())
	return &resp, nil
}

// SetAvatar stores the image and saves its URL on the record.
func (s *ProfileService) SetAvatar(ctx context.Context, userID uuid.UUID, data []byte) (string, error) {
	if s.uploader == nil {
		return "", errors.New("avatar uploads are not configured")
	}

	url, err := s.uploader.UploadImage(ctx, s.folder, userID.String(), data)
	if err != nil {
		return "", fmt.Errorf("failed to upload avatar: %w", err)
	}

	if _, err := s.repo.Update(ctx, userID, map[string]interface{}{"avatar_url": url}); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("failed to save avatar url: %w", err)
	}
	return url, nil
}
