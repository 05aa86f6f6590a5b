// Package repository is the persistence boundary for identity records. The
// OTP lifecycle engine only talks to UserRepository, so its state machine can
// be exercised against the in-memory implementation in tests.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/materna-health/materna-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when no identity record matches the lookup.
var ErrNotFound = errors.New("user not found")

// ErrStale is returned when the record exists but a write's guard predicate
// no longer holds: a concurrent write changed the record between the
// caller's read and its write.
var ErrStale = errors.New("identity record changed concurrently")

// UserRepository reads and writes identity records. Update must apply all
// given fields in a single atomic write: the lifecycle engine relies on
// token+expiry pairs (and the verified flag with its token clear) never being
// observable half-written.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	// FindByIdentifier matches either the email or the phone number.
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// Create inserts the record, or refreshes the profile and pending-code
	// fields of an existing unverified row with the same email (idempotent
	// upsert, so concurrent duplicate signups cannot create two records).
	// A verified row is never overwritten: ErrStale instead.
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*models.User, error)
	// UpdateGuarded applies fields only while every guard column still has
	// the given value, in the same statement as the write. ErrStale when the
	// record exists but a guard fails.
	UpdateGuarded(ctx context.Context, id uuid.UUID, guard, fields map[string]interface{}) (*models.User, error)
}

// signupColumns are the columns a repeated unverified signup may overwrite.
var signupColumns = []string{
	"name", "phone", "age", "last_period_date", "password",
	"email_verification_token", "email_token_expires", "updated_at",
}

type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *GormUserRepository) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("email = ? OR phone = ?", identifier, identifier).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *GormUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *GormUserRepository) Create(ctx context.Context, user *models.User) error {
	// The conflict update is conditional on the row still being unverified,
	// so a signup racing a verification can never downgrade the record.
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		Where:     clause.Where{Exprs: []clause.Expression{clause.Eq{Column: "is_email_verified", Value: false}}},
		DoUpdates: clause.AssignmentColumns(signupColumns),
	}).Create(user)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}

func (r *GormUserRepository) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*models.User, error) {
	result := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *GormUserRepository) UpdateGuarded(ctx context.Context, id uuid.UUID, guard, fields map[string]interface{}) (*models.User, error) {
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Where(guard).
		Updates(fields)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		// Distinguish a missing record from a failed guard.
		if _, err := r.FindByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrStale
	}
	return r.FindByID(ctx, id)
}
