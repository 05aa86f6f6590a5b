package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the identity record for a registered patient. The verification
// token/expiry pair and the reset token/expiry pair are set and cleared
// together; a verified user never carries a verification token.
type User struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email          string     `gorm:"not null;size:255;uniqueIndex" json:"email"`
	Password       string     `gorm:"not null" json:"-"`
	Name           string     `gorm:"size:100" json:"name"`
	Phone          string     `gorm:"size:30;index" json:"phone"`
	Age            int        `json:"age"`
	LastPeriodDate *time.Time `json:"last_period_date"`
	AvatarURL      string     `gorm:"type:text" json:"avatar_url"`

	IsEmailVerified        bool       `gorm:"default:false" json:"is_email_verified"`
	EmailVerificationToken *string    `gorm:"size:6" json:"-"`
	EmailTokenExpires      *time.Time `json:"-"`
	ResetToken             *string    `gorm:"size:6" json:"-"`
	ResetTokenExpires      *time.Time `json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// GestationalWeek derives the current pregnancy week from the last period
// date, 1-based. Returns 0 when the date is unset or in the future.
func (u *User) GestationalWeek(now time.Time) int {
	if u.LastPeriodDate == nil || now.Before(*u.LastPeriodDate) {
		return 0
	}
	return int(now.Sub(*u.LastPeriodDate).Hours()/(24*7)) + 1
}
