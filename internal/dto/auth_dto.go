package dto

import (
	"time"

	"github.com/google/uuid"
)

type SignupRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	Name           string `json:"name"`
	Phone          string `json:"phone,omitempty"`
	Age            int    `json:"age,omitempty"`
	LastPeriodDate string `json:"last_period_date,omitempty"` // YYYY-MM-DD
}

// SignupResponse confirms where the code was sent; it never carries the code.
type SignupResponse struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

type VerifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type ResendVerificationRequest struct {
	Email string `json:"email"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type LoginRequest struct {
	// Identifier is the email address or phone number.
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        UserResponse `json:"user"`
}

type UserResponse struct {
	ID              uuid.UUID `json:"id"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone,omitempty"`
	Age             int       `json:"age,omitempty"`
	PregnancyWeek   int       `json:"pregnancy_week,omitempty"`
	AvatarURL       string    `json:"avatar_url,omitempty"`
	IsEmailVerified bool      `json:"is_email_verified"`
	CreatedAt       time.Time `json:"created_at"`
}

type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	// Email is set on the email-not-verified failure so clients can offer
	// a resend without another lookup.
	Email string `json:"email,omitempty"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	DB        string `json:"db"`
}
