package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/materna-health/materna-backend/internal/clock"
	"github.com/materna-health/materna-backend/internal/config"
	"github.com/materna-health/materna-backend/internal/dto"
	"github.com/materna-health/materna-backend/internal/limiter"
	"github.com/materna-health/materna-backend/internal/mailer"
	"github.com/materna-health/materna-backend/internal/models"
	"github.com/materna-health/materna-backend/internal/otp"
	"github.com/materna-health/materna-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAlreadyRegistered  = errors.New("email is already registered and verified")
	ErrUserNotFound       = errors.New("user not found")
	ErrAlreadyVerified    = errors.New("email is already verified")
	ErrCodeExpired        = errors.New("verification code is missing or expired")
	ErrCodeMismatch       = errors.New("verification code does not match")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotificationFailed = errors.New("could not deliver the verification code")
	ErrTooManyRequests    = errors.New("too many code requests, try again later")

	// ErrValidation marks bad input so handlers can map it to a 400 without
	// string matching.
	ErrValidation = errors.New("invalid request")
)

// EmailNotVerifiedError carries the email so clients can offer a resend
// without a second lookup.
type EmailNotVerifiedError struct {
	Email string
}

func (e *EmailNotVerifiedError) Error() string {
	return "email not verified: " + e.Email
}

// AuthService owns the OTP identity lifecycle (signup verification and
// password recovery) and issues session tokens on login.
type AuthService struct {
	repo    repository.UserRepository
	mailer  mailer.Mailer
	resends *limiter.ResendLimiter
	clock   clock.Clock
	cfg     *config.Config
}

func NewAuthService(repo repository.UserRepository, m mailer.Mailer, resends *limiter.ResendLimiter, clk clock.Clock, cfg *config.Config) *AuthService {
	return &AuthService{
		repo:    repo,
		mailer:  m,
		resends: resends,
		clock:   clk,
		cfg:     cfg,
	}
}

// RequestSignup creates (or refreshes) an unverified identity and sends a
// verification code. A verified email cannot be re-registered; an unverified
// one is updated in place so duplicate signups never produce two records.
func (s *AuthService) RequestSignup(ctx context.Context, req *dto.SignupRequest) (*dto.SignupResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", ErrValidation)
	}
	if len(req.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}

	existing, err := s.repo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if existing != nil && existing.IsEmailVerified {
		return nil, ErrAlreadyRegistered
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	code, err := otp.NewCode()
	if err != nil {
		return nil, err
	}
	expires := s.clock.Now().Add(s.cfg.OTPExpiry)

	var lastPeriod *time.Time
	if req.LastPeriodDate != "" {
		d, err := time.Parse("2006-01-02", req.LastPeriodDate)
		if err != nil {
			return nil, fmt.Errorf("%w: last_period_date must be YYYY-MM-DD", ErrValidation)
		}
		lastPeriod = &d
	}

	user := models.User{
		Email:                  email,
		Password:               string(hash),
		Name:                   strings.TrimSpace(req.Name),
		Phone:                  strings.TrimSpace(req.Phone),
		Age:                    req.Age,
		LastPeriodDate:         lastPeriod,
		EmailVerificationToken: &code,
		EmailTokenExpires:      &expires,
	}

	// Upsert keyed on email; concurrent duplicate signups collapse into one
	// record with last-write-wins on the pending code. The store refuses to
	// overwrite a verified row, which closes the race where a verification
	// commits between the check above and this write.
	if err := s.repo.Create(ctx, &user); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if err := s.sendVerificationCode(ctx, &user, code); err != nil {
		return nil, err
	}

	return &dto.SignupResponse{
		Email:   email,
		Message: "verification code sent",
	}, nil
}

// VerifySignup confirms email ownership. On a match the verified flag flips
// and both verification fields clear in a single atomic update.
func (s *AuthService) VerifySignup(ctx context.Context, email, code string) (*dto.UserResponse, error) {
	user, err := s.findByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user.IsEmailVerified {
		return nil, ErrAlreadyVerified
	}
	if user.EmailVerificationToken == nil || user.EmailTokenExpires == nil ||
		s.clock.Now().After(*user.EmailTokenExpires) {
		return nil, ErrCodeExpired
	}
	// Exact string compare, no normalization of the code.
	if *user.EmailVerificationToken != code {
		return nil, ErrCodeMismatch
	}

	// The write only lands while the record is still unverified and still
	// carries this exact code.
	updated, err := s.repo.UpdateGuarded(ctx, user.ID,
		map[string]interface{}{
			"is_email_verified":        false,
			"email_verification_token": code,
		},
		map[string]interface{}{
			"is_email_verified":        true,
			"email_verification_token": nil,
			"email_token_expires":      nil,
		})
	if err != nil {
		if errors.Is(err, repository.ErrStale) {
			return nil, s.classifyVerifyRace(ctx, user.Email)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to mark email verified: %w", err)
	}

	resp := userResponse(updated, s.clock.Now())
	return &resp, nil
}

// ResendVerificationOTP regenerates the pending code (overwriting the old
// one) and sends it again. Throttled per email.
func (s *AuthService) ResendVerificationOTP(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.IsEmailVerified {
		return ErrAlreadyVerified
	}
	if !s.resends.Allow(ctx, email) {
		return ErrTooManyRequests
	}

	code, err := otp.NewCode()
	if err != nil {
		return err
	}
	expires := s.clock.Now().Add(s.cfg.OTPExpiry)

	// Guarded so a code is never attached to a record verified in the
	// meantime.
	if _, err := s.repo.UpdateGuarded(ctx, user.ID,
		map[string]interface{}{"is_email_verified": false},
		map[string]interface{}{
			"email_verification_token": code,
			"email_token_expires":      expires,
		}); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return ErrAlreadyVerified
		}
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to store verification code: %w", err)
	}

	return s.sendVerificationCode(ctx, user, code)
}

// RequestPasswordReset attaches a reset code to the identity. The reset pair
// is independent of the verification pair and never touches it.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !s.resends.Allow(ctx, email) {
		return ErrTooManyRequests
	}

	code, err := otp.NewCode()
	if err != nil {
		return err
	}
	expires := s.clock.Now().Add(s.cfg.OTPExpiry)

	if _, err := s.repo.Update(ctx, user.ID, map[string]interface{}{
		"reset_token":         code,
		"reset_token_expires": expires,
	}); err != nil {
		return fmt.Errorf("failed to store reset code: %w", err)
	}

	subject, body := mailer.PasswordResetEmail(user.Name, code, s.cfg.OTPExpiry)
	return s.deliver(ctx, user.Email, subject, body)
}

// VerifyPasswordReset checks the reset code and, on a match, stores the new
// password hash and clears the reset pair in a single atomic update.
func (s *AuthService) VerifyPasswordReset(ctx context.Context, email, code, newPassword string) error {
	user, err := s.findByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}
	if user.ResetToken == nil || user.ResetTokenExpires == nil ||
		s.clock.Now().After(*user.ResetTokenExpires) {
		return ErrCodeExpired
	}
	if *user.ResetToken != code {
		return ErrCodeMismatch
	}
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	// The code must still be the current one when the password lands, so a
	// concurrent reset request cannot have superseded it.
	if _, err := s.repo.UpdateGuarded(ctx, user.ID,
		map[string]interface{}{"reset_token": code},
		map[string]interface{}{
			"password":            string(hash),
			"reset_token":         nil,
			"reset_token_expires": nil,
		}); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return ErrCodeExpired
		}
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// Login resolves the identity by email or phone, checks the password and
// mints a signed session token.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*dto.LoginResponse, error) {
	identifier = normalizeEmail(identifier)
	user, err := s.repo.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !user.IsEmailVerified {
		return nil, &EmailNotVerifiedError{Email: user.Email}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.cfg.JWTAccessExpiry)
	claims := jwt.MapClaims{
		"sub":   user.ID.String(),
		"email": user.Email,
		"name":  user.Name,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &dto.LoginResponse{
		AccessToken: signed,
		ExpiresAt:   expiresAt,
		User:        userResponse(user, now),
	}, nil
}

// classifyVerifyRace reports why a guarded verification write missed: the
// record was either verified by a concurrent call or its code was replaced.
func (s *AuthService) classifyVerifyRace(ctx context.Context, email string) error {
	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.IsEmailVerified {
		return ErrAlreadyVerified
	}
	return ErrCodeMismatch
}

func (s *AuthService) findByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return user, nil
}

func (s *AuthService) sendVerificationCode(ctx context.Context, user *models.User, code string) error {
	subject, body := mailer.VerificationEmail(user.Name, code, s.cfg.OTPExpiry)
	return s.deliver(ctx, user.Email, subject, body)
}

// deliver sends with a bounded timeout. The OTP state is already persisted
// when this runs, so a failure is reported as its own error kind and the
// caller recovers via resend.
func (s *AuthService) deliver(ctx context.Context, to, subject, body string) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.MailTimeout)
	defer cancel()

	if err := s.mailer.Send(sendCtx, to, subject, body); err != nil {
		slog.Error("mail delivery failed", "action", "send_otp", "error", err)
		return ErrNotificationFailed
	}
	return nil
}

func userResponse(user *models.User, now time.Time) dto.UserResponse {
	return dto.UserResponse{
		ID:              user.ID,
		Email:           user.Email,
		Name:            user.Name,
		Phone:           user.Phone,
		Age:             user.Age,
		PregnancyWeek:   user.GestationalWeek(now),
		AvatarURL:       user.AvatarURL,
		IsEmailVerified: user.IsEmailVerified,
		CreatedAt:       user.CreatedAt,
	}
}

// Emails are matched case-insensitively everywhere: lowercased and trimmed
// once at the service boundary.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
