package services

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/materna-health/materna-backend/internal/config"
	"github.com/materna-health/materna-backend/internal/dto"
	"github.com/materna-health/materna-backend/internal/limiter"
	"github.com/materna-health/materna-backend/internal/models"
	"github.com/materna-health/materna-backend/internal/repository"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type sentMail struct {
	to      string
	subject string
	body    string
}

type mockMailer struct {
	sent []sentMail
	fail bool
}

func (m *mockMailer) Send(_ context.Context, to, subject, body string) error {
	if m.fail {
		return errors.New("smtp unreachable")
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

var codeRe = regexp.MustCompile(`code is (\d{6})`)

func (m *mockMailer) lastCode(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, m.sent)
	match := codeRe.FindStringSubmatch(m.sent[len(m.sent)-1].body)
	require.Len(t, match, 2, "mail body should contain a 6-digit code")
	return match[1]
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:       "test-secret-key",
		JWTAccessExpiry: 23 * time.Hour,
		OTPExpiry:       15 * time.Minute,
		ResendMax:       3,
		ResendWindow:    15 * time.Minute,
		MailTimeout:     5 * time.Second,
	}
}

func newTestAuth(t *testing.T) (*AuthService, *repository.MemoryUserRepository, *mockMailer, *fakeClock) {
	t.Helper()
	repo := repository.NewMemoryUserRepository()
	mm := &mockMailer{}
	clk := &fakeClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	svc := NewAuthService(repo, mm, nil, clk, testConfig())
	return svc, repo, mm, clk
}

func signupReq(email string) *dto.SignupRequest {
	return &dto.SignupRequest{
		Email:    email,
		Password: "password1",
		Name:     "Ada",
		Phone:    "+15550001111",
	}
}

// signupAndVerify walks a user to the Verified state and returns the email.
func signupAndVerify(t *testing.T, svc *AuthService, mm *mockMailer, email string) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.RequestSignup(ctx, signupReq(email))
	require.NoError(t, err)
	_, err = svc.VerifySignup(ctx, email, mm.lastCode(t))
	require.NoError(t, err)
}

func TestRequestSignupCreatesUnverifiedUser(t *testing.T) {
	svc, repo, mm, clk := newTestAuth(t)
	ctx := context.Background()

	resp, err := svc.RequestSignup(ctx, signupReq("a@x.com"))
	require.NoError(t, err)
	require.Equal(t, "a@x.com", resp.Email)

	user, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.False(t, user.IsEmailVerified)
	require.NotNil(t, user.EmailVerificationToken)
	require.NotNil(t, user.EmailTokenExpires)
	require.Len(t, *user.EmailVerificationToken, 6)
	require.Equal(t, clk.now.Add(15*time.Minute), *user.EmailTokenExpires)
	require.NotEqual(t, "password1", user.Password, "password must be stored hashed")

	require.Len(t, mm.sent, 1)
	require.Equal(t, "a@x.com", mm.sent[0].to)
	require.Equal(t, *user.EmailVerificationToken, mm.lastCode(t))
}

func TestRequestSignupNormalizesEmail(t *testing.T) {
	svc, repo, _, _ := newTestAuth(t)
	ctx := context.Background()

	_, err := svc.RequestSignup(ctx, signupReq("  Ada@X.COM "))
	require.NoError(t, err)

	_, err = repo.FindByEmail(ctx, "ada@x.com")
	require.NoError(t, err)
}

func TestRequestSignupValidation(t *testing.T) {
	svc, _, _, _ := newTestAuth(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  *dto.SignupRequest
	}{
		{"missing email", &dto.SignupRequest{Password: "password1", Name: "Ada"}},
		{"short password", &dto.SignupRequest{Email: "a@x.com", Password: "short", Name: "Ada"}},
		{"missing name", &dto.SignupRequest{Email: "a@x.com", Password: "password1"}},
		{"bad date", &dto.SignupRequest{Email: "a@x.com", Password: "password1", Name: "Ada", LastPeriodDate: "01-06-2025"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RequestSignup(ctx, tc.req)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestRequestSignupVerifiedEmailRejected(t *testing.T) {
	svc, _, mm, _ := newTestAuth(t)
	signupAndVerify(t, svc, mm, "a@x.com")

	_, err := svc.RequestSignup(context.Background(), signupReq("a@x.com"))
	require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRequestSignupSupersedesPendingCode(t *testing.T) {
	svc, _, mm, _ := newTestAuth(t)
	ctx := context.Background()

	_, err := svc.RequestSignup(ctx, signupReq("a@x.com"))
	require.NoError(t, err)
	firstCode := mm.lastCode(t)

	_, err = svc.RequestSignup(ctx, signupReq("a@x.com"))
	require.NoError(t, err)
	secondCode := mm.lastCode(t)

	if firstCode != secondCode {
		_, err = svc.VerifySignup(ctx, "a@x.com", firstCode)
		require.ErrorIs(t, err, ErrCodeMismatch)
	}

	_, err = svc.VerifySignup(ctx, "a@x.com", secondCode)
	require.NoError(t, err)
}

func TestVerifySignup(t *testing.T) {
	svc, repo, mm, _ := newTestAuth(t)
	ctx := context.Background()

	_, err := svc.RequestSignup(ctx, signupReq("a@x.com"))
	require.NoError(t, err)
	code := mm.lastCode(t)

	_, err = svc.VerifySignup(ctx, "missing@x.com", code)
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.VerifySignup(ctx, "a@x.com", "000000x")
	require.ErrorIs(t, err, ErrCodeMismatch)

	resp, err := svc.VerifySignup(ctx, "a@x.com", code)
	require.NoError(t, err)
	require.True(t, resp.IsEmailVerified)

	// verified flag and token clear are observed together
	user, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.True(t, user.IsEmailVerified)
	require.Nil(t, user.EmailVerificationToken)
	require.Nil(t, user.EmailTokenExpires)

	// replaying the same email+code is rejected
	_, err = svc.VerifySignup(ctx, "a@x.com", code)
	require.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestVerifySignupExpiryBoundary(t *testing.T) {
	t.Run("just before expiry", func(t *testing.T) {
		svc, _, mm, clk := newTestAuth(t)
		ctx := context.Background()

		_, err := svc.RequestSignup(ctx, signupReq("a@x.com"))
		require.NoError(t, err)
		code := mm.lastCode(t)

		clk.advance(15*time.Minute - time.Second)
		_, err = svc.VerifySignup(ctx, "a@x.com", code)
		require.NoError(t, err)
	})

	t.Run("just after expiry", func(t *testing.T) {
		svc, _, mm, clk := newTestAuth(t)
		ctx := context.Background()

		_, err := svc.RequestSignup(ctx, signupReq("a@x.com"))
		require.NoError(t, err)
		code := mm.lastCode(t)

		clk.advance(15*time.Minute + time.Second)
		_, err = svc.VerifySignup(ctx, "a@x.com", code)
		require.ErrorIs(t, err, ErrCodeExpired)
	})
}

func TestResendVerificationOTP(t *testing.T) {
	svc, _, mm, _ := newTestAuth(t)
	ctx := context.Background()

	require.ErrorIs(t, svc.ResendVerificationOTP(ctx, "missing@x.com"), ErrUserNotFound)

	_, err := svc.RequestSignup(ctx, signupReq("a@x.com"))
	require.NoError(t, err)
	firstCode := mm.lastCode(t)

	require.NoError(t, svc.ResendVerificationOTP(ctx, "a@x.com"))
	require.Len(t, mm.sent, 2)
	newCode := mm.lastCode(t)

	if firstCode != newCode {
		_, err = svc.VerifySignup(ctx, "a@x.com", firstCode)
		require.ErrorIs(t, err, ErrCodeMismatch)
	}
	_, err = svc.VerifySignup(ctx, "a@x.com", newCode)
	require.NoError(t, err)

	require.ErrorIs(t, svc.ResendVerificationOTP(ctx, "a@x.com"), ErrAlreadyVerified)
}

func TestResendThrottled(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	repo := repository.NewMemoryUserRepository()
	mm := &mockMailer{}
	clk := &fakeClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	svc := NewAuthService(repo, mm, limiter.NewResendLimiter(cache, 2, 15*time.Minute), clk, testConfig())
	ctx := context.Background()

	_, err = svc.RequestSignup(ctx, signupReq("a@x.com"))
	require.NoError(t, err)

	require.NoError(t, svc.ResendVerificationOTP(ctx, "a@x.com"))
	require.NoError(t, svc.ResendVerificationOTP(ctx, "a@x.com"))
	require.ErrorIs(t, svc.ResendVerificationOTP(ctx, "a@x.com"), ErrTooManyRequests)
}

func TestLogin(t *testing.T) {
	svc, repo, mm, clk := newTestAuth(t)
	ctx := context.Background()

	_, err := svc.RequestSignup(ctx, signupReq("a@x.com"))
	require.NoError(t, err)

	// before verification the failure carries the email for a resend offer
	_, err = svc.Login(ctx, "a@x.com", "password1")
	var notVerified *EmailNotVerifiedError
	require.ErrorAs(t, err, &notVerified)
	require.Equal(t, "a@x.com", notVerified.Email)

	_, err = svc.VerifySignup(ctx, "a@x.com", mm.lastCode(t))
	require.NoError(t, err)

	_, err = svc.Login(ctx, "missing@x.com", "password1")
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.Login(ctx, "a@x.com", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	resp, err := svc.Login(ctx, "a@x.com", "password1")
	require.NoError(t, err)
	require.Equal(t, clk.now.Add(23*time.Hour), resp.ExpiresAt)
	require.Equal(t, "a@x.com", resp.User.Email)
	require.True(t, resp.User.IsEmailVerified)

	user, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)

	parsed, err := jwt.Parse(resp.AccessToken, func(tok *jwt.Token) (interface{}, error) {
		return []byte("test-secret-key"), nil
	}, jwt.WithTimeFunc(func() time.Time { return clk.now }))
	require.NoError(t, err)
	claims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	require.Equal(t, user.ID.String(), claims["sub"])
	require.Equal(t, "a@x.com", claims["email"])
	require.Equal(t, "Ada", claims["name"])
	require.Equal(t, float64(clk.now.Add(23*time.Hour).Unix()), claims["exp"])
}

func TestLoginByPhone(t *testing.T) {
	svc, _, mm, _ := newTestAuth(t)
	signupAndVerify(t, svc, mm, "a@x.com")

	resp, err := svc.Login(context.Background(), "+15550001111", "password1")
	require.NoError(t, err)
	require.Equal(t, "a@x.com", resp.User.Email)
}

func TestPasswordResetFlow(t *testing.T) {
	svc, repo, mm, _ := newTestAuth(t)
	ctx := context.Background()
	signupAndVerify(t, svc, mm, "a@x.com")

	require.ErrorIs(t, svc.RequestPasswordReset(ctx, "missing@x.com"), ErrUserNotFound)

	require.NoError(t, svc.RequestPasswordReset(ctx, "a@x.com"))
	code := mm.lastCode(t)

	user, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, user.ResetToken)
	require.NotNil(t, user.ResetTokenExpires)

	require.ErrorIs(t, svc.VerifyPasswordReset(ctx, "a@x.com", "999999x", "newpassword1"), ErrCodeMismatch)
	require.NoError(t, svc.VerifyPasswordReset(ctx, "a@x.com", code, "newpassword1"))

	// reset pair cleared together
	user, err = repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.Nil(t, user.ResetToken)
	require.Nil(t, user.ResetTokenExpires)

	_, err = svc.Login(ctx, "a@x.com", "password1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "a@x.com", "newpassword1")
	require.NoError(t, err)
}

func TestPasswordResetExpiry(t *testing.T) {
	svc, _, mm, clk := newTestAuth(t)
	ctx := context.Background()
	signupAndVerify(t, svc, mm, "a@x.com")

	require.NoError(t, svc.RequestPasswordReset(ctx, "a@x.com"))
	code := mm.lastCode(t)

	clk.advance(15*time.Minute + time.Second)
	require.ErrorIs(t, svc.VerifyPasswordReset(ctx, "a@x.com", code, "newpassword1"), ErrCodeExpired)

	// no pending code at all reports the same failure
	svc2, _, mm2, _ := newTestAuth(t)
	signupAndVerify(t, svc2, mm2, "b@x.com")
	require.ErrorIs(t, svc2.VerifyPasswordReset(ctx, "b@x.com", "123456", "newpassword1"), ErrCodeExpired)
}

func TestPasswordResetLeavesVerificationStateAlone(t *testing.T) {
	svc, repo, mm, _ := newTestAuth(t)
	ctx := context.Background()

	// an unverified identity with a pending verification code
	_, err := svc.RequestSignup(ctx, signupReq("a@x.com"))
	require.NoError(t, err)
	pendingCode := mm.lastCode(t)

	require.NoError(t, svc.RequestPasswordReset(ctx, "a@x.com"))
	resetCode := mm.lastCode(t)

	user, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.False(t, user.IsEmailVerified)
	require.NotNil(t, user.EmailVerificationToken)
	require.Equal(t, pendingCode, *user.EmailVerificationToken)

	require.NoError(t, svc.VerifyPasswordReset(ctx, "a@x.com", resetCode, "newpassword1"))

	user, err = repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.False(t, user.IsEmailVerified)
	require.NotNil(t, user.EmailVerificationToken)
	require.NotNil(t, user.EmailTokenExpires)
	require.Equal(t, pendingCode, *user.EmailVerificationToken)
}

func TestNotificationFailureKeepsState(t *testing.T) {
	svc, repo, mm, _ := newTestAuth(t)
	ctx := context.Background()

	mm.fail = true
	_, err := svc.RequestSignup(ctx, signupReq("a@x.com"))
	require.ErrorIs(t, err, ErrNotificationFailed)

	// the code was persisted before the send, so a resend recovers
	user, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, user.EmailVerificationToken)

	mm.fail = false
	require.NoError(t, svc.ResendVerificationOTP(ctx, "a@x.com"))
	_, err = svc.VerifySignup(ctx, "a@x.com", mm.lastCode(t))
	require.NoError(t, err)
}

// hookedRepo lets a test interleave another lifecycle call between a
// service's read and its write.
type hookedRepo struct {
	*repository.MemoryUserRepository
	beforeCreate        func()
	beforeUpdateGuarded func()
}

func (r *hookedRepo) Create(ctx context.Context, user *models.User) error {
	if f := r.beforeCreate; f != nil {
		r.beforeCreate = nil
		f()
	}
	return r.MemoryUserRepository.Create(ctx, user)
}

func (r *hookedRepo) UpdateGuarded(ctx context.Context, id uuid.UUID, guard, fields map[string]interface{}) (*models.User, error) {
	if f := r.beforeUpdateGuarded; f != nil {
		r.beforeUpdateGuarded = nil
		f()
	}
	return r.MemoryUserRepository.UpdateGuarded(ctx, id, guard, fields)
}

func newHookedAuth(t *testing.T) (*AuthService, *hookedRepo, *mockMailer) {
	t.Helper()
	repo := &hookedRepo{MemoryUserRepository: repository.NewMemoryUserRepository()}
	mm := &mockMailer{}
	clk := &fakeClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	return NewAuthService(repo, mm, nil, clk, testConfig()), repo, mm
}

func TestSignupRacingVerificationCannotDowngrade(t *testing.T) {
	svc, repo, mm := newHookedAuth(t)
	ctx := context.Background()

	_, err := svc.RequestSignup(ctx, signupReq("a@x.com"))
	require.NoError(t, err)
	code := mm.lastCode(t)

	// the verification commits between the second signup's check and its
	// write
	repo.beforeCreate = func() {
		_, verr := svc.VerifySignup(ctx, "a@x.com", code)
		require.NoError(t, verr)
	}

	second := signupReq("a@x.com")
	second.Password = "password2"
	_, err = svc.RequestSignup(ctx, second)
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	// the verified record survived untouched
	user, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.True(t, user.IsEmailVerified)
	require.Nil(t, user.EmailVerificationToken)
	require.Nil(t, user.EmailTokenExpires)

	_, err = svc.Login(ctx, "a@x.com", "password1")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "a@x.com", "password2")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResendRacingVerificationLeavesNoToken(t *testing.T) {
	svc, repo, mm := newHookedAuth(t)
	ctx := context.Background()

	_, err := svc.RequestSignup(ctx, signupReq("a@x.com"))
	require.NoError(t, err)
	code := mm.lastCode(t)

	repo.beforeUpdateGuarded = func() {
		_, verr := svc.VerifySignup(ctx, "a@x.com", code)
		require.NoError(t, verr)
	}

	require.ErrorIs(t, svc.ResendVerificationOTP(ctx, "a@x.com"), ErrAlreadyVerified)

	user, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.True(t, user.IsEmailVerified)
	require.Nil(t, user.EmailVerificationToken)
	require.Len(t, mm.sent, 1, "no code may be sent for a verified record")
}

func TestVerifyRacingVerifyReportsAlreadyVerified(t *testing.T) {
	svc, repo, mm := newHookedAuth(t)
	ctx := context.Background()

	_, err := svc.RequestSignup(ctx, signupReq("a@x.com"))
	require.NoError(t, err)
	code := mm.lastCode(t)

	repo.beforeUpdateGuarded = func() {
		_, verr := svc.VerifySignup(ctx, "a@x.com", code)
		require.NoError(t, verr)
	}

	_, err = svc.VerifySignup(ctx, "a@x.com", code)
	require.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestResetRacingNewResetCodeRejected(t *testing.T) {
	svc, repo, mm := newHookedAuth(t)
	ctx := context.Background()
	signupAndVerify(t, svc, mm, "a@x.com")

	require.NoError(t, svc.RequestPasswordReset(ctx, "a@x.com"))
	oldCode := mm.lastCode(t)

	// a fresh reset request supersedes the code mid-flight
	repo.beforeUpdateGuarded = func() {
		require.NoError(t, svc.RequestPasswordReset(ctx, "a@x.com"))
	}

	err := svc.VerifyPasswordReset(ctx, "a@x.com", oldCode, "newpassword1")
	require.ErrorIs(t, err, ErrCodeExpired)

	// the stale attempt changed nothing
	_, err = svc.Login(ctx, "a@x.com", "password1")
	require.NoError(t, err)
}
