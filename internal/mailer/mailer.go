// Package mailer is the outbound notification channel. Delivery is best
// effort: the lifecycle engine persists OTP state first and surfaces a send
// failure as its own error kind so the caller can fall back to a resend.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// VerificationEmail renders the signup/resend verification message.
func VerificationEmail(name, code string, ttl time.Duration) (subject, body string) {
	subject = "Your Materna verification code"
	body = fmt.Sprintf(
		"Hi %s,\r\n\r\nYour email verification code is %s.\r\nIt expires in %d minutes.\r\n\r\nThe Materna team",
		name, code, int(ttl.Minutes()),
	)
	return subject, body
}

// PasswordResetEmail renders the password recovery message.
func PasswordResetEmail(name, code string, ttl time.Duration) (subject, body string) {
	subject = "Your Materna password reset code"
	body = fmt.Sprintf(
		"Hi %s,\r\n\r\nYour password reset code is %s.\r\nIt expires in %d minutes.\r\nIf you did not request a reset, you can ignore this email.\r\n\r\nThe Materna team",
		name, code, int(ttl.Minutes()),
	)
	return subject, body
}

// LogMailer writes messages to the structured logger instead of sending
// them. Default transport for local development.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	if m == nil || m.logger == nil {
		return nil
	}
	m.logger.Info("outbound mail", "to", to, "subject", subject, "body", body)
	return nil
}
