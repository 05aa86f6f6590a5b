package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/materna-health/materna-backend/internal/dto"
	"github.com/materna-health/materna-backend/internal/services"
)

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Signup(c *fiber.Ctx) error {
	var req dto.SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.authService.RequestSignup(c.UserContext(), &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAlreadyRegistered):
			return errorStatus(c, fiber.StatusConflict, err)
		case errors.Is(err, services.ErrNotificationFailed):
			return errorStatus(c, fiber.StatusBadGateway, err)
		case errors.Is(err, services.ErrValidation):
			return errorStatus(c, fiber.StatusBadRequest, err)
		}
		return internalError(c, "signup", err)
	}

	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *AuthHandler) VerifyEmail(c *fiber.Ctx) error {
	var req dto.VerifyEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Email == "" || req.Code == "" {
		return badRequest(c, "email and code are required")
	}

	user, err := h.authService.VerifySignup(c.UserContext(), req.Email, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			return errorStatus(c, fiber.StatusNotFound, err)
		case errors.Is(err, services.ErrAlreadyVerified):
			return errorStatus(c, fiber.StatusConflict, err)
		case errors.Is(err, services.ErrCodeExpired):
			return errorStatus(c, fiber.StatusGone, err)
		case errors.Is(err, services.ErrCodeMismatch):
			return errorStatus(c, fiber.StatusBadRequest, err)
		}
		return internalError(c, "verify_email", err)
	}

	return c.JSON(user)
}

func (h *AuthHandler) ResendVerification(c *fiber.Ctx) error {
	var req dto.ResendVerificationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Email == "" {
		return badRequest(c, "email is required")
	}

	if err := h.authService.ResendVerificationOTP(c.UserContext(), req.Email); err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			return errorStatus(c, fiber.StatusNotFound, err)
		case errors.Is(err, services.ErrAlreadyVerified):
			return errorStatus(c, fiber.StatusConflict, err)
		case errors.Is(err, services.ErrTooManyRequests):
			return errorStatus(c, fiber.StatusTooManyRequests, err)
		case errors.Is(err, services.ErrNotificationFailed):
			return errorStatus(c, fiber.StatusBadGateway, err)
		}
		return internalError(c, "resend_verification", err)
	}

	return c.JSON(fiber.Map{"message": "verification code sent"})
}

func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req dto.ForgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Email == "" {
		return badRequest(c, "email is required")
	}

	if err := h.authService.RequestPasswordReset(c.UserContext(), req.Email); err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			return errorStatus(c, fiber.StatusNotFound, err)
		case errors.Is(err, services.ErrTooManyRequests):
			return errorStatus(c, fiber.StatusTooManyRequests, err)
		case errors.Is(err, services.ErrNotificationFailed):
			return errorStatus(c, fiber.StatusBadGateway, err)
		}
		return internalError(c, "forgot_password", err)
	}

	return c.JSON(fiber.Map{"message": "password reset code sent"})
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req dto.ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Email == "" || req.Code == "" || req.NewPassword == "" {
		return badRequest(c, "email, code and new_password are required")
	}

	if err := h.authService.VerifyPasswordReset(c.UserContext(), req.Email, req.Code, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			return errorStatus(c, fiber.StatusNotFound, err)
		case errors.Is(err, services.ErrCodeExpired):
			return errorStatus(c, fiber.StatusGone, err)
		case errors.Is(err, services.ErrCodeMismatch):
			return errorStatus(c, fiber.StatusBadRequest, err)
		case errors.Is(err, services.ErrValidation):
			return errorStatus(c, fiber.StatusBadRequest, err)
		}
		return internalError(c, "reset_password", err)
	}

	return c.JSON(fiber.Map{"message": "password updated"})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Identifier == "" || req.Password == "" {
		return badRequest(c, "identifier and password are required")
	}

	resp, err := h.authService.Login(c.UserContext(), req.Identifier, req.Password)
	if err != nil {
		var notVerified *services.EmailNotVerifiedError
		switch {
		case errors.As(err, &notVerified):
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "Email is not verified; request a new code to continue",
				Email:   notVerified.Email,
			})
		case errors.Is(err, services.ErrUserNotFound):
			return errorStatus(c, fiber.StatusNotFound, err)
		case errors.Is(err, services.ErrInvalidCredentials):
			return errorStatus(c, fiber.StatusUnauthorized, err)
		}
		return internalError(c, "login", err)
	}

	return c.JSON(resp)
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: message})
}

func errorStatus(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
}

// internalError hides the underlying fault from the client and logs it with
// context.
func internalError(c *fiber.Ctx, action string, err error) error {
	slog.Error("request failed", "action", action, "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
		Error: true, Message: "Internal server error",
	})
}
