package handlers

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/materna-health/materna-backend/internal/dto"
	"github.com/materna-health/materna-backend/internal/middleware"
	"github.com/materna-health/materna-backend/internal/services"
)

const maxAvatarBytes = 2 * 1024 * 1024

type ProfileHandler struct {
	profileService *services.ProfileService
}

func NewProfileHandler(profileService *services.ProfileService) *ProfileHandler {
	return &ProfileHandler{profileService: profileService}
}

func (h *ProfileHandler) GetMe(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	resp, err := h.profileService.GetProfile(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return errorStatus(c, fiber.StatusNotFound, err)
		}
		return internalError(c, "get_profile", err)
	}
	return c.JSON(resp)
}

func (h *ProfileHandler) UpdateMe(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.profileService.UpdateProfile(c.UserContext(), userID, &req)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return errorStatus(c, fiber.StatusNotFound, err)
		}
		return badRequest(c, err.Error())
	}
	return c.JSON(resp)
}

func (h *ProfileHandler) UploadAvatar(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		return badRequest(c, "avatar file is required")
	}
	if fileHeader.Size > maxAvatarBytes {
		return badRequest(c, "avatar must be at most 2MB")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return badRequest(c, "could not read avatar file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAvatarBytes+1))
	if err != nil || int64(len(data)) > maxAvatarBytes {
		return badRequest(c, "could not read avatar file")
	}

	url, err := h.profileService.SetAvatar(c.UserContext(), userID, data)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return errorStatus(c, fiber.StatusNotFound, err)
		}
		return internalError(c, "upload_avatar", err)
	}

	return c.JSON(dto.AvatarResponse{AvatarURL: url})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error: true, Message: "Unauthorized",
	})
}
