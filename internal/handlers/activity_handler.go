package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/materna-health/materna-backend/internal/dto"
	"github.com/materna-health/materna-backend/internal/middleware"
	"github.com/materna-health/materna-backend/internal/services"
)

type ActivityHandler struct {
	activityService *services.ActivityService
}

func NewActivityHandler(activityService *services.ActivityService) *ActivityHandler {
	return &ActivityHandler{activityService: activityService}
}

func (h *ActivityHandler) Create(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.CreateActivityRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.activityService.Create(userID, &req)
	if err != nil {
		return badRequest(c, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *ActivityHandler) List(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)

	resp, err := h.activityService.List(userID, page, limit)
	if err != nil {
		return internalError(c, "list_activities", err)
	}
	return c.JSON(resp)
}

func (h *ActivityHandler) Delete(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	activityID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid activity id")
	}

	if err := h.activityService.Delete(userID, activityID); err != nil {
		if errors.Is(err, services.ErrActivityNotFound) {
			return errorStatus(c, fiber.StatusNotFound, err)
		}
		return internalError(c, "delete_activity", err)
	}
	return c.JSON(fiber.Map{"message": "activity deleted"})
}

func (h *ActivityHandler) ListBadges(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	badges, err := h.activityService.ListBadges(userID)
	if err != nil {
		return internalError(c, "list_badges", err)
	}
	return c.JSON(fiber.Map{"badges": badges})
}
