package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/materna-health/materna-backend/internal/dto"
	"github.com/materna-health/materna-backend/internal/middleware"
	"github.com/materna-health/materna-backend/internal/services"
)

type QuestionnaireHandler struct {
	questionnaireService *services.QuestionnaireService
}

func NewQuestionnaireHandler(questionnaireService *services.QuestionnaireService) *QuestionnaireHandler {
	return &QuestionnaireHandler{questionnaireService: questionnaireService}
}

func (h *QuestionnaireHandler) Submit(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.SubmitQuestionnaireRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.questionnaireService.Submit(userID, &req)
	if err != nil {
		return badRequest(c, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *QuestionnaireHandler) List(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	responses, err := h.questionnaireService.List(userID)
	if err != nil {
		return internalError(c, "list_questionnaires", err)
	}
	return c.JSON(fiber.Map{"questionnaires": responses})
}

func (h *QuestionnaireHandler) Get(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid questionnaire id")
	}

	resp, err := h.questionnaireService.Get(userID, id)
	if err != nil {
		if errors.Is(err, services.ErrQuestionnaireNotFound) {
			return errorStatus(c, fiber.StatusNotFound, err)
		}
		return internalError(c, "get_questionnaire", err)
	}
	return c.JSON(resp)
}
