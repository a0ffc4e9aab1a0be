package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/portal-session/internal/api/dto"
	"github.com/spec-kit/portal-session/internal/service"
	apperrors "github.com/spec-kit/portal-session/pkg/util/errorutil"
)

// AssistantHandler exposes the inference-backed assistant.
type AssistantHandler struct {
	assistant *service.AssistantService
}

// NewAssistantHandler constructs handler.
func NewAssistantHandler(assistant *service.AssistantService) *AssistantHandler {
	return &AssistantHandler{assistant: assistant}
}

// Generate handles POST /assistant/generate.
func (h *AssistantHandler) Generate(c *fiber.Ctx) error {
	var req dto.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	text, attempts, err := h.assistant.Generate(c.UserContext(), req.Prompt)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.GenerateResponse{Text: text, Attempts: attempts}})
}
