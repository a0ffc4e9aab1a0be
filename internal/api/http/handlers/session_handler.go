package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/portal-session/internal/api/dto"
	"github.com/spec-kit/portal-session/internal/auth"
	"github.com/spec-kit/portal-session/internal/domain"
	"github.com/spec-kit/portal-session/internal/service"
	apperrors "github.com/spec-kit/portal-session/pkg/util/errorutil"
)

// SessionHandler exposes login, logout and session status.
type SessionHandler struct {
	sessions *service.SessionService
}

// NewSessionHandler constructs handler.
func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Login handles POST /session/login.
func (h *SessionHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Identifier) == "" || req.Secret == "" {
		return apperrors.NewValidationError("identifier and secret required", nil)
	}
	claimed, ok := domain.ParseClaimedRole(req.Role)
	if !ok {
		return apperrors.NewValidationError("role must be patient or staff", map[string]any{"field": "role"})
	}

	result, err := h.sessions.Login(c.UserContext(), domain.Credential{
		Identifier:  req.Identifier,
		Secret:      req.Secret,
		ClaimedRole: claimed,
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": dto.LoginResponse{
			Session: dto.NewSessionResponse(result.Identity),
			Auth:    dto.AuthResponse{Token: result.Token, ExpiresAt: result.Meta.ExpiresAt},
		},
	})
}

// Logout handles POST /session/logout.
func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	h.sessions.Logout(c.UserContext())
	return c.SendStatus(fiber.StatusNoContent)
}

// Status handles GET /session. The profile is only disclosed to the session's own bearer.
func (h *SessionHandler) Status(c *fiber.Ctx) error {
	status := h.sessions.Status()
	resp := dto.StatusResponse{State: status.State, Attempt: status.Attempt}
	if principal, ok := auth.PrincipalFromContext(c); ok && status.Identity != nil &&
		status.Identity.SessionID == principal.Identity.SessionID {
		session := dto.NewSessionResponse(*status.Identity)
		resp.Session = &session
	}
	if status.LastError != nil {
		resp.LastError = apperrors.CodeOf(status.LastError)
	}
	return c.JSON(fiber.Map{"data": resp})
}
