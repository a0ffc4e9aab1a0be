package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/portal-session/internal/domain"
	apperrors "github.com/spec-kit/portal-session/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// SessionSource exposes the currently established session.
type SessionSource interface {
	Current() (domain.ResolvedIdentity, bool)
}

// Principal represents the authenticated caller.
type Principal struct {
	Identity domain.ResolvedIdentity
	Claims   *Claims
}

// AuthMiddleware validates bearer tokens against the active session.
type AuthMiddleware struct {
	tokens   *TokenManager
	sessions SessionSource
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, sessions SessionSource) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, sessions: sessions}
}

// Handle enforces authentication for protected routes. A token is only accepted while the
// session it was issued for is still the current one.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	principal, err := m.authenticate(c)
	if err != nil {
		return err
	}
	c.Locals(principalKey, principal)
	return c.Next()
}

// Optional attaches the principal when the request carries a token for the current session
// and lets every other request through anonymously.
func (m *AuthMiddleware) Optional(c *fiber.Ctx) error {
	if principal, err := m.authenticate(c); err == nil {
		c.Locals(principalKey, principal)
	}
	return c.Next()
}

func (m *AuthMiddleware) authenticate(c *fiber.Ctx) (*Principal, error) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return nil, apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.Parse(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid token")
	}

	current, ok := m.sessions.Current()
	if !ok || current.SessionID != claims.SessionID || string(current.Subject) != claims.Subject {
		return nil, apperrors.NewUnauthorized("session is no longer active")
	}
	return &Principal{Identity: current, Claims: claims}, nil
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
