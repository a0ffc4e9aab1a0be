package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/portal-session/internal/domain"
	apperrors "github.com/spec-kit/portal-session/pkg/util/errorutil"
)

// RequireRole ensures the session's partition is one of allowed. No roles means any session.
func RequireRole(allowed ...domain.RolePartition) fiber.Handler {
	allowedSet := make(map[domain.RolePartition]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Identity.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireStaff admits admins and every staff partition.
func RequireStaff() fiber.Handler {
	return RequireRole(append([]domain.RolePartition{domain.PartitionAdmin}, domain.StaffPartitions...)...)
}
