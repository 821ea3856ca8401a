package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-iq/internal/domain"
)

// Grants reports whether role may act as required. Operators may do
// everything ingestion clients may.
func Grants(role, required domain.ClientRole) bool {
	switch role {
	case domain.ClientRoleOperator:
		return required == domain.ClientRoleOperator || required == domain.ClientRoleIngest
	case domain.ClientRoleIngest:
		return required == domain.ClientRoleIngest
	}
	return false
}

// RequireRole ensures the principal holds the required role.
func RequireRole(required domain.ClientRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if !Grants(principal.Role, required) {
			return fiber.NewError(http.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}
