package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-iq/internal/domain"
	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	ClientID string
	Role     domain.ClientRole
}

// ClientLookup resolves configured API clients.
type ClientLookup interface {
	Client(id string) (domain.APIClient, bool)
}

// AuthMiddleware validates bearer tokens and checks the client is still configured.
type AuthMiddleware struct {
	tokens  *TokenManager
	clients ClientLookup
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, clients ClientLookup) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, clients: clients}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	client, ok := m.clients.Client(claims.ClientID)
	if !ok {
		return apperrors.NewUnauthorized("client not found")
	}
	// A role narrowed in configuration takes effect before the token expires.
	role := claims.Role
	if !Grants(client.Role, role) {
		role = client.Role
	}

	c.Locals(principalKey, &Principal{ClientID: client.ID, Role: role})
	return c.Next()
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
