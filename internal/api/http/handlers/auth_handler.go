package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-iq/internal/api/dto"
	"github.com/spec-kit/support-iq/internal/domain"
	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
)

// TokenIssuer authenticates API clients.
type TokenIssuer interface {
	IssueToken(ctx context.Context, clientID, secret string) (string, time.Time, domain.ClientRole, error)
}

// AuthHandler exposes token issuance.
type AuthHandler struct {
	issuer TokenIssuer
}

// NewAuthHandler constructs handler.
func NewAuthHandler(issuer TokenIssuer) *AuthHandler {
	return &AuthHandler{issuer: issuer}
}

// Token POST /auth/token.
func (h *AuthHandler) Token(c *fiber.Ctx) error {
	var req dto.TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ClientID == "" || req.ClientSecret == "" {
		return apperrors.NewValidationError("client_id and client_secret required", nil)
	}
	token, exp, role, err := h.issuer.IssueToken(c.UserContext(), req.ClientID, req.ClientSecret)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   exp,
		Role:        role,
	}})
}
