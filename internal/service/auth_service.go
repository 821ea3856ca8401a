package service

import (
	"context"
	"strings"
	"time"

	"github.com/spec-kit/support-iq/internal/auth"
	"github.com/spec-kit/support-iq/internal/config"
	"github.com/spec-kit/support-iq/internal/domain"
	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
)

// AuthService issues bearer tokens to configured API clients.
type AuthService struct {
	clients  map[string]domain.APIClient
	tokenMgr *auth.TokenManager
}

// NewAuthService builds the service from AUTH_CLIENTS.
func NewAuthService(cfg config.AuthConfig) *AuthService {
	clients := make(map[string]domain.APIClient, len(cfg.Clients))
	for _, c := range cfg.Clients {
		clients[c.ID] = domain.APIClient{ID: c.ID, SecretHash: c.SecretHash, Role: domain.ClientRole(strings.ToUpper(c.Role))}
	}
	return &AuthService{
		clients:  clients,
		tokenMgr: auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
	}
}

// IssueToken authenticates a client by secret and returns a signed token.
func (s *AuthService) IssueToken(_ context.Context, clientID, secret string) (string, time.Time, domain.ClientRole, error) {
	client, ok := s.clients[clientID]
	if !ok || secret == "" {
		return "", time.Time{}, "", apperrors.NewUnauthorized("invalid client credentials")
	}
	if err := auth.CompareSecret(client.SecretHash, secret); err != nil {
		return "", time.Time{}, "", apperrors.NewUnauthorized("invalid client credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(client.ID, client.Role)
	if err != nil {
		return "", time.Time{}, "", err
	}
	return token, exp, client.Role, nil
}

// Client implements auth.ClientLookup.
func (s *AuthService) Client(id string) (domain.APIClient, bool) {
	c, ok := s.clients[id]
	return c, ok
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
