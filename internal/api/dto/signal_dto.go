package dto

import (
	"time"

	"github.com/spec-kit/support-iq/internal/domain"
)

// FeedbackRequest payload.
type FeedbackRequest struct {
	TicketID string          `json:"ticket_id"`
	Judgment domain.Judgment `json:"judgment"`
	Channel  string          `json:"channel"`
}

// DeploymentRequest payload.
type DeploymentRequest struct {
	Service     string     `json:"service"`
	Description string     `json:"description"`
	DeployedAt  *time.Time `json:"deployed_at"`
}

// AlertResponse item.
type AlertResponse struct {
	ID              string    `json:"id"`
	Component       string    `json:"component"`
	DeploymentID    *string   `json:"deployment_id"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	ObservedCount   int       `json:"observed_count"`
	ProjectedRate   float64   `json:"projected_rate"`
	Baseline        float64   `json:"baseline"`
	PredictedDelta  float64   `json:"predicted_delta"`
	Confidence      float64   `json:"confidence"`
	BelowSaturation bool      `json:"below_saturation"`
	RaisedAt        time.Time `json:"raised_at"`
}

// ThresholdResponse describes one threshold version.
type ThresholdResponse struct {
	Version    int64     `json:"version"`
	Value      float64   `json:"value"`
	Ratio      float64   `json:"ratio"`
	Samples    int       `json:"samples"`
	ComputedAt time.Time `json:"computed_at"`
}

// TokenRequest payload.
type TokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// TokenResponse payload.
type TokenResponse struct {
	AccessToken string            `json:"access_token"`
	TokenType   string            `json:"token_type"`
	ExpiresAt   time.Time         `json:"expires_at"`
	Role        domain.ClientRole `json:"role"`
}
