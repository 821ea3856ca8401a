package dto

import (
	"time"

	"github.com/spec-kit/support-iq/internal/domain"
)

// ArticleRequest payload. An omitted id creates a new article.
type ArticleRequest struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Component string `json:"component"`
	Draft     bool   `json:"draft"`
}

// ArticleResponse describes a knowledge-base article.
type ArticleResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Component string    `json:"component"`
	Weight    float64   `json:"weight"`
	Draft     bool      `json:"draft"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GapDraftRequest payload for drafting articles from knowledge gaps.
type GapDraftRequest struct {
	Days       int `json:"days"`
	MinTickets int `json:"min_tickets"`
}

// ProfileRequest payload.
type ProfileRequest struct {
	CustomerID  string              `json:"customer_id"`
	CompanyName string              `json:"company_name"`
	Tier        domain.CustomerTier `json:"tier"`
	SLAHours    int                 `json:"sla_hours"`
}

// ProfileResponse describes a customer profile.
type ProfileResponse struct {
	CustomerID  string              `json:"customer_id"`
	CompanyName string              `json:"company_name"`
	Tier        domain.CustomerTier `json:"tier"`
	SLAHours    int                 `json:"sla_hours"`
}
