package dto

import (
	"time"

	"github.com/spec-kit/support-iq/internal/domain"
)

// SubmitTicketRequest payload.
type SubmitTicketRequest struct {
	ExternalKey     string              `json:"external_key"`
	CustomerID      string              `json:"customer_id"`
	Tier            domain.CustomerTier `json:"tier"`
	Body            string              `json:"body"`
	Component       string              `json:"component"`
	RecurrenceCount int                 `json:"recurrence_count"`
	SLARisk         *float64            `json:"sla_risk"`
}

// TicketSummary response.
type TicketSummary struct {
	ID          string              `json:"id"`
	ExternalKey string              `json:"external_key"`
	CustomerID  string              `json:"customer_id"`
	Tier        domain.CustomerTier `json:"tier"`
	Component   string              `json:"component,omitempty"`
	State       domain.TicketState  `json:"state"`
	Attempts    int                 `json:"attempts"`
	Disposition *domain.Disposition `json:"disposition"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	ClosedAt    *time.Time          `json:"closed_at"`
}

// TicketDetailResponse is the ticket with its audit trail.
type TicketDetailResponse struct {
	TicketSummary
	Body             string                   `json:"body"`
	Triage           []TriageScoreResponse    `json:"triage"`
	Drafts           []DraftResponse          `json:"drafts"`
	Verdicts         []VerdictResponse        `json:"verdicts"`
	Transitions      []TransitionResponse     `json:"transitions"`
	RejectionReasons []domain.RejectionReason `json:"rejection_reasons"`
	AcceptedDraftID  *string                  `json:"accepted_draft_id"`
}

// TriageScoreResponse item.
type TriageScoreResponse struct {
	ID              string               `json:"id"`
	TierScore       float64              `json:"tier_score"`
	SLARisk         float64              `json:"sla_risk"`
	RecurrenceScore float64              `json:"recurrence_score"`
	RecurrenceCount int                  `json:"recurrence_count"`
	Priority        float64              `json:"priority"`
	Label           domain.PriorityLabel `json:"label"`
	Degraded        bool                 `json:"degraded"`
	ComputedAt      time.Time            `json:"computed_at"`
}

// DraftResponse item.
type DraftResponse struct {
	ID         string    `json:"id"`
	Attempt    int       `json:"attempt"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	ArticleIDs []string  `json:"article_ids"`
	Degraded   bool      `json:"degraded"`
	CreatedAt  time.Time `json:"created_at"`
}

// VerdictResponse item.
type VerdictResponse struct {
	ID               string                 `json:"id"`
	DraftID          string                 `json:"draft_id"`
	Attempt          int                    `json:"attempt"`
	Verdict          domain.Verdict         `json:"verdict"`
	Reason           domain.RejectionReason `json:"reason,omitempty"`
	Detail           string                 `json:"detail,omitempty"`
	Threshold        float64                `json:"threshold"`
	ThresholdVersion int64                  `json:"threshold_version"`
	CreatedAt        time.Time              `json:"created_at"`
}

// TransitionResponse item.
type TransitionResponse struct {
	From      domain.TicketState `json:"from,omitempty"`
	To        domain.TicketState `json:"to"`
	Attempt   int                `json:"attempt"`
	Reason    string             `json:"reason,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}
