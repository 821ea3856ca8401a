package events

import (
	"time"

	"github.com/spec-kit/support-iq/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketSubmitted    EventType = "ticket_submitted"
	EventTicketStateChanged EventType = "ticket_state_changed"
	EventTicketAccepted     EventType = "ticket_accepted"
	EventTicketEscalated    EventType = "ticket_escalated"
	EventTicketHalted       EventType = "ticket_halted"
	EventGhostTicketAlert   EventType = "ghost_ticket_alert"
	EventThresholdAdjusted  EventType = "threshold_adjusted"
	EventKBDraftReady       EventType = "kb_draft_ready"
)

// AllEventTypes lists every type, for subscribers that want everything.
var AllEventTypes = []EventType{
	EventTicketSubmitted,
	EventTicketStateChanged,
	EventTicketAccepted,
	EventTicketEscalated,
	EventTicketHalted,
	EventGhostTicketAlert,
	EventThresholdAdjusted,
	EventKBDraftReady,
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketSubmittedPayload payload.
type TicketSubmittedPayload struct {
	CustomerID string              `json:"customer_id"`
	Tier       domain.CustomerTier `json:"tier"`
	Component  string              `json:"component,omitempty"`
}

// TicketStateChangedPayload payload.
type TicketStateChangedPayload struct {
	From    domain.TicketState `json:"from"`
	To      domain.TicketState `json:"to"`
	Attempt int                `json:"attempt"`
	Reason  string             `json:"reason,omitempty"`
}

// TicketAcceptedPayload payload.
type TicketAcceptedPayload struct {
	DraftID     string             `json:"draft_id"`
	Attempt     int                `json:"attempt"`
	Confidence  float64            `json:"confidence"`
	Disposition domain.Disposition `json:"disposition"`
}

// TicketEscalatedPayload carries every rejection reason so a human can act
// without re-deriving history.
type TicketEscalatedPayload struct {
	Attempts         int                      `json:"attempts"`
	RejectionReasons []domain.RejectionReason `json:"rejection_reasons"`
	Priority         domain.PriorityLabel     `json:"priority,omitempty"`
}

// TicketHaltedPayload payload.
type TicketHaltedPayload struct {
	State domain.TicketState `json:"state"`
	Error string             `json:"error"`
}

// GhostTicketAlertPayload payload.
type GhostTicketAlertPayload struct {
	Alert domain.GhostTicketAlert `json:"alert"`
}

// ThresholdAdjustedPayload payload.
type ThresholdAdjustedPayload struct {
	Previous domain.Threshold `json:"previous"`
	Current  domain.Threshold `json:"current"`
}

// KBDraftReadyPayload announces a knowledge-base draft waiting for approval.
type KBDraftReadyPayload struct {
	ArticleID string `json:"article_id"`
	Component string `json:"component"`
	Title     string `json:"title"`
	Tickets   int    `json:"tickets"`
}
