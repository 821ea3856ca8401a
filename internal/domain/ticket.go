package domain

import "time"

// TicketState enumerates lifecycle states for tickets moving through the pipeline.
type TicketState string

const (
	TicketStateReceived   TicketState = "received"
	TicketStateTriaged    TicketState = "triaged"
	TicketStateDrafting   TicketState = "drafting"
	TicketStateCritiquing TicketState = "critiquing"
	TicketStateAccepted   TicketState = "accepted"
	TicketStateEscalated  TicketState = "escalated"
	TicketStateCancelled  TicketState = "cancelled"
	TicketStateHalted     TicketState = "halted"
)

// Terminal reports whether no further transition is possible.
func (s TicketState) Terminal() bool {
	switch s {
	case TicketStateAccepted, TicketStateEscalated, TicketStateCancelled, TicketStateHalted:
		return true
	}
	return false
}

// CustomerTier is the service level of the customer that raised the ticket.
type CustomerTier string

const (
	TierEnterprise CustomerTier = "enterprise"
	TierPlatinum   CustomerTier = "platinum"
	TierGold       CustomerTier = "gold"
	TierPro        CustomerTier = "pro"
	TierSilver     CustomerTier = "silver"
	TierFree       CustomerTier = "free"
	TierBronze     CustomerTier = "bronze"
)

// Disposition describes what happens to an accepted resolution.
type Disposition string

const (
	DispositionAutoResolve      Disposition = "auto_resolve"
	DispositionDraftForApproval Disposition = "draft_for_approval"
)

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID              string
	ExternalKey     string
	CustomerID      string
	Tier            CustomerTier
	Body            string
	Component       string
	RecurrenceCount int
	SLARisk         *float64
	State           TicketState
	Attempts        int
	Disposition     *Disposition
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ClosedAt        *time.Time
}
