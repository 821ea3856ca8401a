package domain

import "time"

// PriorityLabel buckets the composite priority for routing.
type PriorityLabel string

const (
	PriorityCritical PriorityLabel = "CRITICAL"
	PriorityHigh     PriorityLabel = "HIGH"
	PriorityMedium   PriorityLabel = "MEDIUM"
	PriorityLow      PriorityLabel = "LOW"
)

// TriageWeights are the coefficients of the composite priority.
type TriageWeights struct {
	Tier       float64
	SLA        float64
	Recurrence float64
}

// Composite returns the weighted sum of the three sub-scores.
func (w TriageWeights) Composite(tier, sla, recurrence float64) float64 {
	return w.Tier*tier + w.SLA*sla + w.Recurrence*recurrence
}

// TriageScore is immutable once computed. A re-triage appends a new record.
type TriageScore struct {
	ID              string
	TicketID        string
	TierScore       float64
	SLARisk         float64
	RecurrenceScore float64
	RecurrenceCount int
	Weights         TriageWeights
	Priority        float64
	Label           PriorityLabel
	Degraded        bool
	ComputedAt      time.Time
}

// LabelFor maps a composite priority in [0,1] to a label.
func LabelFor(priority float64) PriorityLabel {
	switch {
	case priority >= 0.85:
		return PriorityCritical
	case priority >= 0.65:
		return PriorityHigh
	case priority >= 0.40:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
