package domain

import "time"

// Judgment is a human reaction to a resolved ticket.
type Judgment string

const (
	JudgmentPositive Judgment = "positive"
	JudgmentNegative Judgment = "negative"
)

// Valid reports whether the judgment is a known value.
func (j Judgment) Valid() bool {
	return j == JudgmentPositive || j == JudgmentNegative
}

// FeedbackSignal is append-only history used to adapt the acceptance threshold.
type FeedbackSignal struct {
	ID         string
	TicketID   string
	Judgment   Judgment
	Channel    string
	ReceivedAt time.Time
}
