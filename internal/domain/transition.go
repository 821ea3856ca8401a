package domain

import "time"

// Transition is an immutable audit entry for a lifecycle state change.
type Transition struct {
	ID        string
	TicketID  string
	From      TicketState
	To        TicketState
	Attempt   int
	Reason    string
	CreatedAt time.Time
}
