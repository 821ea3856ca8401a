package domain

import "time"

// Threshold is an immutable, versioned acceptance threshold for the Critic.
type Threshold struct {
	Version    int64
	Value      float64
	Ratio      float64
	Samples    int
	ComputedAt time.Time
}
