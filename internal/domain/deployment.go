package domain

import "time"

// DeploymentEvent is a recorded release of a service. Immutable once recorded.
type DeploymentEvent struct {
	ID          string
	Service     string
	Description string
	DeployedAt  time.Time
	RecordedAt  time.Time
}

// GhostTicketAlert predicts a ticket surge for a component before it saturates the queue.
type GhostTicketAlert struct {
	ID             string
	Component      string
	WindowStart    time.Time
	WindowEnd      time.Time
	DeploymentID   *string
	ObservedCount  int
	ProjectedRate  float64
	Baseline       float64
	PredictedDelta float64
	Confidence     float64
	// BelowSaturation is true when the alert fired before the paging threshold was reached.
	BelowSaturation bool
	RaisedAt        time.Time
}
