package domain

import "time"

// KBArticle is a knowledge-base document used as resolution context.
type KBArticle struct {
	ID        string
	Title     string
	Content   string
	Component string
	// Weight scales retrieval relevance and is adjusted from feedback.
	Weight    float64
	Draft     bool
	UpdatedAt time.Time
}

// CustomerProfile carries the service level of a customer.
type CustomerProfile struct {
	CustomerID  string
	CompanyName string
	Tier        CustomerTier
	SLAHours    int
	OpenTickets int
}

// Scored pairs a record with a similarity score. Higher is more similar.
type Scored[T any] struct {
	Record T
	Score  float64
}
