package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-iq/internal/domain"
)

// FeedbackRepository stores human feedback. Signals are append-only.
type FeedbackRepository interface {
	Create(ctx context.Context, signal *domain.FeedbackSignal) error
	// ListBetween returns signals received in [from, to), oldest first.
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.FeedbackSignal, error)
}

type feedbackRepository struct {
	pool *pgxpool.Pool
}

// NewFeedbackRepository builds repository.
func NewFeedbackRepository(pool *pgxpool.Pool) FeedbackRepository {
	return &feedbackRepository{pool: pool}
}

func (r *feedbackRepository) Create(ctx context.Context, signal *domain.FeedbackSignal) error {
	const query = `
        INSERT INTO feedback_signals (id, ticket_id, judgment, channel, received_at)
        VALUES ($1,$2,$3,$4,$5)`
	_, err := r.pool.Exec(ctx, query, signal.ID, signal.TicketID, signal.Judgment, signal.Channel, signal.ReceivedAt)
	return err
}

func (r *feedbackRepository) ListBetween(ctx context.Context, from, to time.Time) ([]domain.FeedbackSignal, error) {
	const query = `
        SELECT id, ticket_id, judgment, channel, received_at
        FROM feedback_signals WHERE received_at >= $1 AND received_at < $2 ORDER BY received_at ASC`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.FeedbackSignal
	for rows.Next() {
		var s domain.FeedbackSignal
		if err := rows.Scan(&s.ID, &s.TicketID, &s.Judgment, &s.Channel, &s.ReceivedAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
