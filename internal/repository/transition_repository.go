package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-iq/internal/domain"
)

// TransitionRepository stores lifecycle audit entries.
type TransitionRepository interface {
	Create(ctx context.Context, transition *domain.Transition) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Transition, error)
}

type transitionRepository struct {
	pool *pgxpool.Pool
}

// NewTransitionRepository builds repository.
func NewTransitionRepository(pool *pgxpool.Pool) TransitionRepository {
	return &transitionRepository{pool: pool}
}

func (r *transitionRepository) Create(ctx context.Context, transition *domain.Transition) error {
	const query = `
        INSERT INTO ticket_transitions (id, ticket_id, from_state, to_state, attempt, reason, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.pool.Exec(ctx, query,
		transition.ID,
		transition.TicketID,
		transition.From,
		transition.To,
		transition.Attempt,
		transition.Reason,
		transition.CreatedAt,
	)
	return err
}

func (r *transitionRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Transition, error) {
	const query = `
        SELECT id, ticket_id, from_state, to_state, attempt, reason, created_at
        FROM ticket_transitions WHERE ticket_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Transition
	for rows.Next() {
		var t domain.Transition
		if err := rows.Scan(
			&t.ID,
			&t.TicketID,
			&t.From,
			&t.To,
			&t.Attempt,
			&t.Reason,
			&t.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}
