package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-iq/internal/domain"
)

// VerdictRepository stores critic verdicts, one per draft.
type VerdictRepository interface {
	// Create fails with ErrInvariantViolation when the draft already has a verdict
	// or the ticket already has an accepted draft.
	Create(ctx context.Context, verdict *domain.CriticVerdict) error
	// ListByTicket returns verdicts ordered by attempt number.
	ListByTicket(ctx context.Context, ticketID string) ([]domain.CriticVerdict, error)
}

type verdictRepository struct {
	pool *pgxpool.Pool
}

// NewVerdictRepository builds repository.
func NewVerdictRepository(pool *pgxpool.Pool) VerdictRepository {
	return &verdictRepository{pool: pool}
}

func (r *verdictRepository) Create(ctx context.Context, verdict *domain.CriticVerdict) error {
	const query = `
        INSERT INTO critic_verdicts (id, draft_id, ticket_id, attempt, verdict, reason, detail,
                                     threshold, threshold_version, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := r.pool.Exec(ctx, query,
		verdict.ID,
		verdict.DraftID,
		verdict.TicketID,
		verdict.Attempt,
		verdict.Verdict,
		verdict.Reason,
		verdict.Detail,
		verdict.Threshold,
		verdict.ThresholdVersion,
		verdict.CreatedAt,
	)
	return uniqueAsInvariant(err, "verdict for draft "+verdict.DraftID)
}

func (r *verdictRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.CriticVerdict, error) {
	const query = `
        SELECT id, draft_id, ticket_id, attempt, verdict, reason, detail, threshold, threshold_version, created_at
        FROM critic_verdicts WHERE ticket_id=$1 ORDER BY attempt ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CriticVerdict
	for rows.Next() {
		var v domain.CriticVerdict
		if err := rows.Scan(
			&v.ID,
			&v.DraftID,
			&v.TicketID,
			&v.Attempt,
			&v.Verdict,
			&v.Reason,
			&v.Detail,
			&v.Threshold,
			&v.ThresholdVersion,
			&v.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}
