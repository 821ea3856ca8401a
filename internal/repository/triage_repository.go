package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-iq/internal/domain"
)

// TriageRepository stores triage scores. Records are never updated.
type TriageRepository interface {
	Create(ctx context.Context, score *domain.TriageScore) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TriageScore, error)
}

type triageRepository struct {
	pool *pgxpool.Pool
}

// NewTriageRepository builds repository.
func NewTriageRepository(pool *pgxpool.Pool) TriageRepository {
	return &triageRepository{pool: pool}
}

func (r *triageRepository) Create(ctx context.Context, score *domain.TriageScore) error {
	const query = `
        INSERT INTO triage_scores (id, ticket_id, tier_score, sla_risk, recurrence_score, recurrence_count,
                                   weight_tier, weight_sla, weight_recurrence, priority, label, degraded, computed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err := r.pool.Exec(ctx, query,
		score.ID,
		score.TicketID,
		score.TierScore,
		score.SLARisk,
		score.RecurrenceScore,
		score.RecurrenceCount,
		score.Weights.Tier,
		score.Weights.SLA,
		score.Weights.Recurrence,
		score.Priority,
		score.Label,
		score.Degraded,
		score.ComputedAt,
	)
	return err
}

func (r *triageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TriageScore, error) {
	const query = `
        SELECT id, ticket_id, tier_score, sla_risk, recurrence_score, recurrence_count,
               weight_tier, weight_sla, weight_recurrence, priority, label, degraded, computed_at
        FROM triage_scores WHERE ticket_id=$1 ORDER BY computed_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TriageScore
	for rows.Next() {
		var s domain.TriageScore
		if err := rows.Scan(
			&s.ID,
			&s.TicketID,
			&s.TierScore,
			&s.SLARisk,
			&s.RecurrenceScore,
			&s.RecurrenceCount,
			&s.Weights.Tier,
			&s.Weights.SLA,
			&s.Weights.Recurrence,
			&s.Priority,
			&s.Label,
			&s.Degraded,
			&s.ComputedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
