package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-iq/internal/domain"
)

// DraftRepository stores resolution drafts. Drafts are append-only.
type DraftRepository interface {
	// Create fails with ErrInvariantViolation when the attempt number is already taken.
	Create(ctx context.Context, draft *domain.ResolutionDraft) error
	// ListByTicket returns drafts ordered by attempt number.
	ListByTicket(ctx context.Context, ticketID string) ([]domain.ResolutionDraft, error)
}

type draftRepository struct {
	pool *pgxpool.Pool
}

// NewDraftRepository builds repository.
func NewDraftRepository(pool *pgxpool.Pool) DraftRepository {
	return &draftRepository{pool: pool}
}

func (r *draftRepository) Create(ctx context.Context, draft *domain.ResolutionDraft) error {
	const query = `
        INSERT INTO resolution_drafts (id, ticket_id, attempt, body, confidence, article_ids, degraded, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.pool.Exec(ctx, query,
		draft.ID,
		draft.TicketID,
		draft.Attempt,
		draft.Text,
		draft.Confidence,
		draft.ArticleIDs,
		draft.Degraded,
		draft.CreatedAt,
	)
	return uniqueAsInvariant(err, "draft attempt")
}

func (r *draftRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.ResolutionDraft, error) {
	const query = `
        SELECT id, ticket_id, attempt, body, confidence, article_ids, degraded, created_at
        FROM resolution_drafts WHERE ticket_id=$1 ORDER BY attempt ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ResolutionDraft
	for rows.Next() {
		var d domain.ResolutionDraft
		if err := rows.Scan(
			&d.ID,
			&d.TicketID,
			&d.Attempt,
			&d.Text,
			&d.Confidence,
			&d.ArticleIDs,
			&d.Degraded,
			&d.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}
