package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-iq/internal/domain"
)

// TicketFilter captures ticket search parameters.
type TicketFilter struct {
	CustomerID  *string
	Component   *string
	States      []domain.TicketState
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// ComponentCount is a ticket count for one component.
type ComponentCount struct {
	Component string `json:"component"`
	Count     int    `json:"count"`
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Count(ctx context.Context, filter TicketFilter) (int, error)
	// ListSimilar returns prior tickets ordered by descending similarity to text.
	ListSimilar(ctx context.Context, text, excludeID string, k int) ([]domain.Scored[domain.Ticket], error)
	// CountByComponent groups tickets created in [from, to) by component, largest first.
	CountByComponent(ctx context.Context, from, to time.Time) ([]ComponentCount, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, external_key, customer_id, tier, body, component, recurrence_count, sla_risk,
               state, attempts, disposition, created_at, updated_at, closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, external_key, customer_id, tier, body, component, recurrence_count, sla_risk,
                             state, attempts, disposition, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)`
	_, err := r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.ExternalKey,
		ticket.CustomerID,
		ticket.Tier,
		ticket.Body,
		ticket.Component,
		ticket.RecurrenceCount,
		ticket.SLARisk,
		ticket.State,
		ticket.Attempts,
		ticket.Disposition,
		ticket.CreatedAt,
	)
	return err
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET tier=$1, component=$2, recurrence_count=$3, sla_risk=$4, state=$5, attempts=$6,
            disposition=$7, closed_at=$8, updated_at=$9
        WHERE id=$10`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Tier,
		ticket.Component,
		ticket.RecurrenceCount,
		ticket.SLARisk,
		ticket.State,
		ticket.Attempts,
		ticket.Disposition,
		ticket.ClosedAt,
		ticket.UpdatedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(ticketScanTargets(&ticket)...); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	where, args := ticketWhere(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, where, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(ticketScanTargets(&ticket)...); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) Count(ctx context.Context, filter TicketFilter) (int, error) {
	where, args := ticketWhere(filter)
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE `+where, args...).Scan(&count)
	return count, err
}

func (r *ticketRepository) ListSimilar(ctx context.Context, text, excludeID string, k int) ([]domain.Scored[domain.Ticket], error) {
	tsq := orQuery(text)
	if tsq == "" || k <= 0 {
		return nil, nil
	}
	query := `
        SELECT ` + ticketColumns + `,
               ts_rank(to_tsvector('english', body), to_tsquery('english', $1), 32) AS score
        FROM tickets
        WHERE id <> $2 AND to_tsvector('english', body) @@ to_tsquery('english', $1)
        ORDER BY score DESC, created_at DESC
        LIMIT $3`
	rows, err := r.pool.Query(ctx, query, tsq, excludeID, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Scored[domain.Ticket]
	for rows.Next() {
		var scored domain.Scored[domain.Ticket]
		targets := append(ticketScanTargets(&scored.Record), &scored.Score)
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		result = append(result, scored)
	}
	return result, rows.Err()
}

func (r *ticketRepository) CountByComponent(ctx context.Context, from, to time.Time) ([]ComponentCount, error) {
	const query = `
        SELECT component, COUNT(*) FROM tickets
        WHERE component <> '' AND created_at >= $1 AND created_at < $2
        GROUP BY component ORDER BY COUNT(*) DESC, component ASC`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ComponentCount
	for rows.Next() {
		var cc ComponentCount
		if err := rows.Scan(&cc.Component, &cc.Count); err != nil {
			return nil, err
		}
		result = append(result, cc)
	}
	return result, rows.Err()
}

func ticketWhere(filter TicketFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("customer_id=$%d", len(args)))
	}
	if filter.Component != nil {
		args = append(args, *filter.Component)
		clauses = append(clauses, fmt.Sprintf("component=$%d", len(args)))
	}
	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, state := range filter.States {
			args = append(args, state)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("state IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at < $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func ticketScanTargets(ticket *domain.Ticket) []any {
	return []any{
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.CustomerID,
		&ticket.Tier,
		&ticket.Body,
		&ticket.Component,
		&ticket.RecurrenceCount,
		&ticket.SLARisk,
		&ticket.State,
		&ticket.Attempts,
		&ticket.Disposition,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	}
}
