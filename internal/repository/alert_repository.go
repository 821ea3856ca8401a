package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-iq/internal/domain"
)

// AlertRepository stores ghost ticket alerts.
type AlertRepository interface {
	Create(ctx context.Context, alert *domain.GhostTicketAlert) error
	// Exists reports whether an alert for component was already raised for the given
	// deployment, or, when deploymentID is nil, an uncorrelated one at or after since.
	Exists(ctx context.Context, component string, deploymentID *string, since time.Time) (bool, error)
	ListRecent(ctx context.Context, since time.Time, limit int) ([]domain.GhostTicketAlert, error)
}

type alertRepository struct {
	pool *pgxpool.Pool
}

// NewAlertRepository builds repository.
func NewAlertRepository(pool *pgxpool.Pool) AlertRepository {
	return &alertRepository{pool: pool}
}

func (r *alertRepository) Create(ctx context.Context, alert *domain.GhostTicketAlert) error {
	const query = `
        INSERT INTO ghost_ticket_alerts (id, component, window_start, window_end, deployment_id, observed_count,
                                         projected_rate, baseline, predicted_delta, confidence, below_saturation, raised_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := r.pool.Exec(ctx, query,
		alert.ID,
		alert.Component,
		alert.WindowStart,
		alert.WindowEnd,
		alert.DeploymentID,
		alert.ObservedCount,
		alert.ProjectedRate,
		alert.Baseline,
		alert.PredictedDelta,
		alert.Confidence,
		alert.BelowSaturation,
		alert.RaisedAt,
	)
	return err
}

func (r *alertRepository) Exists(ctx context.Context, component string, deploymentID *string, since time.Time) (bool, error) {
	var exists bool
	var err error
	if deploymentID != nil {
		err = r.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM ghost_ticket_alerts WHERE component=$1 AND deployment_id=$2)`,
			component, *deploymentID).Scan(&exists)
	} else {
		err = r.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM ghost_ticket_alerts WHERE component=$1 AND deployment_id IS NULL AND raised_at >= $2)`,
			component, since).Scan(&exists)
	}
	return exists, err
}

func (r *alertRepository) ListRecent(ctx context.Context, since time.Time, limit int) ([]domain.GhostTicketAlert, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
        SELECT id, component, window_start, window_end, deployment_id, observed_count, projected_rate,
               baseline, predicted_delta, confidence, below_saturation, raised_at
        FROM ghost_ticket_alerts WHERE raised_at >= $1 ORDER BY raised_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.GhostTicketAlert
	for rows.Next() {
		var a domain.GhostTicketAlert
		if err := rows.Scan(
			&a.ID,
			&a.Component,
			&a.WindowStart,
			&a.WindowEnd,
			&a.DeploymentID,
			&a.ObservedCount,
			&a.ProjectedRate,
			&a.Baseline,
			&a.PredictedDelta,
			&a.Confidence,
			&a.BelowSaturation,
			&a.RaisedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
