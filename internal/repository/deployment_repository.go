package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-iq/internal/domain"
)

// DeploymentRepository stores deployment events. Events are immutable.
type DeploymentRepository interface {
	Create(ctx context.Context, event *domain.DeploymentEvent) error
	GetByID(ctx context.Context, id string) (*domain.DeploymentEvent, error)
	// ListByService returns deployments of service in [from, to], most recent first.
	ListByService(ctx context.Context, service string, from, to time.Time) ([]domain.DeploymentEvent, error)
	// ListSince returns all deployments at or after from, most recent first.
	ListSince(ctx context.Context, from time.Time) ([]domain.DeploymentEvent, error)
}

type deploymentRepository struct {
	pool *pgxpool.Pool
}

// NewDeploymentRepository builds repository.
func NewDeploymentRepository(pool *pgxpool.Pool) DeploymentRepository {
	return &deploymentRepository{pool: pool}
}

const deploymentColumns = `id, service, description, deployed_at, recorded_at`

func (r *deploymentRepository) Create(ctx context.Context, event *domain.DeploymentEvent) error {
	const query = `
        INSERT INTO deployment_events (id, service, description, deployed_at, recorded_at)
        VALUES ($1,$2,$3,$4,$5)`
	_, err := r.pool.Exec(ctx, query, event.ID, event.Service, event.Description, event.DeployedAt, event.RecordedAt)
	return err
}

func (r *deploymentRepository) GetByID(ctx context.Context, id string) (*domain.DeploymentEvent, error) {
	var d domain.DeploymentEvent
	err := r.pool.QueryRow(ctx, `SELECT `+deploymentColumns+` FROM deployment_events WHERE id=$1`, id).
		Scan(&d.ID, &d.Service, &d.Description, &d.DeployedAt, &d.RecordedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *deploymentRepository) ListByService(ctx context.Context, service string, from, to time.Time) ([]domain.DeploymentEvent, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployment_events
        WHERE service=$1 AND deployed_at >= $2 AND deployed_at <= $3
        ORDER BY deployed_at DESC, recorded_at DESC`
	return r.list(ctx, query, service, from, to)
}

func (r *deploymentRepository) ListSince(ctx context.Context, from time.Time) ([]domain.DeploymentEvent, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployment_events
        WHERE deployed_at >= $1 ORDER BY deployed_at DESC`
	return r.list(ctx, query, from)
}

func (r *deploymentRepository) list(ctx context.Context, query string, args ...any) ([]domain.DeploymentEvent, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.DeploymentEvent
	for rows.Next() {
		var d domain.DeploymentEvent
		if err := rows.Scan(&d.ID, &d.Service, &d.Description, &d.DeployedAt, &d.RecordedAt); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}
