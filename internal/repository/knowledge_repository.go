package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-iq/internal/domain"
)

// KnowledgeRepository serves customer profiles and knowledge-base articles.
type KnowledgeRepository interface {
	GetProfile(ctx context.Context, customerID string) (*domain.CustomerProfile, error)
	UpsertProfile(ctx context.Context, profile *domain.CustomerProfile) error
	// SearchArticles returns published articles ordered by weighted relevance to text.
	SearchArticles(ctx context.Context, text string, k int) ([]domain.Scored[domain.KBArticle], error)
	GetArticle(ctx context.Context, id string) (*domain.KBArticle, error)
	UpsertArticle(ctx context.Context, article *domain.KBArticle) error
	UpdateArticleWeight(ctx context.Context, id string, weight float64, at time.Time) error
	// ArticleCountsByComponent counts published articles per component.
	ArticleCountsByComponent(ctx context.Context) (map[string]int, error)
}

type knowledgeRepository struct {
	pool *pgxpool.Pool
}

// NewKnowledgeRepository builds repository.
func NewKnowledgeRepository(pool *pgxpool.Pool) KnowledgeRepository {
	return &knowledgeRepository{pool: pool}
}

func (r *knowledgeRepository) GetProfile(ctx context.Context, customerID string) (*domain.CustomerProfile, error) {
	const query = `
        SELECT c.customer_id, c.company_name, c.tier, c.sla_hours,
               (SELECT COUNT(*) FROM tickets t WHERE t.customer_id = c.customer_id
                    AND t.state NOT IN ('accepted','escalated','cancelled','halted'))
        FROM customers c WHERE c.customer_id=$1`
	var p domain.CustomerProfile
	if err := r.pool.QueryRow(ctx, query, customerID).Scan(
		&p.CustomerID, &p.CompanyName, &p.Tier, &p.SLAHours, &p.OpenTickets,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *knowledgeRepository) UpsertProfile(ctx context.Context, profile *domain.CustomerProfile) error {
	const query = `
        INSERT INTO customers (customer_id, company_name, tier, sla_hours)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (customer_id) DO UPDATE
            SET company_name=EXCLUDED.company_name, tier=EXCLUDED.tier, sla_hours=EXCLUDED.sla_hours`
	_, err := r.pool.Exec(ctx, query, profile.CustomerID, profile.CompanyName, profile.Tier, profile.SLAHours)
	return err
}

func (r *knowledgeRepository) SearchArticles(ctx context.Context, text string, k int) ([]domain.Scored[domain.KBArticle], error) {
	tsq := orQuery(text)
	if tsq == "" || k <= 0 {
		return nil, nil
	}
	const query = `
        SELECT id, title, content, component, weight, draft, updated_at,
               ts_rank(to_tsvector('english', title || ' ' || content), to_tsquery('english', $1), 32) * weight AS score
        FROM kb_articles
        WHERE NOT draft AND to_tsvector('english', title || ' ' || content) @@ to_tsquery('english', $1)
        ORDER BY score DESC, id ASC
        LIMIT $2`
	rows, err := r.pool.Query(ctx, query, tsq, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Scored[domain.KBArticle]
	for rows.Next() {
		var s domain.Scored[domain.KBArticle]
		a := &s.Record
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &a.Component, &a.Weight, &a.Draft, &a.UpdatedAt, &s.Score); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *knowledgeRepository) GetArticle(ctx context.Context, id string) (*domain.KBArticle, error) {
	const query = `SELECT id, title, content, component, weight, draft, updated_at FROM kb_articles WHERE id=$1`
	var a domain.KBArticle
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Title, &a.Content, &a.Component, &a.Weight, &a.Draft, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *knowledgeRepository) UpsertArticle(ctx context.Context, article *domain.KBArticle) error {
	const query = `
        INSERT INTO kb_articles (id, title, content, component, weight, draft, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (id) DO UPDATE
            SET title=EXCLUDED.title, content=EXCLUDED.content, component=EXCLUDED.component,
                weight=EXCLUDED.weight, draft=EXCLUDED.draft, updated_at=EXCLUDED.updated_at`
	_, err := r.pool.Exec(ctx, query,
		article.ID,
		article.Title,
		article.Content,
		article.Component,
		article.Weight,
		article.Draft,
		article.UpdatedAt,
	)
	return err
}

func (r *knowledgeRepository) UpdateArticleWeight(ctx context.Context, id string, weight float64, at time.Time) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE kb_articles SET weight=$1, updated_at=$2 WHERE id=$3`, weight, at, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *knowledgeRepository) ArticleCountsByComponent(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT component, COUNT(*) FROM kb_articles WHERE NOT draft GROUP BY component`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var component string
		var n int
		if err := rows.Scan(&component, &n); err != nil {
			return nil, err
		}
		counts[component] = n
	}
	return counts, rows.Err()
}
