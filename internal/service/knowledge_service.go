package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-iq/internal/domain"
	"github.com/spec-kit/support-iq/internal/events"
	"github.com/spec-kit/support-iq/internal/repository"
	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
	"github.com/spec-kit/support-iq/pkg/util/retry"
)

const (
	gapDraftPrefix   = "kb-gap-"
	gapSampleTickets = 5
	gapPreviewRunes  = 160
)

// ArticleInput describes an operator-written knowledge-base article. An
// empty ID creates a new article.
type ArticleInput struct {
	ID        string
	Title     string
	Content   string
	Component string
	Draft     bool
}

// ProfileInput describes a customer's service level.
type ProfileInput struct {
	CustomerID  string
	CompanyName string
	Tier        domain.CustomerTier
	SLAHours    int
}

// KnowledgeService maintains the knowledge base and customer profiles the
// pipeline reads from. Drafts stay out of retrieval until approved.
type KnowledgeService struct {
	store      *repository.Store
	analytics  *AnalyticsService
	dispatcher events.Dispatcher
	retry      retry.Policy
	logger     *zap.Logger
	now        func() time.Time
}

// NewKnowledgeService builds the service.
func NewKnowledgeService(store *repository.Store, analytics *AnalyticsService, dispatcher events.Dispatcher, policy retry.Policy, logger *zap.Logger) *KnowledgeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KnowledgeService{
		store:      store,
		analytics:  analytics,
		dispatcher: dispatcher,
		retry:      policy,
		logger:     logger,
		now:        time.Now,
	}
}

// SaveArticle creates or replaces an article. Feedback-derived weight
// survives an edit.
func (s *KnowledgeService) SaveArticle(ctx context.Context, in ArticleInput) (*domain.KBArticle, error) {
	details := map[string]any{}
	if strings.TrimSpace(in.Title) == "" {
		details["title"] = "required"
	}
	if strings.TrimSpace(in.Content) == "" {
		details["content"] = "required"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid article", details)
	}

	article := domain.KBArticle{
		ID:        strings.TrimSpace(in.ID),
		Title:     strings.TrimSpace(in.Title),
		Content:   strings.TrimSpace(in.Content),
		Component: strings.ToLower(strings.TrimSpace(in.Component)),
		Weight:    1,
		Draft:     in.Draft,
		UpdatedAt: s.now(),
	}
	if article.ID == "" {
		article.ID = "kb-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	} else {
		existing, err := s.article(ctx, article.ID)
		if err != nil && !repository.IsNotFound(err) {
			return nil, err
		}
		if existing != nil {
			article.Weight = existing.Weight
		}
	}

	if err := s.upsert(ctx, &article); err != nil {
		return nil, err
	}
	s.logger.Info("knowledge article saved",
		zap.String("article_id", article.ID),
		zap.String("component", article.Component),
		zap.Bool("draft", article.Draft),
	)
	return &article, nil
}

// DraftGapArticles writes one draft per knowledge gap, outlining the recent
// tickets of the component, and announces each for review. A gap whose
// draft already exists gets the outline refreshed.
func (s *KnowledgeService) DraftGapArticles(ctx context.Context, lookback time.Duration, minTickets int) ([]domain.KBArticle, error) {
	gaps, err := s.analytics.KnowledgeGaps(ctx, lookback, minTickets)
	if err != nil {
		return nil, err
	}

	now := s.now()
	from := now.Add(-lookback)
	drafts := []domain.KBArticle{}
	for _, gap := range gaps {
		id := gapDraftPrefix + gap.Component
		existing, err := s.article(ctx, id)
		if err != nil && !repository.IsNotFound(err) {
			return drafts, err
		}
		if existing != nil && !existing.Draft {
			continue
		}

		component := gap.Component
		sample, err := s.store.Tickets.ListWithFilter(ctx, repository.TicketFilter{
			Component:   &component,
			CreatedFrom: &from,
			CreatedTo:   &now,
			Limit:       gapSampleTickets,
		})
		if err != nil {
			return drafts, err
		}

		draft := domain.KBArticle{
			ID:        id,
			Title:     "Troubleshooting " + gap.Component,
			Content:   gapOutline(gap, lookback, sample),
			Component: gap.Component,
			Weight:    1,
			Draft:     true,
			UpdatedAt: now,
		}
		if existing != nil {
			draft.Weight = existing.Weight
		}
		if err := s.upsert(ctx, &draft); err != nil {
			return drafts, err
		}
		drafts = append(drafts, draft)

		s.publish(ctx, events.Event{
			Type: events.EventKBDraftReady,
			Payload: events.KBDraftReadyPayload{
				ArticleID: draft.ID,
				Component: draft.Component,
				Title:     draft.Title,
				Tickets:   gap.Tickets,
			},
		})
	}
	s.logger.Info("knowledge gap drafts written", zap.Int("gaps", len(gaps)), zap.Int("drafts", len(drafts)))
	return drafts, nil
}

// ApproveArticle publishes a draft so retrieval and the critic can use it.
// Approving a published article is a no-op.
func (s *KnowledgeService) ApproveArticle(ctx context.Context, id string) (*domain.KBArticle, error) {
	article, err := s.article(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("article", map[string]any{"id": id})
		}
		return nil, err
	}
	if !article.Draft {
		return article, nil
	}
	article.Draft = false
	article.UpdatedAt = s.now()
	if err := s.upsert(ctx, article); err != nil {
		return nil, err
	}
	s.logger.Info("knowledge article approved", zap.String("article_id", id), zap.String("component", article.Component))
	return article, nil
}

// SaveProfile creates or replaces a customer profile.
func (s *KnowledgeService) SaveProfile(ctx context.Context, in ProfileInput) (*domain.CustomerProfile, error) {
	details := map[string]any{}
	if strings.TrimSpace(in.CustomerID) == "" {
		details["customer_id"] = "required"
	}
	if strings.TrimSpace(string(in.Tier)) == "" {
		details["tier"] = "required"
	}
	if in.SLAHours < 0 {
		details["sla_hours"] = "must not be negative"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid customer profile", details)
	}

	profile := domain.CustomerProfile{
		CustomerID:  strings.TrimSpace(in.CustomerID),
		CompanyName: strings.TrimSpace(in.CompanyName),
		Tier:        domain.CustomerTier(strings.ToLower(strings.TrimSpace(string(in.Tier)))),
		SLAHours:    in.SLAHours,
	}
	if _, err := retry.Do(ctx, s.retry, s.logger, "upsert profile", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.Knowledge.UpsertProfile(ctx, &profile)
	}); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *KnowledgeService) article(ctx context.Context, id string) (*domain.KBArticle, error) {
	return retry.Do(ctx, s.retry, s.logger, "get article", func(ctx context.Context) (*domain.KBArticle, error) {
		return s.store.Knowledge.GetArticle(ctx, id)
	})
}

func (s *KnowledgeService) upsert(ctx context.Context, article *domain.KBArticle) error {
	_, err := retry.Do(ctx, s.retry, s.logger, "upsert article", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.Knowledge.UpsertArticle(ctx, article)
	})
	return err
}

func (s *KnowledgeService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = s.now()
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func gapOutline(gap KBGap, lookback time.Duration, sample []domain.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s tickets in the last %d days had no matching article.\n\nReported symptoms:\n",
		gap.Tickets, gap.Component, int(lookback.Hours()/24))
	for _, t := range sample {
		fmt.Fprintf(&b, "- %s\n", preview(t.Body, gapPreviewRunes))
	}
	b.WriteString("\nReplace this outline with verified resolution steps before approving.")
	return b.String()
}

func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
