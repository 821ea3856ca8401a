// Package feedback adapts the Critic threshold and knowledge weighting from
// human judgments on resolved tickets.
package feedback

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-iq/internal/config"
	"github.com/spec-kit/support-iq/internal/domain"
	"github.com/spec-kit/support-iq/internal/repository"
	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
	"github.com/spec-kit/support-iq/pkg/util/retry"
)

// Dependencies wires the Adapter.
type Dependencies struct {
	Store     *repository.Store
	Holder    *Holder
	Publisher Publisher
	Deduper   Deduper
	Config    config.FeedbackConfig
	Retry     retry.Policy
	Logger    *zap.Logger
}

// CycleResult summarises one adaptation cycle.
type CycleResult struct {
	Previous        domain.Threshold
	Current         domain.Threshold
	Positive        int
	Total           int
	Changed         bool
	ArticlesUpdated int
}

// Adapter never edits signals or verdicts; it only derives new values from them.
type Adapter struct {
	store     *repository.Store
	holder    *Holder
	publisher Publisher
	deduper   Deduper
	cfg       config.FeedbackConfig
	retry     retry.Policy
	logger    *zap.Logger

	cycleMu sync.Mutex
}

// NewAdapter builds an Adapter.
func NewAdapter(deps Dependencies) *Adapter {
	a := &Adapter{
		store:     deps.Store,
		holder:    deps.Holder,
		publisher: deps.Publisher,
		deduper:   deps.Deduper,
		cfg:       deps.Config,
		retry:     deps.Retry,
		logger:    deps.Logger,
	}
	if a.publisher == nil {
		a.publisher = noopPublisher{}
	}
	if a.deduper == nil {
		a.deduper = NewMemoryDeduper()
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a
}

// Threshold returns the threshold currently in effect.
func (a *Adapter) Threshold() domain.Threshold {
	return a.holder.Current()
}

// Restore adopts a published threshold newer than the local one.
func (a *Adapter) Restore(ctx context.Context) error {
	t, err := a.publisher.Load(ctx)
	if err != nil {
		return apperrors.Transient("load threshold", err)
	}
	if t != nil && a.holder.replace(*t) {
		a.logger.Info("restored published threshold", zap.Int64("version", t.Version), zap.Float64("value", t.Value))
	}
	return nil
}

// Ingest records a judgment on an accepted ticket. Identical signals inside
// the dedupe window are dropped and reported as not recorded.
func (a *Adapter) Ingest(ctx context.Context, ticketID string, judgment domain.Judgment, channel string, now time.Time) (*domain.FeedbackSignal, bool, error) {
	if !judgment.Valid() {
		return nil, false, apperrors.NewValidationError("judgment must be positive or negative", map[string]any{"judgment": judgment})
	}
	if strings.TrimSpace(ticketID) == "" {
		return nil, false, apperrors.NewValidationError("ticket_id is required", nil)
	}

	ticket, err := retry.Do(ctx, a.retry, a.logger, "get ticket", func(ctx context.Context) (*domain.Ticket, error) {
		return a.store.Tickets.GetByID(ctx, ticketID)
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, false, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, false, err
	}
	if ticket.State != domain.TicketStateAccepted {
		return nil, false, apperrors.NewConflict("feedback is only accepted for resolved tickets", map[string]any{"state": ticket.State})
	}

	key := fmt.Sprintf("%s%s:%s:%s", a.cfg.DedupePrefix, ticketID, judgment, channel)
	first, err := a.deduper.FirstSeen(ctx, key, now, a.cfg.DedupeWindow)
	if err != nil {
		return nil, false, err
	}
	if !first {
		a.logger.Debug("duplicate feedback dropped", zap.String("ticket_id", ticketID), zap.String("channel", channel))
		return nil, false, nil
	}

	signal := &domain.FeedbackSignal{
		ID:         uuid.NewString(),
		TicketID:   ticketID,
		Judgment:   judgment,
		Channel:    channel,
		ReceivedAt: now,
	}
	if _, err := retry.Do(ctx, a.retry, a.logger, "create feedback", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.store.Feedback.Create(ctx, signal)
	}); err != nil {
		// The signal was not stored, so a resubmission must not count as a duplicate.
		if relErr := a.deduper.Release(context.WithoutCancel(ctx), key); relErr != nil {
			a.logger.Warn("feedback dedupe release failed", zap.String("ticket_id", ticketID), zap.Error(relErr))
		}
		return nil, false, err
	}
	return signal, true, nil
}

// Cycle aggregates the signals of [now-period, now), swaps in the next
// threshold and reweights the articles behind the judged resolutions.
func (a *Adapter) Cycle(ctx context.Context, now time.Time) (CycleResult, error) {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()

	signals, err := retry.Do(ctx, a.retry, a.logger, "list feedback", func(ctx context.Context) ([]domain.FeedbackSignal, error) {
		return a.store.Feedback.ListBetween(ctx, now.Add(-a.cfg.Period), now)
	})
	if err != nil {
		return CycleResult{}, err
	}

	positive := 0
	for _, s := range signals {
		if s.Judgment == domain.JudgmentPositive {
			positive++
		}
	}

	current := a.holder.Current()
	next := Next(a.cfg, current, positive, len(signals), now)
	result := CycleResult{Previous: current, Current: next, Positive: positive, Total: len(signals)}

	if next.Version != current.Version && a.holder.replace(next) {
		result.Changed = true
		if err := a.publisher.Publish(ctx, next); err != nil {
			a.logger.Warn("threshold publish failed", zap.Int64("version", next.Version), zap.Error(err))
		}
		a.logger.Info("acceptance threshold adjusted",
			zap.Int64("version", next.Version),
			zap.Float64("from", current.Value),
			zap.Float64("to", next.Value),
			zap.Float64("ratio", next.Ratio),
			zap.Int("samples", next.Samples),
		)
	}

	updated, err := a.reweight(ctx, signals, now)
	if err != nil {
		return result, err
	}
	result.ArticlesUpdated = updated
	return result, nil
}

type tally struct{ positive, total int }

// ArticleWeight is 2(p+1)/(n+2): 1 for an article without feedback, tending
// to 2 when every judgment is positive and to 0 when none is.
func ArticleWeight(positive, total int) float64 {
	return 2 * float64(positive+1) / float64(total+2)
}

func (a *Adapter) reweight(ctx context.Context, signals []domain.FeedbackSignal, now time.Time) (int, error) {
	byTicket := make(map[string][]domain.Judgment)
	for _, s := range signals {
		byTicket[s.TicketID] = append(byTicket[s.TicketID], s.Judgment)
	}

	tallies := make(map[string]*tally)
	for ticketID, judgments := range byTicket {
		articles, err := a.acceptedArticles(ctx, ticketID)
		if err != nil {
			return 0, err
		}
		for _, id := range articles {
			t, ok := tallies[id]
			if !ok {
				t = &tally{}
				tallies[id] = t
			}
			for _, j := range judgments {
				t.total++
				if j == domain.JudgmentPositive {
					t.positive++
				}
			}
		}
	}

	ids := make([]string, 0, len(tallies))
	for id := range tallies {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	updated := 0
	for _, id := range ids {
		t := tallies[id]
		weight := ArticleWeight(t.positive, t.total)
		_, err := retry.Do(ctx, a.retry, a.logger, "update article weight", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, a.store.Knowledge.UpdateArticleWeight(ctx, id, weight, now)
		})
		if repository.IsNotFound(err) {
			continue
		}
		if err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func (a *Adapter) acceptedArticles(ctx context.Context, ticketID string) ([]string, error) {
	verdicts, err := retry.Do(ctx, a.retry, a.logger, "list verdicts", func(ctx context.Context) ([]domain.CriticVerdict, error) {
		return a.store.Verdicts.ListByTicket(ctx, ticketID)
	})
	if err != nil {
		return nil, err
	}
	var draftID string
	for _, v := range verdicts {
		if v.Accepted() {
			draftID = v.DraftID
		}
	}
	if draftID == "" {
		return nil, nil
	}
	drafts, err := retry.Do(ctx, a.retry, a.logger, "list drafts", func(ctx context.Context) ([]domain.ResolutionDraft, error) {
		return a.store.Drafts.ListByTicket(ctx, ticketID)
	})
	if err != nil {
		return nil, err
	}
	for _, d := range drafts {
		if d.ID == draftID {
			return d.ArticleIDs, nil
		}
	}
	return nil, nil
}
