// Package triage computes the composite priority of an incoming ticket.
package triage

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-iq/internal/config"
	"github.com/spec-kit/support-iq/internal/domain"
	"github.com/spec-kit/support-iq/internal/repository"
	"github.com/spec-kit/support-iq/pkg/util/retry"
)

// RecurrenceFunc maps a count of similar prior tickets to [0,1]. It must be
// non-decreasing in n.
type RecurrenceFunc func(n int) float64

// SLARiskFunc maps time spent against the SLA budget to [0,1]. It must be
// non-decreasing in elapsed.
type SLARiskFunc func(elapsed, budget time.Duration) float64

// Saturating returns n/(n+half): 0 for no recurrence, 0.5 at half, approaching 1.
func Saturating(half float64) RecurrenceFunc {
	return func(n int) float64 {
		if n <= 0 {
			return 0
		}
		return float64(n) / (float64(n) + half)
	}
}

// LinearSLARisk is the share of the SLA budget already consumed, clamped to [0,1].
func LinearSLARisk(elapsed, budget time.Duration) float64 {
	if budget <= 0 {
		return 1
	}
	return clamp01(float64(elapsed) / float64(budget))
}

// Dependencies wires the scorer.
type Dependencies struct {
	Tickets    repository.TicketRepository
	Knowledge  repository.KnowledgeRepository
	Config     config.TriageConfig
	Retry      retry.Policy
	Logger     *zap.Logger
	Recurrence RecurrenceFunc
	SLARisk    SLARiskFunc
}

// Scorer computes TriageScore records. It holds no per-ticket state.
type Scorer struct {
	tickets    repository.TicketRepository
	knowledge  repository.KnowledgeRepository
	cfg        config.TriageConfig
	weights    domain.TriageWeights
	retry      retry.Policy
	logger     *zap.Logger
	recurrence RecurrenceFunc
	slaRisk    SLARiskFunc
}

// NewScorer builds a scorer, defaulting to the saturating recurrence curve and
// linear SLA risk.
func NewScorer(deps Dependencies) *Scorer {
	s := &Scorer{
		tickets:   deps.Tickets,
		knowledge: deps.Knowledge,
		cfg:       deps.Config,
		weights: domain.TriageWeights{
			Tier:       deps.Config.TierWeight,
			SLA:        deps.Config.SLAWeight,
			Recurrence: deps.Config.RecurrenceWeight,
		},
		retry:      deps.Retry,
		logger:     deps.Logger,
		recurrence: deps.Recurrence,
		slaRisk:    deps.SLARisk,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.recurrence == nil {
		s.recurrence = Saturating(deps.Config.RecurrenceHalf)
	}
	if s.slaRisk == nil {
		s.slaRisk = LinearSLARisk
	}
	return s
}

// Weights returns the configured coefficients.
func (s *Scorer) Weights() domain.TriageWeights {
	return s.weights
}

// TierScore maps a tier to its configured score. Unknown tiers score 0.
func (s *Scorer) TierScore(tier domain.CustomerTier) float64 {
	return s.cfg.TierScores[strings.ToLower(string(tier))]
}

// Score computes a TriageScore for ticket at now. Lookup failures never fail
// the call: the score falls back to the tier alone and is marked degraded.
// The returned error is non-nil only when ctx itself ended.
func (s *Scorer) Score(ctx context.Context, ticket domain.Ticket, now time.Time) (domain.TriageScore, error) {
	logger := s.logger.With(zap.String("ticket_id", ticket.ID))

	tier := ticket.Tier
	slaHours := s.cfg.DefaultSLAHours

	profile, profileErr := retry.Do(ctx, s.retry, logger, "customer profile", func(ctx context.Context) (*domain.CustomerProfile, error) {
		return s.knowledge.GetProfile(ctx, ticket.CustomerID)
	})
	switch {
	case profileErr == nil:
		if tier == "" {
			tier = profile.Tier
		}
		if profile.SLAHours > 0 {
			slaHours = profile.SLAHours
		}
	case repository.IsNotFound(profileErr):
		profileErr = nil
	}

	count, similarErr := s.recurrenceCount(ctx, ticket)

	if err := ctx.Err(); err != nil {
		return domain.TriageScore{}, err
	}

	score := domain.TriageScore{
		ID:         uuid.NewString(),
		TicketID:   ticket.ID,
		TierScore:  s.TierScore(tier),
		Weights:    s.weights,
		ComputedAt: now,
	}

	if profileErr != nil || similarErr != nil {
		logger.Warn("triage degraded to tier-only scoring",
			zap.NamedError("profile_error", profileErr),
			zap.NamedError("similarity_error", similarErr),
		)
		score.Degraded = true
	} else {
		score.RecurrenceCount = count
		score.RecurrenceScore = clamp01(s.recurrence(count))
		if ticket.SLARisk != nil {
			score.SLARisk = clamp01(*ticket.SLARisk)
		} else {
			budget := time.Duration(slaHours) * time.Hour
			score.SLARisk = clamp01(s.slaRisk(now.Sub(ticket.CreatedAt), budget))
		}
	}

	score.Priority = s.weights.Composite(score.TierScore, score.SLARisk, score.RecurrenceScore)
	score.Label = domain.LabelFor(score.Priority)
	return score, nil
}

// TierOnly is the degraded score used when scoring could not run at all.
func (s *Scorer) TierOnly(ticket domain.Ticket, now time.Time) domain.TriageScore {
	score := domain.TriageScore{
		ID:         uuid.NewString(),
		TicketID:   ticket.ID,
		TierScore:  s.TierScore(ticket.Tier),
		Weights:    s.weights,
		Degraded:   true,
		ComputedAt: now,
	}
	score.Priority = s.weights.Composite(score.TierScore, 0, 0)
	score.Label = domain.LabelFor(score.Priority)
	return score
}

// recurrenceCount counts prior tickets whose similarity reaches the
// configured minimum. Recurrence recorded on the ticket takes precedence.
func (s *Scorer) recurrenceCount(ctx context.Context, ticket domain.Ticket) (int, error) {
	if ticket.RecurrenceCount > 0 {
		return ticket.RecurrenceCount, nil
	}
	similar, err := retry.Do(ctx, s.retry, s.logger, "similar tickets", func(ctx context.Context) ([]domain.Scored[domain.Ticket], error) {
		return s.tickets.ListSimilar(ctx, ticket.Body, ticket.ID, s.cfg.SimilarLimit)
	})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sc := range similar {
		if sc.Score >= s.cfg.SimilarMinScore {
			n++
		}
	}
	return n, nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
