// Package critic is the quality gate deciding whether a draft is accepted.
package critic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-iq/internal/domain"
	"github.com/spec-kit/support-iq/internal/repository"
)

// Input is one evaluation. Previous holds the ticket's earlier drafts.
type Input struct {
	Ticket   domain.Ticket
	Draft    domain.ResolutionDraft
	Previous []domain.ResolutionDraft
}

// Critic evaluates drafts against Rules and a threshold version.
type Critic struct {
	rules     Rules
	knowledge repository.KnowledgeRepository
	logger    *zap.Logger
}

// New builds a Critic. knowledge is only used by the reference check.
func New(rules Rules, knowledge repository.KnowledgeRepository, logger *zap.Logger) *Critic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Critic{rules: rules, knowledge: knowledge, logger: logger}
}

// Evaluate returns the verdict for in.Draft. The hard rules run first; the
// draft is accepted only if they all pass and its confidence reaches
// threshold.Value. An error means the evaluation itself could not complete.
func (c *Critic) Evaluate(ctx context.Context, in Input, threshold domain.Threshold, now time.Time) (domain.CriticVerdict, error) {
	verdict := domain.CriticVerdict{
		ID:               uuid.NewString(),
		DraftID:          in.Draft.ID,
		TicketID:         in.Draft.TicketID,
		Attempt:          in.Draft.Attempt,
		Threshold:        threshold.Value,
		ThresholdVersion: threshold.Version,
		CreatedAt:        now,
	}

	reason, detail := c.hardRules(in)
	if reason == domain.ReasonNone && c.rules.Reference.Enabled && c.knowledge != nil {
		var err error
		reason, detail, err = c.reference(ctx, in.Draft)
		if err != nil {
			return domain.CriticVerdict{}, err
		}
	}
	if reason == domain.ReasonNone && in.Draft.Confidence < threshold.Value {
		reason = domain.ReasonLowConfidence
		detail = fmt.Sprintf("confidence %.2f below threshold %.2f (v%d)", in.Draft.Confidence, threshold.Value, threshold.Version)
	}

	if reason == domain.ReasonNone {
		verdict.Verdict = domain.VerdictAccept
	} else {
		verdict.Verdict = domain.VerdictReject
		verdict.Reason = reason
		verdict.Detail = detail
	}

	c.logger.Debug("draft evaluated",
		zap.String("ticket_id", verdict.TicketID),
		zap.Int("attempt", verdict.Attempt),
		zap.String("verdict", string(verdict.Verdict)),
		zap.String("reason", string(verdict.Reason)),
		zap.Int64("threshold_version", threshold.Version),
	)
	return verdict, nil
}

func (c *Critic) hardRules(in Input) (domain.RejectionReason, string) {
	text := in.Draft.Text
	lower := strings.ToLower(text)

	for _, phrase := range c.rules.Prohibited {
		if phrase != "" && strings.Contains(lower, phrase) {
			return domain.ReasonPolicyViolation, fmt.Sprintf("contains prohibited phrase %q", phrase)
		}
	}
	for _, req := range c.rules.Required {
		if req.re != nil && !req.re.MatchString(text) {
			return domain.ReasonMissingStep, fmt.Sprintf("missing required element %q", req.Name)
		}
	}

	words := len(strings.Fields(text))
	if words < c.rules.MinWords || (c.rules.MaxWords > 0 && words > c.rules.MaxWords) {
		return domain.ReasonLength, fmt.Sprintf("%d words, expected %d-%d", words, c.rules.MinWords, c.rules.MaxWords)
	}

	draftTokens := repository.Tokenize(text)
	for _, prev := range in.Previous {
		if prev.ID == in.Draft.ID || prev.Degraded || prev.Text == "" {
			continue
		}
		if sim := jaccard(draftTokens, repository.Tokenize(prev.Text)); sim >= c.rules.DuplicateSimilarity {
			return domain.ReasonDuplicateDraft, fmt.Sprintf("%.0f%% similar to attempt %d", sim*100, prev.Attempt)
		}
	}

	ticketTokens := repository.Tokenize(in.Ticket.Body)
	if len(ticketTokens) > 0 && c.rules.OffTopicMinOverlap > 0 {
		if cov := coverage(ticketTokens, draftTokens); cov < c.rules.OffTopicMinOverlap {
			return domain.ReasonOffTopic, fmt.Sprintf("reuses %.0f%% of the ticket vocabulary", cov*100)
		}
	}
	return domain.ReasonNone, ""
}

// reference rejects drafts unlike any knowledge-base article.
func (c *Critic) reference(ctx context.Context, draft domain.ResolutionDraft) (domain.RejectionReason, string, error) {
	matches, err := c.knowledge.SearchArticles(ctx, draft.Text, 1)
	if err != nil {
		return domain.ReasonNone, "", err
	}
	best := 0.0
	if len(matches) > 0 {
		a := matches[0].Record
		best = jaccard(repository.Tokenize(draft.Text), repository.Tokenize(a.Title+" "+a.Content))
	}
	if best < c.rules.Reference.MinSimilarity {
		return domain.ReasonLowConfidence, fmt.Sprintf("reference similarity %.2f below %.2f", best, c.rules.Reference.MinSimilarity), nil
	}
	return domain.ReasonNone, "", nil
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	inter := 0
	union := len(set)
	for _, t := range b {
		if _, ok := set[t]; ok {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

// coverage is the share of want found in have.
func coverage(want, have []string) float64 {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	found := 0
	for _, t := range want {
		if _, ok := set[t]; ok {
			found++
		}
	}
	return float64(found) / float64(len(want))
}
