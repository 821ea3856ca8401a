// Package resolver drafts candidate resolutions from knowledge-base context.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-iq/internal/domain"
	"github.com/spec-kit/support-iq/internal/inference"
	"github.com/spec-kit/support-iq/internal/repository"
	"github.com/spec-kit/support-iq/pkg/util/retry"
)

const systemPrompt = `You are a senior customer support engineer. Write a resolution the customer can follow without further help.
Use only the knowledge base context provided. Never promise refunds, credits or timelines you cannot guarantee.`

// directives tells the next attempt how to address the previous rejection.
var directives = map[domain.RejectionReason]string{
	domain.ReasonLowConfidence:   "The previous answer was not well supported. Ground every step in the knowledge base articles below and name the article you used.",
	domain.ReasonMissingStep:     "The previous answer lacked actionable steps. Give the fix as a numbered list with one action per step.",
	domain.ReasonPolicyViolation: "The previous answer contained prohibited content. Remove promises of refunds, credits, legal statements and internal details.",
	domain.ReasonLength:          "The previous answer had the wrong length. Keep it complete but concise.",
	domain.ReasonDuplicateDraft:  "The previous answer repeated an earlier one. Take a different approach and do not reuse its wording.",
	domain.ReasonOffTopic:        "The previous answer did not address the customer's problem. Respond to the issue described in the ticket directly.",
	domain.ReasonTimeout:         "The previous attempt timed out. Answer briefly.",
}

// Request is one Resolver invocation.
type Request struct {
	Ticket          domain.Ticket
	Attempt         int
	LastRejection   domain.RejectionReason
	RejectionDetail string
	PreviousDraft   *domain.ResolutionDraft
	Triage          *domain.TriageScore
}

// Dependencies wires the Resolver.
type Dependencies struct {
	Knowledge repository.KnowledgeRepository
	Client    inference.Client
	Articles  int
	MaxTokens int64
	Retry     retry.Policy
	Logger    *zap.Logger
}

// Resolver is stateless across tickets.
type Resolver struct {
	knowledge repository.KnowledgeRepository
	client    inference.Client
	articles  int
	maxTokens int64
	retry     retry.Policy
	logger    *zap.Logger
}

// New builds a Resolver.
func New(deps Dependencies) *Resolver {
	r := &Resolver{
		knowledge: deps.Knowledge,
		client:    deps.Client,
		articles:  deps.Articles,
		maxTokens: deps.MaxTokens,
		retry:     deps.Retry,
		logger:    deps.Logger,
	}
	if r.articles <= 0 {
		r.articles = 3
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// Resolve produces exactly one draft for req.Attempt. Knowledge retrieval
// failures leave the prompt without context; inference failures are returned.
func (r *Resolver) Resolve(ctx context.Context, req Request, now time.Time) (domain.ResolutionDraft, error) {
	logger := r.logger.With(zap.String("ticket_id", req.Ticket.ID), zap.Int("attempt", req.Attempt))

	passages, err := r.retrieve(ctx, logger, req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.ResolutionDraft{}, ctx.Err()
		}
		logger.Warn("knowledge retrieval failed; drafting without context", zap.Error(err))
	}

	inReq := BuildRequest(req, passages)
	inReq.MaxTokens = r.maxTokens

	gen, err := retry.Do(ctx, r.retry, logger, "inference generate", func(ctx context.Context) (inference.Generation, error) {
		return r.client.Generate(ctx, inReq)
	})
	if err != nil {
		return domain.ResolutionDraft{}, err
	}

	ids := make([]string, 0, len(passages))
	for _, p := range passages {
		ids = append(ids, p.ID)
	}

	logger.Debug("draft generated",
		zap.String("backend", r.client.Name()),
		zap.Float64("confidence", gen.Confidence),
		zap.Int("articles", len(ids)),
	)

	return domain.ResolutionDraft{
		ID:         uuid.NewString(),
		TicketID:   req.Ticket.ID,
		Attempt:    req.Attempt,
		Text:       strings.TrimSpace(gen.Text),
		Confidence: clamp01(gen.Confidence),
		ArticleIDs: ids,
		CreatedAt:  now,
	}, nil
}

// retrieve widens the article window after a low-confidence rejection.
func (r *Resolver) retrieve(ctx context.Context, logger *zap.Logger, req Request) ([]inference.Passage, error) {
	k := r.articles
	if req.LastRejection == domain.ReasonLowConfidence {
		k += req.Attempt - 1
	}
	query := req.Ticket.Body
	if req.Ticket.Component != "" {
		query = req.Ticket.Component + " " + query
	}
	scored, err := retry.Do(ctx, r.retry, logger, "search articles", func(ctx context.Context) ([]domain.Scored[domain.KBArticle], error) {
		return r.knowledge.SearchArticles(ctx, query, k)
	})
	if err != nil {
		return nil, err
	}
	passages := make([]inference.Passage, 0, len(scored))
	for _, s := range scored {
		passages = append(passages, inference.Passage{
			ID:      s.Record.ID,
			Title:   s.Record.Title,
			Content: s.Record.Content,
			Score:   s.Score,
		})
	}
	return passages, nil
}

// BuildRequest renders the prompt for an attempt. A rejected attempt always
// adds the directive for its reason and the text being replaced.
func BuildRequest(req Request, passages []inference.Passage) inference.Request {
	var dirs []string
	if req.LastRejection != domain.ReasonNone {
		if d, ok := directives[req.LastRejection]; ok {
			dirs = append(dirs, d)
		}
		if req.RejectionDetail != "" {
			dirs = append(dirs, "Reviewer note: "+req.RejectionDetail)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Customer tier: %s\n", req.Ticket.Tier)
	if req.Ticket.Component != "" {
		fmt.Fprintf(&b, "Affected component: %s\n", req.Ticket.Component)
	}
	if req.Triage != nil {
		fmt.Fprintf(&b, "Priority: %s (%.2f)\n", req.Triage.Label, req.Triage.Priority)
	}
	fmt.Fprintf(&b, "\nTicket:\n%s\n", req.Ticket.Body)

	if len(passages) > 0 {
		b.WriteString("\nKnowledge base context:\n")
		for i, p := range passages {
			fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, p.Title, p.Content)
		}
	}

	if req.PreviousDraft != nil && req.LastRejection != domain.ReasonNone {
		fmt.Fprintf(&b, "\nPrevious answer (attempt %d, rejected: %s):\n%s\n", req.PreviousDraft.Attempt, req.LastRejection, req.PreviousDraft.Text)
	}
	if len(dirs) > 0 {
		b.WriteString("\nInstructions for this attempt:\n")
		for _, d := range dirs {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}

	return inference.Request{
		System:     systemPrompt,
		Prompt:     b.String(),
		Passages:   passages,
		Directives: dirs,
		Attempt:    req.Attempt,
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
