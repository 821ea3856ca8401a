package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/spec-kit/support-iq/internal/config"
	"github.com/spec-kit/support-iq/internal/critic"
	"github.com/spec-kit/support-iq/internal/domain"
	"github.com/spec-kit/support-iq/internal/events"
	"github.com/spec-kit/support-iq/internal/feedback"
	"github.com/spec-kit/support-iq/internal/observability"
	"github.com/spec-kit/support-iq/internal/repository"
	"github.com/spec-kit/support-iq/internal/resolver"
	"github.com/spec-kit/support-iq/internal/surge"
	"github.com/spec-kit/support-iq/internal/triage"
	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
	"github.com/spec-kit/support-iq/pkg/util/retry"
)

// Transition reasons recorded on terminal states.
const (
	ReasonRetryBoundExceeded = "retry_bound_exceeded"
	ReasonStoreUnavailable   = "store_unavailable"
	ReasonWithdrawn          = "withdrawn_by_customer"
)

var (
	errWithdrawn = errors.New("ticket withdrawn")
	errShutdown  = errors.New("ticket service shutting down")
)

var allowedTransitions = map[domain.TicketState][]domain.TicketState{
	domain.TicketStateReceived: {
		domain.TicketStateTriaged, domain.TicketStateEscalated, domain.TicketStateCancelled, domain.TicketStateHalted,
	},
	domain.TicketStateTriaged: {
		domain.TicketStateDrafting, domain.TicketStateEscalated, domain.TicketStateCancelled, domain.TicketStateHalted,
	},
	domain.TicketStateDrafting: {
		domain.TicketStateCritiquing, domain.TicketStateEscalated, domain.TicketStateCancelled, domain.TicketStateHalted,
	},
	domain.TicketStateCritiquing: {
		domain.TicketStateAccepted, domain.TicketStateDrafting, domain.TicketStateEscalated,
		domain.TicketStateCancelled, domain.TicketStateHalted,
	},
}

func isValidTransition(from, to domain.TicketState) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TicketService is the orchestrator. It owns the only cross-stage state of a
// ticket and drives it through triage, the bounded resolve/critique loop and
// a terminal outcome. Stages of one ticket run strictly in sequence; tickets
// run concurrently up to PipelineConfig.MaxConcurrent.
type TicketService struct {
	store      *repository.Store
	scorer     *triage.Scorer
	resolver   *resolver.Resolver
	critic     *critic.Critic
	predictor  *surge.Predictor
	feedback   *feedback.Adapter
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	cfg        config.PipelineConfig
	retry      retry.Policy
	logger     *zap.Logger
	now        func() time.Time

	sem    *semaphore.Weighted
	base   context.Context
	stop   context.CancelCauseFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	runs   map[string]*pipelineRun
	closed bool
}

type pipelineRun struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
	// guarded by TicketService.mu
	launched  bool
	withdrawn bool
}

// TicketDependencies bundles the stages and stores used by the orchestrator.
type TicketDependencies struct {
	Store      *repository.Store
	Scorer     *triage.Scorer
	Resolver   *resolver.Resolver
	Critic     *critic.Critic
	Predictor  *surge.Predictor
	Feedback   *feedback.Adapter
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Config     config.PipelineConfig
	Retry      retry.Policy
	Logger     *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// SubmitInput describes an incoming ticket.
type SubmitInput struct {
	ExternalKey     string
	CustomerID      string
	Tier            domain.CustomerTier
	Body            string
	Component       string
	RecurrenceCount int
	// SLARisk overrides the computed SLA risk when set.
	SLARisk *float64
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	base, stop := context.WithCancelCause(context.Background())
	s := &TicketService{
		store:      deps.Store,
		scorer:     deps.Scorer,
		resolver:   deps.Resolver,
		critic:     deps.Critic,
		predictor:  deps.Predictor,
		feedback:   deps.Feedback,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		cfg:        deps.Config,
		retry:      deps.Retry,
		logger:     deps.Logger,
		now:        deps.Now,
		base:       base,
		stop:       stop,
		runs:       make(map[string]*pipelineRun),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.cfg.MaxAttempts <= 0 {
		s.cfg.MaxAttempts = 3
	}
	if s.cfg.MaxConcurrent <= 0 {
		s.cfg.MaxConcurrent = 1
	}
	if s.cfg.StageTimeout <= 0 {
		s.cfg.StageTimeout = 30 * time.Second
	}
	if s.retry.Timeout <= 0 {
		s.retry.Timeout = s.cfg.StageTimeout
	}
	s.sem = semaphore.NewWeighted(s.cfg.MaxConcurrent)
	return s
}

// Submit validates and persists a ticket in the received state, then starts
// its pipeline in the background. The returned ticket is a snapshot.
func (s *TicketService) Submit(ctx context.Context, input SubmitInput) (*domain.Ticket, error) {
	if err := validateSubmit(input); err != nil {
		return nil, err
	}

	now := s.now()
	ticket := domain.Ticket{
		ID:              uuid.NewString(),
		ExternalKey:     strings.TrimSpace(input.ExternalKey),
		CustomerID:      strings.TrimSpace(input.CustomerID),
		Tier:            domain.CustomerTier(strings.ToLower(string(input.Tier))),
		Body:            strings.TrimSpace(input.Body),
		Component:       strings.ToLower(strings.TrimSpace(input.Component)),
		RecurrenceCount: input.RecurrenceCount,
		SLARisk:         input.SLARisk,
		State:           domain.TicketStateReceived,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if ticket.ExternalKey == "" {
		ticket.ExternalKey = generateTicketKey()
	}

	// The run is visible to Cancel before the ticket is, so a cancellation
	// can never be overwritten by the pipeline's first transition.
	runCtx, run, err := s.register(ticket.ID)
	if err != nil {
		return nil, err
	}

	if err := s.write(ctx, "create ticket", func(ctx context.Context) error {
		return s.store.Tickets.Create(ctx, &ticket)
	}); err != nil {
		s.finish(ticket.ID, run)
		return nil, err
	}
	if err := s.write(ctx, "record transition", func(ctx context.Context) error {
		return s.store.Transitions.Create(ctx, &domain.Transition{
			ID:        uuid.NewString(),
			TicketID:  ticket.ID,
			To:        domain.TicketStateReceived,
			Reason:    "submitted",
			CreatedAt: now,
		})
	}); err != nil {
		s.finish(ticket.ID, run)
		return nil, err
	}

	s.metrics.RecordTransition(string(domain.TicketStateReceived))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketSubmitted,
		TicketID: ticket.ID,
		Payload: events.TicketSubmittedPayload{
			CustomerID: ticket.CustomerID,
			Tier:       ticket.Tier,
			Component:  ticket.Component,
		},
	})

	s.launch(runCtx, run, ticket)
	return &ticket, nil
}

func validateSubmit(input SubmitInput) error {
	details := map[string]any{}
	if strings.TrimSpace(input.CustomerID) == "" {
		details["customer_id"] = "required"
	}
	if strings.TrimSpace(input.Body) == "" {
		details["body"] = "required"
	}
	if input.RecurrenceCount < 0 {
		details["recurrence_count"] = "must not be negative"
	}
	if input.SLARisk != nil && (*input.SLARisk < 0 || *input.SLARisk > 1) {
		details["sla_risk"] = "must be within [0,1]"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid ticket", details)
	}
	return nil
}

func (s *TicketService) register(ticketID string) (context.Context, *pipelineRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, apperrors.NewConflict("ticket service is shutting down", nil)
	}
	ctx, cancel := context.WithCancelCause(s.base)
	run := &pipelineRun{cancel: cancel, done: make(chan struct{})}
	s.runs[ticketID] = run
	s.wg.Add(1)
	return ctx, run, nil
}

// launch starts the pipeline unless the ticket was withdrawn while Submit
// was still announcing it.
func (s *TicketService) launch(ctx context.Context, run *pipelineRun, ticket domain.Ticket) {
	s.mu.Lock()
	run.launched = true
	withdrawn := run.withdrawn
	s.mu.Unlock()
	if withdrawn {
		s.finish(ticket.ID, run)
		return
	}
	go func() {
		defer s.finish(ticket.ID, run)
		s.process(ctx, ticket)
	}()
}

// finish releases a run, including one whose ticket was never fully persisted.
func (s *TicketService) finish(ticketID string, run *pipelineRun) {
	s.mu.Lock()
	delete(s.runs, ticketID)
	s.mu.Unlock()
	run.cancel(nil)
	close(run.done)
	s.wg.Done()
}

func (s *TicketService) process(ctx context.Context, ticket domain.Ticket) {
	s.metrics.TicketStarted()
	defer s.metrics.TicketFinished()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.interrupted(ctx, &ticket)
		return
	}
	defer s.sem.Release(1)

	s.evaluateSurge(ctx, ticket.Component)

	if err := s.drive(ctx, &ticket); err != nil {
		s.fail(ctx, &ticket, err)
	}
}

// drive runs the pipeline to a terminal state. The attempt counter lives on
// the ticket, so the bound holds however the loop is entered.
func (s *TicketService) drive(ctx context.Context, t *domain.Ticket) error {
	score, err := s.triage(ctx, t)
	if err != nil {
		return err
	}
	if err := s.advance(ctx, t, domain.TicketStateTriaged, string(score.Label)); err != nil {
		return err
	}

	var (
		drafts  []domain.ResolutionDraft
		reasons []domain.RejectionReason
		last    *domain.CriticVerdict
	)
	for t.Attempts < s.cfg.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}

		t.Attempts++
		reason := fmt.Sprintf("attempt %d", t.Attempts)
		if last != nil {
			reason = string(last.Reason)
		}
		if err := s.advance(ctx, t, domain.TicketStateDrafting, reason); err != nil {
			return err
		}

		draft := s.resolve(ctx, *t, score, drafts, last)
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.write(ctx, "save draft", func(ctx context.Context) error {
			return s.store.Drafts.Create(ctx, &draft)
		}); err != nil {
			return err
		}
		if err := s.advance(ctx, t, domain.TicketStateCritiquing, ""); err != nil {
			return err
		}

		verdict := s.critique(ctx, *t, draft, drafts)
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.write(ctx, "save verdict", func(ctx context.Context) error {
			return s.store.Verdicts.Create(ctx, &verdict)
		}); err != nil {
			return err
		}
		s.metrics.RecordVerdict(string(verdict.Verdict), string(verdict.Reason))

		if verdict.Accepted() {
			return s.accept(ctx, t, draft, score)
		}
		drafts = append(drafts, draft)
		reasons = append(reasons, verdict.Reason)
		last = &verdict
	}

	return s.escalate(ctx, t, ReasonRetryBoundExceeded, reasons, score.Label)
}

func (s *TicketService) triage(ctx context.Context, t *domain.Ticket) (domain.TriageScore, error) {
	started := time.Now()
	stageCtx, cancel := context.WithTimeout(ctx, s.cfg.StageTimeout)
	score, err := s.scorer.Score(stageCtx, *t, s.now())
	cancel()
	s.metrics.RecordStage("triage", time.Since(started))

	if err != nil {
		if ctx.Err() != nil {
			return domain.TriageScore{}, ctx.Err()
		}
		s.logger.Warn("triage timed out; scoring by tier only", zap.String("ticket_id", t.ID), zap.Error(err))
		score = s.scorer.TierOnly(*t, s.now())
	}
	if err := s.write(ctx, "save triage score", func(ctx context.Context) error {
		return s.store.Triage.Create(ctx, &score)
	}); err != nil {
		return domain.TriageScore{}, err
	}
	return score, nil
}

// resolve always yields a draft for the current attempt. A failed or timed
// out generation becomes an empty degraded draft.
func (s *TicketService) resolve(ctx context.Context, t domain.Ticket, score domain.TriageScore, previous []domain.ResolutionDraft, last *domain.CriticVerdict) domain.ResolutionDraft {
	req := resolver.Request{Ticket: t, Attempt: t.Attempts, Triage: &score}
	if last != nil {
		req.LastRejection = last.Reason
		req.RejectionDetail = last.Detail
	}
	if n := len(previous); n > 0 {
		req.PreviousDraft = &previous[n-1]
	}

	started := time.Now()
	stageCtx, cancel := context.WithTimeout(ctx, s.cfg.StageTimeout)
	draft, err := s.resolver.Resolve(stageCtx, req, s.now())
	cancel()
	s.metrics.RecordStage("resolve", time.Since(started))
	if err == nil {
		return draft
	}

	if ctx.Err() == nil {
		s.logger.Warn("resolver failed; recording degraded draft",
			zap.String("ticket_id", t.ID), zap.Int("attempt", t.Attempts), zap.Error(err))
	}
	return domain.ResolutionDraft{
		ID:        uuid.NewString(),
		TicketID:  t.ID,
		Attempt:   t.Attempts,
		Degraded:  true,
		CreatedAt: s.now(),
	}
}

// critique always yields a verdict. Degraded drafts and critic failures are
// rejected with the timeout reason.
func (s *TicketService) critique(ctx context.Context, t domain.Ticket, draft domain.ResolutionDraft, previous []domain.ResolutionDraft) domain.CriticVerdict {
	threshold := s.feedback.Threshold()
	if draft.Degraded {
		return timeoutVerdict(draft, threshold, s.now(), "resolver did not produce a draft")
	}

	started := time.Now()
	stageCtx, cancel := context.WithTimeout(ctx, s.cfg.StageTimeout)
	verdict, err := s.critic.Evaluate(stageCtx, critic.Input{Ticket: t, Draft: draft, Previous: previous}, threshold, s.now())
	cancel()
	s.metrics.RecordStage("critique", time.Since(started))
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("critic failed; rejecting as timeout",
				zap.String("ticket_id", t.ID), zap.Int("attempt", draft.Attempt), zap.Error(err))
		}
		return timeoutVerdict(draft, threshold, s.now(), err.Error())
	}
	return verdict
}

func timeoutVerdict(draft domain.ResolutionDraft, threshold domain.Threshold, now time.Time, detail string) domain.CriticVerdict {
	return domain.CriticVerdict{
		ID:               uuid.NewString(),
		DraftID:          draft.ID,
		TicketID:         draft.TicketID,
		Attempt:          draft.Attempt,
		Verdict:          domain.VerdictReject,
		Reason:           domain.ReasonTimeout,
		Detail:           detail,
		Threshold:        threshold.Value,
		ThresholdVersion: threshold.Version,
		CreatedAt:        now,
	}
}

func (s *TicketService) accept(ctx context.Context, t *domain.Ticket, draft domain.ResolutionDraft, score domain.TriageScore) error {
	verdicts, err := retry.Do(ctx, s.retry, s.logger, "list verdicts", func(ctx context.Context) ([]domain.CriticVerdict, error) {
		return s.store.Verdicts.ListByTicket(ctx, t.ID)
	})
	if err != nil {
		return err
	}
	accepted := 0
	for _, v := range verdicts {
		if v.Accepted() {
			accepted++
		}
	}
	if accepted != 1 {
		return apperrors.NewInvariantViolation("ticket must have exactly one accepted draft", map[string]any{
			"ticket_id": t.ID,
			"accepted":  accepted,
		})
	}

	disposition := domain.DispositionDraftForApproval
	if draft.Confidence >= s.cfg.AutoResolveConfidence {
		disposition = domain.DispositionAutoResolve
	}
	t.Disposition = &disposition
	if err := s.advance(ctx, t, domain.TicketStateAccepted, string(disposition)); err != nil {
		return err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAccepted,
		TicketID: t.ID,
		Payload: events.TicketAcceptedPayload{
			DraftID:     draft.ID,
			Attempt:     draft.Attempt,
			Confidence:  draft.Confidence,
			Disposition: disposition,
		},
	})
	s.logger.Info("ticket accepted",
		zap.String("ticket_id", t.ID),
		zap.Int("attempt", draft.Attempt),
		zap.String("disposition", string(disposition)),
		zap.String("priority", string(score.Label)),
	)
	return nil
}

func (s *TicketService) escalate(ctx context.Context, t *domain.Ticket, reason string, reasons []domain.RejectionReason, label domain.PriorityLabel) error {
	if err := s.advance(ctx, t, domain.TicketStateEscalated, reason); err != nil {
		return err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketEscalated,
		TicketID: t.ID,
		Payload: events.TicketEscalatedPayload{
			Attempts:         t.Attempts,
			RejectionReasons: reasons,
			Priority:         label,
		},
	})
	s.logger.Info("ticket escalated",
		zap.String("ticket_id", t.ID),
		zap.String("reason", reason),
		zap.Int("attempts", t.Attempts),
	)
	return nil
}

// fail ends a pipeline that could not complete normally.
func (s *TicketService) fail(ctx context.Context, t *domain.Ticket, err error) {
	switch {
	case ctx.Err() != nil:
		s.interrupted(ctx, t)
	case errors.Is(err, apperrors.ErrInvariantViolation):
		s.halt(ctx, t, err)
	default:
		s.logger.Error("pipeline stage failed", zap.String("ticket_id", t.ID), zap.String("state", string(t.State)), zap.Error(err))
		finishCtx, cancel := s.detached(ctx)
		defer cancel()
		if escErr := s.escalate(finishCtx, t, ReasonStoreUnavailable, nil, ""); escErr != nil {
			s.logger.Error("could not escalate ticket", zap.String("ticket_id", t.ID), zap.Error(escErr))
		}
	}
}

func (s *TicketService) halt(ctx context.Context, t *domain.Ticket, cause error) {
	s.logger.Error("data invariant violated; halting ticket",
		zap.String("ticket_id", t.ID), zap.String("state", string(t.State)), zap.Error(cause))

	finishCtx, cancel := s.detached(ctx)
	defer cancel()
	state := t.State
	if !t.State.Terminal() {
		if err := s.advance(finishCtx, t, domain.TicketStateHalted, cause.Error()); err != nil {
			s.logger.Error("could not record halted state", zap.String("ticket_id", t.ID), zap.Error(err))
		}
	}
	s.publishEvent(finishCtx, events.Event{
		Type:     events.EventTicketHalted,
		TicketID: t.ID,
		Payload:  events.TicketHaltedPayload{State: state, Error: cause.Error()},
	})
}

// interrupted handles a cancelled pipeline. Withdrawals are recorded;
// shutdown leaves the ticket in its last persisted state.
func (s *TicketService) interrupted(ctx context.Context, t *domain.Ticket) {
	if !errors.Is(context.Cause(ctx), errWithdrawn) {
		s.logger.Warn("pipeline interrupted", zap.String("ticket_id", t.ID), zap.String("state", string(t.State)))
		return
	}
	finishCtx, cancel := s.detached(ctx)
	defer cancel()
	if err := s.advance(finishCtx, t, domain.TicketStateCancelled, ReasonWithdrawn); err != nil {
		s.logger.Error("could not record cancellation", zap.String("ticket_id", t.ID), zap.Error(err))
	}
}

func (s *TicketService) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StageTimeout)
}

// advance applies one lifecycle transition and records it.
func (s *TicketService) advance(ctx context.Context, t *domain.Ticket, to domain.TicketState, reason string) error {
	from := t.State
	if !isValidTransition(from, to) {
		return apperrors.NewInvariantViolation("invalid ticket transition", map[string]any{
			"ticket_id": t.ID,
			"from":      from,
			"to":        to,
		})
	}

	now := s.now()
	next := *t
	next.State = to
	next.UpdatedAt = now
	if to.Terminal() {
		next.ClosedAt = &now
	}
	if err := s.write(ctx, "update ticket", func(ctx context.Context) error {
		return s.store.Tickets.Update(ctx, &next)
	}); err != nil {
		return err
	}
	if err := s.write(ctx, "record transition", func(ctx context.Context) error {
		return s.store.Transitions.Create(ctx, &domain.Transition{
			ID:        uuid.NewString(),
			TicketID:  t.ID,
			From:      from,
			To:        to,
			Attempt:   next.Attempts,
			Reason:    reason,
			CreatedAt: now,
		})
	}); err != nil {
		return err
	}
	*t = next

	s.metrics.RecordTransition(string(to))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStateChanged,
		TicketID: t.ID,
		Payload: events.TicketStateChangedPayload{
			From:    from,
			To:      to,
			Attempt: next.Attempts,
			Reason:  reason,
		},
	})
	return nil
}

// Cancel withdraws a ticket. A running pipeline stops at its next
// suspension point and the in-progress artifact is discarded.
func (s *TicketService) Cancel(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	s.mu.Lock()
	run, running := s.runs[ticketID]
	if running && !run.launched {
		// Submit has not started the pipeline yet; it will see the flag and
		// skip it, so the cancellation is recorded here.
		run.withdrawn = true
		running = false
	}
	s.mu.Unlock()

	if running {
		run.cancel(errWithdrawn)
		select {
		case <-run.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.State == domain.TicketStateCancelled {
		return ticket, nil
	}
	if ticket.State.Terminal() {
		return nil, apperrors.NewConflict("ticket already finished", map[string]any{"state": ticket.State})
	}
	if err := s.advance(ctx, ticket, domain.TicketStateCancelled, ReasonWithdrawn); err != nil {
		return nil, err
	}
	return ticket, nil
}

// Get returns the ticket with its full audit trail.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*domain.AuditTrail, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	trail := &domain.AuditTrail{Ticket: *ticket}
	if trail.Triage, err = s.store.Triage.ListByTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	if trail.Drafts, err = s.store.Drafts.ListByTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	if trail.Verdicts, err = s.store.Verdicts.ListByTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	if trail.Transitions, err = s.store.Transitions.ListByTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	return trail, nil
}

// List returns tickets matching filter, newest first.
func (s *TicketService) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, int, error) {
	tickets, err := s.store.Tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Tickets.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

// Wait blocks until the ticket's pipeline is no longer running and returns
// its audit trail.
func (s *TicketService) Wait(ctx context.Context, ticketID string) (*domain.AuditTrail, error) {
	s.mu.Lock()
	run, running := s.runs[ticketID]
	s.mu.Unlock()
	if running {
		select {
		case <-run.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.Get(ctx, ticketID)
}

// Shutdown stops accepting tickets, interrupts running pipelines without
// cancelling their tickets and waits for them to return.
func (s *TicketService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop(errShutdown)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *TicketService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.store.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, err
	}
	return ticket, nil
}

func (s *TicketService) write(ctx context.Context, name string, op func(ctx context.Context) error) error {
	_, err := retry.Do(ctx, s.retry, s.logger, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func generateTicketKey() string {
	return "SIQ-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}
