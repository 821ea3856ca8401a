package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-iq/internal/domain"
	"github.com/spec-kit/support-iq/internal/events"
	"github.com/spec-kit/support-iq/internal/feedback"
	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
)

// DeploymentInput describes a release reported by CI/CD.
type DeploymentInput struct {
	Service     string
	Description string
	DeployedAt  *time.Time
}

// IngestFeedback records a human judgment on an accepted ticket. The bool is
// false when an identical signal was already seen inside the dedupe window.
func (s *TicketService) IngestFeedback(ctx context.Context, ticketID string, judgment domain.Judgment, channel string) (*domain.FeedbackSignal, bool, error) {
	return s.feedback.Ingest(ctx, ticketID, judgment, channel, s.now())
}

// RecordDeployment stores a deployment event and evaluates the deployed
// service for a surge right away.
func (s *TicketService) RecordDeployment(ctx context.Context, input DeploymentInput) (*domain.DeploymentEvent, error) {
	service := strings.ToLower(strings.TrimSpace(input.Service))
	if service == "" {
		return nil, apperrors.NewValidationError("invalid deployment", map[string]any{"service": "required"})
	}
	now := s.now()
	deployedAt := now
	if input.DeployedAt != nil {
		deployedAt = *input.DeployedAt
	}
	if deployedAt.After(now) {
		return nil, apperrors.NewValidationError("invalid deployment", map[string]any{"deployed_at": "must not be in the future"})
	}

	event := domain.DeploymentEvent{
		ID:          uuid.NewString(),
		Service:     service,
		Description: strings.TrimSpace(input.Description),
		DeployedAt:  deployedAt,
		RecordedAt:  now,
	}
	if err := s.write(ctx, "record deployment", func(ctx context.Context) error {
		return s.store.Deployments.Create(ctx, &event)
	}); err != nil {
		return nil, err
	}
	s.logger.Info("deployment recorded", zap.String("service", service), zap.Time("deployed_at", deployedAt))

	s.evaluateSurge(ctx, service)
	return &event, nil
}

// RunFeedbackCycle runs one adaptation cycle and announces a changed threshold.
func (s *TicketService) RunFeedbackCycle(ctx context.Context) (feedback.CycleResult, error) {
	result, err := s.feedback.Cycle(ctx, s.now())
	if err != nil {
		return result, err
	}
	if result.Changed {
		s.publishEvent(ctx, events.Event{
			Type:    events.EventThresholdAdjusted,
			Payload: events.ThresholdAdjustedPayload{Previous: result.Previous, Current: result.Current},
		})
	}
	return result, nil
}

// Threshold returns the acceptance threshold currently in effect.
func (s *TicketService) Threshold() domain.Threshold {
	return s.feedback.Threshold()
}

// SweepSurges evaluates every active component and announces new alerts.
func (s *TicketService) SweepSurges(ctx context.Context) ([]domain.GhostTicketAlert, error) {
	if s.predictor == nil {
		return nil, nil
	}
	alerts, err := s.predictor.Sweep(ctx, s.now())
	for _, alert := range alerts {
		s.announceAlert(ctx, alert)
	}
	return alerts, err
}

// ListAlerts returns alerts raised since the given time, newest first.
func (s *TicketService) ListAlerts(ctx context.Context, since time.Time, limit int) ([]domain.GhostTicketAlert, error) {
	return s.store.Alerts.ListRecent(ctx, since, limit)
}

// evaluateSurge never fails the caller; a failed evaluation is retried by
// the next sweep.
func (s *TicketService) evaluateSurge(ctx context.Context, component string) {
	if s.predictor == nil || component == "" {
		return
	}
	evalCtx, cancel := context.WithTimeout(ctx, s.cfg.StageTimeout)
	alert, err := s.predictor.Evaluate(evalCtx, component, s.now())
	cancel()
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("surge evaluation failed", zap.String("component", component), zap.Error(err))
		}
		return
	}
	if alert != nil {
		s.announceAlert(ctx, *alert)
	}
}

func (s *TicketService) announceAlert(ctx context.Context, alert domain.GhostTicketAlert) {
	s.metrics.RecordAlert()
	s.publishEvent(ctx, events.Event{
		Type:    events.EventGhostTicketAlert,
		Payload: events.GhostTicketAlertPayload{Alert: alert},
	})
}
