package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-iq/internal/api/dto"
	"github.com/spec-kit/support-iq/internal/domain"
	"github.com/spec-kit/support-iq/internal/feedback"
	"github.com/spec-kit/support-iq/internal/service"
)

// Operations is the operator surface of the orchestrator.
type Operations interface {
	ListAlerts(ctx context.Context, since time.Time, limit int) ([]domain.GhostTicketAlert, error)
	Threshold() domain.Threshold
	RunFeedbackCycle(ctx context.Context) (feedback.CycleResult, error)
}

// Analytics produces reports.
type Analytics interface {
	WeeklyReport(ctx context.Context) (*service.WeeklyReport, error)
	KnowledgeGaps(ctx context.Context, lookback time.Duration, minTickets int) ([]service.KBGap, error)
}

// OperationsHandler serves alerts, threshold and analytics endpoints.
type OperationsHandler struct {
	ops       Operations
	analytics Analytics
}

// NewOperationsHandler constructs handler.
func NewOperationsHandler(ops Operations, analytics Analytics) *OperationsHandler {
	return &OperationsHandler{ops: ops, analytics: analytics}
}

// Alerts GET /v1/alerts?since=RFC3339&limit=n. Defaults to the last 24 hours.
func (h *OperationsHandler) Alerts(c *fiber.Ctx) error {
	since := time.Now().Add(-24 * time.Hour)
	if t := parseTime(c.Query("since")); t != nil {
		since = *t
	}
	alerts, err := h.ops.ListAlerts(c.UserContext(), since, parseInt(c.Query("limit"), 50))
	if err != nil {
		return err
	}
	items := make([]dto.AlertResponse, 0, len(alerts))
	for _, a := range alerts {
		items = append(items, dto.AlertResponse{
			ID:              a.ID,
			Component:       a.Component,
			DeploymentID:    a.DeploymentID,
			WindowStart:     a.WindowStart,
			WindowEnd:       a.WindowEnd,
			ObservedCount:   a.ObservedCount,
			ProjectedRate:   a.ProjectedRate,
			Baseline:        a.Baseline,
			PredictedDelta:  a.PredictedDelta,
			Confidence:      a.Confidence,
			BelowSaturation: a.BelowSaturation,
			RaisedAt:        a.RaisedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Threshold GET /v1/threshold.
func (h *OperationsHandler) Threshold(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": thresholdResponse(h.ops.Threshold())})
}

// RunCycle POST /v1/threshold/cycle.
func (h *OperationsHandler) RunCycle(c *fiber.Ctx) error {
	result, err := h.ops.RunFeedbackCycle(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"previous":         thresholdResponse(result.Previous),
		"current":          thresholdResponse(result.Current),
		"positive":         result.Positive,
		"total":            result.Total,
		"changed":          result.Changed,
		"articles_updated": result.ArticlesUpdated,
	}})
}

// Weekly GET /v1/analytics/weekly.
func (h *OperationsHandler) Weekly(c *fiber.Ctx) error {
	report, err := h.analytics.WeeklyReport(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// KnowledgeGaps GET /v1/analytics/kb-gaps?days=30&min_tickets=5.
func (h *OperationsHandler) KnowledgeGaps(c *fiber.Ctx) error {
	days := parseInt(c.Query("days"), 30)
	if days < 1 {
		days = 30
	}
	minTickets := parseInt(c.Query("min_tickets"), 5)
	gaps, err := h.analytics.KnowledgeGaps(c.UserContext(), time.Duration(days)*24*time.Hour, minTickets)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": gaps})
}

func thresholdResponse(t domain.Threshold) dto.ThresholdResponse {
	return dto.ThresholdResponse{
		Version:    t.Version,
		Value:      t.Value,
		Ratio:      t.Ratio,
		Samples:    t.Samples,
		ComputedAt: t.ComputedAt,
	}
}
