package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-iq/internal/api/dto"
	"github.com/spec-kit/support-iq/internal/domain"
	"github.com/spec-kit/support-iq/internal/repository"
	"github.com/spec-kit/support-iq/internal/service"
	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
)

// TicketPipeline is the orchestrator surface used by ticket endpoints.
type TicketPipeline interface {
	Submit(ctx context.Context, input service.SubmitInput) (*domain.Ticket, error)
	Get(ctx context.Context, ticketID string) (*domain.AuditTrail, error)
	Cancel(ctx context.Context, ticketID string) (*domain.Ticket, error)
	List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, int, error)
}

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service TicketPipeline
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(pipeline TicketPipeline) *TicketsHandler {
	return &TicketsHandler{service: pipeline}
}

// SubmitTicket POST /v1/tickets.
func (h *TicketsHandler) SubmitTicket(c *fiber.Ctx) error {
	var req dto.SubmitTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.Submit(c.UserContext(), service.SubmitInput{
		ExternalKey:     req.ExternalKey,
		CustomerID:      req.CustomerID,
		Tier:            req.Tier,
		Body:            req.Body,
		Component:       req.Component,
		RecurrenceCount: req.RecurrenceCount,
		SLARisk:         req.SLARisk,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{
		"id":           ticket.ID,
		"external_key": ticket.ExternalKey,
		"state":        ticket.State,
	}})
}

// ListTickets GET /v1/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter, page, pageSize := parseTicketQuery(c)
	tickets, total, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{
		"data": items,
		"meta": fiber.Map{"total": total, "page": page, "page_size": pageSize},
	})
}

// GetTicket GET /v1/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	trail, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(trail)})
}

// CancelTicket POST /v1/tickets/:id/cancel.
func (h *TicketsHandler) CancelTicket(c *fiber.Ctx) error {
	ticket, err := h.service.Cancel(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

func parseTicketQuery(c *fiber.Ctx) (repository.TicketFilter, int, int) {
	filter := repository.TicketFilter{}
	if stateStr := c.Query("state"); stateStr != "" {
		for _, part := range strings.Split(stateStr, ",") {
			filter.States = append(filter.States, domain.TicketState(strings.TrimSpace(part)))
		}
	}
	if customer := c.Query("customer_id"); customer != "" {
		filter.CustomerID = &customer
	}
	if component := c.Query("component"); component != "" {
		filter.Component = &component
	}
	if from := parseTime(c.Query("created_from")); from != nil {
		filter.CreatedFrom = from
	}
	if to := parseTime(c.Query("created_to")); to != nil {
		filter.CreatedTo = to
	}
	page := parseInt(c.Query("page"), 1)
	if page < 1 {
		page = 1
	}
	pageSize := parseInt(c.Query("page_size"), 20)
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, page, pageSize
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:          ticket.ID,
		ExternalKey: ticket.ExternalKey,
		CustomerID:  ticket.CustomerID,
		Tier:        ticket.Tier,
		Component:   ticket.Component,
		State:       ticket.State,
		Attempts:    ticket.Attempts,
		Disposition: ticket.Disposition,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
		ClosedAt:    ticket.ClosedAt,
	}
}

func ticketDetail(trail *domain.AuditTrail) dto.TicketDetailResponse {
	resp := dto.TicketDetailResponse{
		TicketSummary:    ticketSummary(&trail.Ticket),
		Body:             trail.Ticket.Body,
		Triage:           make([]dto.TriageScoreResponse, 0, len(trail.Triage)),
		Drafts:           make([]dto.DraftResponse, 0, len(trail.Drafts)),
		Verdicts:         make([]dto.VerdictResponse, 0, len(trail.Verdicts)),
		Transitions:      make([]dto.TransitionResponse, 0, len(trail.Transitions)),
		RejectionReasons: trail.RejectionReasons(),
	}
	for _, s := range trail.Triage {
		resp.Triage = append(resp.Triage, dto.TriageScoreResponse{
			ID:              s.ID,
			TierScore:       s.TierScore,
			SLARisk:         s.SLARisk,
			RecurrenceScore: s.RecurrenceScore,
			RecurrenceCount: s.RecurrenceCount,
			Priority:        s.Priority,
			Label:           s.Label,
			Degraded:        s.Degraded,
			ComputedAt:      s.ComputedAt,
		})
	}
	for _, d := range trail.Drafts {
		resp.Drafts = append(resp.Drafts, dto.DraftResponse{
			ID:         d.ID,
			Attempt:    d.Attempt,
			Text:       d.Text,
			Confidence: d.Confidence,
			ArticleIDs: d.ArticleIDs,
			Degraded:   d.Degraded,
			CreatedAt:  d.CreatedAt,
		})
	}
	for _, v := range trail.Verdicts {
		resp.Verdicts = append(resp.Verdicts, dto.VerdictResponse{
			ID:               v.ID,
			DraftID:          v.DraftID,
			Attempt:          v.Attempt,
			Verdict:          v.Verdict,
			Reason:           v.Reason,
			Detail:           v.Detail,
			Threshold:        v.Threshold,
			ThresholdVersion: v.ThresholdVersion,
			CreatedAt:        v.CreatedAt,
		})
	}
	for _, t := range trail.Transitions {
		resp.Transitions = append(resp.Transitions, dto.TransitionResponse{
			From:      t.From,
			To:        t.To,
			Attempt:   t.Attempt,
			Reason:    t.Reason,
			CreatedAt: t.CreatedAt,
		})
	}
	if draft, ok := trail.AcceptedDraft(); ok {
		id := draft.ID
		resp.AcceptedDraftID = &id
	}
	return resp
}
