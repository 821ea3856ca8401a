package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-iq/internal/api/dto"
	"github.com/spec-kit/support-iq/internal/domain"
	"github.com/spec-kit/support-iq/internal/service"
	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
)

// SignalIngestor accepts feedback and deployment signals.
type SignalIngestor interface {
	IngestFeedback(ctx context.Context, ticketID string, judgment domain.Judgment, channel string) (*domain.FeedbackSignal, bool, error)
	RecordDeployment(ctx context.Context, input service.DeploymentInput) (*domain.DeploymentEvent, error)
}

// SignalsHandler exposes ingestion endpoints.
type SignalsHandler struct {
	service SignalIngestor
}

// NewSignalsHandler constructs handler.
func NewSignalsHandler(ingestor SignalIngestor) *SignalsHandler {
	return &SignalsHandler{service: ingestor}
}

// Feedback POST /v1/feedback. A signal dropped as a duplicate answers 200.
func (h *SignalsHandler) Feedback(c *fiber.Ctx) error {
	var req dto.FeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.TicketID) == "" {
		return apperrors.NewValidationError("ticket_id required", nil)
	}
	judgment := domain.Judgment(strings.ToLower(string(req.Judgment)))
	signal, recorded, err := h.service.IngestFeedback(c.UserContext(), req.TicketID, judgment, req.Channel)
	if err != nil {
		return err
	}
	if !recorded {
		return c.JSON(fiber.Map{"data": fiber.Map{"recorded": false, "duplicate": true}})
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": fiber.Map{
		"recorded":    true,
		"id":          signal.ID,
		"received_at": signal.ReceivedAt,
	}})
}

// Deployment POST /v1/deployments.
func (h *SignalsHandler) Deployment(c *fiber.Ctx) error {
	var req dto.DeploymentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	event, err := h.service.RecordDeployment(c.UserContext(), service.DeploymentInput{
		Service:     req.Service,
		Description: req.Description,
		DeployedAt:  req.DeployedAt,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": fiber.Map{
		"id":          event.ID,
		"service":     event.Service,
		"deployed_at": event.DeployedAt,
	}})
}
