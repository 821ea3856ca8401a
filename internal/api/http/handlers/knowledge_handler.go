package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-iq/internal/api/dto"
	"github.com/spec-kit/support-iq/internal/domain"
	"github.com/spec-kit/support-iq/internal/service"
	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
)

// KnowledgeBase maintains articles and customer profiles.
type KnowledgeBase interface {
	SaveArticle(ctx context.Context, in service.ArticleInput) (*domain.KBArticle, error)
	DraftGapArticles(ctx context.Context, lookback time.Duration, minTickets int) ([]domain.KBArticle, error)
	ApproveArticle(ctx context.Context, id string) (*domain.KBArticle, error)
	SaveProfile(ctx context.Context, in service.ProfileInput) (*domain.CustomerProfile, error)
}

// KnowledgeHandler serves the knowledge-base and customer endpoints.
type KnowledgeHandler struct {
	kb KnowledgeBase
}

// NewKnowledgeHandler constructs handler.
func NewKnowledgeHandler(kb KnowledgeBase) *KnowledgeHandler {
	return &KnowledgeHandler{kb: kb}
}

// SaveArticle POST /v1/kb/articles.
func (h *KnowledgeHandler) SaveArticle(c *fiber.Ctx) error {
	var req dto.ArticleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	article, err := h.kb.SaveArticle(c.UserContext(), service.ArticleInput{
		ID:        req.ID,
		Title:     req.Title,
		Content:   req.Content,
		Component: req.Component,
		Draft:     req.Draft,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": articleResponse(*article)})
}

// DraftGaps POST /v1/kb/drafts drafts an article for every knowledge gap.
func (h *KnowledgeHandler) DraftGaps(c *fiber.Ctx) error {
	req := dto.GapDraftRequest{Days: 30, MinTickets: 5}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	if req.Days < 1 {
		req.Days = 30
	}
	if req.MinTickets < 1 {
		req.MinTickets = 5
	}
	drafts, err := h.kb.DraftGapArticles(c.UserContext(), time.Duration(req.Days)*24*time.Hour, req.MinTickets)
	if err != nil {
		return err
	}
	items := make([]dto.ArticleResponse, 0, len(drafts))
	for _, a := range drafts {
		items = append(items, articleResponse(a))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ApproveArticle POST /v1/kb/articles/:id/approve.
func (h *KnowledgeHandler) ApproveArticle(c *fiber.Ctx) error {
	article, err := h.kb.ApproveArticle(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": articleResponse(*article)})
}

// SaveProfile POST /v1/customers.
func (h *KnowledgeHandler) SaveProfile(c *fiber.Ctx) error {
	var req dto.ProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	profile, err := h.kb.SaveProfile(c.UserContext(), service.ProfileInput{
		CustomerID:  req.CustomerID,
		CompanyName: req.CompanyName,
		Tier:        req.Tier,
		SLAHours:    req.SLAHours,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.ProfileResponse{
		CustomerID:  profile.CustomerID,
		CompanyName: profile.CompanyName,
		Tier:        profile.Tier,
		SLAHours:    profile.SLAHours,
	}})
}

func articleResponse(a domain.KBArticle) dto.ArticleResponse {
	return dto.ArticleResponse{
		ID:        a.ID,
		Title:     a.Title,
		Content:   a.Content,
		Component: a.Component,
		Weight:    a.Weight,
		Draft:     a.Draft,
		UpdatedAt: a.UpdatedAt,
	}
}
