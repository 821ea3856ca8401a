package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-iq/internal/api/http/handlers"
	"github.com/spec-kit/support-iq/internal/auth"
	"github.com/spec-kit/support-iq/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Signals        *handlers.SignalsHandler
	Operations     *handlers.OperationsHandler
	Knowledge      *handlers.KnowledgeHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	app.Post("/auth/token", cfg.Auth.Token)

	v1 := app.Group("/v1")
	v1.Post("/tickets", cfg.Tickets.SubmitTicket)
	v1.Get("/tickets/:id", cfg.Tickets.GetTicket)
	v1.Post("/tickets/:id/cancel", cfg.Tickets.CancelTicket)

	ingest := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireRole(domain.ClientRoleIngest)}
	v1.Post("/feedback", append(ingest, cfg.Signals.Feedback)...)
	v1.Post("/deployments", append(ingest, cfg.Signals.Deployment)...)

	operator := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireRole(domain.ClientRoleOperator)}
	v1.Get("/tickets", append(operator, cfg.Tickets.ListTickets)...)
	v1.Get("/alerts", append(operator, cfg.Operations.Alerts)...)
	v1.Get("/threshold", append(operator, cfg.Operations.Threshold)...)
	v1.Post("/threshold/cycle", append(operator, cfg.Operations.RunCycle)...)
	v1.Get("/analytics/weekly", append(operator, cfg.Operations.Weekly)...)
	v1.Get("/analytics/kb-gaps", append(operator, cfg.Operations.KnowledgeGaps)...)
	v1.Post("/kb/articles", append(operator, cfg.Knowledge.SaveArticle)...)
	v1.Post("/kb/articles/:id/approve", append(operator, cfg.Knowledge.ApproveArticle)...)
	v1.Post("/kb/drafts", append(operator, cfg.Knowledge.DraftGaps)...)
	v1.Post("/customers", append(operator, cfg.Knowledge.SaveProfile)...)
}
