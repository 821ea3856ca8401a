package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-iq/internal/observability"
	"github.com/spec-kit/support-iq/internal/persistence"
)

const readinessTimeout = 2 * time.Second

// HealthHandler serves liveness, readiness and the metrics snapshot.
type HealthHandler struct {
	serviceName string
	version     string
	postgres    *persistence.Postgres
	redis       *persistence.Redis
	metrics     *observability.Metrics
}

// NewHealthHandler returns a new handler instance. Nil stores are reported as
// disabled, which does not affect readiness.
func NewHealthHandler(serviceName, version string, postgres *persistence.Postgres, redis *persistence.Redis, metrics *observability.Metrics) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, postgres: postgres, redis: redis, metrics: metrics}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready pings the knowledge store and the threshold cache.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	checks := []struct {
		name    string
		enabled bool
		ping    func(context.Context) error
	}{
		{"postgres", h.postgres.PoolHandle() != nil, h.postgres.Ping},
		{"redis", h.redis != nil && h.redis.Client != nil, h.redis.Ping},
	}

	depStatus := fiber.Map{}
	ready := true
	for _, check := range checks {
		if !check.enabled {
			depStatus[check.name] = "disabled"
			continue
		}
		if err := check.ping(ctx); err != nil {
			depStatus[check.name] = err.Error()
			ready = false
			continue
		}
		depStatus[check.name] = "ok"
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DEPENDENCY_UNAVAILABLE",
				"message": "one or more dependencies unavailable",
				"details": depStatus,
			},
		})
	}
	return c.JSON(fiber.Map{
		"status":       "ready",
		"dependencies": depStatus,
	})
}

// Metrics reports in-process pipeline and request counters.
func (h *HealthHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}
