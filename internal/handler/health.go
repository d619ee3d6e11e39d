package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const healthTimeout = 2 * time.Second

// Check probes one dependency
type Check func(ctx context.Context) error

type HealthHandler struct {
	name   string
	checks map[string]Check
}

func NewHealthHandler(name string, checks map[string]Check) *HealthHandler {
	return &HealthHandler{name: name, checks: checks}
}

// Index handles GET /
func (h *HealthHandler) Index(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":      h.name,
		"timestamp": time.Now().Unix(),
	})
}

// Health handles GET /health. Degraded dependencies do not fail the probe.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	status := "ok"
	services := fiber.Map{}
	for name, check := range h.checks {
		healthy := check(ctx) == nil
		services[name] = healthy
		if !healthy {
			status = "degraded"
		}
	}

	return c.JSON(fiber.Map{
		"status":   status,
		"services": services,
	})
}
