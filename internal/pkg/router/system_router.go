package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SystemRouter serves health and metrics endpoints.
type SystemRouter struct {
	deps Dependencies
}

func (h SystemRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", h.health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

func (h SystemRouter) health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	status := fiber.StatusOK
	checks := fiber.Map{}
	for name, check := range h.deps.HealthChecks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = fiber.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	state := "ok"
	if status != fiber.StatusOK {
		state = "degraded"
	}
	return c.Status(status).JSON(fiber.Map{"status": state, "checks": checks})
}

func NewSystemRouter(deps Dependencies) *SystemRouter {
	return &SystemRouter{deps: deps}
}
