package router

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/LedgerFox/app/repository"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/alerts"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/reconciliation"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the services the routes are bound to.
type Dependencies struct {
	Repos     *repository.Repositories
	Processor *reconciliation.Processor
	Alerts    *alerts.Service
	// LimiterStorage backs the webhook rate limiter; nil keeps counters in memory.
	LimiterStorage fiber.Storage
	// WebhookRateLimit is the per-sender request budget per minute.
	WebhookRateLimit int
	// HealthChecks are run by GET /health, keyed by component name.
	HealthChecks map[string]func(ctx context.Context) error
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	setup(app, NewSystemRouter(deps), NewWebhookRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
