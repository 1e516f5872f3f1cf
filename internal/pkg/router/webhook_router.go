package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/LedgerFox/app/controllers"
)

const defaultWebhookRateLimit = 300

// WebhookRouter serves the unauthenticated provider callbacks.
type WebhookRouter struct {
	deps Dependencies
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	budget := h.deps.WebhookRateLimit
	if budget <= 0 {
		budget = defaultWebhookRateLimit
	}
	limit := limiter.New(limiter.Config{
		Max:        budget,
		Expiration: time.Minute,
		Storage:    h.deps.LimiterStorage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "webhook:" + c.Params("provider") + ":" + c.Params("tenantId") + ":" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   "rate_limited",
				"message": "Too many webhook deliveries, retry later",
			})
		},
	})

	webhookController := controllers.NewWebhookController(h.deps.Processor)
	webhooks := app.Group("/webhooks")
	webhooks.Post("/:provider/:tenantId", limit, webhookController.HandleWebhook)
}

func NewWebhookRouter(deps Dependencies) *WebhookRouter {
	return &WebhookRouter{deps: deps}
}
