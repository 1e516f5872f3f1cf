package router

import (
	"context"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/LedgerFox/app/controllers"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/apidoc"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/middleware"
)

// ApiRouter serves the operator API under /api/v1. Every route needs an
// operator API key; state changes need a writing role. Requests are checked
// against the OpenAPI document, which is served without a key at
// /api/v1/docs.
type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	doc, err := apidoc.Load(context.Background())
	if err != nil {
		panic(err)
	}
	docJSON, err := apidoc.JSON(doc)
	if err != nil {
		panic(err)
	}

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath:    apidoc.BasePath + "/",
		FilePath:    "./openapi.json",
		FileContent: docJSON,
		Path:        "docs",
		Title:       "LedgerFox operator API",
	}))
	validate := middleware.OpenAPIValidator(doc, apidoc.BasePath)

	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "LedgerFox operator API",
		})
	})

	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware(h.deps.Repos.OperatorKey), middleware.RequireOperator)

	alertController := controllers.NewAlertController(h.deps.Alerts)
	v1.Get("/alerts", validate, alertController.HandleListAlerts)
	v1.Post("/alerts/recalculate", middleware.RequireWrite, validate, alertController.HandleRecalculateAlerts)
	v1.Get("/alerts/:id", validate, alertController.HandleGetAlert)
	v1.Post("/alerts/:id/ack", middleware.RequireWrite, validate, alertController.HandleAckAlert)
	v1.Post("/alerts/:id/resolve", middleware.RequireWrite, validate, alertController.HandleResolveAlert)
	v1.Post("/alerts/:id/reprocess", middleware.RequireWrite, validate, alertController.HandleReprocessAlert)

	transactionController := controllers.NewTransactionController(h.deps.Processor, h.deps.Repos.Transaction)
	v1.Get("/transactions", validate, transactionController.HandleListTransactions)
	v1.Post("/transactions", middleware.RequireWrite, validate, transactionController.HandleRegisterTransaction)
	v1.Get("/transactions/:id", validate, transactionController.HandleGetTransaction)
	v1.Post("/payments/:id/refunds", middleware.RequireWrite, validate, transactionController.HandleRefundPayment)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
