package controllers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ManuelReschke/LedgerFox/internal/pkg/reconciliation"
)

const webhookTimeout = 15 * time.Second

type WebhookController struct {
	proc *reconciliation.Processor
}

func NewWebhookController(proc *reconciliation.Processor) *WebhookController {
	return &WebhookController{proc: proc}
}

// HandleWebhook ingests POST /webhooks/:provider/:tenantId. The endpoint is
// unauthenticated; the payload signature is checked by the processor.
func (h *WebhookController) HandleWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	tenantID, err := strconv.ParseUint(c.Params("tenantId"), 10, 64)
	if err != nil || tenantID == 0 {
		return webhookError(c, reconciliation.WebhookResult{}, fiber.StatusBadRequest, "bad_request", "Invalid tenant id")
	}

	headers := make(map[string]string)
	for k, v := range c.GetReqHeaders() {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = v[0]
		}
	}
	requestID := firstHeaderValue(c, "X-Request-ID", "X-Correlation-ID")
	if requestID == "" {
		requestID = uuid.NewString()
		headers["x-request-id"] = requestID
	}
	c.Set("X-Request-ID", requestID)

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	result, err := h.proc.Handle(ctx, reconciliation.WebhookRequest{
		Provider:  c.Params("provider"),
		TenantID:  uint(tenantID),
		Body:      rawBody,
		Headers:   headers,
		RequestID: requestID,
	})
	if err != nil {
		status, code := statusFor(err)
		message := err.Error()
		if status == fiber.StatusInternalServerError {
			message = "Processing failed, retry later"
		}
		return webhookError(c, result, status, code, message)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

func webhookError(c *fiber.Ctx, result reconciliation.WebhookResult, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success":        false,
		"accepted":       false,
		"duplicate":      false,
		"eventId":        result.EventID,
		"idempotencyKey": result.IdempotencyKey,
		"error":          code,
		"message":        message,
	})
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(c.Get(k))
		if v != "" {
			return v
		}
	}
	return ""
}
