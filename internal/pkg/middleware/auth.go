package middleware

import (
	"github.com/ManuelReschke/LedgerFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

// RequireOperator ensures the operator auth middleware accepted the request.
func RequireOperator(c *fiber.Ctx) error {
	if !usercontext.IsAuthenticated(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "API key required",
		})
	}
	return c.Next()
}

// RequireWrite ensures the operator role may change alert state.
func RequireWrite(c *fiber.Ctx) error {
	op := usercontext.GetOperatorContext(c)
	if op.KeyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "API key required",
		})
	}
	if !op.CanWrite {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "role " + op.Role + " is read-only",
		})
	}
	return c.Next()
}
