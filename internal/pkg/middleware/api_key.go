package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/LedgerFox/app/repository"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/usercontext"
)

// APIKeyAuthMiddleware authenticates requests carrying an operator API key
// of the form "<key id>.<secret>".
func APIKeyAuthMiddleware(keys repository.OperatorKeyRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}
		keyID, secret, ok := strings.Cut(apiKey, ".")
		if !ok || keyID == "" || secret == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Malformed API key"})
		}

		key, err := keys.GetByKeyID(c.UserContext(), keyID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
			}
			log.Errorf("[Auth] API key lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "API key verification failed"})
		}
		if !key.CheckSecret(secret) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
		}

		now := time.Now()
		if !key.IsUsable(now) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "API key revoked or expired"})
		}

		// Refresh last-used timestamp best-effort.
		if err := keys.TouchLastUsed(context.WithoutCancel(c.UserContext()), key.ID, now); err != nil {
			log.Warnf("[Auth] Failed to update last use of key %s: %v", key.KeyID, err)
		}

		c.Locals(usercontext.KeyOperator, usercontext.OperatorContext{
			KeyID:    key.KeyID,
			Name:     key.Name,
			TenantID: key.TenantID,
			Role:     key.Role,
			CanWrite: key.CanWrite(),
		})
		c.Locals(usercontext.KeyTenantID, key.TenantID)

		return c.Next()
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
