package controllers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/LedgerFox/internal/pkg/alerts"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/gateway"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/reconciliation"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/usercontext"
)

var validate = validator.New()

func errorJSON(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// statusFor maps a domain error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, reconciliation.ErrUnauthorized):
		return fiber.StatusUnauthorized, "unauthorized"
	case errors.Is(err, reconciliation.ErrValidation),
		errors.Is(err, gateway.ErrUnknownProvider),
		errors.Is(err, alerts.ErrInvalidFilter):
		return fiber.StatusBadRequest, "bad_request"
	case errors.Is(err, reconciliation.ErrNotFound),
		errors.Is(err, alerts.ErrAlertNotFound):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, reconciliation.ErrConflict),
		errors.Is(err, alerts.ErrAlertResolved),
		errors.Is(err, alerts.ErrSweepInProgress):
		return fiber.StatusConflict, "conflict"
	case errors.Is(err, gateway.ErrProviderDisabled):
		return fiber.StatusNotImplemented, "provider_not_enabled"
	default:
		return fiber.StatusInternalServerError, "internal_server_error"
	}
}

func respondError(c *fiber.Ctx, err error) error {
	status, code := statusFor(err)
	message := err.Error()
	if status == fiber.StatusInternalServerError {
		log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
		message = "Internal error"
	}
	return errorJSON(c, status, code, message)
}

// bindJSON parses an optional JSON body into dst and validates it. The
// returned error is meant for the client.
func bindJSON(c *fiber.Ctx, dst any) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(dst); err != nil {
			return errors.New("invalid JSON body")
		}
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" "+fe.Tag())
			}
			return errors.New(strings.Join(fields, ", "))
		}
		return err
	}
	return nil
}

func paramID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func operator(c *fiber.Ctx) usercontext.OperatorContext {
	return usercontext.GetOperatorContext(c)
}
