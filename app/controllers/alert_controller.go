package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/LedgerFox/internal/pkg/alerts"
)

type AlertController struct {
	service *alerts.Service
}

func NewAlertController(service *alerts.Service) *AlertController {
	return &AlertController{service: service}
}

type alertNoteRequest struct {
	Note string `json:"note" validate:"max=1000"`
}

type alertReprocessRequest struct {
	Params map[string]any `json:"params"`
}

// HandleListAlerts returns the tenant's alerts filtered by status, severity and type.
func (h *AlertController) HandleListAlerts(c *fiber.Ctx) error {
	op := operator(c)
	list, err := h.service.List(c.UserContext(), op.TenantID, alerts.ListFilter{
		Status:   c.Query("status"),
		Severity: c.Query("severity"),
		Type:     c.Query("type"),
		Limit:    c.QueryInt("limit", 0),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"alerts": list, "count": len(list)})
}

// HandleGetAlert returns one alert with its audit trail.
func (h *AlertController) HandleGetAlert(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid alert id")
	}
	alert, err := h.service.Get(c.UserContext(), operator(c).TenantID, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(alert)
}

func (h *AlertController) HandleAckAlert(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid alert id")
	}
	var req alertNoteRequest
	if err := bindJSON(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}
	op := operator(c)
	alert, err := h.service.Ack(c.UserContext(), op.TenantID, id, op.Actor(), req.Note)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(alert)
}

func (h *AlertController) HandleResolveAlert(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid alert id")
	}
	var req alertNoteRequest
	if err := bindJSON(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}
	op := operator(c)
	alert, err := h.service.Resolve(c.UserContext(), op.TenantID, id, op.Actor(), req.Note)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(alert)
}

// HandleReprocessAlert runs the alert's remediation. A failed remediation is
// still a 200 with success=false in the body.
func (h *AlertController) HandleReprocessAlert(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid alert id")
	}
	var req alertReprocessRequest
	if err := bindJSON(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}
	op := operator(c)
	res, err := h.service.Reprocess(c.UserContext(), op.TenantID, id, op.Actor(), req.Params)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// HandleRecalculateAlerts runs a sweep for the operator's tenant.
func (h *AlertController) HandleRecalculateAlerts(c *fiber.Ctx) error {
	op := operator(c)
	res, err := h.service.Recalculate(c.UserContext(), op.TenantID, op.Actor())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}
