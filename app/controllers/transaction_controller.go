package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/LedgerFox/app/repository"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/reconciliation"
)

type TransactionController struct {
	proc *reconciliation.Processor
	repo repository.GatewayTransactionRepository
}

func NewTransactionController(proc *reconciliation.Processor, repo repository.GatewayTransactionRepository) *TransactionController {
	return &TransactionController{proc: proc, repo: repo}
}

type registerTransactionRequest struct {
	Provider        string           `json:"provider" validate:"required,max=20"`
	Reference       string           `json:"reference" validate:"required,max=191"`
	Operation       string           `json:"operation" validate:"omitempty,oneof=charge refund validation"`
	Status          string           `json:"status" validate:"max=40"`
	Method          string           `json:"method" validate:"max=40"`
	GrossAmount     decimal.Decimal  `json:"gross_amount"`
	Fee             decimal.Decimal  `json:"fee"`
	NetAmount       *decimal.Decimal `json:"net_amount"`
	InvoiceID       *uint            `json:"invoice_id"`
	PaymentID       *uint            `json:"payment_id"`
	RequestPayload  map[string]any   `json:"request_payload"`
	ResponsePayload map[string]any   `json:"response_payload"`
}

type refundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"max=255"`
}

// HandleListTransactions returns the tenant's gateway transactions, newest first.
func (h *TransactionController) HandleListTransactions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	list, err := h.repo.List(c.UserContext(), operator(c).TenantID, repository.TransactionFilter{
		Status: c.Query("status"),
		Limit:  limit,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"transactions": list, "count": len(list)})
}

func (h *TransactionController) HandleGetTransaction(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid transaction id")
	}
	txn, err := h.repo.GetByID(c.UserContext(), operator(c).TenantID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "not_found", "Transaction not found")
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(txn)
}

// HandleRegisterTransaction records an API-initiated charge, refund or card
// validation. Disabled providers answer 501.
func (h *TransactionController) HandleRegisterTransaction(c *fiber.Ctx) error {
	var req registerTransactionRequest
	if err := bindJSON(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}
	txn, err := h.proc.RegisterTransaction(c.UserContext(), reconciliation.RegisterTransactionInput{
		TenantID:        operator(c).TenantID,
		Provider:        req.Provider,
		Reference:       req.Reference,
		Operation:       req.Operation,
		Status:          req.Status,
		Method:          req.Method,
		GrossAmount:     req.GrossAmount,
		Fee:             req.Fee,
		NetAmount:       req.NetAmount,
		InvoiceID:       req.InvoiceID,
		PaymentID:       req.PaymentID,
		RequestPayload:  req.RequestPayload,
		ResponsePayload: req.ResponsePayload,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(txn)
}

// HandleRefundPayment books a refund against an approved payment.
func (h *TransactionController) HandleRefundPayment(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid payment id")
	}
	var req refundRequest
	if err := bindJSON(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}
	refund, err := h.proc.Synchronizer().RecordRefund(c.UserContext(), operator(c).TenantID, id, req.Amount, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(refund)
}
