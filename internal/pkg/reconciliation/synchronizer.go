package reconciliation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"github.com/ManuelReschke/LedgerFox/app/repository"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/money"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentStatusFor maps a gateway transaction status to a payment status.
func PaymentStatusFor(transactionStatus string) string {
	switch transactionStatus {
	case models.TransactionStatusApproved:
		return models.PaymentStatusApproved
	case models.TransactionStatusProcessing:
		return models.PaymentStatusProcessing
	case models.TransactionStatusDeclined, models.TransactionStatusError:
		return models.PaymentStatusRejected
	case models.TransactionStatusCanceled:
		return models.PaymentStatusCanceled
	default:
		return models.PaymentStatusPending
	}
}

func paymentRank(status string) int {
	switch status {
	case models.PaymentStatusPending:
		return 0
	case models.PaymentStatusProcessing:
		return 1
	default:
		return 2
	}
}

// DeriveInvoiceStatus is the invoice status for a recomputed paid amount.
func DeriveInvoiceStatus(current string, paid, total decimal.Decimal, overdue bool) string {
	switch {
	case current == models.InvoiceStatusCanceled:
		return models.InvoiceStatusCanceled
	case paid.GreaterThanOrEqual(total):
		return models.InvoiceStatusPaid
	case paid.IsPositive():
		return models.InvoiceStatusPartiallyPaid
	case overdue:
		return models.InvoiceStatusOverdue
	case current == models.InvoiceStatusSent:
		return models.InvoiceStatusSent
	default:
		return models.InvoiceStatusPending
	}
}

// ApprovedTotal sums the gross amount of approved payments exactly.
func ApprovedTotal(payments []models.Payment) decimal.Decimal {
	total := decimal.Zero
	for i := range payments {
		if payments[i].IsApproved() {
			total = total.Add(payments[i].GrossAmount)
		}
	}
	return total
}

// SyncResult describes what ProcessPayment changed.
type SyncResult struct {
	Payment        *models.Payment
	PreviousStatus string
	Changed        bool
	Stale          bool
	Invoice        *models.Invoice
	InvoiceChanged bool
}

// Synchronizer propagates transaction status into payments and invoices.
type Synchronizer struct {
	repos *repository.Repositories
	now   func() time.Time
}

func NewSynchronizer(repos *repository.Repositories) *Synchronizer {
	return &Synchronizer{repos: repos, now: time.Now}
}

func (s *Synchronizer) with(repos *repository.Repositories) *Synchronizer {
	return &Synchronizer{repos: repos, now: s.now}
}

// ProcessPayment moves the payment linked to providerReference to the
// status implied by transactionStatus and recomputes its invoice, all in one
// storage transaction. It returns ErrNotFound when no payment is linked.
func (s *Synchronizer) ProcessPayment(ctx context.Context, tenantID uint, providerReference, transactionStatus, rejectionReason string, raw map[string]any) (*SyncResult, error) {
	var result *SyncResult
	err := s.repos.InTransaction(ctx, func(tx *repository.Repositories) error {
		var err error
		result, err = s.with(tx).processPayment(ctx, tenantID, providerReference, transactionStatus, rejectionReason, raw)
		return err
	})
	return result, err
}

func (s *Synchronizer) processPayment(ctx context.Context, tenantID uint, providerReference, transactionStatus, rejectionReason string, raw map[string]any) (*SyncResult, error) {
	payment, err := s.repos.Payment.FindByTransactionID(ctx, tenantID, providerReference)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: no payment for reference %s", ErrNotFound, providerReference)
	}
	if err != nil {
		return nil, err
	}

	// Lock the invoice before the payment changes so a dangling invoice
	// reference fails the whole transaction.
	inv, err := s.loadInvoice(ctx, payment.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("payment %d: %w", payment.ID, err)
	}

	result := &SyncResult{Payment: payment, PreviousStatus: payment.Status}
	next := PaymentStatusFor(transactionStatus)

	// Out-of-order deliveries never move a settled payment back to pending
	// or processing.
	if paymentRank(next) < paymentRank(payment.Status) {
		result.Stale = true
		log.Warnf("[Sync] Ignoring stale status %s for payment %d (currently %s)", next, payment.ID, payment.Status)
	} else {
		now := s.now()
		payment.Status = next
		payment.ProcessingAt = &now
		switch {
		case next == models.PaymentStatusApproved:
			if payment.ApprovedAt == nil {
				payment.ApprovedAt = &now
			}
			payment.RejectionReason = ""
		case result.PreviousStatus == models.PaymentStatusApproved:
			payment.ApprovedAt = nil
		}
		if next == models.PaymentStatusRejected && rejectionReason != "" {
			payment.RejectionReason = rejectionReason
		}
		if raw != nil {
			if b, err := json.Marshal(raw); err == nil {
				payment.GatewayPayload = datatypes.JSON(b)
			}
		}
		if err := s.repos.Payment.Save(ctx, payment); err != nil {
			return nil, err
		}
		result.Changed = result.PreviousStatus != next
	}

	inv, changed, err := s.recompute(ctx, inv)
	if err != nil {
		return nil, err
	}
	result.Invoice = inv
	result.InvoiceChanged = changed

	if result.Changed {
		log.Infow("payment status synchronized",
			"tenant", tenantID,
			"reference", providerReference,
			"payment", payment.ID,
			"from", result.PreviousStatus,
			"to", payment.Status,
			"invoice", payment.InvoiceID,
			"invoiceStatus", inv.Status,
		)
	}
	return result, nil
}

// RecomputeInvoice replaces the invoice's paid amount with the sum of its
// approved payments and derives its status. Running it again with the same
// payments changes nothing.
func (s *Synchronizer) RecomputeInvoice(ctx context.Context, invoiceID uint) (*models.Invoice, bool, error) {
	var (
		inv     *models.Invoice
		changed bool
	)
	err := s.repos.InTransaction(ctx, func(tx *repository.Repositories) error {
		var err error
		inv, changed, err = s.with(tx).recomputeInvoice(ctx, invoiceID)
		return err
	})
	return inv, changed, err
}

func (s *Synchronizer) recomputeInvoice(ctx context.Context, invoiceID uint) (*models.Invoice, bool, error) {
	inv, err := s.loadInvoice(ctx, invoiceID)
	if err != nil {
		return nil, false, err
	}
	return s.recompute(ctx, inv)
}

func (s *Synchronizer) loadInvoice(ctx context.Context, invoiceID uint) (*models.Invoice, error) {
	inv, err := s.repos.Invoice.GetForUpdate(ctx, invoiceID)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: invoice %d", ErrInvoiceMissing, invoiceID)
	}
	return inv, err
}

// recompute works on an invoice already locked by the caller.
func (s *Synchronizer) recompute(ctx context.Context, inv *models.Invoice) (*models.Invoice, bool, error) {
	payments, err := s.repos.Payment.ListByInvoice(ctx, inv.ID)
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	paid := money.Round(money.Clamp(ApprovedTotal(payments), decimal.Zero, inv.TotalAmount))
	status := DeriveInvoiceStatus(inv.Status, paid, inv.TotalAmount, inv.IsOverdue(now))

	paymentDate := inv.PaymentDate
	if status == models.InvoiceStatusPaid {
		if paymentDate == nil {
			paymentDate = &now
		}
	} else {
		paymentDate = nil
	}

	changed := !paid.Equal(inv.PaidAmount) || status != inv.Status || (paymentDate == nil) != (inv.PaymentDate == nil)
	if !changed {
		return inv, false, nil
	}

	before := inv.Status
	inv.PaidAmount = paid
	inv.Status = status
	inv.PaymentDate = paymentDate
	if err := s.repos.Invoice.Save(ctx, inv); err != nil {
		return nil, false, err
	}
	log.Infow("invoice recomputed",
		"tenant", inv.TenantID,
		"invoice", inv.ID,
		"from", before,
		"to", inv.Status,
		"paid", inv.PaidAmount.StringFixed(money.Scale),
		"total", inv.TotalAmount.StringFixed(money.Scale),
	)
	return inv, true, nil
}

// RecordRefund books a refund as a new approved payment with negated
// amounts. The original payment is left untouched.
func (s *Synchronizer) RecordRefund(ctx context.Context, tenantID, paymentID uint, amount decimal.Decimal, reason string) (*models.Payment, error) {
	var refund *models.Payment
	err := s.repos.InTransaction(ctx, func(tx *repository.Repositories) error {
		var err error
		refund, err = s.with(tx).recordRefund(ctx, tenantID, paymentID, amount, reason)
		return err
	})
	return refund, err
}

func (s *Synchronizer) recordRefund(ctx context.Context, tenantID, paymentID uint, amount decimal.Decimal, reason string) (*models.Payment, error) {
	amount = money.Round(amount)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: refund amount must be positive", ErrValidation)
	}
	original, err := s.repos.Payment.GetByID(ctx, tenantID, paymentID)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: payment %d", ErrNotFound, paymentID)
	}
	if err != nil {
		return nil, err
	}
	if original.Kind == models.PaymentKindRefund || !original.IsApproved() {
		return nil, fmt.Errorf("%w: only approved payments can be refunded", ErrValidation)
	}

	refunds, err := s.repos.Payment.ListRefundsOf(ctx, original.ID)
	if err != nil {
		return nil, err
	}
	refunded := decimal.Zero
	for _, r := range refunds {
		refunded = refunded.Add(r.GrossAmount.Neg())
	}
	if amount.GreaterThan(original.GrossAmount.Sub(refunded)) {
		return nil, fmt.Errorf("%w: refund %s exceeds refundable %s", ErrValidation,
			amount.StringFixed(money.Scale), original.GrossAmount.Sub(refunded).StringFixed(money.Scale))
	}

	now := s.now()
	refundOf := original.ID
	refund := &models.Payment{
		TenantID:      tenantID,
		InvoiceID:     original.InvoiceID,
		TransactionID: fmt.Sprintf("%s:refund:%d", original.TransactionID, len(refunds)+1),
		Kind:          models.PaymentKindRefund,
		Status:        models.PaymentStatusApproved,
		Method:        original.Method,
		GrossAmount:   amount.Neg(),
		Fee:           decimal.Zero,
		NetAmount:     amount.Neg(),
		ApprovedAt:    &now,
		ProcessingAt:  &now,
		RefundOfID:    &refundOf,
	}
	if reason != "" {
		if b, err := json.Marshal(map[string]string{"reason": reason}); err == nil {
			refund.GatewayPayload = datatypes.JSON(b)
		}
	}
	if err := s.repos.Payment.Create(ctx, refund); err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("%w: refund %s already recorded", ErrConflict, refund.TransactionID)
		}
		return nil, err
	}
	if _, _, err := s.recomputeInvoice(ctx, original.InvoiceID); err != nil {
		return nil, err
	}
	return refund, nil
}
