package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/money"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/reconciliation"
	"gorm.io/gorm"
)

// Remediation names, recorded in results and audit entries.
const (
	RemediationReplayWebhook = "replay_webhook"
	RemediationRequeueExport = "requeue_export"
	RemediationRecompute     = "recompute_invoice"
	RemediationResyncPayment = "resync_payment"
	RemediationNone          = "none"
)

func (s *Service) remediate(ctx context.Context, alert *models.OperationalAlert, params map[string]any) (string, map[string]any, error) {
	switch alert.Type {
	case models.AlertTypeWebhookFailure:
		out, err := s.replayWebhook(ctx, alert)
		return RemediationReplayWebhook, out, err
	case models.AlertTypeExportFailure:
		out, err := s.requeueExport(ctx, alert)
		return RemediationRequeueExport, out, err
	case models.AlertTypeInvoiceSyncDrift:
		out, err := s.recomputeInvoice(ctx, alert)
		return RemediationRecompute, out, err
	case models.AlertTypeGatewayOrphan:
		out, err := s.resyncPayment(ctx, alert, params)
		return RemediationResyncPayment, out, err
	default:
		return RemediationNone, nil, errNoRemediation
	}
}

func (s *Service) replayWebhook(ctx context.Context, alert *models.OperationalAlert) (map[string]any, error) {
	if s.proc == nil {
		return nil, errNoRemediation
	}
	id, ok := payloadUint(alert.Payload, "webhook_event_id")
	if !ok {
		return nil, errMissingReference
	}
	res, err := s.proc.Replay(ctx, alert.TenantID, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"webhook_event_id": id,
		"duplicate":        res.Duplicate,
		"transaction_id":   res.TransactionID,
		"payment_linked":   res.PaymentLinked,
	}, nil
}

func (s *Service) requeueExport(ctx context.Context, alert *models.OperationalAlert) (map[string]any, error) {
	id, ok := payloadUint(alert.Payload, "export_job_id")
	if !ok {
		return nil, errMissingReference
	}
	err := s.repos.Monitor.RequeueExport(ctx, alert.TenantID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("export job %d is no longer in failed state", id)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"export_job_id": id, "status": models.ExportStatusQueued}, nil
}

func (s *Service) recomputeInvoice(ctx context.Context, alert *models.OperationalAlert) (map[string]any, error) {
	if s.proc == nil {
		return nil, errNoRemediation
	}
	id, ok := payloadUint(alert.Payload, "invoice_id")
	if !ok {
		return nil, errMissingReference
	}
	if _, err := s.repos.Invoice.GetByID(ctx, alert.TenantID, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("invoice %d not found", id)
		}
		return nil, err
	}
	inv, changed, err := s.proc.Synchronizer().RecomputeInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"invoice_id":  inv.ID,
		"status":      inv.Status,
		"paid_amount": inv.PaidAmount.StringFixed(money.Scale),
		"changed":     changed,
	}, nil
}

// resyncPayment re-runs payment synchronization for an orphaned gateway
// reference. params["payment_transaction_id"] points the reference at a
// payment booked under a different transaction id.
func (s *Service) resyncPayment(ctx context.Context, alert *models.OperationalAlert, params map[string]any) (map[string]any, error) {
	if s.proc == nil {
		return nil, errNoRemediation
	}
	ref, _ := alert.Payload["reference"].(string)
	if ref == "" {
		return nil, errMissingReference
	}
	txn, err := s.repos.Transaction.FindByReference(ctx, alert.TenantID, ref)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("gateway transaction %s not found", ref)
	}
	if err != nil {
		return nil, err
	}

	paymentRef := ref
	if v, ok := params["payment_transaction_id"].(string); ok && strings.TrimSpace(v) != "" {
		paymentRef = strings.TrimSpace(v)
	}
	res, err := s.proc.Synchronizer().ProcessPayment(ctx, alert.TenantID, paymentRef, txn.Status, "", nil)
	if errors.Is(err, reconciliation.ErrNotFound) {
		return nil, fmt.Errorf("no payment is linked to %s", paymentRef)
	}
	if err != nil {
		return nil, err
	}

	paymentID, invoiceID := res.Payment.ID, res.Payment.InvoiceID
	txn.PaymentID, txn.InvoiceID = &paymentID, &invoiceID
	if err := s.repos.Transaction.Save(ctx, txn); err != nil {
		return nil, err
	}
	return map[string]any{
		"reference":      ref,
		"payment_id":     paymentID,
		"payment_status": res.Payment.Status,
		"invoice_id":     invoiceID,
	}, nil
}

// payloadUint reads an id from a payload that may have gone through JSON.
func payloadUint(payload map[string]any, key string) (uint, bool) {
	switch v := payload[key].(type) {
	case uint:
		return v, v > 0
	case int:
		return uint(v), v > 0
	case int64:
		return uint(v), v > 0
	case float64:
		return uint(v), v > 0 && v == float64(uint(v))
	case json.Number:
		n, err := strconv.ParseUint(v.String(), 10, 64)
		return uint(n), err == nil && n > 0
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		return uint(n), err == nil && n > 0
	default:
		return 0, false
	}
}
