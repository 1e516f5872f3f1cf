package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/money"
)

// finding is one offending condition instance.
type finding struct {
	Reference   string
	Severity    string
	Title       string
	Description string
	Payload     map[string]any
}

// monitor computes the current offending set for one alert type.
type monitor struct {
	Type   string
	Detect func(ctx context.Context, tenantID uint, now time.Time) ([]finding, error)
}

// MonitoredTypes lists the alert types produced by Recalculate, in sweep order.
func MonitoredTypes() []string {
	return []string{
		models.AlertTypePayableDueSoon,
		models.AlertTypePayableOverdue,
		models.AlertTypeBankBacklog,
		models.AlertTypeWebhookFailure,
		models.AlertTypeExportFailure,
		models.AlertTypeInvoiceSyncDrift,
		models.AlertTypeGatewayOrphan,
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (s *Service) monitors() []monitor {
	return []monitor{
		{Type: models.AlertTypePayableDueSoon, Detect: s.detectPayablesDueSoon},
		{Type: models.AlertTypePayableOverdue, Detect: s.detectPayablesOverdue},
		{Type: models.AlertTypeBankBacklog, Detect: s.detectBankBacklog},
		{Type: models.AlertTypeWebhookFailure, Detect: s.detectWebhookFailures},
		{Type: models.AlertTypeExportFailure, Detect: s.detectExportFailures},
		{Type: models.AlertTypeInvoiceSyncDrift, Detect: s.detectInvoiceDrift},
		{Type: models.AlertTypeGatewayOrphan, Detect: s.detectGatewayOrphans},
	}
}

func (s *Service) detectPayablesDueSoon(ctx context.Context, tenantID uint, now time.Time) ([]finding, error) {
	payables, err := s.repos.Monitor.ListOpenPayablesDueBefore(ctx, tenantID, now.Add(s.settings.DueSoonWindow))
	if err != nil {
		return nil, err
	}
	today := startOfDay(now)
	var out []finding
	for _, p := range payables {
		if p.DueDate.Before(today) {
			continue
		}
		out = append(out, finding{
			Reference:   fmt.Sprintf("account:%d:due_soon", p.ID),
			Severity:    models.AlertSeverityWarning,
			Title:       fmt.Sprintf("Account payable #%d is due soon", p.ID),
			Description: fmt.Sprintf("%s of %s is due on %s.", p.Description, p.Amount.StringFixed(money.Scale), p.DueDate.Format(time.DateOnly)),
			Payload: map[string]any{
				"account_payable_id": p.ID,
				"due_date":           p.DueDate.Format(time.DateOnly),
				"amount":             p.Amount.StringFixed(money.Scale),
			},
		})
	}
	return out, nil
}

func (s *Service) detectPayablesOverdue(ctx context.Context, tenantID uint, now time.Time) ([]finding, error) {
	payables, err := s.repos.Monitor.ListOpenPayablesDueBefore(ctx, tenantID, startOfDay(now))
	if err != nil {
		return nil, err
	}
	out := make([]finding, 0, len(payables))
	for _, p := range payables {
		days := int(startOfDay(now).Sub(startOfDay(p.DueDate)).Hours() / 24)
		out = append(out, finding{
			Reference:   fmt.Sprintf("account:%d:overdue", p.ID),
			Severity:    models.AlertSeverityCritical,
			Title:       fmt.Sprintf("Account payable #%d is overdue", p.ID),
			Description: fmt.Sprintf("%s of %s was due on %s (%d days ago).", p.Description, p.Amount.StringFixed(money.Scale), p.DueDate.Format(time.DateOnly), days),
			Payload: map[string]any{
				"account_payable_id": p.ID,
				"due_date":           p.DueDate.Format(time.DateOnly),
				"amount":             p.Amount.StringFixed(money.Scale),
				"days_overdue":       days,
			},
		})
	}
	return out, nil
}

func (s *Service) detectBankBacklog(ctx context.Context, tenantID uint, now time.Time) ([]finding, error) {
	lines, err := s.repos.Monitor.ListUnreconciledLinesBefore(ctx, tenantID, now.Add(-s.settings.BankLineMaxAge))
	if err != nil {
		return nil, err
	}
	out := make([]finding, 0, len(lines))
	for _, l := range lines {
		out = append(out, finding{
			Reference:   fmt.Sprintf("statement_line:%d:stale", l.ID),
			Severity:    models.AlertSeverityCritical,
			Title:       fmt.Sprintf("Bank statement line #%d is not reconciled", l.ID),
			Description: fmt.Sprintf("Line %q of %s posted on %s is still unreconciled.", l.Description, l.Amount.StringFixed(money.Scale), l.PostedAt.Format(time.DateOnly)),
			Payload: map[string]any{
				"statement_line_id": l.ID,
				"posted_at":         l.PostedAt.UTC().Format(time.RFC3339),
				"amount":            l.Amount.StringFixed(money.Scale),
			},
		})
	}
	return out, nil
}

func (s *Service) detectWebhookFailures(ctx context.Context, tenantID uint, now time.Time) ([]finding, error) {
	events, err := s.repos.WebhookEvent.ListFailedSince(ctx, tenantID, now.Add(-s.settings.FailureLookback))
	if err != nil {
		return nil, err
	}
	out := make([]finding, 0, len(events))
	for _, e := range events {
		out = append(out, finding{
			Reference:   fmt.Sprintf("webhook:%d:failed", e.ID),
			Severity:    models.AlertSeverityCritical,
			Title:       fmt.Sprintf("Webhook from %s failed", e.Provider),
			Description: fmt.Sprintf("Delivery %s failed after %d attempt(s): %s", e.IdempotencyKey, e.Attempts, e.ProcessingError),
			Payload: map[string]any{
				"webhook_event_id": e.ID,
				"provider":         e.Provider,
				"idempotency_key":  e.IdempotencyKey,
				"attempts":         e.Attempts,
				"error":            e.ProcessingError,
			},
		})
	}
	return out, nil
}

func (s *Service) detectExportFailures(ctx context.Context, tenantID uint, now time.Time) ([]finding, error) {
	jobs, err := s.repos.Monitor.ListFailedExportsSince(ctx, tenantID, now.Add(-s.settings.FailureLookback))
	if err != nil {
		return nil, err
	}
	out := make([]finding, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, finding{
			Reference:   fmt.Sprintf("export:%d:failed", j.ID),
			Severity:    models.AlertSeverityWarning,
			Title:       fmt.Sprintf("Export %s failed", j.Kind),
			Description: j.LastError,
			Payload: map[string]any{
				"export_job_id": j.ID,
				"kind":          j.Kind,
				"attempts":      j.Attempts,
				"error":         j.LastError,
			},
		})
	}
	return out, nil
}

func (s *Service) detectInvoiceDrift(ctx context.Context, tenantID uint, now time.Time) ([]finding, error) {
	drifts, err := s.repos.Invoice.ListDrift(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]finding, 0, len(drifts))
	for _, d := range drifts {
		out = append(out, finding{
			Reference:   fmt.Sprintf("invoice:%d:drift", d.InvoiceID),
			Severity:    models.AlertSeverityCritical,
			Title:       fmt.Sprintf("Invoice #%d paid amount is out of sync", d.InvoiceID),
			Description: fmt.Sprintf("Stored paid amount %s, approved payments sum to %s.", d.Stored.StringFixed(money.Scale), d.Calculated.StringFixed(money.Scale)),
			Payload: map[string]any{
				"invoice_id": d.InvoiceID,
				"stored":     d.Stored.StringFixed(money.Scale),
				"calculated": d.Calculated.StringFixed(money.Scale),
			},
		})
	}
	return out, nil
}

func (s *Service) detectGatewayOrphans(ctx context.Context, tenantID uint, now time.Time) ([]finding, error) {
	txns, err := s.repos.Transaction.ListUnlinked(ctx, tenantID, now.Add(-s.settings.OrphanGrace))
	if err != nil {
		return nil, err
	}
	out := make([]finding, 0, len(txns))
	for _, t := range txns {
		out = append(out, finding{
			Reference:   fmt.Sprintf("transaction:%s:orphan", t.ProviderReference),
			Severity:    models.AlertSeverityWarning,
			Title:       fmt.Sprintf("Gateway reference %s has no payment", t.ProviderReference),
			Description: fmt.Sprintf("%s transaction %s (%s, %s) is not linked to any payment.", t.Provider, t.ProviderReference, t.Status, t.GrossAmount.StringFixed(money.Scale)),
			Payload: map[string]any{
				"transaction_id": t.ID,
				"provider":       t.Provider,
				"reference":      t.ProviderReference,
				"status":         t.Status,
				"gross_amount":   t.GrossAmount.StringFixed(money.Scale),
			},
		})
	}
	return out, nil
}
