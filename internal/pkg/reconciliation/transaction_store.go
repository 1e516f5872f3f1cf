package reconciliation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"github.com/ManuelReschke/LedgerFox/app/repository"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/gateway"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/money"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const maxWebhookHistory = 50

// UpsertInput is a webhook-driven transaction update.
type UpsertInput struct {
	TenantID        uint
	ConfigurationID uint
	Provider        string
	Event           gateway.CanonicalEvent
	RawPayload      map[string]any
}

// RegisterTransactionInput is an API-initiated transaction.
type RegisterTransactionInput struct {
	TenantID        uint
	ConfigurationID uint
	Provider        string
	Reference       string
	Operation       string
	Status          string
	Method          string
	GrossAmount     decimal.Decimal
	Fee             decimal.Decimal
	NetAmount       *decimal.Decimal
	InvoiceID       *uint
	PaymentID       *uint
	RequestPayload  map[string]any
	ResponsePayload map[string]any
}

// TransactionStore keeps one gateway transaction per (tenant, provider reference).
type TransactionStore struct {
	repo repository.GatewayTransactionRepository
	gate *gateway.ProviderGate
	now  func() time.Time
}

func NewTransactionStore(repo repository.GatewayTransactionRepository, gate *gateway.ProviderGate) *TransactionStore {
	return &TransactionStore{repo: repo, gate: gate, now: time.Now}
}

func (s *TransactionStore) with(repo repository.GatewayTransactionRepository) *TransactionStore {
	return &TransactionStore{repo: repo, gate: s.gate, now: s.now}
}

// Upsert applies a canonical webhook event to the transaction with the same
// provider reference, creating it on first sight. A create that loses a
// uniqueness race reloads the winner with a locking read and updates it.
func (s *TransactionStore) Upsert(ctx context.Context, in UpsertInput) (*models.GatewayTransaction, bool, error) {
	if err := s.gate.Check(in.Provider); err != nil {
		return nil, false, err
	}
	ref := strings.TrimSpace(in.Event.ProviderReference)
	if ref == "" {
		return nil, false, fmt.Errorf("%w: %v", ErrValidation, gateway.ErrMissingReference)
	}

	existing, err := s.repo.FindByReference(ctx, in.TenantID, ref)
	if err != nil && !isNotFound(err) {
		return nil, false, err
	}
	if existing != nil {
		if err := s.applyWebhook(existing, in); err != nil {
			return nil, false, err
		}
		return existing, false, s.repo.Save(ctx, existing)
	}

	txn := &models.GatewayTransaction{
		TenantID:          in.TenantID,
		ConfigurationID:   in.ConfigurationID,
		Provider:          gateway.NormalizeProvider(in.Provider),
		ProviderReference: ref,
	}
	if raw, err := json.Marshal(in.RawPayload); err == nil {
		txn.RequestPayload = datatypes.JSON(raw)
	}
	if err := s.applyWebhook(txn, in); err != nil {
		return nil, false, err
	}
	err = s.repo.Create(ctx, txn)
	if err == nil {
		return txn, true, nil
	}
	if !isDuplicate(err) {
		return nil, false, err
	}

	winner, err := s.repo.LockByReference(ctx, in.TenantID, ref)
	if err != nil {
		return nil, false, fmt.Errorf("%w: reload transaction %s: %v", ErrConflict, ref, err)
	}
	if err := s.applyWebhook(winner, in); err != nil {
		return nil, false, err
	}
	return winner, false, s.repo.Save(ctx, winner)
}

func (s *TransactionStore) applyWebhook(txn *models.GatewayTransaction, in UpsertInput) error {
	now := s.now()
	ev := in.Event
	txn.Status = ev.MappedStatus
	txn.Operation = models.TransactionOperationWebhook
	txn.Method = ev.MappedMethod
	txn.GrossAmount = ev.GrossAmount
	txn.Fee = ev.Fee
	txn.NetAmount = ev.NetAmount
	txn.ProcessedAt = &now
	if txn.ConfigurationID == 0 {
		txn.ConfigurationID = in.ConfigurationID
	}

	merged, err := mergeWebhookPayload(txn.ResponsePayload, in.RawPayload, ev, now)
	if err != nil {
		return err
	}
	txn.ResponsePayload = merged
	return nil
}

// mergeWebhookPayload stores the latest webhook under "webhook" and appends
// a short entry to "webhook_history", keeping every other key intact.
func mergeWebhookPayload(existing datatypes.JSON, raw map[string]any, ev gateway.CanonicalEvent, at time.Time) (datatypes.JSON, error) {
	snapshot := map[string]any{}
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &snapshot); err != nil {
			snapshot = map[string]any{"previous": string(existing)}
		}
	}
	snapshot["webhook"] = raw

	history, _ := snapshot["webhook_history"].([]any)
	history = append(history, map[string]any{
		"event_id":        ev.EventID,
		"external_status": ev.ExternalStatus,
		"status":          ev.MappedStatus,
		"received_at":     at.UTC().Format(time.RFC3339),
	})
	if len(history) > maxWebhookHistory {
		history = history[len(history)-maxWebhookHistory:]
	}
	snapshot["webhook_history"] = history

	out, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode response payload: %w", err)
	}
	return datatypes.JSON(out), nil
}

// Register creates or updates an API-initiated transaction. Disabled
// providers are refused before anything is written.
func (s *TransactionStore) Register(ctx context.Context, in RegisterTransactionInput) (*models.GatewayTransaction, error) {
	if err := s.gate.Check(in.Provider); err != nil {
		return nil, err
	}
	ref := strings.TrimSpace(in.Reference)
	if in.TenantID == 0 || ref == "" {
		return nil, fmt.Errorf("%w: tenant and reference are required", ErrValidation)
	}
	switch in.Operation {
	case models.TransactionOperationCharge, models.TransactionOperationRefund, models.TransactionOperationValidation:
	case "":
		in.Operation = models.TransactionOperationCharge
	default:
		return nil, fmt.Errorf("%w: unsupported operation %q", ErrValidation, in.Operation)
	}
	if in.GrossAmount.IsNegative() || in.Fee.IsNegative() {
		return nil, fmt.Errorf("%w: amounts must not be negative", ErrValidation)
	}

	status := in.Status
	if status == "" {
		status = models.TransactionStatusPending
	} else {
		status = gateway.MapStatus(status)
	}
	net := money.NonNegative(in.GrossAmount.Sub(in.Fee))
	if in.NetAmount != nil {
		net = *in.NetAmount
	}

	txn, err := s.repo.FindByReference(ctx, in.TenantID, ref)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if txn == nil {
		txn = &models.GatewayTransaction{
			TenantID:          in.TenantID,
			Provider:          gateway.NormalizeProvider(in.Provider),
			ProviderReference: ref,
		}
	}
	txn.ConfigurationID = in.ConfigurationID
	txn.Operation = in.Operation
	txn.Status = status
	txn.Method = gateway.MapMethod(in.Method)
	txn.GrossAmount = money.Round(in.GrossAmount)
	txn.Fee = money.Round(in.Fee)
	txn.NetAmount = money.Round(net)
	if in.InvoiceID != nil {
		txn.InvoiceID = in.InvoiceID
	}
	if in.PaymentID != nil {
		txn.PaymentID = in.PaymentID
	}
	if in.RequestPayload != nil {
		if raw, err := json.Marshal(in.RequestPayload); err == nil {
			txn.RequestPayload = datatypes.JSON(raw)
		}
	}
	if in.ResponsePayload != nil {
		if raw, err := json.Marshal(in.ResponsePayload); err == nil {
			txn.ResponsePayload = datatypes.JSON(raw)
		}
	}

	if txn.ID == 0 {
		if err := s.repo.Create(ctx, txn); err != nil {
			if isDuplicate(err) {
				return nil, fmt.Errorf("%w: transaction %s already registered", ErrConflict, ref)
			}
			return nil, err
		}
		return txn, nil
	}
	return txn, s.repo.Save(ctx, txn)
}
