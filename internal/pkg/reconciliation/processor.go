package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"github.com/ManuelReschke/LedgerFox/app/repository"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/archive"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/events"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/gateway"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/metrics"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/money"
	"github.com/gofiber/fiber/v2/log"
)

// maxApplyAttempts bounds the storage transaction retries after a conflict.
const maxApplyAttempts = 2

// WebhookRequest is one inbound provider notification.
type WebhookRequest struct {
	Provider  string
	TenantID  uint
	Body      []byte
	Headers   map[string]string
	RequestID string
}

// WebhookResult is the response body of the webhook endpoint.
type WebhookResult struct {
	Success        bool    `json:"success"`
	Accepted       bool    `json:"accepted"`
	Duplicate      bool    `json:"duplicate"`
	EventID        *string `json:"eventId"`
	IdempotencyKey string  `json:"idempotencyKey"`

	TransactionID uint `json:"-"`
	PaymentLinked bool `json:"-"`
}

// ProcessorOptions wires the collaborators of a Processor.
type ProcessorOptions struct {
	Repos      *repository.Repositories
	Gate       *gateway.ProviderGate
	Mode       string
	StaleAfter time.Duration
	Archiver   archive.Archiver
	Publisher  events.Publisher
}

// Processor runs the webhook pipeline: provider gate, configuration,
// signature, ledger, normalization, transaction upsert and payment sync.
type Processor struct {
	repos     *repository.Repositories
	gate      *gateway.ProviderGate
	mode      string
	ledger    *Ledger
	store     *TransactionStore
	sync      *Synchronizer
	archiver  archive.Archiver
	publisher events.Publisher
	now       func() time.Time
}

func NewProcessor(opts ProcessorOptions) *Processor {
	if opts.Mode == "" {
		opts.Mode = models.GatewayModeSandbox
	}
	if opts.Archiver == nil {
		opts.Archiver = archive.NoopArchiver{}
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NoopPublisher{}
	}
	return &Processor{
		repos:     opts.Repos,
		gate:      opts.Gate,
		mode:      opts.Mode,
		ledger:    NewLedger(opts.Repos.WebhookEvent, opts.StaleAfter),
		store:     NewTransactionStore(opts.Repos.Transaction, opts.Gate),
		sync:      NewSynchronizer(opts.Repos),
		archiver:  opts.Archiver,
		publisher: opts.Publisher,
		now:       time.Now,
	}
}

// Ledger exposes the idempotency ledger used by the processor.
func (p *Processor) Ledger() *Ledger {
	return p.ledger
}

// Synchronizer exposes the payment synchronizer used by the processor.
func (p *Processor) Synchronizer() *Synchronizer {
	return p.sync
}

// TransactionStore exposes the transaction store used by the processor.
func (p *Processor) TransactionStore() *TransactionStore {
	return p.store
}

// Mode is the gateway environment whose configurations are used.
func (p *Processor) Mode() string {
	return p.mode
}

// RegisterTransaction records an API-initiated transaction against the
// tenant's active configuration for the provider.
func (p *Processor) RegisterTransaction(ctx context.Context, in RegisterTransactionInput) (*models.GatewayTransaction, error) {
	provider := gateway.NormalizeProvider(in.Provider)
	if err := p.gate.Check(provider); err != nil {
		return nil, err
	}
	cfg, err := p.repos.Configuration.FindActive(ctx, in.TenantID, provider, p.mode)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: no active %s configuration", ErrValidation, provider)
	}
	if err != nil {
		return nil, err
	}
	if err := p.checkLinks(ctx, in); err != nil {
		return nil, err
	}
	in.Provider = provider
	in.ConfigurationID = cfg.ID
	txn, err := p.store.Register(ctx, in)
	if err != nil {
		return nil, err
	}
	log.Infow("transaction registered",
		"tenant", in.TenantID,
		"provider", provider,
		"reference", txn.ProviderReference,
		"operation", txn.Operation,
		"status", txn.Status,
	)
	return txn, nil
}

// checkLinks refuses invoice and payment ids that are not the tenant's.
func (p *Processor) checkLinks(ctx context.Context, in RegisterTransactionInput) error {
	if in.InvoiceID != nil {
		_, err := p.repos.Invoice.GetByID(ctx, in.TenantID, *in.InvoiceID)
		if isNotFound(err) {
			return fmt.Errorf("%w: invoice %d not found", ErrValidation, *in.InvoiceID)
		}
		if err != nil {
			return err
		}
	}
	if in.PaymentID != nil {
		payment, err := p.repos.Payment.GetByID(ctx, in.TenantID, *in.PaymentID)
		if isNotFound(err) {
			return fmt.Errorf("%w: payment %d not found", ErrValidation, *in.PaymentID)
		}
		if err != nil {
			return err
		}
		if in.InvoiceID != nil && payment.InvoiceID != *in.InvoiceID {
			return fmt.Errorf("%w: payment %d does not belong to invoice %d", ErrValidation, payment.ID, *in.InvoiceID)
		}
	}
	return nil
}

// Handle authenticates and applies one webhook delivery.
//
// Client errors (unknown provider, bad signature, missing reference) are
// returned before state changes, except that a normalization failure leaves
// the ledger record failed. Any other failure marks the record failed and is
// returned so the provider retries.
func (p *Processor) Handle(ctx context.Context, req WebhookRequest) (WebhookResult, error) {
	start := p.now()
	provider := gateway.NormalizeProvider(req.Provider)
	result, err := p.handle(ctx, provider, req)
	metrics.ObserveWebhook(provider, time.Since(start).Seconds())
	metrics.IncWebhook(provider, outcome(result, err))
	return result, err
}

func (p *Processor) handle(ctx context.Context, provider string, req WebhookRequest) (WebhookResult, error) {
	var result WebhookResult
	if err := p.gate.Check(provider); err != nil {
		return result, err
	}
	if req.TenantID == 0 {
		return result, fmt.Errorf("%w: tenant id is required", ErrValidation)
	}

	cfg, err := p.repos.Configuration.FindActive(ctx, req.TenantID, provider, p.mode)
	if isNotFound(err) {
		log.Warnf("[Webhook] No active %s configuration for tenant %d (%s)", provider, req.TenantID, p.mode)
		return result, fmt.Errorf("%w: no active configuration", ErrUnauthorized)
	}
	if err != nil {
		return result, err
	}

	headers := gateway.NewHeaders(req.Headers)
	payload, parseErr := gateway.ParsePayload(req.Body)
	if !cfg.HasSecret() {
		return result, fmt.Errorf("%w: configuration has no webhook secret", ErrUnauthorized)
	}
	if headers.Get("x-signature") == "" {
		return result, fmt.Errorf("%w: missing signature", ErrUnauthorized)
	}
	if !gateway.VerifySignature(req.Body, payload, headers.Get("x-signature"), cfg.WebhookSecret) {
		log.Warnf("[Webhook] Invalid signature for %s tenant %d (request %s)", provider, req.TenantID, req.RequestID)
		return result, fmt.Errorf("%w: signature mismatch", ErrUnauthorized)
	}
	if parseErr != nil {
		return result, fmt.Errorf("%w: %v", ErrValidation, parseErr)
	}

	result.IdempotencyKey = ResolveKey(req.TenantID, provider, payload, headers)
	eventID := headers.Get("x-event-id")
	if eventID == "" {
		eventID = gateway.EventIDFromPayload(payload)
	}
	if eventID != "" {
		result.EventID = &eventID
	}

	begin, err := p.ledger.Begin(ctx, LedgerEntry{
		TenantID:        req.TenantID,
		Provider:        provider,
		Key:             result.IdempotencyKey,
		ProviderEventID: eventID,
		RequestID:       req.RequestID,
		PayloadJSON:     string(req.Body),
	})
	if err != nil {
		return result, err
	}
	if begin.Duplicate {
		log.Infow("webhook duplicate",
			"tenant", req.TenantID,
			"provider", provider,
			"idempotencyKey", result.IdempotencyKey,
		)
		result.Success, result.Accepted, result.Duplicate = true, true, true
		return result, nil
	}

	if _, err := p.archiver.Archive(ctx, archive.Record{
		TenantID:       req.TenantID,
		Provider:       provider,
		IdempotencyKey: result.IdempotencyKey,
		RequestID:      req.RequestID,
		Body:           req.Body,
		ReceivedAt:     p.now(),
	}); err != nil {
		log.Warnf("[Webhook] Archive failed for event %d: %v", begin.Event.ID, err)
	}

	return p.process(ctx, begin.Event, cfg, payload, headers, result)
}

// Replay re-runs the stored payload of a ledger record. The payload was
// verified when it was first received, so the signature is not checked again.
func (p *Processor) Replay(ctx context.Context, tenantID, webhookEventID uint) (WebhookResult, error) {
	var result WebhookResult
	event, err := p.repos.WebhookEvent.GetByID(ctx, webhookEventID)
	if isNotFound(err) || (err == nil && event.TenantID != tenantID) {
		return result, fmt.Errorf("%w: webhook event %d", ErrNotFound, webhookEventID)
	}
	if err != nil {
		return result, err
	}

	result.IdempotencyKey = event.IdempotencyKey
	if event.ProviderEventID != "" {
		id := event.ProviderEventID
		result.EventID = &id
	}
	if event.IsTerminal() {
		result.Success, result.Accepted, result.Duplicate = true, true, true
		return result, nil
	}
	if err := p.gate.Check(event.Provider); err != nil {
		return result, err
	}
	cfg, err := p.repos.Configuration.FindActive(ctx, tenantID, event.Provider, p.mode)
	if isNotFound(err) {
		return result, fmt.Errorf("%w: no active configuration", ErrUnauthorized)
	}
	if err != nil {
		return result, err
	}
	payload, err := gateway.ParsePayload([]byte(event.PayloadJSON))
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := p.ledger.Claim(ctx, event); err != nil {
		return result, err
	}

	headers := gateway.Headers{}
	if event.ProviderEventID != "" {
		headers["x-event-id"] = event.ProviderEventID
	}
	log.Infof("[Webhook] Replaying event %d (tenant %d, attempt %d)", event.ID, tenantID, event.Attempts)
	return p.process(ctx, event, cfg, payload, headers, result)
}

type applied struct {
	txn     *models.GatewayTransaction
	created bool
	sync    *SyncResult
}

func (p *Processor) process(ctx context.Context, event *models.WebhookEvent, cfg *models.GatewayConfiguration, payload map[string]any, headers gateway.Headers, result WebhookResult) (WebhookResult, error) {
	ev, err := gateway.Normalize(payload, headers)
	if err != nil {
		p.ledger.Fail(ctx, event.ID, err)
		return result, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !cfg.AllowsMethod(ev.MappedMethod) {
		log.Warnf("[Webhook] Method %s is not enabled for %s tenant %d (reference %s)", ev.MappedMethod, cfg.Provider, cfg.TenantID, ev.ProviderReference)
	}

	// A lost uniqueness race is retried once on a fresh transaction, which
	// sees the winner's row and updates it.
	var out applied
	for attempt := 1; ; attempt++ {
		out, err = p.apply(ctx, cfg, ev, payload)
		if err == nil || !isDuplicate(err) || attempt == maxApplyAttempts {
			break
		}
		log.Infof("[Webhook] Conflict while applying event %d, retrying: %v", event.ID, err)
	}
	if err != nil {
		if isDuplicate(err) {
			// Someone else already handled this reference.
			if cerr := p.ledger.Complete(ctx, event.ID); cerr != nil {
				log.Errorf("[Webhook] Event %d conflicted and was not marked processed: %v", event.ID, cerr)
			}
			log.Warnf("[Webhook] Conflict while applying event %d, answered as duplicate: %v", event.ID, err)
			result.Success, result.Accepted, result.Duplicate = true, true, true
			return result, nil
		}
		p.ledger.Fail(ctx, event.ID, err)
		log.Errorw("webhook processing failed",
			"tenant", cfg.TenantID,
			"provider", cfg.Provider,
			"idempotencyKey", event.IdempotencyKey,
			"error", err,
		)
		return result, err
	}

	if err := p.ledger.Complete(ctx, event.ID); err != nil {
		log.Errorf("[Webhook] Event %d applied but not marked processed: %v", event.ID, err)
	}

	result.Success, result.Accepted = true, true
	result.TransactionID = out.txn.ID
	result.PaymentLinked = out.sync != nil
	log.Infow("webhook processed",
		"tenant", cfg.TenantID,
		"provider", cfg.Provider,
		"idempotencyKey", event.IdempotencyKey,
		"reference", ev.ProviderReference,
		"status", out.txn.Status,
		"paymentLinked", result.PaymentLinked,
	)
	p.publish(ctx, cfg.TenantID, out)
	return result, nil
}

// apply upserts the transaction and synchronizes its payment in one storage
// transaction.
func (p *Processor) apply(ctx context.Context, cfg *models.GatewayConfiguration, ev gateway.CanonicalEvent, payload map[string]any) (applied, error) {
	var out applied
	err := p.repos.InTransaction(ctx, func(tx *repository.Repositories) error {
		txn, created, err := p.store.with(tx.Transaction).Upsert(ctx, UpsertInput{
			TenantID:        cfg.TenantID,
			ConfigurationID: cfg.ID,
			Provider:        cfg.Provider,
			Event:           ev,
			RawPayload:      payload,
		})
		if err != nil {
			return err
		}
		out.txn, out.created = txn, created

		res, err := p.sync.with(tx).processPayment(ctx, cfg.TenantID, ev.ProviderReference, txn.Status, ev.RejectionReason, payload)
		if errors.Is(err, ErrNotFound) {
			log.Infof("[Webhook] No payment linked to reference %s (tenant %d), transaction stored", ev.ProviderReference, cfg.TenantID)
			return nil
		}
		if err != nil {
			return err
		}
		out.sync = res

		if txn.PaymentID == nil || *txn.PaymentID != res.Payment.ID {
			paymentID, invoiceID := res.Payment.ID, res.Payment.InvoiceID
			txn.PaymentID, txn.InvoiceID = &paymentID, &invoiceID
			return tx.Transaction.Save(ctx, txn)
		}
		return nil
	})
	if err != nil {
		return applied{}, err
	}
	return out, nil
}

func (p *Processor) publish(ctx context.Context, tenantID uint, out applied) {
	key := fmt.Sprintf("%d:%s", tenantID, out.txn.ProviderReference)
	batch := []events.Event{{
		Type:     events.TypeTransactionUpserted,
		TenantID: tenantID,
		Key:      key,
		Data: map[string]any{
			"transaction_id": out.txn.ID,
			"reference":      out.txn.ProviderReference,
			"status":         out.txn.Status,
			"gross_amount":   out.txn.GrossAmount.StringFixed(money.Scale),
			"net_amount":     out.txn.NetAmount.StringFixed(money.Scale),
			"created":        out.created,
		},
	}}
	if s := out.sync; s != nil {
		if s.Changed {
			batch = append(batch, events.Event{
				Type:     events.TypePaymentStatusChanged,
				TenantID: tenantID,
				Key:      key,
				Data: map[string]any{
					"payment_id": s.Payment.ID,
					"from":       s.PreviousStatus,
					"to":         s.Payment.Status,
				},
			})
		}
		if s.InvoiceChanged && s.Invoice != nil {
			batch = append(batch, events.Event{
				Type:     events.TypeInvoiceRecomputed,
				TenantID: tenantID,
				Key:      key,
				Data: map[string]any{
					"invoice_id":  s.Invoice.ID,
					"status":      s.Invoice.Status,
					"paid_amount": s.Invoice.PaidAmount.StringFixed(money.Scale),
				},
			})
		}
	}
	if err := p.publisher.Publish(context.WithoutCancel(ctx), batch...); err != nil {
		log.Warnf("[Webhook] Publishing %d events for %s failed: %v", len(batch), key, err)
	}
}

func outcome(result WebhookResult, err error) string {
	switch {
	case err == nil && result.Duplicate:
		return "duplicate"
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, gateway.ErrProviderDisabled):
		return "disabled"
	case IsClientError(err):
		return "rejected"
	default:
		return "error"
	}
}
