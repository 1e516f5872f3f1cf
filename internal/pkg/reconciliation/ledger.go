package reconciliation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"github.com/ManuelReschke/LedgerFox/app/repository"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/gateway"
	"github.com/gofiber/fiber/v2/log"
)

// DefaultStaleAfter is how long a processing record may stay untouched
// before another delivery is allowed to take it over.
const DefaultStaleAfter = 5 * time.Minute

const (
	maxKeyLength   = 191
	maxErrorLength = 4000
)

// ResolveKey derives the idempotency key of a delivery. It prefers the
// x-idempotency-key header, then an explicit event id (header or payload),
// and finally a hash over provider, tenant and the canonical payload.
func ResolveKey(tenantID uint, provider string, payload map[string]any, headers gateway.Headers) string {
	key := headers.Get("x-idempotency-key")
	if key == "" {
		key = headers.Get("x-event-id")
	}
	if key == "" {
		key = gateway.EventIDFromPayload(payload)
	}
	if key != "" {
		if len(key) > maxKeyLength {
			return hashKey([]byte(key))
		}
		return key
	}

	canonical, err := gateway.CanonicalJSON(payload)
	if err != nil {
		canonical = []byte(fmt.Sprint(payload))
	}
	material := make([]byte, 0, len(canonical)+32)
	material = append(material, provider...)
	material = append(material, '|')
	material = strconv.AppendUint(material, uint64(tenantID), 10)
	material = append(material, '|')
	material = append(material, canonical...)
	return hashKey(material)
}

func hashKey(b []byte) string {
	sum := sha256.Sum256(b)
	return "hash:" + hex.EncodeToString(sum[:])
}

// LedgerEntry describes a delivery about to be recorded.
type LedgerEntry struct {
	TenantID        uint
	Provider        string
	Key             string
	ProviderEventID string
	RequestID       string
	PayloadJSON     string
}

// BeginResult tells the caller whether to process the delivery.
type BeginResult struct {
	Event     *models.WebhookEvent
	Duplicate bool
	Reclaimed bool
}

// Ledger is the durable record of inbound webhook deliveries.
type Ledger struct {
	repo       repository.WebhookEventRepository
	staleAfter time.Duration
	now        func() time.Time
}

func NewLedger(repo repository.WebhookEventRepository, staleAfter time.Duration) *Ledger {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Ledger{repo: repo, staleAfter: staleAfter, now: time.Now}
}

// Lookup returns the record for a key, or nil when the key was never seen.
func (l *Ledger) Lookup(ctx context.Context, tenantID uint, provider, key string) (*models.WebhookEvent, error) {
	event, err := l.repo.Find(ctx, tenantID, provider, key)
	if isNotFound(err) {
		return nil, nil
	}
	return event, err
}

// Begin records a delivery in processing state before any side effect.
//
// A processed key, or one still being processed by a live request, is a
// duplicate. Failed, received and stale processing records are taken over
// with a compare-and-swap so only one retry wins.
func (l *Ledger) Begin(ctx context.Context, in LedgerEntry) (BeginResult, error) {
	event := &models.WebhookEvent{
		TenantID:        in.TenantID,
		Provider:        in.Provider,
		IdempotencyKey:  in.Key,
		ProviderEventID: in.ProviderEventID,
		RequestID:       in.RequestID,
		Status:          models.WebhookStatusProcessing,
		Attempts:        1,
		PayloadJSON:     in.PayloadJSON,
	}
	created, stored, err := l.repo.CreateIfNotExists(ctx, event)
	if err != nil {
		if isDuplicate(err) {
			return BeginResult{Duplicate: true}, nil
		}
		return BeginResult{}, fmt.Errorf("record webhook event: %w", err)
	}
	if created {
		return BeginResult{Event: stored}, nil
	}

	switch stored.Status {
	case models.WebhookStatusProcessed:
		return BeginResult{Event: stored, Duplicate: true}, nil
	case models.WebhookStatusProcessing:
		if l.now().Sub(stored.UpdatedAt) < l.staleAfter {
			return BeginResult{Event: stored, Duplicate: true}, nil
		}
		log.Warnf("[Ledger] Reclaiming stale processing event %d (tenant %d, key %s)", stored.ID, stored.TenantID, stored.IdempotencyKey)
	}

	won, err := l.repo.Claim(ctx, stored.ID, stored.Status, stored.Attempts)
	if err != nil {
		return BeginResult{}, fmt.Errorf("claim webhook event %d: %w", stored.ID, err)
	}
	if !won {
		return BeginResult{Event: stored, Duplicate: true}, nil
	}
	stored.Status = models.WebhookStatusProcessing
	stored.Attempts++
	stored.ProcessingError = ""
	return BeginResult{Event: stored, Reclaimed: true}, nil
}

// Claim takes over a stored record for a replay.
func (l *Ledger) Claim(ctx context.Context, event *models.WebhookEvent) error {
	if event.Status == models.WebhookStatusProcessing && l.now().Sub(event.UpdatedAt) < l.staleAfter {
		return fmt.Errorf("%w: webhook event %d is being processed", ErrConflict, event.ID)
	}
	won, err := l.repo.Claim(ctx, event.ID, event.Status, event.Attempts)
	if err != nil {
		return err
	}
	if !won {
		return fmt.Errorf("%w: webhook event %d changed concurrently", ErrConflict, event.ID)
	}
	event.Status = models.WebhookStatusProcessing
	event.Attempts++
	return nil
}

// Complete marks a record processed.
func (l *Ledger) Complete(ctx context.Context, id uint) error {
	return l.repo.MarkProcessed(ctx, id, l.now())
}

// Fail marks a record failed with the cause.
func (l *Ledger) Fail(ctx context.Context, id uint, cause error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength]
	}
	// The request context may already be canceled; the failure must still land.
	if err := l.repo.MarkFailed(context.WithoutCancel(ctx), id, msg); err != nil {
		log.Errorf("[Ledger] Failed to mark webhook event %d as failed: %v", id, err)
	}
}

// RecoverStuck fails processing records abandoned for longer than the stale
// threshold so the next delivery can process them again.
func (l *Ledger) RecoverStuck(ctx context.Context) (int64, error) {
	return l.repo.FailStuck(ctx, l.now().Add(-l.staleAfter), "processing interrupted, recovered by sweeper")
}
