package reconciliation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"github.com/ManuelReschke/LedgerFox/app/repository/memory"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveKey(t *testing.T) {
	payload := map[string]any{"event_id": "evt-p", "reference": "ref-1"}

	assert.Equal(t, "idem-1", ResolveKey(1, "asaas", payload, gateway.NewHeaders(map[string]string{
		"X-Idempotency-Key": "idem-1",
		"X-Event-Id":        "evt-h",
	})))
	assert.Equal(t, "evt-h", ResolveKey(1, "asaas", payload, gateway.NewHeaders(map[string]string{"X-Event-Id": "evt-h"})))
	assert.Equal(t, "evt-p", ResolveKey(1, "asaas", payload, gateway.Headers{}))

	long := strings.Repeat("k", 300)
	hashed := ResolveKey(1, "asaas", nil, gateway.NewHeaders(map[string]string{"x-idempotency-key": long}))
	assert.True(t, strings.HasPrefix(hashed, "hash:"))
	assert.LessOrEqual(t, len(hashed), 191)
}

func TestResolveKey_HashFallback(t *testing.T) {
	a := map[string]any{"reference": "ref-1", "status": "approved"}
	b := map[string]any{"status": "approved", "reference": "ref-1"}

	k1 := ResolveKey(1, "asaas", a, gateway.Headers{})
	assert.True(t, strings.HasPrefix(k1, "hash:"))
	assert.Equal(t, k1, ResolveKey(1, "asaas", b, gateway.Headers{}), "key order must not matter")
	assert.NotEqual(t, k1, ResolveKey(2, "asaas", a, gateway.Headers{}))
	assert.NotEqual(t, k1, ResolveKey(1, "stripe", a, gateway.Headers{}))
}

func newTestLedger(t *testing.T) (*Ledger, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewLedger(store.Repositories().WebhookEvent, time.Minute), store
}

func entry(key string) LedgerEntry {
	return LedgerEntry{TenantID: 1, Provider: "asaas", Key: key, PayloadJSON: `{}`}
}

func TestLedger_Begin(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	first, err := ledger.Begin(ctx, entry("k1"))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	require.NotNil(t, first.Event)
	assert.Equal(t, models.WebhookStatusProcessing, first.Event.Status)

	// Still in flight.
	inflight, err := ledger.Begin(ctx, entry("k1"))
	require.NoError(t, err)
	assert.True(t, inflight.Duplicate)

	require.NoError(t, ledger.Complete(ctx, first.Event.ID))
	done, err := ledger.Begin(ctx, entry("k1"))
	require.NoError(t, err)
	assert.True(t, done.Duplicate)

	// Different tenant, same key.
	other := entry("k1")
	other.TenantID = 2
	fresh, err := ledger.Begin(ctx, other)
	require.NoError(t, err)
	assert.False(t, fresh.Duplicate)
}

func TestLedger_ReclaimsFailedAndStale(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	first, err := ledger.Begin(ctx, entry("k1"))
	require.NoError(t, err)
	ledger.Fail(ctx, first.Event.ID, assert.AnError)

	retry, err := ledger.Begin(ctx, entry("k1"))
	require.NoError(t, err)
	assert.False(t, retry.Duplicate)
	assert.True(t, retry.Reclaimed)
	assert.Equal(t, 2, retry.Event.Attempts)

	store.TouchEvent(first.Event.ID, time.Now().Add(-2*time.Minute))
	stale, err := ledger.Begin(ctx, entry("k1"))
	require.NoError(t, err)
	assert.True(t, stale.Reclaimed)
	assert.Equal(t, 3, stale.Event.Attempts)
}

func TestLedger_ClaimConflicts(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	begin, err := ledger.Begin(ctx, entry("k1"))
	require.NoError(t, err)
	assert.ErrorIs(t, ledger.Claim(ctx, begin.Event), ErrConflict)

	ledger.Fail(ctx, begin.Event.ID, assert.AnError)
	stored, err := ledger.Lookup(ctx, 1, "asaas", "k1")
	require.NoError(t, err)
	stale := *stored
	require.NoError(t, ledger.Claim(ctx, stored))
	// The copy still carries the old attempt count and loses.
	assert.ErrorIs(t, ledger.Claim(ctx, &stale), ErrConflict)
}

func TestLedger_FailTruncatesAndRecoverStuck(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	a, err := ledger.Begin(ctx, entry("a"))
	require.NoError(t, err)
	ledger.Fail(ctx, a.Event.ID, assertError(strings.Repeat("x", 5000)))
	got, err := ledger.Lookup(ctx, 1, "asaas", "a")
	require.NoError(t, err)
	assert.Len(t, got.ProcessingError, 4000)

	b, err := ledger.Begin(ctx, entry("b"))
	require.NoError(t, err)
	_, err = ledger.Begin(ctx, entry("c"))
	require.NoError(t, err)
	store.TouchEvent(b.Event.ID, time.Now().Add(-time.Hour))

	n, err := ledger.RecoverStuck(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, err = ledger.Lookup(ctx, 1, "asaas", "b")
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusFailed, got.Status)

	missing, err := ledger.Lookup(ctx, 1, "asaas", "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

type assertError string

func (e assertError) Error() string { return string(e) }
