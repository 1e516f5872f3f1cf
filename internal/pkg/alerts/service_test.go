package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"github.com/ManuelReschke/LedgerFox/app/repository"
	"github.com/ManuelReschke/LedgerFox/app/repository/memory"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/cache"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/gateway"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/reconciliation"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenant = uint(1)

type fixture struct {
	store   *memory.Store
	repos   *repository.Repositories
	proc    *reconciliation.Processor
	locker  *cache.LocalLocker
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	repos := store.Repositories()
	require.NoError(t, repos.Configuration.Create(&models.GatewayConfiguration{
		TenantID:      tenant,
		Provider:      models.GatewayProviderAsaas,
		Mode:          models.GatewayModeSandbox,
		WebhookSecret: "secret",
		IsActive:      true,
	}))
	proc := reconciliation.NewProcessor(reconciliation.ProcessorOptions{
		Repos: repos,
		Gate:  gateway.NewProviderGate(true),
	})
	locker := cache.NewLocalLocker()
	return &fixture{
		store:   store,
		repos:   repos,
		proc:    proc,
		locker:  locker,
		service: NewService(repos, proc, DefaultSettings(), locker),
	}
}

func (f *fixture) recalc(t *testing.T) RecalculateResult {
	t.Helper()
	res, err := f.service.Recalculate(context.Background(), tenant, "tester")
	require.NoError(t, err)
	return res
}

func (f *fixture) openAlert(t *testing.T, alertType string) *models.OperationalAlert {
	t.Helper()
	open, err := f.repos.Alert.ListOpenByType(context.Background(), tenant, alertType)
	require.NoError(t, err)
	require.Len(t, open, 1)
	return &open[0]
}

func (f *fixture) seedOverduePayable() uint {
	return f.store.SeedPayable(models.AccountPayable{
		TenantID:    tenant,
		Description: "Office rent",
		Amount:      decimal.RequireFromString("1500.00"),
		Status:      models.PayableStatusOpen,
		DueDate:     time.Now().AddDate(0, 0, -5),
	})
}

func TestRecalculate_UpsertIsStable(t *testing.T) {
	f := newFixture(t)
	f.seedOverduePayable()
	f.store.SeedBankLine(models.BankStatementLine{TenantID: tenant, PostedAt: time.Now().AddDate(0, 0, -10), Amount: decimal.NewFromInt(42)})
	f.store.SeedExport(models.ExportJob{TenantID: tenant, Kind: "ledger_csv", Status: models.ExportStatusFailed, LastError: "timeout"})
	// Another tenant's data is never touched.
	f.store.SeedPayable(models.AccountPayable{TenantID: 2, Status: models.PayableStatusOpen, DueDate: time.Now().AddDate(0, 0, -5)})

	first := f.recalc(t)
	assert.Equal(t, 3, first.Generated)
	assert.Zero(t, first.Resolved)
	assert.Equal(t, int64(3), first.Active)
	assert.Empty(t, first.Failed)

	second := f.recalc(t)
	assert.Zero(t, second.Generated)
	assert.Zero(t, second.Resolved)
	assert.Equal(t, int64(3), second.Active)

	overdue := f.openAlert(t, models.AlertTypePayableOverdue)
	assert.Equal(t, models.AlertSeverityCritical, overdue.Severity)
	assert.Regexp(t, `^account:\d+:overdue$`, overdue.ReferenceKey)
	require.Len(t, overdue.AuditTrail, 1)
	assert.Equal(t, ActionCreated, overdue.AuditTrail[0].Action)
	assert.Equal(t, "tester", overdue.AuditTrail[0].Actor)

	export := f.openAlert(t, models.AlertTypeExportFailure)
	assert.Equal(t, models.AlertSeverityWarning, export.Severity)
	assert.Equal(t, "timeout", export.Description)
}

func TestRecalculate_SelfHeals(t *testing.T) {
	f := newFixture(t)
	id := f.seedOverduePayable()
	require.Equal(t, 1, f.recalc(t).Generated)
	alert := f.openAlert(t, models.AlertTypePayableOverdue)

	f.store.UpdatePayable(id, func(p *models.AccountPayable) { p.Status = models.PayableStatusPaid })
	res := f.recalc(t)
	assert.Equal(t, 1, res.Resolved)
	assert.Zero(t, res.Active)

	got, err := f.repos.Alert.GetByID(context.Background(), tenant, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, got.Status)
	assert.Nil(t, got.ActiveScope)
	assert.NotNil(t, got.ResolvedAt)
	assert.NotNil(t, got.AcknowledgedAt, "resolve backfills the acknowledgement")
	last := got.AuditTrail[len(got.AuditTrail)-1]
	assert.Equal(t, ActionAutoResolved, last.Action)
	assert.Equal(t, models.AlertStatusActive, last.FromStatus)
	assert.Equal(t, models.AlertStatusResolved, last.ToStatus)

	// The condition coming back opens a fresh alert.
	f.store.UpdatePayable(id, func(p *models.AccountPayable) { p.Status = models.PayableStatusOpen })
	assert.Equal(t, 1, f.recalc(t).Generated)
}

func TestRecalculate_DueSoonBecomesOverdue(t *testing.T) {
	f := newFixture(t)
	id := f.store.SeedPayable(models.AccountPayable{TenantID: tenant, Status: models.PayableStatusOpen, DueDate: time.Now().AddDate(0, 0, 1)})

	f.recalc(t)
	dueSoon := f.openAlert(t, models.AlertTypePayableDueSoon)
	assert.Equal(t, models.AlertSeverityWarning, dueSoon.Severity)

	f.store.UpdatePayable(id, func(p *models.AccountPayable) { p.DueDate = time.Now().AddDate(0, 0, -1) })
	res := f.recalc(t)
	assert.Equal(t, 1, res.Generated)
	assert.Equal(t, 1, res.Resolved)
	f.openAlert(t, models.AlertTypePayableOverdue)
}

type flakyMonitor struct {
	repository.MonitorRepository
}

func (flakyMonitor) ListOpenPayablesDueBefore(ctx context.Context, tenantID uint, before time.Time) ([]models.AccountPayable, error) {
	return nil, errors.New("connection reset")
}

func TestRecalculate_FailedMonitorKeepsAlertsOpen(t *testing.T) {
	f := newFixture(t)
	f.seedOverduePayable()
	f.recalc(t)
	f.store.SeedExport(models.ExportJob{TenantID: tenant, Kind: "ledger_csv", Status: models.ExportStatusFailed})

	f.repos.Monitor = flakyMonitor{f.repos.Monitor}
	res := f.recalc(t)
	assert.ElementsMatch(t, []string{models.AlertTypePayableDueSoon, models.AlertTypePayableOverdue}, res.Failed)
	assert.Equal(t, 1, res.Generated, "other monitors still run")
	assert.Zero(t, res.Resolved)
	assert.Equal(t, int64(2), res.Active)
	f.openAlert(t, models.AlertTypePayableOverdue)
}

func TestRecalculate_SerializedPerTenant(t *testing.T) {
	f := newFixture(t)
	release, err := f.locker.Acquire(context.Background(), "alerts:sweep:1", time.Minute)
	require.NoError(t, err)

	_, err = f.service.Recalculate(context.Background(), tenant, "tester")
	assert.ErrorIs(t, err, ErrSweepInProgress)

	_, err = f.service.Recalculate(context.Background(), 2, "tester")
	assert.NoError(t, err)

	release()
	_, err = f.service.Recalculate(context.Background(), tenant, "tester")
	assert.NoError(t, err)
}

func TestAckAndResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOverduePayable()
	f.recalc(t)
	alert := f.openAlert(t, models.AlertTypePayableOverdue)

	acked, err := f.service.Ack(ctx, tenant, alert.ID, "alice", "looking into it")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAcknowledged, acked.Status)
	assert.Equal(t, "alice", acked.AcknowledgedBy)
	assert.NotNil(t, acked.AcknowledgedAt)

	// Acknowledged alerts are still open, so the sweep keeps them.
	assert.Zero(t, f.recalc(t).Generated)

	resolved, err := f.service.Resolve(ctx, tenant, alert.ID, "bob", "paid manually")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)
	assert.Equal(t, "alice", resolved.AcknowledgedBy)
	assert.Equal(t, "bob", resolved.ResolvedBy)
	trail := len(resolved.AuditTrail)

	again, err := f.service.Resolve(ctx, tenant, alert.ID, "carol", "")
	require.NoError(t, err)
	assert.Equal(t, "bob", again.ResolvedBy)
	assert.Len(t, again.AuditTrail, trail)

	_, err = f.service.Ack(ctx, tenant, alert.ID, "alice", "")
	assert.ErrorIs(t, err, ErrAlertResolved)
	_, err = f.service.Ack(ctx, 2, alert.ID, "alice", "")
	assert.ErrorIs(t, err, ErrAlertNotFound)
	_, err = f.service.Resolve(ctx, tenant, 9999, "alice", "")
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestAuditTrailIsCapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOverduePayable()
	f.recalc(t)
	alert := f.openAlert(t, models.AlertTypePayableOverdue)

	for i := 0; i < models.MaxAlertAuditEntries+10; i++ {
		_, err := f.service.Ack(ctx, tenant, alert.ID, "alice", "")
		require.NoError(t, err)
	}
	got, err := f.repos.Alert.GetByID(ctx, tenant, alert.ID)
	require.NoError(t, err)
	assert.Len(t, got.AuditTrail, models.MaxAlertAuditEntries)
	assert.Equal(t, ActionAcknowledged, got.AuditTrail[0].Action)
}

func TestReprocess_NoRemediation(t *testing.T) {
	f := newFixture(t)
	f.store.SeedBankLine(models.BankStatementLine{TenantID: tenant, PostedAt: time.Now().AddDate(0, 0, -30)})
	f.recalc(t)
	alert := f.openAlert(t, models.AlertTypeBankBacklog)

	res, err := f.service.Reprocess(context.Background(), tenant, alert.ID, "alice", nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, RemediationNone, res.Action)
	assert.Contains(t, res.Error, "no remediation available")
	assert.Equal(t, models.AlertStatusActive, res.Alert.Status)

	got := f.openAlert(t, models.AlertTypeBankBacklog)
	last := got.AuditTrail[len(got.AuditTrail)-1]
	assert.Equal(t, ActionReprocessFailed, last.Action)
	assert.Equal(t, "alice", last.Actor)
	assert.Contains(t, last.Details["error"], "no remediation")
}

func TestReprocess_RequeuesExport(t *testing.T) {
	f := newFixture(t)
	id := f.store.SeedExport(models.ExportJob{TenantID: tenant, Kind: "ledger_csv", Status: models.ExportStatusFailed, LastError: "disk full"})
	f.recalc(t)
	alert := f.openAlert(t, models.AlertTypeExportFailure)

	res, err := f.service.Reprocess(context.Background(), tenant, alert.ID, "alice", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, RemediationRequeueExport, res.Action)
	assert.Equal(t, models.AlertStatusResolved, res.Alert.Status)
	assert.Equal(t, models.ExportStatusQueued, f.store.Export(id).Status)

	_, err = f.service.Reprocess(context.Background(), tenant, alert.ID, "alice", nil)
	assert.ErrorIs(t, err, ErrAlertResolved)

	// The job is no longer failed, so the next sweep stays quiet.
	assert.Zero(t, f.recalc(t).Active)
}

func TestReprocess_ReplaysFailedWebhook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger := f.proc.Ledger()
	begin, err := ledger.Begin(ctx, reconciliation.LedgerEntry{
		TenantID:    tenant,
		Provider:    models.GatewayProviderAsaas,
		Key:         "evt-w",
		PayloadJSON: `{"reference":"ref-w","status":"paid","amount":"10.00"}`,
	})
	require.NoError(t, err)
	ledger.Fail(ctx, begin.Event.ID, errors.New("deadlock found"))

	f.recalc(t)
	alert := f.openAlert(t, models.AlertTypeWebhookFailure)
	assert.Contains(t, alert.Description, "deadlock found")

	res, err := f.service.Reprocess(ctx, tenant, alert.ID, "alice", nil)
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, RemediationReplayWebhook, res.Action)
	assert.Equal(t, false, res.Output["payment_linked"])

	event, err := ledger.Lookup(ctx, tenant, models.GatewayProviderAsaas, "evt-w")
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusProcessed, event.Status)
	txn, err := f.repos.Transaction.FindByReference(ctx, tenant, "ref-w")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusApproved, txn.Status)
}

func TestReprocess_RecomputesDriftedInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := &models.Invoice{TenantID: tenant, TotalAmount: decimal.NewFromInt(100), Status: models.InvoiceStatusPending, DueDate: time.Now().AddDate(0, 0, 5)}
	require.NoError(t, f.repos.Invoice.Create(ctx, inv))
	require.NoError(t, f.repos.Payment.Create(ctx, &models.Payment{
		TenantID: tenant, InvoiceID: inv.ID, TransactionID: "manual-1",
		Status: models.PaymentStatusApproved, GrossAmount: decimal.NewFromInt(40),
	}))

	f.recalc(t)
	alert := f.openAlert(t, models.AlertTypeInvoiceSyncDrift)
	assert.Equal(t, "40.00", alert.Payload["calculated"])

	res, err := f.service.Reprocess(ctx, tenant, alert.ID, "alice", nil)
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, models.InvoiceStatusPartiallyPaid, res.Output["status"])

	res2 := f.recalc(t)
	assert.Zero(t, res2.Generated)
	assert.Zero(t, res2.Active)
}

func TestReprocess_ResyncsOrphanReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.Now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	_, err := f.proc.TransactionStore().Register(ctx, reconciliation.RegisterTransactionInput{
		TenantID:    tenant,
		Provider:    models.GatewayProviderAsaas,
		Reference:   "ref-o",
		Status:      "approved",
		GrossAmount: decimal.NewFromInt(25),
	})
	require.NoError(t, err)
	f.store.Now = time.Now

	f.recalc(t)
	alert := f.openAlert(t, models.AlertTypeGatewayOrphan)
	assert.Equal(t, "transaction:ref-o:orphan", alert.ReferenceKey)

	res, err := f.service.Reprocess(ctx, tenant, alert.ID, "alice", nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no payment is linked")

	inv := &models.Invoice{TenantID: tenant, TotalAmount: decimal.NewFromInt(25), Status: models.InvoiceStatusSent, DueDate: time.Now().AddDate(0, 0, 5)}
	require.NoError(t, f.repos.Invoice.Create(ctx, inv))
	require.NoError(t, f.repos.Payment.Create(ctx, &models.Payment{
		TenantID: tenant, InvoiceID: inv.ID, TransactionID: "PAY-25",
		Status: models.PaymentStatusPending, GrossAmount: decimal.NewFromInt(25),
	}))

	res, err = f.service.Reprocess(ctx, tenant, alert.ID, "alice", map[string]any{"payment_transaction_id": "PAY-25"})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, models.PaymentStatusApproved, res.Output["payment_status"])

	txn, err := f.repos.Transaction.FindByReference(ctx, tenant, "ref-o")
	require.NoError(t, err)
	require.NotNil(t, txn.PaymentID)
	assert.Zero(t, f.recalc(t).Active)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOverduePayable()
	f.store.SeedExport(models.ExportJob{TenantID: tenant, Kind: "ledger_csv", Status: models.ExportStatusFailed})
	f.recalc(t)
	_, err := f.service.Resolve(ctx, tenant, f.openAlert(t, models.AlertTypeExportFailure).ID, "alice", "")
	require.NoError(t, err)

	all, err := f.service.List(ctx, tenant, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	open, err := f.service.List(ctx, tenant, ListFilter{Status: "open"})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.AlertTypePayableOverdue, open[0].Type)

	critical, err := f.service.List(ctx, tenant, ListFilter{Severity: models.AlertSeverityCritical})
	require.NoError(t, err)
	assert.Len(t, critical, 1)

	limited, err := f.service.List(ctx, tenant, ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	for _, bad := range []ListFilter{{Status: "closed"}, {Severity: "fatal"}, {Type: "nope"}, {Limit: -1}} {
		_, err := f.service.List(ctx, tenant, bad)
		assert.ErrorIs(t, err, ErrInvalidFilter, "%+v", bad)
	}
}

func TestSchedulerRunOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledger := f.proc.Ledger()
	begin, err := ledger.Begin(ctx, reconciliation.LedgerEntry{TenantID: tenant, Provider: models.GatewayProviderAsaas, Key: "stuck", PayloadJSON: `{}`})
	require.NoError(t, err)
	f.store.TouchEvent(begin.Event.ID, time.Now().Add(-time.Hour))

	s := NewScheduler(f.service, ledger, f.repos.Configuration, time.Hour)
	require.NoError(t, s.RunOnce(ctx))

	event, err := ledger.Lookup(ctx, tenant, models.GatewayProviderAsaas, "stuck")
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusFailed, event.Status)
	f.openAlert(t, models.AlertTypeWebhookFailure)

	s.Start()
	assert.True(t, s.IsRunning())
	s.Stop()
	assert.False(t, s.IsRunning())
}

func TestLoadSettings(t *testing.T) {
	t.Setenv("ALERT_DUE_SOON_WINDOW", "24h")
	t.Setenv("ALERT_SWEEP_INTERVAL", "bogus")
	s := LoadSettings()
	assert.Equal(t, 24*time.Hour, s.DueSoonWindow)
	assert.Equal(t, DefaultSettings().SweepInterval, s.SweepInterval)
}

func TestPayloadUint(t *testing.T) {
	for _, v := range []any{uint(7), 7, int64(7), float64(7), "7"} {
		got, ok := payloadUint(map[string]any{"id": v}, "id")
		assert.True(t, ok, "%T", v)
		assert.Equal(t, uint(7), got)
	}
	_, ok := payloadUint(map[string]any{"id": 7.5}, "id")
	assert.False(t, ok)
	_, ok = payloadUint(map[string]any{}, "id")
	assert.False(t, ok)
}
