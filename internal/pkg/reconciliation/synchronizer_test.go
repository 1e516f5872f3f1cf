package reconciliation

import (
	"context"
	"testing"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDeriveInvoiceStatus(t *testing.T) {
	tests := []struct {
		name    string
		current string
		paid    string
		total   string
		overdue bool
		want    string
	}{
		{"canceled stays canceled", models.InvoiceStatusCanceled, "100", "100", false, models.InvoiceStatusCanceled},
		{"fully paid", models.InvoiceStatusPending, "100", "100", false, models.InvoiceStatusPaid},
		{"paid wins over overdue", models.InvoiceStatusOverdue, "100", "100", true, models.InvoiceStatusPaid},
		{"partial", models.InvoiceStatusPending, "0.01", "100", true, models.InvoiceStatusPartiallyPaid},
		{"unpaid overdue", models.InvoiceStatusPending, "0", "100", true, models.InvoiceStatusOverdue},
		{"unpaid", models.InvoiceStatusPaid, "0", "100", false, models.InvoiceStatusPending},
		{"sent is kept", models.InvoiceStatusSent, "0", "100", false, models.InvoiceStatusSent},
		{"zero total", models.InvoiceStatusPending, "0", "0", false, models.InvoiceStatusPaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveInvoiceStatus(tt.current, dec(tt.paid), dec(tt.total), tt.overdue))
		})
	}
}

func TestPaymentStatusFor(t *testing.T) {
	assert.Equal(t, models.PaymentStatusApproved, PaymentStatusFor(models.TransactionStatusApproved))
	assert.Equal(t, models.PaymentStatusRejected, PaymentStatusFor(models.TransactionStatusDeclined))
	assert.Equal(t, models.PaymentStatusRejected, PaymentStatusFor(models.TransactionStatusError))
	assert.Equal(t, models.PaymentStatusCanceled, PaymentStatusFor(models.TransactionStatusCanceled))
	assert.Equal(t, models.PaymentStatusProcessing, PaymentStatusFor(models.TransactionStatusProcessing))
	assert.Equal(t, models.PaymentStatusPending, PaymentStatusFor("whatever"))
}

func TestProcessPayment_ExactDecimalSum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sync := f.proc.Synchronizer()
	inv := f.seedInvoice(t, "0.30")
	f.seedPayment(t, inv.ID, "ref-a", "0.10", models.PaymentStatusPending)
	f.seedPayment(t, inv.ID, "ref-b", "0.20", models.PaymentStatusPending)

	res, err := sync.ProcessPayment(ctx, testTenant, "ref-a", models.TransactionStatusApproved, "", nil)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPartiallyPaid, res.Invoice.Status)

	res, err = sync.ProcessPayment(ctx, testTenant, "ref-b", models.TransactionStatusApproved, "", nil)
	require.NoError(t, err)
	assert.True(t, res.InvoiceChanged)
	assert.Equal(t, models.InvoiceStatusPaid, res.Invoice.Status)
	assert.Equal(t, "0.30", f.invoice(t, inv.ID).PaidAmount.StringFixed(2))
}

func TestRecomputeInvoice_CountsOnlyApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.seedInvoice(t, "200.30")
	f.seedPayment(t, inv.ID, "ref-1", "100.10", models.PaymentStatusApproved)
	f.seedPayment(t, inv.ID, "ref-2", "50.20", models.PaymentStatusApproved)
	f.seedPayment(t, inv.ID, "ref-3", "999.99", models.PaymentStatusRejected)

	got, changed, err := f.proc.Synchronizer().RecomputeInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.InvoiceStatusPartiallyPaid, got.Status)
	assert.True(t, dec("150.30").Equal(got.PaidAmount), "paid = %s", got.PaidAmount)

	_, changed, err = f.proc.Synchronizer().RecomputeInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRecomputeInvoice_ClampsToTotal(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, "10.00")
	f.seedPayment(t, inv.ID, "ref-1", "15.00", models.PaymentStatusApproved)

	got, _, err := f.proc.Synchronizer().RecomputeInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(got.PaidAmount))
	assert.Equal(t, models.InvoiceStatusPaid, got.Status)
}

func TestProcessPayment_Reversal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sync := f.proc.Synchronizer()
	inv := f.seedInvoice(t, "100.00")
	pay := f.seedPayment(t, inv.ID, "ref-1", "100.00", models.PaymentStatusPending)

	_, err := sync.ProcessPayment(ctx, testTenant, "ref-1", models.TransactionStatusApproved, "", nil)
	require.NoError(t, err)
	require.NotNil(t, f.payment(t, pay.ID).ApprovedAt)

	res, err := sync.ProcessPayment(ctx, testTenant, "ref-1", models.TransactionStatusDeclined, "chargeback", map[string]any{"status": "rejected"})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, models.PaymentStatusApproved, res.PreviousStatus)

	p := f.payment(t, pay.ID)
	assert.Equal(t, models.PaymentStatusRejected, p.Status)
	assert.Nil(t, p.ApprovedAt)
	assert.Equal(t, "chargeback", p.RejectionReason)
	assert.JSONEq(t, `{"status":"rejected"}`, string(p.GatewayPayload))

	got := f.invoice(t, inv.ID)
	assert.Equal(t, models.InvoiceStatusPending, got.Status)
	assert.True(t, got.PaidAmount.IsZero())
	assert.Nil(t, got.PaymentDate)
}

func TestProcessPayment_IgnoresStaleStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.seedInvoice(t, "100.00")
	pay := f.seedPayment(t, inv.ID, "ref-1", "100.00", models.PaymentStatusApproved)

	res, err := f.proc.Synchronizer().ProcessPayment(ctx, testTenant, "ref-1", models.TransactionStatusProcessing, "", nil)
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.False(t, res.Changed)
	assert.Equal(t, models.PaymentStatusApproved, f.payment(t, pay.ID).Status)
	assert.Equal(t, models.InvoiceStatusPaid, res.Invoice.Status)
}

func TestProcessPayment_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.proc.Synchronizer().ProcessPayment(context.Background(), testTenant, "missing", models.TransactionStatusApproved, "", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sync := f.proc.Synchronizer()
	inv := f.seedInvoice(t, "100.00")
	pay := f.seedPayment(t, inv.ID, "ref-1", "100.00", models.PaymentStatusApproved)
	pending := f.seedPayment(t, inv.ID, "ref-2", "5.00", models.PaymentStatusPending)

	refund, err := sync.RecordRefund(ctx, testTenant, pay.ID, dec("30"), "customer request")
	require.NoError(t, err)
	assert.Equal(t, "ref-1:refund:1", refund.TransactionID)
	assert.Equal(t, models.PaymentKindRefund, refund.Kind)
	assert.True(t, dec("-30").Equal(refund.GrossAmount))
	require.NotNil(t, refund.RefundOfID)
	assert.Equal(t, pay.ID, *refund.RefundOfID)

	original := f.payment(t, pay.ID)
	assert.Equal(t, models.PaymentStatusApproved, original.Status)
	assert.True(t, dec("100").Equal(original.GrossAmount))

	got := f.invoice(t, inv.ID)
	assert.Equal(t, models.InvoiceStatusPartiallyPaid, got.Status)
	assert.True(t, dec("70").Equal(got.PaidAmount))

	_, err = sync.RecordRefund(ctx, testTenant, pay.ID, dec("80"), "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = sync.RecordRefund(ctx, testTenant, pay.ID, dec("0"), "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = sync.RecordRefund(ctx, testTenant, pending.ID, dec("1"), "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = sync.RecordRefund(ctx, testTenant, refund.ID, dec("1"), "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = sync.RecordRefund(ctx, 2, pay.ID, dec("1"), "")
	assert.ErrorIs(t, err, ErrNotFound)

	second, err := sync.RecordRefund(ctx, testTenant, pay.ID, dec("70"), "")
	require.NoError(t, err)
	assert.Equal(t, "ref-1:refund:2", second.TransactionID)
	assert.True(t, f.invoice(t, inv.ID).PaidAmount.IsZero())
}

func TestProcessPayment_MissingInvoice(t *testing.T) {
	f := newFixture(t)
	pay := f.seedPayment(t, 999, "ref-dangling", "10.00", models.PaymentStatusPending)

	_, err := f.proc.Synchronizer().ProcessPayment(context.Background(), testTenant, "ref-dangling", models.TransactionStatusApproved, "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvoiceMissing)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, models.PaymentStatusPending, f.payment(t, pay.ID).Status)
}
