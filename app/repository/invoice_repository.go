package repository

import (
	"context"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/money"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// invoiceRepository implements the InvoiceRepository interface
type invoiceRepository struct {
	db *gorm.DB
}

// NewInvoiceRepository creates a new invoice repository instance
func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) Create(ctx context.Context, inv *models.Invoice) error {
	return r.db.WithContext(ctx).Create(inv).Error
}

func (r *invoiceRepository) GetByID(ctx context.Context, tenantID, id uint) (*models.Invoice, error) {
	var inv models.Invoice
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&inv, id).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invoiceRepository) GetForUpdate(ctx context.Context, id uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&inv, id).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invoiceRepository) Save(ctx context.Context, inv *models.Invoice) error {
	return r.db.WithContext(ctx).Save(inv).Error
}

// ListDrift compares each invoice's stored paid amount with the clamped sum
// of its approved payments. The clamp runs in Go so the query stays portable
// and decimal sums are rounded to cents before comparing.
func (r *invoiceRepository) ListDrift(ctx context.Context, tenantID uint) ([]InvoiceDrift, error) {
	type row struct {
		InvoiceID uint
		Stored    decimal.Decimal
		Total     decimal.Decimal
		Approved  decimal.Decimal
	}
	var rows []row
	err := r.db.WithContext(ctx).Raw(`
		SELECT i.id AS invoice_id,
		       i.paid_amount AS stored,
		       i.total_amount AS total,
		       COALESCE(SUM(CASE WHEN p.status = ? THEN p.gross_amount END), 0) AS approved
		FROM invoices i
		LEFT JOIN payments p ON p.invoice_id = i.id
		WHERE i.tenant_id = ?
		GROUP BY i.id, i.paid_amount, i.total_amount
		ORDER BY i.id`, models.PaymentStatusApproved, tenantID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	var drifts []InvoiceDrift
	for _, d := range rows {
		stored := money.Round(d.Stored)
		calculated := money.Clamp(money.Round(d.Approved), decimal.Zero, money.Round(d.Total))
		if !calculated.Equal(stored) {
			drifts = append(drifts, InvoiceDrift{InvoiceID: d.InvoiceID, Stored: stored, Calculated: calculated})
		}
	}
	return drifts, nil
}
