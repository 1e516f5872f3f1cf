package repository

import (
	"context"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"gorm.io/gorm"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) GetByID(ctx context.Context, tenantID, id uint) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) FindByTransactionID(ctx context.Context, tenantID uint, transactionID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND transaction_id = ?", tenantID, transactionID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) Create(ctx context.Context, p *models.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *paymentRepository) Save(ctx context.Context, p *models.Payment) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *paymentRepository) ListByInvoice(ctx context.Context, invoiceID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).Where("invoice_id = ?", invoiceID).Order("id").Find(&payments).Error
	return payments, err
}

func (r *paymentRepository) ListRefundsOf(ctx context.Context, paymentID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("refund_of_id = ? AND kind = ?", paymentID, models.PaymentKindRefund).
		Order("id").
		Find(&payments).Error
	return payments, err
}
