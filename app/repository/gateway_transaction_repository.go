package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gatewayTransactionRepository implements the GatewayTransactionRepository interface
type gatewayTransactionRepository struct {
	db *gorm.DB
}

// NewGatewayTransactionRepository creates a new gateway transaction repository instance
func NewGatewayTransactionRepository(db *gorm.DB) GatewayTransactionRepository {
	return &gatewayTransactionRepository{db: db}
}

func (r *gatewayTransactionRepository) GetByID(ctx context.Context, tenantID, id uint) (*models.GatewayTransaction, error) {
	var tx models.GatewayTransaction
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&tx, id).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *gatewayTransactionRepository) FindByReference(ctx context.Context, tenantID uint, reference string) (*models.GatewayTransaction, error) {
	var tx models.GatewayTransaction
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND provider_reference = ?", tenantID, reference).
		First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *gatewayTransactionRepository) LockByReference(ctx context.Context, tenantID uint, reference string) (*models.GatewayTransaction, error) {
	var tx models.GatewayTransaction
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND provider_reference = ?", tenantID, reference).
		First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *gatewayTransactionRepository) Create(ctx context.Context, tx *models.GatewayTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *gatewayTransactionRepository) Save(ctx context.Context, tx *models.GatewayTransaction) error {
	return r.db.WithContext(ctx).Save(tx).Error
}

func (r *gatewayTransactionRepository) List(ctx context.Context, tenantID uint, filter TransactionFilter) ([]models.GatewayTransaction, error) {
	var txs []models.GatewayTransaction
	q := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	err := q.Order("id DESC").Find(&txs).Error
	return txs, err
}

func (r *gatewayTransactionRepository) ListUnlinked(ctx context.Context, tenantID uint, olderThan time.Time) ([]models.GatewayTransaction, error) {
	var txs []models.GatewayTransaction
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND payment_id IS NULL AND created_at < ?", tenantID, olderThan).
		Order("id").
		Find(&txs).Error
	return txs, err
}
