package repository

import (
	"context"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"gorm.io/gorm"
)

var openAlertStatuses = []string{models.AlertStatusActive, models.AlertStatusAcknowledged}

// alertRepository implements the AlertRepository interface
type alertRepository struct {
	db *gorm.DB
}

// NewAlertRepository creates a new alert repository instance
func NewAlertRepository(db *gorm.DB) AlertRepository {
	return &alertRepository{db: db}
}

func (r *alertRepository) GetByID(ctx context.Context, tenantID, id uint) (*models.OperationalAlert, error) {
	var alert models.OperationalAlert
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&alert, id).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *alertRepository) FindOpen(ctx context.Context, tenantID uint, alertType, reference string) (*models.OperationalAlert, error) {
	var alert models.OperationalAlert
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND type = ? AND reference_key = ? AND status IN ?", tenantID, alertType, reference, openAlertStatuses).
		First(&alert).Error
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *alertRepository) ListOpenByType(ctx context.Context, tenantID uint, alertType string) ([]models.OperationalAlert, error) {
	var alerts []models.OperationalAlert
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND type = ? AND status IN ?", tenantID, alertType, openAlertStatuses).
		Order("id").
		Find(&alerts).Error
	return alerts, err
}

func (r *alertRepository) List(ctx context.Context, tenantID uint, filter AlertFilter) ([]models.OperationalAlert, error) {
	var alerts []models.OperationalAlert
	q := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if filter.Severity != "" {
		q = q.Where("severity = ?", filter.Severity)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	err := q.Order("updated_at DESC, id DESC").Find(&alerts).Error
	return alerts, err
}

func (r *alertRepository) CountOpen(ctx context.Context, tenantID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.OperationalAlert{}).
		Where("tenant_id = ? AND status IN ?", tenantID, openAlertStatuses).
		Count(&n).Error
	return n, err
}

// Create inserts an alert. A concurrent open alert with the same scope makes
// the insert fail with gorm.ErrDuplicatedKey.
func (r *alertRepository) Create(ctx context.Context, alert *models.OperationalAlert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

func (r *alertRepository) Save(ctx context.Context, alert *models.OperationalAlert) error {
	return r.db.WithContext(ctx).Save(alert).Error
}
