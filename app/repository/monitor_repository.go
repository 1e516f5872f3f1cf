package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"gorm.io/gorm"
)

// monitorRepository implements the MonitorRepository interface
type monitorRepository struct {
	db *gorm.DB
}

// NewMonitorRepository creates a new monitor repository instance
func NewMonitorRepository(db *gorm.DB) MonitorRepository {
	return &monitorRepository{db: db}
}

func (r *monitorRepository) ListOpenPayablesDueBefore(ctx context.Context, tenantID uint, before time.Time) ([]models.AccountPayable, error) {
	var payables []models.AccountPayable
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ? AND due_date < ?", tenantID, models.PayableStatusOpen, before).
		Order("due_date, id").
		Find(&payables).Error
	return payables, err
}

func (r *monitorRepository) ListUnreconciledLinesBefore(ctx context.Context, tenantID uint, before time.Time) ([]models.BankStatementLine, error) {
	var lines []models.BankStatementLine
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND reconciled = ? AND posted_at < ?", tenantID, false, before).
		Order("posted_at, id").
		Find(&lines).Error
	return lines, err
}

func (r *monitorRepository) ListFailedExportsSince(ctx context.Context, tenantID uint, since time.Time) ([]models.ExportJob, error) {
	var jobs []models.ExportJob
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ? AND updated_at >= ?", tenantID, models.ExportStatusFailed, since).
		Order("id").
		Find(&jobs).Error
	return jobs, err
}

// RequeueExport puts a failed export back into the queue
func (r *monitorRepository) RequeueExport(ctx context.Context, tenantID, id uint) error {
	tx := r.db.WithContext(ctx).
		Model(&models.ExportJob{}).
		Where("id = ? AND tenant_id = ? AND status = ?", id, tenantID, models.ExportStatusFailed).
		Updates(map[string]interface{}{
			"status":     models.ExportStatusQueued,
			"last_error": "",
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
