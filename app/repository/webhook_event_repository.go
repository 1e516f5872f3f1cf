package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// webhookEventRepository implements the WebhookEventRepository interface
type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a new webhook event repository instance
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

func (r *webhookEventRepository) GetByID(ctx context.Context, id uint) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.WithContext(ctx).First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *webhookEventRepository) Find(ctx context.Context, tenantID uint, provider, key string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND provider = ? AND idempotency_key = ?", tenantID, provider, key).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *webhookEventRepository) CreateIfNotExists(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tenant_id"},
			{Name: "provider"},
			{Name: "idempotency_key"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	stored, err := r.Find(ctx, event.TenantID, event.Provider, event.IdempotencyKey)
	if err != nil {
		return false, nil, err
	}
	return created, stored, nil
}

func (r *webhookEventRepository) Claim(ctx context.Context, id uint, fromStatus string, attempts int) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ? AND status = ? AND attempts = ?", id, fromStatus, attempts).
		Updates(map[string]interface{}{
			"status":           models.WebhookStatusProcessing,
			"attempts":         gorm.Expr("attempts + 1"),
			"processing_error": "",
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, id uint, processedAt time.Time) error {
	updates := map[string]interface{}{
		"status":           models.WebhookStatusProcessed,
		"processed_at":     &processedAt,
		"processing_error": "",
	}
	return r.db.WithContext(ctx).Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *webhookEventRepository) MarkFailed(ctx context.Context, id uint, processingError string) error {
	updates := map[string]interface{}{
		"status":           models.WebhookStatusFailed,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *webhookEventRepository) ListFailedSince(ctx context.Context, tenantID uint, since time.Time) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ? AND updated_at >= ?", tenantID, models.WebhookStatusFailed, since).
		Order("id").
		Find(&events).Error
	return events, err
}

// FailStuck marks processing rows not touched since olderThan as failed
func (r *webhookEventRepository) FailStuck(ctx context.Context, olderThan time.Time, reason string) (int64, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("status = ? AND updated_at < ?", models.WebhookStatusProcessing, olderThan).
		Updates(map[string]interface{}{
			"status":           models.WebhookStatusFailed,
			"processing_error": reason,
		})
	return tx.RowsAffected, tx.Error
}
