package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"gorm.io/gorm"
)

// operatorKeyRepository implements the OperatorKeyRepository interface
type operatorKeyRepository struct {
	db *gorm.DB
}

// NewOperatorKeyRepository creates a new operator key repository instance
func NewOperatorKeyRepository(db *gorm.DB) OperatorKeyRepository {
	return &operatorKeyRepository{db: db}
}

func (r *operatorKeyRepository) Create(key *models.OperatorAPIKey) error {
	return r.db.Create(key).Error
}

func (r *operatorKeyRepository) GetByKeyID(ctx context.Context, keyID string) (*models.OperatorAPIKey, error) {
	var key models.OperatorAPIKey
	if err := r.db.WithContext(ctx).Where("key_id = ?", keyID).First(&key).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *operatorKeyRepository) TouchLastUsed(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.OperatorAPIKey{}).Where("id = ?", id).Update("last_used_at", at).Error
}
