package repository

import (
	"context"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"gorm.io/gorm"
)

// gatewayConfigurationRepository implements the GatewayConfigurationRepository interface
type gatewayConfigurationRepository struct {
	db *gorm.DB
}

// NewGatewayConfigurationRepository creates a new gateway configuration repository instance
func NewGatewayConfigurationRepository(db *gorm.DB) GatewayConfigurationRepository {
	return &gatewayConfigurationRepository{db: db}
}

func (r *gatewayConfigurationRepository) Create(cfg *models.GatewayConfiguration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return r.db.Create(cfg).Error
}

// FindActive returns the active configuration for (tenant, provider, mode)
func (r *gatewayConfigurationRepository) FindActive(ctx context.Context, tenantID uint, provider, mode string) (*models.GatewayConfiguration, error) {
	var cfg models.GatewayConfiguration
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND provider = ? AND mode = ? AND is_active = ?", tenantID, provider, mode, true).
		First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ListActiveTenantIDs returns every tenant with at least one active configuration
func (r *gatewayConfigurationRepository) ListActiveTenantIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.GatewayConfiguration{}).
		Where("is_active = ?", true).
		Distinct().
		Order("tenant_id").
		Pluck("tenant_id", &ids).Error
	return ids, err
}
