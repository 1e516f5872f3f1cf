package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
)

// Gateway provider constants. Providers outside this list are rejected as unknown.
const (
	GatewayProviderAsaas       = "asaas"
	GatewayProviderMercadoPago = "mercadopago"
	GatewayProviderPagarme     = "pagarme"
	GatewayProviderPagSeguro   = "pagseguro"
	GatewayProviderStripe      = "stripe"
)

// Environment modes a configuration can be bound to.
const (
	GatewayModeSandbox    = "sandbox"
	GatewayModeProduction = "production"
)

// GatewayConfiguration holds the per-tenant credentials of a payment provider.
// There is at most one row per (tenant, provider, mode); only active rows are
// used to authenticate webhooks.
type GatewayConfiguration struct {
	ID             uint                        `gorm:"primaryKey" json:"id"`
	TenantID       uint                        `gorm:"not null;index:ux_gateway_configurations_scope,unique,priority:1" json:"tenant_id" validate:"required"`
	Provider       string                      `gorm:"type:varchar(20);not null;index:ux_gateway_configurations_scope,unique,priority:2" json:"provider" validate:"required,max=20"`
	Mode           string                      `gorm:"type:varchar(16);not null;default:'sandbox';index:ux_gateway_configurations_scope,unique,priority:3" json:"mode" validate:"oneof=sandbox production"`
	WebhookSecret  string                      `gorm:"type:text" json:"-"`
	AllowedMethods datatypes.JSONSlice[string] `gorm:"type:json" json:"allowed_methods"`
	IsActive       bool                        `gorm:"default:true;index" json:"is_active"`
	CreatedAt      time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *GatewayConfiguration) Validate() error {
	return validator.New().Struct(c)
}

// AllowsMethod reports whether method is accepted; an empty list allows all methods.
func (c *GatewayConfiguration) AllowsMethod(method string) bool {
	if len(c.AllowedMethods) == 0 {
		return true
	}
	m := strings.ToLower(strings.TrimSpace(method))
	for _, allowed := range c.AllowedMethods {
		if strings.ToLower(strings.TrimSpace(allowed)) == m {
			return true
		}
	}
	return false
}

// HasSecret reports whether a usable webhook secret is configured.
func (c *GatewayConfiguration) HasSecret() bool {
	return strings.TrimSpace(c.WebhookSecret) != ""
}
