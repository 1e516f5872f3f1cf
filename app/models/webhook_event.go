package models

import "time"

// Processing states of an inbound webhook delivery.
const (
	WebhookStatusReceived   = "received"
	WebhookStatusProcessing = "processing"
	WebhookStatusProcessed  = "processed"
	WebhookStatusFailed     = "failed"
)

// WebhookEvent stores provider webhook payloads with deduplication
// metadata for idempotent processing. Rows are never deleted.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	TenantID        uint       `gorm:"not null;index:ux_webhook_events_key,unique,priority:1;index:idx_webhook_events_tenant_status,priority:1" json:"tenant_id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_webhook_events_key,unique,priority:2" json:"provider"`
	IdempotencyKey  string     `gorm:"type:varchar(191);not null;index:ux_webhook_events_key,unique,priority:3" json:"idempotency_key"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index" json:"provider_event_id"`
	RequestID       string     `gorm:"type:varchar(100);not null;default:''" json:"request_id"`
	Status          string     `gorm:"type:varchar(20);not null;default:'received';index:idx_webhook_events_tenant_status,priority:2" json:"status"`
	Attempts        int        `gorm:"not null;default:0" json:"attempts"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime;index" json:"updated_at"`
}

// IsTerminal reports whether the delivery must not be processed again.
func (e *WebhookEvent) IsTerminal() bool {
	return e.Status == WebhookStatusProcessed
}
