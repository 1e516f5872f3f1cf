package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	AlertStatusActive       = "active"
	AlertStatusAcknowledged = "acknowledged"
	AlertStatusResolved     = "resolved"
)

const (
	AlertSeverityInfo     = "info"
	AlertSeverityWarning  = "warning"
	AlertSeverityCritical = "critical"
)

// Alert types produced by the reconciliation sweep.
const (
	AlertTypePayableDueSoon   = "accounts_payable_due_soon"
	AlertTypePayableOverdue   = "accounts_payable_overdue"
	AlertTypeBankBacklog      = "bank_reconciliation_backlog"
	AlertTypeWebhookFailure   = "webhook_failure"
	AlertTypeExportFailure    = "export_failure"
	AlertTypeInvoiceSyncDrift = "invoice_sync_drift"
	AlertTypeGatewayOrphan    = "gateway_reference_orphan"
)

// MaxAlertAuditEntries caps the audit trail kept on a single alert.
const MaxAlertAuditEntries = 100

// AlertAuditEntry is one transition in an alert's history.
type AlertAuditEntry struct {
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	FromStatus string         `json:"from_status"`
	ToStatus   string         `json:"to_status"`
	Note       string         `json:"note,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	At         time.Time      `json:"at"`
}

// OperationalAlert is an operability signal scoped to one underlying
// condition by its reference key.
//
// ActiveScope carries "tenant:type:reference" while the alert is open and
// NULL once resolved. Its unique index keeps a single open alert per scope.
type OperationalAlert struct {
	ID             uint                                 `gorm:"primaryKey" json:"id"`
	TenantID       uint                                 `gorm:"not null;index:idx_operational_alerts_lookup,priority:1" json:"tenant_id"`
	Type           string                               `gorm:"type:varchar(50);not null;index:idx_operational_alerts_lookup,priority:2" json:"type"`
	Severity       string                               `gorm:"type:varchar(16);not null;default:'warning'" json:"severity"`
	Status         string                               `gorm:"type:varchar(16);not null;default:'active';index:idx_operational_alerts_lookup,priority:3" json:"status"`
	Title          string                               `gorm:"type:varchar(255);not null" json:"title"`
	Description    string                               `gorm:"type:text" json:"description"`
	ReferenceKey   string                               `gorm:"type:varchar(191);not null;index" json:"reference"`
	ActiveScope    *string                              `gorm:"type:varchar(255);uniqueIndex:ux_operational_alerts_active_scope" json:"-"`
	Payload        datatypes.JSONMap                    `gorm:"type:json" json:"payload"`
	AuditTrail     datatypes.JSONSlice[AlertAuditEntry] `gorm:"type:json" json:"audit_trail"`
	AcknowledgedBy string                               `gorm:"type:varchar(100)" json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time                           `gorm:"type:timestamp;default:null" json:"acknowledged_at,omitempty"`
	ResolvedBy     string                               `gorm:"type:varchar(100)" json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time                           `gorm:"type:timestamp;default:null" json:"resolved_at,omitempty"`
	CreatedAt      time.Time                            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time                            `gorm:"autoUpdateTime" json:"updated_at"`
}

// AlertScope builds the uniqueness scope of an open alert.
func AlertScope(tenantID uint, alertType, reference string) string {
	return fmt.Sprintf("%d:%s:%s", tenantID, alertType, reference)
}

// IsOpen reports whether the alert is active or acknowledged.
func (a *OperationalAlert) IsOpen() bool {
	return a.Status == AlertStatusActive || a.Status == AlertStatusAcknowledged
}

// SyncActiveScope sets ActiveScope from the current status.
func (a *OperationalAlert) SyncActiveScope() {
	if a.IsOpen() {
		scope := AlertScope(a.TenantID, a.Type, a.ReferenceKey)
		a.ActiveScope = &scope
		return
	}
	a.ActiveScope = nil
}

// AppendAudit adds an entry and drops the oldest ones beyond the cap.
func (a *OperationalAlert) AppendAudit(entry AlertAuditEntry) {
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	trail := append(a.AuditTrail, entry)
	if len(trail) > MaxAlertAuditEntries {
		trail = trail[len(trail)-MaxAlertAuditEntries:]
	}
	a.AuditTrail = trail
}

// BeforeSave keeps ActiveScope consistent with Status.
func (a *OperationalAlert) BeforeSave(tx *gorm.DB) error {
	a.SyncActiveScope()
	return nil
}
