package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	InvoiceStatusPending       = "pending"
	InvoiceStatusSent          = "sent"
	InvoiceStatusPaid          = "paid"
	InvoiceStatusOverdue       = "overdue"
	InvoiceStatusCanceled      = "canceled"
	InvoiceStatusPartiallyPaid = "partially_paid"
)

// Invoice is billed to a customer. PaidAmount is always recomputed from the
// approved payments and never accepted as input.
type Invoice struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	TenantID    uint            `gorm:"not null;index:idx_invoices_tenant_status,priority:1" json:"tenant_id"`
	CustomerID  uint            `gorm:"not null;default:0;index" json:"customer_id"`
	Number      string          `gorm:"type:varchar(50);not null;default:''" json:"number"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"total_amount"`
	PaidAmount  decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"paid_amount"`
	Status      string          `gorm:"type:varchar(20);not null;default:'pending';index:idx_invoices_tenant_status,priority:2" json:"status"`
	DueDate     time.Time       `gorm:"type:date;not null" json:"due_date"`
	PaymentDate *time.Time      `gorm:"type:timestamp;default:null" json:"payment_date,omitempty"`
	CanceledAt  *time.Time      `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsOverdue reports whether the due date lies before the day of now.
func (i *Invoice) IsOverdue(now time.Time) bool {
	if i.DueDate.IsZero() {
		return false
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return i.DueDate.Before(today)
}
