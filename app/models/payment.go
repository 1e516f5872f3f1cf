package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	PaymentKindPayment    = "payment"
	PaymentKindRefund     = "refund"
	PaymentKindAdjustment = "adjustment"
	PaymentKindDiscount   = "discount"
)

const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusApproved   = "approved"
	PaymentStatusRejected   = "rejected"
	PaymentStatusCanceled   = "canceled"
	PaymentStatusReversed   = "reversed"
)

// Payment is a ledger entry of money movement against an invoice. Refunds are
// new rows with negated amounts; the original row is never rewritten.
type Payment struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	TenantID        uint            `gorm:"not null;index:ux_payments_transaction,unique,priority:1" json:"tenant_id"`
	InvoiceID       uint            `gorm:"not null;index" json:"invoice_id"`
	TransactionID   string          `gorm:"type:varchar(191);not null;index:ux_payments_transaction,unique,priority:2" json:"transaction_id"`
	Kind            string          `gorm:"type:varchar(20);not null;default:'payment'" json:"kind"`
	Status          string          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Method          string          `gorm:"type:varchar(30);not null;default:''" json:"method"`
	GrossAmount     decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"gross_amount"`
	Fee             decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"fee"`
	NetAmount       decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"net_amount"`
	ApprovedAt      *time.Time      `gorm:"type:timestamp;default:null" json:"approved_at,omitempty"`
	ProcessingAt    *time.Time      `gorm:"type:timestamp;default:null" json:"processing_at,omitempty"`
	RejectionReason string          `gorm:"type:text" json:"rejection_reason,omitempty"`
	RefundOfID      *uint           `gorm:"index" json:"refund_of_id,omitempty"`
	GatewayPayload  datatypes.JSON  `gorm:"type:json" json:"gateway_payload,omitempty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsApproved reports whether the payment currently counts towards its invoice.
func (p *Payment) IsApproved() bool {
	return p.Status == PaymentStatusApproved
}
