package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Gateway transaction statuses.
const (
	TransactionStatusPending    = "pending"
	TransactionStatusProcessing = "processing"
	TransactionStatusApproved   = "approved"
	TransactionStatusDeclined   = "declined"
	TransactionStatusCanceled   = "canceled"
	TransactionStatusError      = "error"
)

// Gateway transaction operation kinds.
const (
	TransactionOperationCharge     = "charge"
	TransactionOperationRefund     = "refund"
	TransactionOperationWebhook    = "webhook"
	TransactionOperationValidation = "validation"
)

// Payment methods understood by the normalizer.
const (
	PaymentMethodPix          = "pix"
	PaymentMethodBoleto       = "boleto"
	PaymentMethodCreditCard   = "credit_card"
	PaymentMethodDebitCard    = "debit_card"
	PaymentMethodBankTransfer = "bank_transfer"
)

// GatewayTransaction is the canonical record of a gateway-side financial
// operation. One row per (tenant, provider reference); updated in place.
type GatewayTransaction struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	TenantID          uint            `gorm:"not null;index:ux_gateway_transactions_reference,unique,priority:1" json:"tenant_id"`
	ConfigurationID   uint            `gorm:"not null;index" json:"configuration_id"`
	InvoiceID         *uint           `gorm:"index" json:"invoice_id,omitempty"`
	PaymentID         *uint           `gorm:"index" json:"payment_id,omitempty"`
	Provider          string          `gorm:"type:varchar(20);not null;index" json:"provider"`
	ProviderReference string          `gorm:"type:varchar(191);not null;index:ux_gateway_transactions_reference,unique,priority:2" json:"provider_reference"`
	Status            string          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Operation         string          `gorm:"type:varchar(20);not null;default:'charge'" json:"operation"`
	Method            string          `gorm:"type:varchar(30);not null;default:''" json:"method"`
	GrossAmount       decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"gross_amount"`
	Fee               decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"fee"`
	NetAmount         decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"net_amount"`
	RequestPayload    datatypes.JSON  `gorm:"type:json" json:"request_payload,omitempty"`
	ResponsePayload   datatypes.JSON  `gorm:"type:json" json:"response_payload,omitempty"`
	ProcessedAt       *time.Time      `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	CreatedAt         time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
