package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PayableStatusOpen     = "open"
	PayableStatusPaid     = "paid"
	PayableStatusCanceled = "canceled"
)

// AccountPayable is a bill the tenant owes. Open payables near or past
// their due date raise alerts.
type AccountPayable struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	TenantID    uint            `gorm:"not null;index:idx_accounts_payable_due,priority:1" json:"tenant_id"`
	Description string          `gorm:"type:varchar(255)" json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"amount"`
	Status      string          `gorm:"type:varchar(16);not null;default:'open';index:idx_accounts_payable_due,priority:2" json:"status"`
	DueDate     time.Time       `gorm:"type:date;not null;index:idx_accounts_payable_due,priority:3" json:"due_date"`
	PaidAt      *time.Time      `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AccountPayable) TableName() string {
	return "accounts_payable"
}

// BankStatementLine is an imported bank movement waiting to be matched.
type BankStatementLine struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	TenantID     uint            `gorm:"not null;index:idx_bank_statement_lines_backlog,priority:1" json:"tenant_id"`
	PostedAt     time.Time       `gorm:"not null;index:idx_bank_statement_lines_backlog,priority:3" json:"posted_at"`
	Description  string          `gorm:"type:varchar(255)" json:"description"`
	Amount       decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"amount"`
	Reconciled   bool            `gorm:"not null;default:false;index:idx_bank_statement_lines_backlog,priority:2" json:"reconciled"`
	ReconciledAt *time.Time      `gorm:"type:timestamp;default:null" json:"reconciled_at,omitempty"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	ExportStatusQueued    = "queued"
	ExportStatusRunning   = "running"
	ExportStatusCompleted = "completed"
	ExportStatusFailed    = "failed"
)

// ExportJob is an accounting export run.
type ExportJob struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TenantID  uint      `gorm:"not null;index:idx_export_jobs_status,priority:1" json:"tenant_id"`
	Kind      string    `gorm:"type:varchar(50);not null" json:"kind"`
	Status    string    `gorm:"type:varchar(16);not null;default:'queued';index:idx_export_jobs_status,priority:2" json:"status"`
	Attempts  int       `gorm:"not null;default:0" json:"attempts"`
	LastError string    `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index" json:"updated_at"`
}
