package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Lookups that find nothing return gorm.ErrRecordNotFound. Unique constraint
// violations surface as gorm.ErrDuplicatedKey.

// GatewayConfigurationRepository defines read access to provider credentials
type GatewayConfigurationRepository interface {
	Create(cfg *models.GatewayConfiguration) error
	FindActive(ctx context.Context, tenantID uint, provider, mode string) (*models.GatewayConfiguration, error)
	ListActiveTenantIDs(ctx context.Context) ([]uint, error)
}

// WebhookEventRepository defines the idempotency ledger storage
type WebhookEventRepository interface {
	GetByID(ctx context.Context, id uint) (*models.WebhookEvent, error)
	Find(ctx context.Context, tenantID uint, provider, key string) (*models.WebhookEvent, error)
	// CreateIfNotExists inserts event unless its key exists and reports
	// whether this call created the row. The stored row is returned either way.
	CreateIfNotExists(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	// Claim moves a row back to processing if it is still in fromStatus with
	// the given attempt count. It reports whether this caller won.
	Claim(ctx context.Context, id uint, fromStatus string, attempts int) (bool, error)
	MarkProcessed(ctx context.Context, id uint, processedAt time.Time) error
	MarkFailed(ctx context.Context, id uint, processingError string) error
	ListFailedSince(ctx context.Context, tenantID uint, since time.Time) ([]models.WebhookEvent, error)
	FailStuck(ctx context.Context, olderThan time.Time, reason string) (int64, error)
}

// TransactionFilter narrows transaction listings
type TransactionFilter struct {
	Status string
	Limit  int
}

// GatewayTransactionRepository defines gateway transaction storage
type GatewayTransactionRepository interface {
	GetByID(ctx context.Context, tenantID, id uint) (*models.GatewayTransaction, error)
	FindByReference(ctx context.Context, tenantID uint, reference string) (*models.GatewayTransaction, error)
	// LockByReference reads the latest committed row and locks it for the
	// current transaction. A plain read may still see the transaction's snapshot.
	LockByReference(ctx context.Context, tenantID uint, reference string) (*models.GatewayTransaction, error)
	Create(ctx context.Context, tx *models.GatewayTransaction) error
	Save(ctx context.Context, tx *models.GatewayTransaction) error
	List(ctx context.Context, tenantID uint, filter TransactionFilter) ([]models.GatewayTransaction, error)
	// ListUnlinked returns transactions without a payment created before olderThan.
	ListUnlinked(ctx context.Context, tenantID uint, olderThan time.Time) ([]models.GatewayTransaction, error)
}

// PaymentRepository defines payment ledger storage
type PaymentRepository interface {
	GetByID(ctx context.Context, tenantID, id uint) (*models.Payment, error)
	FindByTransactionID(ctx context.Context, tenantID uint, transactionID string) (*models.Payment, error)
	Create(ctx context.Context, p *models.Payment) error
	Save(ctx context.Context, p *models.Payment) error
	ListByInvoice(ctx context.Context, invoiceID uint) ([]models.Payment, error)
	ListRefundsOf(ctx context.Context, paymentID uint) ([]models.Payment, error)
}

// InvoiceDrift is an invoice whose stored paid amount differs from its approved payments.
type InvoiceDrift struct {
	InvoiceID  uint
	Stored     decimal.Decimal
	Calculated decimal.Decimal
}

// InvoiceRepository defines invoice storage
type InvoiceRepository interface {
	Create(ctx context.Context, inv *models.Invoice) error
	GetByID(ctx context.Context, tenantID, id uint) (*models.Invoice, error)
	// GetForUpdate loads an invoice and locks its row for the current transaction.
	GetForUpdate(ctx context.Context, id uint) (*models.Invoice, error)
	Save(ctx context.Context, inv *models.Invoice) error
	ListDrift(ctx context.Context, tenantID uint) ([]InvoiceDrift, error)
}

// AlertFilter narrows alert listings
type AlertFilter struct {
	Statuses []string
	Severity string
	Type     string
	Limit    int
}

// AlertRepository defines operational alert storage
type AlertRepository interface {
	GetByID(ctx context.Context, tenantID, id uint) (*models.OperationalAlert, error)
	FindOpen(ctx context.Context, tenantID uint, alertType, reference string) (*models.OperationalAlert, error)
	ListOpenByType(ctx context.Context, tenantID uint, alertType string) ([]models.OperationalAlert, error)
	List(ctx context.Context, tenantID uint, filter AlertFilter) ([]models.OperationalAlert, error)
	CountOpen(ctx context.Context, tenantID uint) (int64, error)
	Create(ctx context.Context, alert *models.OperationalAlert) error
	Save(ctx context.Context, alert *models.OperationalAlert) error
}

// MonitorRepository reads the tables watched by the alert sweep
type MonitorRepository interface {
	ListOpenPayablesDueBefore(ctx context.Context, tenantID uint, before time.Time) ([]models.AccountPayable, error)
	ListUnreconciledLinesBefore(ctx context.Context, tenantID uint, before time.Time) ([]models.BankStatementLine, error)
	ListFailedExportsSince(ctx context.Context, tenantID uint, since time.Time) ([]models.ExportJob, error)
	RequeueExport(ctx context.Context, tenantID, id uint) error
}

// OperatorKeyRepository defines operator API key storage
type OperatorKeyRepository interface {
	Create(key *models.OperatorAPIKey) error
	GetByKeyID(ctx context.Context, keyID string) (*models.OperatorAPIKey, error)
	TouchLastUsed(ctx context.Context, id uint, at time.Time) error
}

// Transactor runs fn with repositories bound to a single storage transaction.
type Transactor interface {
	Transaction(ctx context.Context, fn func(repos *Repositories) error) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Configuration GatewayConfigurationRepository
	WebhookEvent  WebhookEventRepository
	Transaction   GatewayTransactionRepository
	Payment       PaymentRepository
	Invoice       InvoiceRepository
	Alert         AlertRepository
	Monitor       MonitorRepository
	OperatorKey   OperatorKeyRepository
	Transactor    Transactor
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Configuration: NewGatewayConfigurationRepository(db),
		WebhookEvent:  NewWebhookEventRepository(db),
		Transaction:   NewGatewayTransactionRepository(db),
		Payment:       NewPaymentRepository(db),
		Invoice:       NewInvoiceRepository(db),
		Alert:         NewAlertRepository(db),
		Monitor:       NewMonitorRepository(db),
		OperatorKey:   NewOperatorKeyRepository(db),
		Transactor:    &gormTransactor{db: db},
	}
}

// InTransaction runs fn inside one storage transaction. Without a transactor
// fn runs directly against r.
func (r *Repositories) InTransaction(ctx context.Context, fn func(repos *Repositories) error) error {
	if r.Transactor == nil {
		return fn(r)
	}
	return r.Transactor.Transaction(ctx, fn)
}

type gormTransactor struct {
	db *gorm.DB
}

func (t *gormTransactor) Transaction(ctx context.Context, fn func(repos *Repositories) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
