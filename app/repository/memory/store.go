// Package memory is an in-process implementation of the repositories with
// the same uniqueness rules as the SQL schema. It backs service tests.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"github.com/ManuelReschke/LedgerFox/app/repository"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/money"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Store holds every table. Transactions are serialized but not rolled back.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	seq  uint

	// Now stamps created/updated times. Tests may replace it.
	Now func() time.Time

	configs  map[uint]models.GatewayConfiguration
	events   map[uint]models.WebhookEvent
	txs      map[uint]models.GatewayTransaction
	payments map[uint]models.Payment
	invoices map[uint]models.Invoice
	alerts   map[uint]models.OperationalAlert
	payables map[uint]models.AccountPayable
	lines    map[uint]models.BankStatementLine
	exports  map[uint]models.ExportJob
	keys     map[uint]models.OperatorAPIKey
}

func NewStore() *Store {
	return &Store{
		Now:      time.Now,
		configs:  map[uint]models.GatewayConfiguration{},
		events:   map[uint]models.WebhookEvent{},
		txs:      map[uint]models.GatewayTransaction{},
		payments: map[uint]models.Payment{},
		invoices: map[uint]models.Invoice{},
		alerts:   map[uint]models.OperationalAlert{},
		payables: map[uint]models.AccountPayable{},
		lines:    map[uint]models.BankStatementLine{},
		exports:  map[uint]models.ExportJob{},
		keys:     map[uint]models.OperatorAPIKey{},
	}
}

// Repositories returns repositories backed by the store.
func (s *Store) Repositories() *repository.Repositories {
	repos := s.plain()
	repos.Transactor = s
	return repos
}

func (s *Store) plain() *repository.Repositories {
	return &repository.Repositories{
		Configuration: &configRepo{s},
		WebhookEvent:  &eventRepo{s},
		Transaction:   &txRepo{s},
		Payment:       &paymentRepo{s},
		Invoice:       &invoiceRepo{s},
		Alert:         &alertRepo{s},
		Monitor:       &monitorRepo{s},
		OperatorKey:   &keyRepo{s},
	}
}

// Transaction runs fn with repositories that do not open nested transactions.
func (s *Store) Transaction(ctx context.Context, fn func(repos *repository.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(s.plain())
}

func (s *Store) nextID() uint {
	s.seq++
	return s.seq
}

// --- seeding helpers -------------------------------------------------------

// SeedPayable inserts an account payable.
func (s *Store) SeedPayable(p models.AccountPayable) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextID()
	p.CreatedAt, p.UpdatedAt = s.Now(), s.Now()
	s.payables[p.ID] = p
	return p.ID
}

// UpdatePayable mutates a stored payable.
func (s *Store) UpdatePayable(id uint, fn func(p *models.AccountPayable)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.payables[id]
	fn(&p)
	p.UpdatedAt = s.Now()
	s.payables[id] = p
}

// SeedBankLine inserts a bank statement line.
func (s *Store) SeedBankLine(l models.BankStatementLine) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = s.nextID()
	l.CreatedAt, l.UpdatedAt = s.Now(), s.Now()
	s.lines[l.ID] = l
	return l.ID
}

// SeedExport inserts an export job.
func (s *Store) SeedExport(j models.ExportJob) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	j.ID = s.nextID()
	j.CreatedAt, j.UpdatedAt = s.Now(), s.Now()
	s.exports[j.ID] = j
	return j.ID
}

// Export returns a stored export job.
func (s *Store) Export(id uint) models.ExportJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exports[id]
}

// Counts returns the number of transactions and payments stored.
func (s *Store) Counts() (transactions, payments int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.txs), len(s.payments)
}

// TouchEvent overrides the updated time of a webhook event.
func (s *Store) TouchEvent(id uint, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.events[id]
	e.UpdatedAt = at
	s.events[id] = e
}

// --- gateway configurations ------------------------------------------------

type configRepo struct{ s *Store }

func (r *configRepo) Create(cfg *models.GatewayConfiguration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.configs {
		if c.TenantID == cfg.TenantID && c.Provider == cfg.Provider && c.Mode == cfg.Mode {
			return gorm.ErrDuplicatedKey
		}
	}
	cfg.ID = s.nextID()
	cfg.CreatedAt, cfg.UpdatedAt = s.Now(), s.Now()
	s.configs[cfg.ID] = *cfg
	return nil
}

func (r *configRepo) FindActive(ctx context.Context, tenantID uint, provider, mode string) (*models.GatewayConfiguration, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.configs {
		if c.TenantID == tenantID && c.Provider == provider && c.Mode == mode && c.IsActive {
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *configRepo) ListActiveTenantIDs(ctx context.Context) ([]uint, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[uint]struct{}{}
	var ids []uint
	for _, c := range s.configs {
		if _, ok := seen[c.TenantID]; c.IsActive && !ok {
			seen[c.TenantID] = struct{}{}
			ids = append(ids, c.TenantID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// --- webhook events --------------------------------------------------------

type eventRepo struct{ s *Store }

func (r *eventRepo) GetByID(ctx context.Context, id uint) (*models.WebhookEvent, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &e, nil
}

func (r *eventRepo) Find(ctx context.Context, tenantID uint, provider, key string) (*models.WebhookEvent, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.findEvent(tenantID, provider, key); ok {
		return &e, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *Store) findEvent(tenantID uint, provider, key string) (models.WebhookEvent, bool) {
	for _, e := range s.events {
		if e.TenantID == tenantID && e.Provider == provider && e.IdempotencyKey == key {
			return e, true
		}
	}
	return models.WebhookEvent{}, false
}

func (r *eventRepo) CreateIfNotExists(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.findEvent(event.TenantID, event.Provider, event.IdempotencyKey); ok {
		return false, &e, nil
	}
	event.ID = s.nextID()
	event.CreatedAt, event.UpdatedAt = s.Now(), s.Now()
	s.events[event.ID] = *event
	stored := *event
	return true, &stored, nil
}

func (r *eventRepo) Claim(ctx context.Context, id uint, fromStatus string, attempts int) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok || e.Status != fromStatus || e.Attempts != attempts {
		return false, nil
	}
	e.Status = models.WebhookStatusProcessing
	e.Attempts++
	e.ProcessingError = ""
	e.UpdatedAt = s.Now()
	s.events[id] = e
	return true, nil
}

func (r *eventRepo) MarkProcessed(ctx context.Context, id uint, processedAt time.Time) error {
	return r.update(id, func(e *models.WebhookEvent) {
		e.Status = models.WebhookStatusProcessed
		e.ProcessedAt = &processedAt
		e.ProcessingError = ""
	})
}

func (r *eventRepo) MarkFailed(ctx context.Context, id uint, processingError string) error {
	return r.update(id, func(e *models.WebhookEvent) {
		e.Status = models.WebhookStatusFailed
		e.ProcessingError = processingError
	})
}

func (r *eventRepo) update(id uint, fn func(e *models.WebhookEvent)) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil
	}
	fn(&e)
	e.UpdatedAt = s.Now()
	s.events[id] = e
	return nil
}

func (r *eventRepo) ListFailedSince(ctx context.Context, tenantID uint, since time.Time) ([]models.WebhookEvent, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.WebhookEvent
	for _, e := range s.events {
		if e.TenantID == tenantID && e.Status == models.WebhookStatusFailed && !e.UpdatedAt.Before(since) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *eventRepo) FailStuck(ctx context.Context, olderThan time.Time, reason string) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.events {
		if e.Status == models.WebhookStatusProcessing && e.UpdatedAt.Before(olderThan) {
			e.Status = models.WebhookStatusFailed
			e.ProcessingError = reason
			e.UpdatedAt = s.Now()
			s.events[id] = e
			n++
		}
	}
	return n, nil
}

// --- gateway transactions --------------------------------------------------

type txRepo struct{ s *Store }

func (r *txRepo) GetByID(ctx context.Context, tenantID, id uint) (*models.GatewayTransaction, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.txs[id]
	if !ok || t.TenantID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	return &t, nil
}

func (r *txRepo) FindByReference(ctx context.Context, tenantID uint, reference string) (*models.GatewayTransaction, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.txs {
		if t.TenantID == tenantID && t.ProviderReference == reference {
			return &t, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// LockByReference is FindByReference; store transactions are serialized.
func (r *txRepo) LockByReference(ctx context.Context, tenantID uint, reference string) (*models.GatewayTransaction, error) {
	return r.FindByReference(ctx, tenantID, reference)
}

func (r *txRepo) Create(ctx context.Context, tx *models.GatewayTransaction) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.txs {
		if t.TenantID == tx.TenantID && t.ProviderReference == tx.ProviderReference {
			return gorm.ErrDuplicatedKey
		}
	}
	tx.ID = s.nextID()
	tx.CreatedAt, tx.UpdatedAt = s.Now(), s.Now()
	s.txs[tx.ID] = *tx
	return nil
}

func (r *txRepo) Save(ctx context.Context, tx *models.GatewayTransaction) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.txs {
		if id != tx.ID && t.TenantID == tx.TenantID && t.ProviderReference == tx.ProviderReference {
			return gorm.ErrDuplicatedKey
		}
	}
	if tx.ID == 0 {
		tx.ID = s.nextID()
		tx.CreatedAt = s.Now()
	}
	tx.UpdatedAt = s.Now()
	s.txs[tx.ID] = *tx
	return nil
}

func (r *txRepo) List(ctx context.Context, tenantID uint, filter repository.TransactionFilter) ([]models.GatewayTransaction, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.GatewayTransaction
	for _, t := range s.txs {
		if t.TenantID == tenantID && (filter.Status == "" || t.Status == filter.Status) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *txRepo) ListUnlinked(ctx context.Context, tenantID uint, olderThan time.Time) ([]models.GatewayTransaction, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.GatewayTransaction
	for _, t := range s.txs {
		if t.TenantID == tenantID && t.PaymentID == nil && t.CreatedAt.Before(olderThan) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- payments --------------------------------------------------------------

type paymentRepo struct{ s *Store }

func (r *paymentRepo) GetByID(ctx context.Context, tenantID, id uint) (*models.Payment, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok || p.TenantID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (r *paymentRepo) FindByTransactionID(ctx context.Context, tenantID uint, transactionID string) (*models.Payment, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.payments {
		if p.TenantID == tenantID && p.TransactionID == transactionID {
			return &p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *paymentRepo) Create(ctx context.Context, p *models.Payment) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.payments {
		if existing.TenantID == p.TenantID && existing.TransactionID == p.TransactionID {
			return gorm.ErrDuplicatedKey
		}
	}
	p.ID = s.nextID()
	p.CreatedAt, p.UpdatedAt = s.Now(), s.Now()
	s.payments[p.ID] = *p
	return nil
}

func (r *paymentRepo) Save(ctx context.Context, p *models.Payment) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.nextID()
		p.CreatedAt = s.Now()
	}
	p.UpdatedAt = s.Now()
	s.payments[p.ID] = *p
	return nil
}

func (r *paymentRepo) ListByInvoice(ctx context.Context, invoiceID uint) ([]models.Payment, error) {
	return r.filter(func(p models.Payment) bool { return p.InvoiceID == invoiceID }), nil
}

func (r *paymentRepo) ListRefundsOf(ctx context.Context, paymentID uint) ([]models.Payment, error) {
	return r.filter(func(p models.Payment) bool {
		return p.Kind == models.PaymentKindRefund && p.RefundOfID != nil && *p.RefundOfID == paymentID
	}), nil
}

func (r *paymentRepo) filter(keep func(p models.Payment) bool) []models.Payment {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Payment
	for _, p := range s.payments {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- invoices --------------------------------------------------------------

type invoiceRepo struct{ s *Store }

func (r *invoiceRepo) Create(ctx context.Context, inv *models.Invoice) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	inv.ID = s.nextID()
	inv.CreatedAt, inv.UpdatedAt = s.Now(), s.Now()
	s.invoices[inv.ID] = *inv
	return nil
}

func (r *invoiceRepo) GetByID(ctx context.Context, tenantID, id uint) (*models.Invoice, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	return &inv, nil
}

func (r *invoiceRepo) GetForUpdate(ctx context.Context, id uint) (*models.Invoice, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &inv, nil
}

func (r *invoiceRepo) Save(ctx context.Context, inv *models.Invoice) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv.ID == 0 {
		inv.ID = s.nextID()
		inv.CreatedAt = s.Now()
	}
	inv.UpdatedAt = s.Now()
	s.invoices[inv.ID] = *inv
	return nil
}

func (r *invoiceRepo) ListDrift(ctx context.Context, tenantID uint) ([]repository.InvoiceDrift, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []repository.InvoiceDrift
	for _, inv := range s.invoices {
		if inv.TenantID != tenantID {
			continue
		}
		sum := decimal.Zero
		for _, p := range s.payments {
			if p.InvoiceID == inv.ID && p.IsApproved() {
				sum = sum.Add(p.GrossAmount)
			}
		}
		calculated := money.Clamp(sum, decimal.Zero, inv.TotalAmount)
		if !calculated.Equal(inv.PaidAmount) {
			out = append(out, repository.InvoiceDrift{InvoiceID: inv.ID, Stored: inv.PaidAmount, Calculated: calculated})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceID < out[j].InvoiceID })
	return out, nil
}

// --- alerts ----------------------------------------------------------------

type alertRepo struct{ s *Store }

func cloneAlert(a models.OperationalAlert) models.OperationalAlert {
	a.Payload = maps.Clone(a.Payload)
	a.AuditTrail = append([]models.AlertAuditEntry(nil), a.AuditTrail...)
	if a.ActiveScope != nil {
		scope := *a.ActiveScope
		a.ActiveScope = &scope
	}
	return a
}

func (r *alertRepo) GetByID(ctx context.Context, tenantID, id uint) (*models.OperationalAlert, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok || a.TenantID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	a = cloneAlert(a)
	return &a, nil
}

func (r *alertRepo) FindOpen(ctx context.Context, tenantID uint, alertType, reference string) (*models.OperationalAlert, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.alerts {
		if a.TenantID == tenantID && a.Type == alertType && a.ReferenceKey == reference && a.IsOpen() {
			a = cloneAlert(a)
			return &a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *alertRepo) ListOpenByType(ctx context.Context, tenantID uint, alertType string) ([]models.OperationalAlert, error) {
	return r.filter(func(a models.OperationalAlert) bool {
		return a.TenantID == tenantID && a.Type == alertType && a.IsOpen()
	}, false), nil
}

func (r *alertRepo) List(ctx context.Context, tenantID uint, filter repository.AlertFilter) ([]models.OperationalAlert, error) {
	out := r.filter(func(a models.OperationalAlert) bool {
		if a.TenantID != tenantID {
			return false
		}
		if len(filter.Statuses) > 0 && !contains(filter.Statuses, a.Status) {
			return false
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			return false
		}
		return filter.Type == "" || a.Type == filter.Type
	}, true)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *alertRepo) CountOpen(ctx context.Context, tenantID uint) (int64, error) {
	return int64(len(r.filter(func(a models.OperationalAlert) bool {
		return a.TenantID == tenantID && a.IsOpen()
	}, false))), nil
}

func (r *alertRepo) filter(keep func(a models.OperationalAlert) bool, newestFirst bool) []models.OperationalAlert {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.OperationalAlert
	for _, a := range s.alerts {
		if keep(a) {
			out = append(out, cloneAlert(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *alertRepo) Create(ctx context.Context, alert *models.OperationalAlert) error {
	alert.ID = 0
	return r.Save(ctx, alert)
}

func (r *alertRepo) Save(ctx context.Context, alert *models.OperationalAlert) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	alert.SyncActiveScope()
	if alert.ActiveScope != nil {
		for id, a := range s.alerts {
			if id != alert.ID && a.ActiveScope != nil && *a.ActiveScope == *alert.ActiveScope {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	if alert.ID == 0 {
		alert.ID = s.nextID()
		alert.CreatedAt = s.Now()
	}
	alert.UpdatedAt = s.Now()
	s.alerts[alert.ID] = cloneAlert(*alert)
	return nil
}

// --- monitored sources -----------------------------------------------------

type monitorRepo struct{ s *Store }

func (r *monitorRepo) ListOpenPayablesDueBefore(ctx context.Context, tenantID uint, before time.Time) ([]models.AccountPayable, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AccountPayable
	for _, p := range s.payables {
		if p.TenantID == tenantID && p.Status == models.PayableStatusOpen && p.DueDate.Before(before) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *monitorRepo) ListUnreconciledLinesBefore(ctx context.Context, tenantID uint, before time.Time) ([]models.BankStatementLine, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.BankStatementLine
	for _, l := range s.lines {
		if l.TenantID == tenantID && !l.Reconciled && l.PostedAt.Before(before) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *monitorRepo) ListFailedExportsSince(ctx context.Context, tenantID uint, since time.Time) ([]models.ExportJob, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ExportJob
	for _, j := range s.exports {
		if j.TenantID == tenantID && j.Status == models.ExportStatusFailed && !j.UpdatedAt.Before(since) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *monitorRepo) RequeueExport(ctx context.Context, tenantID, id uint) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.exports[id]
	if !ok || j.TenantID != tenantID || j.Status != models.ExportStatusFailed {
		return gorm.ErrRecordNotFound
	}
	j.Status = models.ExportStatusQueued
	j.LastError = ""
	j.UpdatedAt = s.Now()
	s.exports[id] = j
	return nil
}

// --- operator keys ---------------------------------------------------------

type keyRepo struct{ s *Store }

func (r *keyRepo) Create(key *models.OperatorAPIKey) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.KeyID == key.KeyID {
			return gorm.ErrDuplicatedKey
		}
	}
	key.ID = s.nextID()
	key.CreatedAt, key.UpdatedAt = s.Now(), s.Now()
	s.keys[key.ID] = *key
	return nil
}

func (r *keyRepo) GetByKeyID(ctx context.Context, keyID string) (*models.OperatorAPIKey, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.keys {
		if k.KeyID == keyID {
			return &k, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *keyRepo) TouchLastUsed(ctx context.Context, id uint, at time.Time) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	k.LastUsedAt = &at
	s.keys[id] = k
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
