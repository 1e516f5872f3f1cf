// Package alerts keeps operational alerts in line with the conditions they
// describe and lets operators acknowledge, resolve and remediate them.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/ManuelReschke/LedgerFox/app/models"
	"github.com/ManuelReschke/LedgerFox/app/repository"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/cache"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/metrics"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/reconciliation"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

var (
	ErrAlertNotFound    = errors.New("alerts: alert not found")
	ErrAlertResolved    = errors.New("alerts: alert is resolved")
	ErrSweepInProgress  = errors.New("alerts: a sweep is already running for this tenant")
	ErrInvalidFilter    = errors.New("alerts: invalid filter")
	errNoRemediation    = errors.New("no remediation available for this alert type")
	errMissingReference = errors.New("alert payload does not identify the affected record")
)

// Audit actions.
const (
	ActionCreated         = "created"
	ActionRefreshed       = "refreshed"
	ActionAcknowledged    = "acknowledged"
	ActionResolved        = "resolved"
	ActionAutoResolved    = "auto_resolved"
	ActionReprocessed     = "reprocessed"
	ActionReprocessFailed = "reprocess_failed"
)

// SystemActor signs transitions made by the sweep itself.
const SystemActor = "system"

// Locker serializes sweeps per tenant.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RecalculateResult summarizes one sweep.
type RecalculateResult struct {
	Generated int      `json:"generated"`
	Resolved  int      `json:"resolved"`
	Active    int64    `json:"active"`
	Failed    []string `json:"failed,omitempty"`
}

// ReprocessResult is the structured outcome of a remediation attempt.
type ReprocessResult struct {
	Success bool                     `json:"success"`
	Action  string                   `json:"action,omitempty"`
	Output  map[string]any           `json:"output,omitempty"`
	Error   string                   `json:"error,omitempty"`
	Alert   *models.OperationalAlert `json:"alert"`
}

// ListFilter narrows List. Status accepts "open" for active and acknowledged.
type ListFilter struct {
	Status   string
	Severity string
	Type     string
	Limit    int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Service runs the alert state machine and the reconciliation sweep.
type Service struct {
	repos    *repository.Repositories
	proc     *reconciliation.Processor
	settings Settings
	locker   Locker
	now      func() time.Time
}

func NewService(repos *repository.Repositories, proc *reconciliation.Processor, settings Settings, locker Locker) *Service {
	if locker == nil {
		locker = cache.NewLocalLocker()
	}
	return &Service{repos: repos, proc: proc, settings: settings, locker: locker, now: time.Now}
}

func (s *Service) load(ctx context.Context, tenantID, id uint) (*models.OperationalAlert, error) {
	alert, err := s.repos.Alert.GetByID(ctx, tenantID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrAlertNotFound, id)
	}
	return alert, err
}

func (s *Service) transition(ctx context.Context, alert *models.OperationalAlert, actor, action, to, note string, details map[string]any) error {
	from := alert.Status
	alert.Status = to
	alert.AppendAudit(models.AlertAuditEntry{
		Actor:      actor,
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		Note:       note,
		Details:    details,
		At:         s.now(),
	})
	if err := s.repos.Alert.Save(ctx, alert); err != nil {
		return err
	}
	metrics.IncAlertTransition(alert.Type, action)
	log.Infow("alert transition",
		"tenant", alert.TenantID,
		"alert", alert.ID,
		"type", alert.Type,
		"reference", alert.ReferenceKey,
		"action", action,
		"from", from,
		"to", to,
		"actor", actor,
	)
	return nil
}

// Get returns one of the tenant's alerts.
func (s *Service) Get(ctx context.Context, tenantID, id uint) (*models.OperationalAlert, error) {
	return s.load(ctx, tenantID, id)
}

// Ack acknowledges an open alert.
func (s *Service) Ack(ctx context.Context, tenantID, id uint, actor, note string) (*models.OperationalAlert, error) {
	alert, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if alert.Status == models.AlertStatusResolved {
		return nil, fmt.Errorf("%w: %d", ErrAlertResolved, id)
	}
	now := s.now()
	alert.AcknowledgedBy = actor
	alert.AcknowledgedAt = &now
	if err := s.transition(ctx, alert, actor, ActionAcknowledged, models.AlertStatusAcknowledged, note, nil); err != nil {
		return nil, err
	}
	return alert, nil
}

// Resolve closes an alert. Resolving a resolved alert returns it unchanged.
func (s *Service) Resolve(ctx context.Context, tenantID, id uint, actor, note string) (*models.OperationalAlert, error) {
	alert, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if alert.Status == models.AlertStatusResolved {
		return alert, nil
	}
	if err := s.resolve(ctx, alert, actor, ActionResolved, note, nil); err != nil {
		return nil, err
	}
	return alert, nil
}

func (s *Service) resolve(ctx context.Context, alert *models.OperationalAlert, actor, action, note string, details map[string]any) error {
	now := s.now()
	if alert.AcknowledgedAt == nil {
		alert.AcknowledgedAt = &now
		alert.AcknowledgedBy = actor
	}
	alert.ResolvedAt = &now
	alert.ResolvedBy = actor
	return s.transition(ctx, alert, actor, action, models.AlertStatusResolved, note, details)
}

// Reprocess runs the remediation registered for the alert's type. A failed
// remediation is reported in the result and the audit trail, and the alert
// keeps its status; only storage errors are returned as errors.
func (s *Service) Reprocess(ctx context.Context, tenantID, id uint, actor string, params map[string]any) (ReprocessResult, error) {
	alert, err := s.load(ctx, tenantID, id)
	if err != nil {
		return ReprocessResult{}, err
	}
	if alert.Status == models.AlertStatusResolved {
		return ReprocessResult{}, fmt.Errorf("%w: %d", ErrAlertResolved, id)
	}

	action, output, remErr := s.remediate(ctx, alert, params)
	result := ReprocessResult{Action: action, Output: output, Alert: alert}
	details := map[string]any{"remediation": action}
	if len(params) > 0 {
		details["params"] = params
	}
	maps.Copy(details, output)

	if remErr != nil {
		result.Error = remErr.Error()
		details["error"] = remErr.Error()
		log.Warnf("[Alerts] Remediation %s for alert %d (%s) failed: %v", action, alert.ID, alert.ReferenceKey, remErr)
		if err := s.transition(ctx, alert, actor, ActionReprocessFailed, alert.Status, "", details); err != nil {
			return result, err
		}
		return result, nil
	}

	result.Success = true
	if err := s.resolve(ctx, alert, actor, ActionReprocessed, "", details); err != nil {
		return result, err
	}
	return result, nil
}

// List returns the tenant's alerts, newest first.
func (s *Service) List(ctx context.Context, tenantID uint, filter ListFilter) ([]models.OperationalAlert, error) {
	f := repository.AlertFilter{Severity: filter.Severity, Type: filter.Type, Limit: filter.Limit}
	switch filter.Status {
	case "":
	case "open":
		f.Statuses = []string{models.AlertStatusActive, models.AlertStatusAcknowledged}
	case models.AlertStatusActive, models.AlertStatusAcknowledged, models.AlertStatusResolved:
		f.Statuses = []string{filter.Status}
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, filter.Status)
	}
	switch filter.Severity {
	case "", models.AlertSeverityInfo, models.AlertSeverityWarning, models.AlertSeverityCritical:
	default:
		return nil, fmt.Errorf("%w: unknown severity %q", ErrInvalidFilter, filter.Severity)
	}
	if filter.Type != "" && !slices.Contains(MonitoredTypes(), filter.Type) {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidFilter, filter.Type)
	}
	switch {
	case f.Limit < 0:
		return nil, fmt.Errorf("%w: limit must not be negative", ErrInvalidFilter)
	case f.Limit == 0:
		f.Limit = defaultListLimit
	case f.Limit > maxListLimit:
		f.Limit = maxListLimit
	}
	return s.repos.Alert.List(ctx, tenantID, f)
}

// Recalculate sweeps every monitored condition for a tenant: offending
// references get an open alert, and open alerts whose condition cleared are
// resolved. A monitor whose query fails is skipped, including its
// auto-resolution, and reported in Failed.
func (s *Service) Recalculate(ctx context.Context, tenantID uint, actor string) (RecalculateResult, error) {
	var result RecalculateResult
	release, err := s.locker.Acquire(ctx, "alerts:sweep:"+strconv.FormatUint(uint64(tenantID), 10), s.settings.LockTTL)
	if errors.Is(err, cache.ErrLockHeld) {
		return result, ErrSweepInProgress
	}
	if err != nil {
		return result, err
	}
	defer release()

	if actor == "" {
		actor = SystemActor
	}
	start := s.now()
	for _, m := range s.monitors() {
		generated, resolved, err := s.sweep(ctx, tenantID, actor, m, start)
		result.Generated += generated
		result.Resolved += resolved
		if err != nil {
			result.Failed = append(result.Failed, m.Type)
			metrics.IncMonitorFailure(m.Type)
			log.Errorf("[Alerts] Monitor %s failed for tenant %d: %v", m.Type, tenantID, err)
		}
	}

	active, err := s.repos.Alert.CountOpen(ctx, tenantID)
	if err != nil {
		return result, err
	}
	result.Active = active

	outcome := "ok"
	if len(result.Failed) > 0 {
		outcome = "partial"
	}
	metrics.ObserveSweep(outcome, time.Since(start).Seconds())
	log.Infow("alert sweep finished",
		"tenant", tenantID,
		"generated", result.Generated,
		"resolved", result.Resolved,
		"active", result.Active,
		"failed", result.Failed,
	)
	return result, nil
}

func (s *Service) sweep(ctx context.Context, tenantID uint, actor string, m monitor, now time.Time) (int, int, error) {
	findings, err := m.Detect(ctx, tenantID, now)
	if err != nil {
		return 0, 0, err
	}

	var (
		generated int
		upsertErr error
	)
	current := make(map[string]struct{}, len(findings))
	for _, f := range findings {
		current[f.Reference] = struct{}{}
		created, err := s.upsert(ctx, tenantID, m.Type, actor, f)
		if err != nil {
			upsertErr = errors.Join(upsertErr, fmt.Errorf("upsert %s: %w", f.Reference, err))
			continue
		}
		if created {
			generated++
		}
	}

	open, err := s.repos.Alert.ListOpenByType(ctx, tenantID, m.Type)
	if err != nil {
		return generated, 0, errors.Join(upsertErr, err)
	}
	resolved := 0
	for i := range open {
		alert := &open[i]
		if _, ok := current[alert.ReferenceKey]; ok {
			continue
		}
		if err := s.resolve(ctx, alert, actor, ActionAutoResolved, "condition no longer present", nil); err != nil {
			upsertErr = errors.Join(upsertErr, fmt.Errorf("resolve %s: %w", alert.ReferenceKey, err))
			continue
		}
		resolved++
	}
	return generated, resolved, upsertErr
}

// upsert keeps one open alert per reference and reports whether it created one.
func (s *Service) upsert(ctx context.Context, tenantID uint, alertType, actor string, f finding) (bool, error) {
	existing, err := s.repos.Alert.FindOpen(ctx, tenantID, alertType, f.Reference)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	if existing == nil {
		alert := &models.OperationalAlert{
			TenantID:     tenantID,
			Type:         alertType,
			Severity:     f.Severity,
			Status:       models.AlertStatusActive,
			Title:        f.Title,
			Description:  f.Description,
			ReferenceKey: f.Reference,
			Payload:      f.Payload,
		}
		alert.AppendAudit(models.AlertAuditEntry{
			Actor:    actor,
			Action:   ActionCreated,
			ToStatus: models.AlertStatusActive,
			At:       s.now(),
		})
		err := s.repos.Alert.Create(ctx, alert)
		if err == nil {
			metrics.IncAlertTransition(alertType, ActionCreated)
			log.Infow("alert transition",
				"tenant", tenantID,
				"alert", alert.ID,
				"type", alertType,
				"reference", f.Reference,
				"action", ActionCreated,
				"from", "",
				"to", models.AlertStatusActive,
				"actor", actor,
			)
			return true, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, err
		}
		// Created concurrently; refresh the winner instead.
		if existing, err = s.repos.Alert.FindOpen(ctx, tenantID, alertType, f.Reference); err != nil {
			return false, err
		}
	}

	severityChanged := existing.Severity != f.Severity
	if !severityChanged && existing.Title == f.Title && existing.Description == f.Description && samePayload(existing.Payload, f.Payload) {
		return false, nil
	}
	before := existing.Severity
	existing.Severity = f.Severity
	existing.Title = f.Title
	existing.Description = f.Description
	existing.Payload = f.Payload
	if severityChanged {
		existing.AppendAudit(models.AlertAuditEntry{
			Actor:      actor,
			Action:     ActionRefreshed,
			FromStatus: existing.Status,
			ToStatus:   existing.Status,
			Details:    map[string]any{"severity_from": before, "severity_to": f.Severity},
			At:         s.now(),
		})
	}
	return false, s.repos.Alert.Save(ctx, existing)
}

func samePayload(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range b {
		if fmt.Sprint(a[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}
