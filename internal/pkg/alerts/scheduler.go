package alerts

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuelReschke/LedgerFox/app/repository"
	"github.com/ManuelReschke/LedgerFox/internal/pkg/reconciliation"
	"github.com/gofiber/fiber/v2/log"
)

// Scheduler runs the background sweeps: stuck ledger recovery followed by an
// alert recalculation for every tenant with an active gateway configuration.
type Scheduler struct {
	service  *Service
	ledger   *reconciliation.Ledger
	tenants  repository.GatewayConfigurationRepository
	interval time.Duration

	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewScheduler(service *Service, ledger *reconciliation.Ledger, tenants repository.GatewayConfigurationRepository, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultSettings().SweepInterval
	}
	return &Scheduler{service: service, ledger: ledger, tenants: tenants, interval: interval}
}

// Start starts the sweep worker
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	// Recreate stop channel for each start cycle so the scheduler can be restarted.
	s.stopCh = make(chan struct{})
	s.running = true
	s.ticker = time.NewTicker(s.interval)
	s.wg.Add(1)
	go s.worker(s.stopCh)

	log.Infof("[Scheduler] Started alert sweep worker (interval: %s)", s.interval)
}

// Stop stops the worker and waits for a running sweep to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	log.Info("[Scheduler] Stopping alert sweep worker...")
	s.ticker.Stop()
	close(s.stopCh)
	s.running = false
	s.wg.Wait()
	log.Info("[Scheduler] Stopped successfully")
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) worker(stopCh <-chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-stopCh:
			log.Info("[Scheduler] Alert sweep worker stopping")
			return
		case <-s.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			if err := s.RunOnce(ctx); err != nil {
				log.Errorf("[Scheduler] Sweep error: %v", err)
			}
			cancel()
		}
	}
}

// RunOnce performs a single sweep over all tenants.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if s.ledger != nil {
		n, err := s.ledger.RecoverStuck(ctx)
		if err != nil {
			log.Errorf("[Scheduler] Recovering stuck webhook events failed: %v", err)
		} else if n > 0 {
			log.Warnf("[Scheduler] Marked %d stuck webhook events as failed", n)
		}
	}

	tenantIDs, err := s.tenants.ListActiveTenantIDs(ctx)
	if err != nil {
		return err
	}
	for _, tenantID := range tenantIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res, err := s.service.Recalculate(ctx, tenantID, SystemActor)
		switch {
		case errors.Is(err, ErrSweepInProgress):
			log.Debugf("[Scheduler] Sweep for tenant %d already running, skipping", tenantID)
		case err != nil:
			log.Errorf("[Scheduler] Sweep for tenant %d failed: %v", tenantID, err)
		default:
			log.Debugf("[Scheduler] Tenant %d: generated=%d resolved=%d active=%d", tenantID, res.Generated, res.Resolved, res.Active)
		}
	}
	return nil
}
