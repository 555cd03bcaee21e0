// Package scheduler implements the two recurring background tasks of
// spec.md §4.G: an hourly approval-expiration sweep and a 15-minute
// deployment-monitor sweep, each with at-most-one concurrency.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agentlightning/promptctl/pkg/deployment"
	"github.com/agentlightning/promptctl/pkg/regression"
	"github.com/agentlightning/promptctl/pkg/store"
)

const (
	expirySweepInterval  = time.Hour
	monitorSweepInterval = 15 * time.Minute
	monitorSweepLag      = 5 * time.Minute
)

// Scheduler owns the two background ticker loops. Constructed at startup
// from config and owned by main, which starts and stops it with the process;
// it is not a process-wide singleton.
type Scheduler struct {
	store      store.Store
	regression *regression.Service
	deployment *deployment.Service
	cfg        regression.Config
	now        func() time.Time
	logger     *slog.Logger

	stopCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup

	expiryRunning bool
	expiryMu      sync.Mutex
	monitorRunning bool
	monitorMu      sync.Mutex
}

// New constructs a Scheduler.
func New(st store.Store, rd *regression.Service, dc *deployment.Service, cfg regression.Config) *Scheduler {
	return &Scheduler{
		store:      st,
		regression: rd,
		deployment: dc,
		cfg:        cfg,
		now:        time.Now,
		logger:     slog.Default().With("component", "scheduler"),
		stopCh:     make(chan struct{}),
	}
}

// Start launches both background loops. Safe to call once; a second call is
// a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.wg.Add(2)
		go s.runExpirySweep(ctx)
		go s.runMonitorSweep(ctx)
	})
}

// Stop signals both loops to exit and waits for them to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Scheduler) runExpirySweep(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(expirySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.expireApprovals(ctx)
		}
	}
}

func (s *Scheduler) expireApprovals(ctx context.Context) {
	s.expiryMu.Lock()
	if s.expiryRunning {
		s.expiryMu.Unlock()
		return
	}
	s.expiryRunning = true
	s.expiryMu.Unlock()
	defer func() {
		s.expiryMu.Lock()
		s.expiryRunning = false
		s.expiryMu.Unlock()
	}()

	n, err := s.store.ExpirePendingApprovalsBefore(ctx, s.now())
	if err != nil {
		s.logger.Error("approval expiration sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("expired pending approval requests", "count", n)
	}
}

func (s *Scheduler) runMonitorSweep(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(monitorSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.monitorDeployments(ctx)
		}
	}
}

func (s *Scheduler) monitorDeployments(ctx context.Context) {
	s.monitorMu.Lock()
	if s.monitorRunning {
		s.monitorMu.Unlock()
		return
	}
	s.monitorRunning = true
	s.monitorMu.Unlock()
	defer func() {
		s.monitorMu.Lock()
		s.monitorRunning = false
		s.monitorMu.Unlock()
	}()

	now := s.now()
	from := now.Add(-time.Duration(s.cfg.EvaluationWindowMinutes) * time.Minute)
	to := now.Add(-monitorSweepLag)
	// ListActiveDeploymentsDue excludes deployments already flagged with a
	// regression, so a deployment evaluated once as non-critical isn't
	// re-evaluated (and re-notified) on every subsequent sweep.
	due, err := s.store.ListActiveDeploymentsDue(ctx, from, to)
	if err != nil {
		s.logger.Error("deployment monitor sweep: list due deployments failed", "error", err)
		return
	}

	for _, d := range due {
		report, err := s.regression.Evaluate(ctx, d.ID)
		if err != nil {
			s.logger.Error("deployment monitor sweep: evaluate failed", "deployment_id", d.ID, "error", err)
			continue
		}
		if report.AutoRollbackTriggered {
			if err := s.deployment.AutoRollback(ctx, d.ID, "critical regression detected"); err != nil {
				if !store.IsConflict(err, "AlreadyRolledBack") {
					s.logger.Error("deployment monitor sweep: auto-rollback failed", "deployment_id", d.ID, "error", err)
				}
			}
		}
	}
}
