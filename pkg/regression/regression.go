// Package regression implements the Regression Detector of spec.md §4.E:
// baseline-vs-post comparison, severity classification, recommendations,
// and deferred per-deployment evaluation scheduling.
package regression

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentlightning/promptctl/pkg/metrics"
	"github.com/agentlightning/promptctl/pkg/models"
	"github.com/agentlightning/promptctl/pkg/notify"
	"github.com/agentlightning/promptctl/pkg/store"
)

// Config holds the thresholds named in spec.md §4.E.
type Config struct {
	SuccessRateThreshold    float64
	EfficiencyThreshold     float64
	MinSampleSize           int
	EvaluationWindowMinutes int
}

// DefaultConfig matches spec.md §4.E/§6's defaults.
func DefaultConfig() Config {
	return Config{
		SuccessRateThreshold:    0.05,
		EfficiencyThreshold:     0.10,
		MinSampleSize:           50,
		EvaluationWindowMinutes: 30,
	}
}

// Rollbacker is the subset of the Deployment Controller the detector invokes
// for auto-rollback, kept as a narrow interface to avoid an import cycle
// with pkg/deployment (which depends on this package to schedule and cancel
// evaluations).
type Rollbacker interface {
	AutoRollback(ctx context.Context, deploymentID, reason string) error
}

// Service implements the Regression Detector component.
type Service struct {
	store   store.Store
	metrics *metrics.Service
	notify  *notify.Gateway
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger

	mu        sync.Mutex
	scheduled map[string]*time.Timer
	rollback  Rollbacker
}

// New constructs a Service. SetRollbacker must be called once the
// Deployment Controller exists, before any scheduled evaluation fires.
func New(st store.Store, ms *metrics.Service, gw *notify.Gateway, cfg Config) *Service {
	return &Service{
		store:     st,
		metrics:   ms,
		notify:    gw,
		cfg:       cfg,
		now:       time.Now,
		logger:    slog.Default().With("component", "regression"),
		scheduled: make(map[string]*time.Timer),
	}
}

// SetRollbacker wires the Deployment Controller for auto-rollback, breaking
// the construction-order cycle between the two packages.
func (s *Service) SetRollbacker(r Rollbacker) {
	s.rollback = r
}

// SetNow overrides the service's clock. Exposed for callers in other
// packages (the deployment service's tests) that construct a Service
// directly and need deterministic timestamps.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

// Evaluate implements spec.md §4.E's evaluate(deploymentId).
func (s *Service) Evaluate(ctx context.Context, deploymentID string) (*models.RegressionReport, error) {
	d, err := s.store.GetDeployment(ctx, deploymentID)
	if err != nil {
		return nil, err
	}

	if d.MetricsBaseline == nil {
		baseline, err := s.metrics.CaptureBaseline(ctx, d.AgentID, d.DeployedAt)
		if err != nil {
			return nil, fmt.Errorf("regression: capture baseline: %w", err)
		}
		if err := s.store.UpdateDeploymentMetrics(ctx, d.ID, &baseline, nil, false); err != nil {
			return nil, fmt.Errorf("regression: persist baseline: %w", err)
		}
		report, err := s.store.CreateRegressionReport(ctx, &models.RegressionReport{
			DeploymentID:    d.ID,
			Detected:        false,
			Recommendations: []string{"no baseline"},
			EvaluatedAt:     s.now(),
			WindowStart:     d.DeployedAt,
			WindowEnd:       s.now(),
		})
		return report, err
	}

	windowEnd := d.DeployedAt.Add(time.Duration(s.cfg.EvaluationWindowMinutes) * time.Minute)
	now := s.now()
	if windowEnd.After(now) {
		windowEnd = now
	}
	post, err := s.metrics.CaptureWindow(ctx, d.VersionID, d.DeployedAt, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("regression: capture post-deployment window: %w", err)
	}

	cmp := s.metrics.CompareMetrics(*d.MetricsBaseline, post)

	detected, severity, recs := s.classify(cmp)
	autoRollback := severity != nil && *severity == models.SeverityCritical && cmp.StatisticallySignificant

	report, err := s.store.CreateRegressionReport(ctx, &models.RegressionReport{
		DeploymentID:          d.ID,
		Detected:              detected,
		Severity:              severity,
		Metrics:               cmp,
		Recommendations:       recs,
		EvaluatedAt:           now,
		AutoRollbackTriggered: autoRollback,
		WindowStart:           d.DeployedAt,
		WindowEnd:             windowEnd,
	})
	if err != nil {
		return nil, fmt.Errorf("regression: create report: %w", err)
	}

	if err := s.store.UpdateDeploymentMetrics(ctx, d.ID, nil, &post, detected); err != nil {
		return nil, fmt.Errorf("regression: persist post-deployment metrics: %w", err)
	}

	if detected {
		sev := ""
		if severity != nil {
			sev = string(*severity)
		}
		s.notify.Emit(ctx, notify.Event{
			Kind: notify.RegressionDetected, AgentID: d.AgentID, DeploymentID: d.ID,
			VersionID: d.VersionID, Severity: sev, OccurredAt: now,
		})
	}

	if autoRollback && s.rollback != nil {
		if err := s.rollback.AutoRollback(ctx, d.ID, "critical regression detected"); err != nil {
			s.logger.Error("auto-rollback failed", "deployment_id", d.ID, "error", err)
		}
	}

	return report, nil
}

// classify implements spec.md §4.E step 4: detection rule and severity.
func (s *Service) classify(cmp models.MetricsComparison) (detected bool, severity *models.Severity, recs []string) {
	if !cmp.SampleSizeSufficient {
		return false, nil, []string{fmt.Sprintf("Insufficient sample size (%d/%d)", cmp.After.TrajectoryCount, s.cfg.MinSampleSize)}
	}

	successDrop := -cmp.SuccessRateChange
	efficiencyDrop := -cmp.EfficiencyChange
	errorIncrease := cmp.ErrorRateChange

	if successDrop <= s.cfg.SuccessRateThreshold && efficiencyDrop <= s.cfg.EfficiencyThreshold && errorIncrease <= s.cfg.SuccessRateThreshold {
		return false, nil, nil
	}

	var sev models.Severity
	switch {
	case successDrop > 0.20 || errorIncrease > 0.20:
		sev = models.SeverityCritical
	case successDrop > 0.10 || errorIncrease > 0.10:
		sev = models.SeverityHigh
	case successDrop > s.cfg.SuccessRateThreshold || efficiencyDrop > s.cfg.EfficiencyThreshold:
		sev = models.SeverityMedium
	default:
		sev = models.SeverityLow
	}

	if sev == models.SeverityCritical || sev == models.SeverityHigh {
		recs = append(recs, fmt.Sprintf("%s severity regression detected, consider immediate rollback", sev))
	}
	if successDrop > s.cfg.SuccessRateThreshold {
		recs = append(recs, fmt.Sprintf("Success rate dropped %.1f%%", successDrop*100))
	}
	if efficiencyDrop > s.cfg.EfficiencyThreshold {
		recs = append(recs, fmt.Sprintf("Efficiency dropped %.1f%%", efficiencyDrop*100))
	}
	if errorIncrease > s.cfg.SuccessRateThreshold {
		recs = append(recs, fmt.Sprintf("Error rate increased %.1f%%", errorIncrease*100))
	}
	if !cmp.StatisticallySignificant {
		recs = append(recs, "change is not statistically significant")
	}

	return true, &sev, recs
}

// ScheduleEvaluation schedules a deferred Evaluate call after the evaluation
// window elapses, cancelling any prior scheduled evaluation for the same
// deployment first.
func (s *Service) ScheduleEvaluation(deploymentID string) {
	s.CancelScheduledEvaluation(deploymentID)

	delay := time.Duration(s.cfg.EvaluationWindowMinutes) * time.Minute
	timer := time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.scheduled, deploymentID)
		s.mu.Unlock()

		ctx := context.Background()
		if _, err := s.Evaluate(ctx, deploymentID); err != nil {
			s.logger.Error("scheduled regression evaluation failed", "deployment_id", deploymentID, "error", err)
		}
	})

	s.mu.Lock()
	s.scheduled[deploymentID] = timer
	s.mu.Unlock()
}

// CancelScheduledEvaluation cancels a previously scheduled evaluation for
// deploymentID, if any. After cancellation no new report is written.
func (s *Service) CancelScheduledEvaluation(deploymentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.scheduled[deploymentID]; ok {
		t.Stop()
		delete(s.scheduled, deploymentID)
	}
}
