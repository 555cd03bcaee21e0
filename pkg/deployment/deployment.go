// Package deployment implements the atomic Deployment Controller of
// spec.md §4.F: deploy, rollback, and auto-rollback, each committing every
// table change in a single serializable transaction.
package deployment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentlightning/promptctl/pkg/approval"
	"github.com/agentlightning/promptctl/pkg/metrics"
	"github.com/agentlightning/promptctl/pkg/models"
	"github.com/agentlightning/promptctl/pkg/notify"
	"github.com/agentlightning/promptctl/pkg/rbac"
	"github.com/agentlightning/promptctl/pkg/regression"
	"github.com/agentlightning/promptctl/pkg/store"
)

// Service implements the Deployment Controller component.
type Service struct {
	store      store.Store
	approvals  *approval.Service
	metrics    *metrics.Service
	regression *regression.Service
	notify     *notify.Gateway
	canAct     func(models.Role) bool
	now        func() time.Time
	logger     *slog.Logger
}

// New constructs a Service and wires it as the regression detector's
// Rollbacker, closing the deferred-evaluation auto-rollback loop.
func New(st store.Store, ap *approval.Service, ms *metrics.Service, rd *regression.Service, gw *notify.Gateway) *Service {
	s := &Service{
		store:      st,
		approvals:  ap,
		metrics:    ms,
		regression: rd,
		notify:     gw,
		canAct:     rbac.CanDeployOrApprove,
		now:        time.Now,
		logger:     slog.Default().With("component", "deployment"),
	}
	rd.SetRollbacker(s)
	return s
}

// SetNow overrides the service's clock; used by tests for deterministic
// timestamps.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

// Deploy promotes versionID to production for its agent. The version,
// approval, role and current-deployment checks and the baseline capture run
// before the transaction, outside it; the table changes (superseding the
// current deployment, creating the new one with its baseline, and updating
// version lifecycle and the agent's production version) commit together in
// one serializable transaction.
func (s *Service) Deploy(ctx context.Context, versionID, deployedBy string) (*models.Deployment, error) {
	version, err := s.store.GetPromptVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	status, err := s.approvals.GetApprovalStatus(ctx, versionID)
	if err != nil && err != store.ErrNotFound {
		return nil, err
	}
	if err == store.ErrNotFound || !status.CanDeploy {
		return nil, store.NewConflict("NotApproved")
	}

	reviewer, err := s.store.GetReviewer(ctx, deployedBy)
	if err != nil {
		return nil, err
	}
	if !s.canAct(reviewer.Role) {
		return nil, store.ErrPermissionDenied
	}

	current, err := s.store.GetCurrentDeployment(ctx, version.AgentID)
	if err != nil && err != store.ErrNotFound {
		return nil, err
	}
	hasCurrent := err == nil

	now := s.now()
	baseline, err := s.metrics.CaptureBaseline(ctx, version.AgentID, now)
	if err != nil {
		return nil, fmt.Errorf("deployment: capture baseline: %w", err)
	}

	var created *models.Deployment
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Store) error {
		var previousID *string
		if hasCurrent {
			previousID = &current.ID
			if err := tx.UpdateDeploymentStatus(ctx, current.ID, models.DeploymentSuperseded, &now); err != nil {
				return err
			}
		}

		d, err := tx.CreateDeployment(ctx, &models.Deployment{
			VersionID:            versionID,
			AgentID:               version.AgentID,
			DeployedBy:            deployedBy,
			Status:                models.DeploymentActive,
			PreviousDeploymentID:  previousID,
		})
		if err != nil {
			return err
		}
		if err := tx.UpdateDeploymentMetrics(ctx, d.ID, &baseline, nil, false); err != nil {
			return err
		}

		if err := tx.SetVersionLifecycle(ctx, versionID, models.VersionProduction, &now, nil); err != nil {
			return err
		}

		agent, err := tx.GetAgent(ctx, version.AgentID)
		if err != nil {
			return err
		}
		if agent.CurrentProductionVersionID != nil && *agent.CurrentProductionVersionID != versionID {
			if err := tx.SetVersionLifecycle(ctx, *agent.CurrentProductionVersionID, models.VersionRetired, nil, &now); err != nil {
				return err
			}
		}
		if err := tx.SetAgentProductionVersion(ctx, version.AgentID, &versionID); err != nil {
			return err
		}

		created = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = s.store.TouchReviewerActivity(ctx, reviewer.ID, now)
	s.regression.ScheduleEvaluation(created.ID)
	s.notify.Emit(ctx, notify.Event{
		Kind: notify.Deployed, AgentID: version.AgentID, VersionID: versionID,
		DeploymentID: created.ID, ActorID: deployedBy, OccurredAt: now,
	})
	return created, nil
}

// Rollback reverts deploymentID and reactivates its predecessor, atomically.
func (s *Service) Rollback(ctx context.Context, deploymentID, rolledBackBy, reason string) (*models.Deployment, error) {
	d, err := s.store.GetDeployment(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	if d.RolledBackAt != nil {
		return nil, store.NewConflict("AlreadyRolledBack")
	}

	reviewer, err := s.store.GetReviewer(ctx, rolledBackBy)
	if err != nil {
		return nil, err
	}
	if !s.canAct(reviewer.Role) {
		return nil, store.ErrPermissionDenied
	}

	if d.PreviousDeploymentID == nil {
		return nil, store.NewConflict("NoPreviousDeployment")
	}

	s.regression.CancelScheduledEvaluation(deploymentID)

	now := s.now()
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.RollbackDeployment(ctx, d.ID, rolledBackBy, reason, now); err != nil {
			return err
		}
		if err := tx.SetVersionStatus(ctx, d.VersionID, models.VersionCandidate); err != nil {
			return err
		}

		previous, err := tx.GetDeployment(ctx, *d.PreviousDeploymentID)
		if err != nil {
			return err
		}
		if err := tx.ReactivateDeployment(ctx, previous.ID); err != nil {
			return err
		}
		if err := tx.SetVersionLifecycle(ctx, previous.VersionID, models.VersionProduction, &now, nil); err != nil {
			return err
		}
		return tx.SetAgentProductionVersion(ctx, d.AgentID, &previous.VersionID)
	})
	if err != nil {
		return nil, err
	}

	restored, err := s.store.GetDeployment(ctx, *d.PreviousDeploymentID)
	if err != nil {
		return nil, err
	}

	_ = s.store.TouchReviewerActivity(ctx, reviewer.ID, now)
	s.notify.Emit(ctx, notify.Event{
		Kind: notify.RollbackComplete, AgentID: d.AgentID, VersionID: d.VersionID,
		DeploymentID: d.ID, ActorID: rolledBackBy, Reason: reason, OccurredAt: now,
	})
	return restored, nil
}

// AutoRollback is invoked by the Regression Detector when a critical,
// statistically significant regression is found. It acts as any available
// admin reviewer and prefixes the reason "[AUTO] ".
func (s *Service) AutoRollback(ctx context.Context, deploymentID, reason string) error {
	admin, err := s.store.FindAnyAdmin(ctx)
	if err != nil {
		if err == store.ErrNotFound {
			return store.NewConflict("NoAdmin")
		}
		return err
	}

	s.notify.Emit(ctx, notify.Event{
		Kind: notify.Rollback, DeploymentID: deploymentID, ActorID: admin.ID, Reason: reason, OccurredAt: s.now(),
	})

	_, err = s.Rollback(ctx, deploymentID, admin.ID, "[AUTO] "+reason)
	return err
}

// IsDeployed reports whether versionID is the currently active deployment
// for its agent.
func (s *Service) IsDeployed(ctx context.Context, versionID string) (bool, error) {
	version, err := s.store.GetPromptVersion(ctx, versionID)
	if err != nil {
		return false, err
	}
	current, err := s.store.GetCurrentDeployment(ctx, version.AgentID)
	if err != nil {
		if err == store.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return current.VersionID == versionID, nil
}
