package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agentlightning/promptctl/pkg/models"
	"github.com/google/uuid"
)

type deploymentRow struct {
	ID                   string                                `db:"id"`
	VersionID            string                                `db:"version_id"`
	AgentID              string                                `db:"agent_id"`
	DeployedBy           string                                `db:"deployed_by"`
	DeployedAt           time.Time                             `db:"deployed_at"`
	Status               string                                `db:"status"`
	PreviousDeploymentID sql.NullString                        `db:"previous_deployment_id"`
	MetricsBaseline      jsonColumnPtr[models.MetricsWindow]   `db:"metrics_baseline"`
	MetricsPost          jsonColumnPtr[models.MetricsWindow]   `db:"metrics_post_deployment"`
	RegressionDetected   bool                                  `db:"regression_detected"`
	RolledBackAt         sql.NullTime                          `db:"rolled_back_at"`
	RolledBackBy         sql.NullString                        `db:"rolled_back_by"`
	RollbackReason       sql.NullString                        `db:"rollback_reason"`
	SupersededAt         sql.NullTime                          `db:"superseded_at"`
}

func (r *deploymentRow) toModel() *models.Deployment {
	d := &models.Deployment{
		ID:                    r.ID,
		VersionID:             r.VersionID,
		AgentID:               r.AgentID,
		DeployedBy:            r.DeployedBy,
		DeployedAt:            r.DeployedAt,
		Status:                models.DeploymentStatus(r.Status),
		MetricsBaseline:       r.MetricsBaseline.V,
		MetricsPostDeployment: r.MetricsPost.V,
		RegressionDetected:    r.RegressionDetected,
	}
	if r.PreviousDeploymentID.Valid {
		d.PreviousDeploymentID = &r.PreviousDeploymentID.String
	}
	if r.RolledBackAt.Valid {
		d.RolledBackAt = &r.RolledBackAt.Time
	}
	if r.RolledBackBy.Valid {
		d.RolledBackBy = &r.RolledBackBy.String
	}
	if r.RollbackReason.Valid {
		d.RollbackReason = &r.RollbackReason.String
	}
	if r.SupersededAt.Valid {
		d.SupersededAt = &r.SupersededAt.Time
	}
	return d
}

const deploymentColumns = `id, version_id, agent_id, deployed_by, deployed_at, status,
	previous_deployment_id, metrics_baseline, metrics_post_deployment, regression_detected,
	rolled_back_at, rolled_back_by, rollback_reason, superseded_at`

// CreateDeployment implements Store. The caller is expected to have already
// checked GetCurrentDeployment and superseded it within the same WithTx; the
// one-active-per-agent partial unique index is the last line of defense
// against a race (spec.md §4.F).
func (s *pgStore) CreateDeployment(ctx context.Context, d *models.Deployment) (*models.Deployment, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = models.DeploymentActive
	}
	q := `INSERT INTO deployments (id, version_id, agent_id, deployed_by, status, previous_deployment_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + deploymentColumns
	var row deploymentRow
	err := s.ext().GetContext(ctx, &row, q, d.ID, d.VersionID, d.AgentID, d.DeployedBy, string(d.Status), d.PreviousDeploymentID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, NewConflict("agent already has an active deployment")
		}
		return nil, fmt.Errorf("store: create deployment: %w", err)
	}
	return row.toModel(), nil
}

// GetDeployment implements Store.
func (s *pgStore) GetDeployment(ctx context.Context, id string) (*models.Deployment, error) {
	q := `SELECT ` + deploymentColumns + ` FROM deployments WHERE id = $1`
	var row deploymentRow
	if err := s.ext().GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get deployment: %w", err)
	}
	return row.toModel(), nil
}

// GetCurrentDeployment implements Store: the single active deployment for
// an agent, if any.
func (s *pgStore) GetCurrentDeployment(ctx context.Context, agentID string) (*models.Deployment, error) {
	q := `SELECT ` + deploymentColumns + ` FROM deployments WHERE agent_id = $1 AND status = $2`
	var row deploymentRow
	if err := s.ext().GetContext(ctx, &row, q, agentID, string(models.DeploymentActive)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get current deployment: %w", err)
	}
	return row.toModel(), nil
}

// GetDeploymentHistory implements Store, most recent first.
func (s *pgStore) GetDeploymentHistory(ctx context.Context, agentID string, limit int) ([]*models.Deployment, error) {
	q := `SELECT ` + deploymentColumns + ` FROM deployments WHERE agent_id = $1 ORDER BY deployed_at DESC LIMIT $2`
	var rows []deploymentRow
	if err := s.ext().SelectContext(ctx, &rows, q, agentID, limit); err != nil {
		return nil, fmt.Errorf("store: get deployment history: %w", err)
	}
	out := make([]*models.Deployment, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

// UpdateDeploymentStatus implements Store.
func (s *pgStore) UpdateDeploymentStatus(ctx context.Context, id string, status models.DeploymentStatus, supersededAt *time.Time) error {
	const q = `UPDATE deployments SET status = $2, superseded_at = coalesce($3, superseded_at) WHERE id = $1`
	res, err := s.ext().ExecContext(ctx, q, id, string(status), supersededAt)
	if err != nil {
		return fmt.Errorf("store: update deployment status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDeploymentMetrics implements Store.
func (s *pgStore) UpdateDeploymentMetrics(ctx context.Context, id string, baseline, post *models.MetricsWindow, regressionDetected bool) error {
	const q = `UPDATE deployments SET metrics_baseline = coalesce($2, metrics_baseline),
		metrics_post_deployment = coalesce($3, metrics_post_deployment), regression_detected = $4 WHERE id = $1`
	res, err := s.ext().ExecContext(ctx, q, id, jsonColumnPtr[models.MetricsWindow]{V: baseline}, jsonColumnPtr[models.MetricsWindow]{V: post}, regressionDetected)
	if err != nil {
		return fmt.Errorf("store: update deployment metrics: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RollbackDeployment implements Store.
func (s *pgStore) RollbackDeployment(ctx context.Context, id, rolledBackBy, reason string, at time.Time) error {
	const q = `UPDATE deployments SET status = $2, rolled_back_at = $3, rolled_back_by = $4, rollback_reason = $5 WHERE id = $1`
	res, err := s.ext().ExecContext(ctx, q, id, string(models.DeploymentRolledBack), at, rolledBackBy, reason)
	if err != nil {
		return fmt.Errorf("store: rollback deployment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReactivateDeployment implements Store: used to restore the previous
// deployment to active status as part of a rollback (spec.md §4.F).
func (s *pgStore) ReactivateDeployment(ctx context.Context, id string) error {
	const q = `UPDATE deployments SET status = $2, superseded_at = NULL WHERE id = $1`
	res, err := s.ext().ExecContext(ctx, q, id, string(models.DeploymentActive))
	if err != nil {
		if isUniqueViolation(err) {
			return NewConflict("agent already has an active deployment")
		}
		return fmt.Errorf("store: reactivate deployment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveDeploymentsDue implements Store: active, not-yet-regressed
// deployments whose deployed_at falls in [from, to), the scheduler's sweep
// window for regression evaluation (spec.md §4.G). Deployments already
// flagged with a regression are excluded so a non-critical regression isn't
// re-detected and re-notified on every sweep.
func (s *pgStore) ListActiveDeploymentsDue(ctx context.Context, from, to time.Time) ([]*models.Deployment, error) {
	q := `SELECT ` + deploymentColumns + ` FROM deployments WHERE status = $1 AND regression_detected = false AND deployed_at >= $2 AND deployed_at < $3`
	var rows []deploymentRow
	if err := s.ext().SelectContext(ctx, &rows, q, string(models.DeploymentActive), from, to); err != nil {
		return nil, fmt.Errorf("store: list active deployments due: %w", err)
	}
	out := make([]*models.Deployment, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}
