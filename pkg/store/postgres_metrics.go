package store

import (
	"context"
	"fmt"
	"time"

	"github.com/agentlightning/promptctl/pkg/models"
)

// aggRow is the shape returned by the trajectory aggregation queries shared
// by GetTrajectoryMetrics and GetVersionMetrics.
type aggRow struct {
	Count         int     `db:"trajectory_count"`
	SuccessRate   float64 `db:"success_rate"`
	AvgEfficiency float64 `db:"avg_efficiency"`
	ErrorRate     float64 `db:"error_rate"`
	AvgSteps      float64 `db:"avg_steps"`
	AvgDurationMs float64 `db:"avg_duration_ms"`
}

const aggSelect = `SELECT
	count(*) AS trajectory_count,
	coalesce(avg(CASE WHEN success THEN 1 ELSE 0 END), 0) AS success_rate,
	coalesce(avg(efficiency), 0) AS avg_efficiency,
	coalesce(avg(CASE WHEN errored THEN 1 ELSE 0 END), 0) AS error_rate,
	coalesce(avg(steps), 0) AS avg_steps,
	coalesce(avg(duration_ms), 0) AS avg_duration_ms
	FROM trajectories`

func (a aggRow) toWindow(period models.Period) models.MetricsWindow {
	return models.MetricsWindow{
		SuccessRate:     a.SuccessRate,
		AvgEfficiency:   a.AvgEfficiency,
		ErrorRate:       a.ErrorRate,
		TrajectoryCount: a.Count,
		AvgSteps:        a.AvgSteps,
		AvgDurationMs:   a.AvgDurationMs,
		Period:          period,
	}
}

// GetTrajectoryMetrics implements Store: aggregate outcomes for an agent
// (across all its versions) over [start, end).
func (s *pgStore) GetTrajectoryMetrics(ctx context.Context, agentID string, start, end time.Time) (models.MetricsWindow, error) {
	q := aggSelect + ` WHERE agent_id = $1 AND occurred_at >= $2 AND occurred_at < $3`
	var row aggRow
	if err := s.ext().GetContext(ctx, &row, q, agentID, start, end); err != nil {
		return models.MetricsWindow{}, fmt.Errorf("store: get trajectory metrics: %w", err)
	}
	return row.toWindow(models.Period{Start: start, End: end}), nil
}

// GetVersionMetrics implements Store: aggregate outcomes for a single
// version over [start, end), used to build a deployment's post-deployment
// window (the baseline is agent-wide, via GetTrajectoryMetrics).
func (s *pgStore) GetVersionMetrics(ctx context.Context, versionID string, start, end time.Time) (models.MetricsWindow, error) {
	q := aggSelect + ` WHERE version_id = $1 AND occurred_at >= $2 AND occurred_at < $3`
	var row aggRow
	if err := s.ext().GetContext(ctx, &row, q, versionID, start, end); err != nil {
		return models.MetricsWindow{}, fmt.Errorf("store: get version metrics: %w", err)
	}
	return row.toWindow(models.Period{Start: start, End: end}), nil
}

// GetComparisonFeedback implements Store: all pairwise feedback rows where
// versionID appears on either side, used to compute winRate (spec.md §4.B).
func (s *pgStore) GetComparisonFeedback(ctx context.Context, versionID string) ([]*models.ComparisonFeedback, error) {
	const q = `SELECT id, agent_id, version_a_id, version_b_id, preferred_version_id, preference, skipped, created_at
		FROM comparison_feedback WHERE version_a_id = $1 OR version_b_id = $1 ORDER BY created_at`
	var out []*models.ComparisonFeedback
	if err := s.ext().SelectContext(ctx, &out, q, versionID); err != nil {
		return nil, fmt.Errorf("store: get comparison feedback: %w", err)
	}
	return out, nil
}

type successCountRow struct {
	Success int `db:"success_count"`
	Total   int `db:"total_count"`
}

// CountSuccessfulTrajectories implements Store.
func (s *pgStore) CountSuccessfulTrajectories(ctx context.Context, versionID string) (success, total int, err error) {
	const q = `SELECT coalesce(sum(CASE WHEN success THEN 1 ELSE 0 END), 0) AS success_count, count(*) AS total_count
		FROM trajectories WHERE version_id = $1`
	var row successCountRow
	if err := s.ext().GetContext(ctx, &row, q, versionID); err != nil {
		return 0, 0, fmt.Errorf("store: count successful trajectories: %w", err)
	}
	return row.Success, row.Total, nil
}
