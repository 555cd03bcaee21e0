package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/agentlightning/promptctl/pkg/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type regressionRow struct {
	ID                    string                                  `db:"id"`
	DeploymentID          string                                  `db:"deployment_id"`
	Detected              bool                                    `db:"detected"`
	Severity              sql.NullString                          `db:"severity"`
	Metrics               jsonColumn[models.MetricsComparison]    `db:"metrics"`
	Recommendations       pq.StringArray                          `db:"recommendations"`
	EvaluatedAt           sql.NullTime                            `db:"evaluated_at"`
	AutoRollbackTriggered bool                                    `db:"auto_rollback_triggered"`
	WindowStart           sql.NullTime                            `db:"window_start"`
	WindowEnd             sql.NullTime                            `db:"window_end"`
}

func (r *regressionRow) toModel() *models.RegressionReport {
	rep := &models.RegressionReport{
		ID:                    r.ID,
		DeploymentID:          r.DeploymentID,
		Detected:              r.Detected,
		Metrics:               r.Metrics.V,
		Recommendations:       []string(r.Recommendations),
		AutoRollbackTriggered: r.AutoRollbackTriggered,
	}
	if r.Severity.Valid {
		sev := models.Severity(r.Severity.String)
		rep.Severity = &sev
	}
	if r.EvaluatedAt.Valid {
		rep.EvaluatedAt = r.EvaluatedAt.Time
	}
	if r.WindowStart.Valid {
		rep.WindowStart = r.WindowStart.Time
	}
	if r.WindowEnd.Valid {
		rep.WindowEnd = r.WindowEnd.Time
	}
	return rep
}

const regressionColumns = `id, deployment_id, detected, severity, metrics, recommendations,
	evaluated_at, auto_rollback_triggered, window_start, window_end`

// CreateRegressionReport implements Store.
func (s *pgStore) CreateRegressionReport(ctx context.Context, r *models.RegressionReport) (*models.RegressionReport, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	var severity *string
	if r.Severity != nil {
		sev := string(*r.Severity)
		severity = &sev
	}
	q := `INSERT INTO regression_reports (id, deployment_id, detected, severity, metrics,
			recommendations, auto_rollback_triggered, window_start, window_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + regressionColumns
	var row regressionRow
	err := s.ext().GetContext(ctx, &row, q,
		r.ID, r.DeploymentID, r.Detected, severity,
		jsonColumn[models.MetricsComparison]{V: r.Metrics}, pq.Array(r.Recommendations),
		r.AutoRollbackTriggered, r.WindowStart, r.WindowEnd)
	if err != nil {
		return nil, fmt.Errorf("store: create regression report: %w", err)
	}
	return row.toModel(), nil
}

// GetLatestRegressionReport implements Store.
func (s *pgStore) GetLatestRegressionReport(ctx context.Context, deploymentID string) (*models.RegressionReport, error) {
	q := `SELECT ` + regressionColumns + ` FROM regression_reports WHERE deployment_id = $1 ORDER BY evaluated_at DESC LIMIT 1`
	var row regressionRow
	if err := s.ext().GetContext(ctx, &row, q, deploymentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get latest regression report: %w", err)
	}
	return row.toModel(), nil
}
