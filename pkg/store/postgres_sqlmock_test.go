package store_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlightning/promptctl/pkg/models"
	"github.com/agentlightning/promptctl/pkg/store"
)

// newMockStore wires a store.Store over a go-sqlmock connection, letting the
// query-building logic be unit tested without a live Postgres instance (the
// complement to the testcontainers-go suite in postgres_test.go, which
// exercises the constraints sqlmock can't).
func newMockStore(t *testing.T) (store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store.NewPostgresStore(sqlx.NewDb(db, "sqlmock")), mock
}

var deploymentCols = []string{
	"id", "version_id", "agent_id", "deployed_by", "deployed_at", "status",
	"previous_deployment_id", "metrics_baseline", "metrics_post_deployment", "regression_detected",
	"rolled_back_at", "rolled_back_by", "rollback_reason", "superseded_at",
}

// TestListActiveDeploymentsDueExcludesRegressed pins the
// ListActiveDeploymentsDue query text at the SQL level: it must filter on
// regression_detected = false, not just status and the time window
// (spec.md §4.G), the same requirement postgres_test.go's integration
// subtest verifies end-to-end against a real schema.
func TestListActiveDeploymentsDueExcludesRegressed(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(deploymentCols).AddRow(
		"dep-1", "ver-1", "agent-1", "alice", now, string(models.DeploymentActive),
		nil, nil, nil, false, nil, nil, nil, nil,
	)
	mock.ExpectQuery(regexp.QuoteMeta("regression_detected = false")).
		WithArgs(string(models.DeploymentActive), now.Add(-time.Hour), now.Add(time.Hour)).
		WillReturnRows(rows)

	due, err := st.ListActiveDeploymentsDue(context.Background(), now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "dep-1", due[0].ID)
	assert.False(t, due[0].RegressionDetected)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestCreateDeploymentMapsUniqueViolationToConflict asserts the
// one-active-deployment-per-agent partial unique index (spec.md §4.F) maps
// to a store.ConflictError rather than a raw driver error, the same mapping
// postgres_test.go's "deployment lifecycle" subtest observes against a real
// constraint violation.
func TestCreateDeploymentMapsUniqueViolationToConflict(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO deployments")).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "deployments_one_active_per_agent"})

	_, err := st.CreateDeployment(context.Background(), &models.Deployment{
		VersionID: "ver-1", AgentID: "agent-1", DeployedBy: "alice",
	})
	assert.True(t, store.IsConflict(err, "agent already has an active deployment"))
	require.NoError(t, mock.ExpectationsWereMet())
}
