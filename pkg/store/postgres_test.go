package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlightning/promptctl/pkg/models"
	"github.com/agentlightning/promptctl/pkg/store"
	"github.com/agentlightning/promptctl/test/database"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires a PostgreSQL testcontainer")
	}

	ts := database.NewTestStore(t)
	st := ts.Store
	ctx := context.Background()

	t.Run("Ping succeeds against a live connection", func(t *testing.T) {
		require.NoError(t, st.Ping(ctx))
	})

	t.Run("agent and branch lifecycle", func(t *testing.T) {
		agentID := "agent-" + uuid.NewString()
		agent, err := st.EnsureAgent(ctx, agentID, "Test Agent")
		require.NoError(t, err)
		assert.Equal(t, agentID, agent.ID)

		again, err := st.EnsureAgent(ctx, agentID, "Test Agent")
		require.NoError(t, err)
		assert.Equal(t, agent.ID, again.ID)

		main, err := st.CreateBranch(ctx, &models.Branch{AgentID: agentID, Name: "main", IsMain: true})
		require.NoError(t, err)
		assert.True(t, main.IsMain)

		_, err = st.CreateBranch(ctx, &models.Branch{AgentID: agentID, Name: "main-2", IsMain: true})
		assert.Error(t, err, "a second is_main branch for the same agent must violate the partial unique index")

		byName, err := st.GetBranchByName(ctx, agentID, "main")
		require.NoError(t, err)
		assert.Equal(t, main.ID, byName.ID)

		n, err := st.CountVersionsInBranch(ctx, main.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		require.NoError(t, st.DeleteBranch(ctx, main.ID))
		_, err = st.GetBranch(ctx, main.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("prompt version numbering and lineage fields", func(t *testing.T) {
		agentID := "agent-" + uuid.NewString()
		_, err := st.EnsureAgent(ctx, agentID, "Test Agent")
		require.NoError(t, err)
		branch, err := st.CreateBranch(ctx, &models.Branch{AgentID: agentID, Name: "main"})
		require.NoError(t, err)

		var v1, v2 *models.PromptVersion
		err = st.WithTx(ctx, func(ctx context.Context, tx store.Store) error {
			var err error
			v1, err = tx.CreatePromptVersion(ctx, &models.PromptVersion{
				AgentID: agentID, BranchID: branch.ID, Status: models.VersionCandidate,
				CreatedByKind: models.CreatedByManual,
			})
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 1, v1.Version)

		err = st.WithTx(ctx, func(ctx context.Context, tx store.Store) error {
			var err error
			v2, err = tx.CreatePromptVersion(ctx, &models.PromptVersion{
				AgentID: agentID, BranchID: branch.ID, Status: models.VersionCandidate,
				CreatedByKind: models.CreatedByManual, ParentIDs: []string{v1.ID},
			})
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 2, v2.Version)

		tip, err := st.TipOfBranch(ctx, branch.ID)
		require.NoError(t, err)
		assert.Equal(t, v2.ID, tip.ID)

		fetched, err := st.GetPromptVersion(ctx, v2.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{v1.ID}, fetched.ParentIDs)
	})

	t.Run("approval workflow enforces one vote per approver", func(t *testing.T) {
		agentID := "agent-" + uuid.NewString()
		_, err := st.EnsureAgent(ctx, agentID, "Test Agent")
		require.NoError(t, err)
		branch, err := st.CreateBranch(ctx, &models.Branch{AgentID: agentID, Name: "main"})
		require.NoError(t, err)
		v, err := st.CreatePromptVersion(ctx, &models.PromptVersion{
			AgentID: agentID, BranchID: branch.ID, Status: models.VersionCandidate, CreatedByKind: models.CreatedByManual,
		})
		require.NoError(t, err)

		req, err := st.CreateApprovalRequest(ctx, &models.ApprovalRequest{
			VersionID: v.ID, AgentID: agentID, RequestedBy: "alice", RequiredApprovals: 2, Status: models.ApprovalPending,
		})
		require.NoError(t, err)

		voted, err := st.HasVoted(ctx, req.ID, "bob")
		require.NoError(t, err)
		assert.False(t, voted)

		require.NoError(t, st.CreateApprovalVote(ctx, &models.ApprovalVote{RequestID: req.ID, ApproverID: "bob", Vote: models.VoteApprove}))

		count, err := st.IncrementApprovalCount(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		err = st.CreateApprovalVote(ctx, &models.ApprovalVote{RequestID: req.ID, ApproverID: "bob", Vote: models.VoteApprove})
		assert.Error(t, err, "a duplicate (request_id, approver_id) vote must violate the unique index")

		votes, err := st.GetApprovalVotes(ctx, req.ID)
		require.NoError(t, err)
		assert.Len(t, votes, 1)
	})

	t.Run("deployment lifecycle enforces one active deployment per agent", func(t *testing.T) {
		agentID := "agent-" + uuid.NewString()
		_, err := st.EnsureAgent(ctx, agentID, "Test Agent")
		require.NoError(t, err)
		branch, err := st.CreateBranch(ctx, &models.Branch{AgentID: agentID, Name: "main"})
		require.NoError(t, err)
		v1, err := st.CreatePromptVersion(ctx, &models.PromptVersion{
			AgentID: agentID, BranchID: branch.ID, Status: models.VersionCandidate, CreatedByKind: models.CreatedByManual,
		})
		require.NoError(t, err)
		v2, err := st.CreatePromptVersion(ctx, &models.PromptVersion{
			AgentID: agentID, BranchID: branch.ID, Status: models.VersionCandidate, CreatedByKind: models.CreatedByManual,
		})
		require.NoError(t, err)

		d1, err := st.CreateDeployment(ctx, &models.Deployment{VersionID: v1.ID, AgentID: agentID, DeployedBy: "alice"})
		require.NoError(t, err)
		assert.Equal(t, models.DeploymentActive, d1.Status)

		_, err = st.CreateDeployment(ctx, &models.Deployment{VersionID: v2.ID, AgentID: agentID, DeployedBy: "alice"})
		assert.True(t, store.IsConflict(err, "agent already has an active deployment"))

		require.NoError(t, st.UpdateDeploymentStatus(ctx, d1.ID, models.DeploymentSuperseded, nil))
		d2, err := st.CreateDeployment(ctx, &models.Deployment{
			VersionID: v2.ID, AgentID: agentID, DeployedBy: "alice", PreviousDeploymentID: &d1.ID,
		})
		require.NoError(t, err)

		current, err := st.GetCurrentDeployment(ctx, agentID)
		require.NoError(t, err)
		assert.Equal(t, d2.ID, current.ID)

		history, err := st.GetDeploymentHistory(ctx, agentID, 10)
		require.NoError(t, err)
		assert.Len(t, history, 2)
	})

	t.Run("ListActiveDeploymentsDue excludes already-regressed deployments", func(t *testing.T) {
		agentID := "agent-" + uuid.NewString()
		_, err := st.EnsureAgent(ctx, agentID, "Test Agent")
		require.NoError(t, err)
		branch, err := st.CreateBranch(ctx, &models.Branch{AgentID: agentID, Name: "main"})
		require.NoError(t, err)
		v, err := st.CreatePromptVersion(ctx, &models.PromptVersion{
			AgentID: agentID, BranchID: branch.ID, Status: models.VersionCandidate, CreatedByKind: models.CreatedByManual,
		})
		require.NoError(t, err)
		d, err := st.CreateDeployment(ctx, &models.Deployment{VersionID: v.ID, AgentID: agentID, DeployedBy: "alice"})
		require.NoError(t, err)

		from := d.DeployedAt.Add(-time.Hour)
		to := d.DeployedAt.Add(time.Hour)

		due, err := st.ListActiveDeploymentsDue(ctx, from, to)
		require.NoError(t, err)
		assert.True(t, containsDeployment(due, d.ID))

		require.NoError(t, st.UpdateDeploymentMetrics(ctx, d.ID, nil, nil, true))

		due, err = st.ListActiveDeploymentsDue(ctx, from, to)
		require.NoError(t, err)
		assert.False(t, containsDeployment(due, d.ID), "a deployment already flagged with a regression must not be listed as due again")
	})

	t.Run("regression report round-trip", func(t *testing.T) {
		agentID := "agent-" + uuid.NewString()
		_, err := st.EnsureAgent(ctx, agentID, "Test Agent")
		require.NoError(t, err)
		branch, err := st.CreateBranch(ctx, &models.Branch{AgentID: agentID, Name: "main"})
		require.NoError(t, err)
		v, err := st.CreatePromptVersion(ctx, &models.PromptVersion{
			AgentID: agentID, BranchID: branch.ID, Status: models.VersionCandidate, CreatedByKind: models.CreatedByManual,
		})
		require.NoError(t, err)
		d, err := st.CreateDeployment(ctx, &models.Deployment{VersionID: v.ID, AgentID: agentID, DeployedBy: "alice"})
		require.NoError(t, err)

		sev := models.SeverityHigh
		report, err := st.CreateRegressionReport(ctx, &models.RegressionReport{
			DeploymentID: d.ID, Detected: true, Severity: &sev,
			Recommendations: []string{"high severity regression detected, consider immediate rollback"},
			WindowStart:     d.DeployedAt, WindowEnd: d.DeployedAt.Add(30 * time.Minute),
		})
		require.NoError(t, err)

		latest, err := st.GetLatestRegressionReport(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, report.ID, latest.ID)
		require.NotNil(t, latest.Severity)
		assert.Equal(t, models.SeverityHigh, *latest.Severity)
	})
}

func containsDeployment(ds []*models.Deployment, id string) bool {
	for _, d := range ds {
		if d.ID == id {
			return true
		}
	}
	return false
}
