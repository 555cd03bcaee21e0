package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlightning/promptctl/internal/storetest"
	"github.com/agentlightning/promptctl/pkg/models"
	"github.com/agentlightning/promptctl/pkg/notify"
	"github.com/agentlightning/promptctl/pkg/store"
)

func newTestService(t *testing.T, fixedNow time.Time) (*Service, *storetest.Fake) {
	t.Helper()
	fake := storetest.New()
	svc := New(fake, notify.New())
	svc.now = func() time.Time { return fixedNow }
	return svc, fake
}

func seedVersion(fake *storetest.Fake, agentID string) *models.PromptVersion {
	return fake.PutVersion(&models.PromptVersion{AgentID: agentID, Status: models.VersionCandidate})
}

func seedReviewer(fake *storetest.Fake, id string, role models.Role) *models.Reviewer {
	r := &models.Reviewer{ID: id, Role: role}
	fake.PutReviewer(r)
	return r
}

func TestRequestApproval(t *testing.T) {
	now := time.Now()

	t.Run("creates a pending request", func(t *testing.T) {
		svc, fake := newTestService(t, now)
		v := seedVersion(fake, "agent-1")

		req, err := svc.RequestApproval(context.Background(), v.ID, "alice", 2, nil)
		require.NoError(t, err)
		assert.Equal(t, models.ApprovalPending, req.Status)
		assert.Equal(t, 2, req.RequiredApprovals)
		assert.Equal(t, "agent-1", req.AgentID)
	})

	t.Run("rejects requiredApprovals < 1", func(t *testing.T) {
		svc, fake := newTestService(t, now)
		v := seedVersion(fake, "agent-1")

		_, err := svc.RequestApproval(context.Background(), v.ID, "alice", 0, nil)
		var verr *store.ValidationError
		assert.True(t, errors.As(err, &verr))
	})

	t.Run("AlreadyPending when a pending request exists", func(t *testing.T) {
		svc, fake := newTestService(t, now)
		v := seedVersion(fake, "agent-1")
		_, err := svc.RequestApproval(context.Background(), v.ID, "alice", 2, nil)
		require.NoError(t, err)

		_, err = svc.RequestApproval(context.Background(), v.ID, "alice", 2, nil)
		assert.True(t, store.IsConflict(err, "AlreadyPending"))
	})

	t.Run("AlreadyApproved when the request already succeeded", func(t *testing.T) {
		svc, fake := newTestService(t, now)
		v := seedVersion(fake, "agent-1")
		seedReviewer(fake, "bob", models.RoleDeveloper)

		req, err := svc.RequestApproval(context.Background(), v.ID, "alice", 1, nil)
		require.NoError(t, err)
		_, err = svc.Approve(context.Background(), v.ID, "bob", nil)
		require.NoError(t, err)
		_ = req

		_, err = svc.RequestApproval(context.Background(), v.ID, "alice", 1, nil)
		assert.True(t, store.IsConflict(err, "AlreadyApproved"))
	})

	t.Run("sets an expiry when expiresInHours is given", func(t *testing.T) {
		svc, fake := newTestService(t, now)
		v := seedVersion(fake, "agent-1")
		hours := 4

		req, err := svc.RequestApproval(context.Background(), v.ID, "alice", 1, &hours)
		require.NoError(t, err)
		require.NotNil(t, req.ExpiresAt)
		assert.Equal(t, now.Add(4*time.Hour), *req.ExpiresAt)
	})
}

func TestApprove(t *testing.T) {
	now := time.Now()

	t.Run("reaching requiredApprovals approves the request and the version", func(t *testing.T) {
		svc, fake := newTestService(t, now)
		v := seedVersion(fake, "agent-1")
		seedReviewer(fake, "bob", models.RoleDeveloper)
		seedReviewer(fake, "carol", models.RoleDeveloper)

		_, err := svc.RequestApproval(context.Background(), v.ID, "alice", 2, nil)
		require.NoError(t, err)

		status, err := svc.Approve(context.Background(), v.ID, "bob", nil)
		require.NoError(t, err)
		assert.False(t, status.CanDeploy)
		assert.Equal(t, models.ApprovalPending, status.Request.Status)

		status, err = svc.Approve(context.Background(), v.ID, "carol", nil)
		require.NoError(t, err)
		assert.True(t, status.CanDeploy)
		assert.Equal(t, models.ApprovalApproved, status.Request.Status)
		assert.Equal(t, models.VersionApproved, fake.Version(v.ID).Status)
	})

	t.Run("PermissionDenied for a reviewer-only role", func(t *testing.T) {
		svc, fake := newTestService(t, now)
		v := seedVersion(fake, "agent-1")
		seedReviewer(fake, "dave", models.RoleReviewer)
		_, err := svc.RequestApproval(context.Background(), v.ID, "alice", 1, nil)
		require.NoError(t, err)

		_, err = svc.Approve(context.Background(), v.ID, "dave", nil)
		assert.ErrorIs(t, err, store.ErrPermissionDenied)
	})

	t.Run("AlreadyVoted on a second vote by the same approver", func(t *testing.T) {
		svc, fake := newTestService(t, now)
		v := seedVersion(fake, "agent-1")
		seedReviewer(fake, "bob", models.RoleDeveloper)
		_, err := svc.RequestApproval(context.Background(), v.ID, "alice", 2, nil)
		require.NoError(t, err)

		_, err = svc.Approve(context.Background(), v.ID, "bob", nil)
		require.NoError(t, err)

		_, err = svc.Approve(context.Background(), v.ID, "bob", nil)
		assert.True(t, store.IsConflict(err, "AlreadyVoted"))
	})

	t.Run("NotPending once the request is rejected", func(t *testing.T) {
		svc, fake := newTestService(t, now)
		v := seedVersion(fake, "agent-1")
		seedReviewer(fake, "bob", models.RoleDeveloper)
		seedReviewer(fake, "carol", models.RoleDeveloper)
		_, err := svc.RequestApproval(context.Background(), v.ID, "alice", 2, nil)
		require.NoError(t, err)

		require.NoError(t, svc.Reject(context.Background(), v.ID, "bob", "not ready"))

		_, err = svc.Approve(context.Background(), v.ID, "carol", nil)
		assert.True(t, store.IsConflict(err, "NotPending"))
	})

	t.Run("Expired once the expiry window elapses", func(t *testing.T) {
		svc, fake := newTestService(t, now)
		v := seedVersion(fake, "agent-1")
		seedReviewer(fake, "bob", models.RoleDeveloper)
		hours := 1
		_, err := svc.RequestApproval(context.Background(), v.ID, "alice", 1, &hours)
		require.NoError(t, err)

		svc.now = func() time.Time { return now.Add(2 * time.Hour) }
		_, err = svc.Approve(context.Background(), v.ID, "bob", nil)
		assert.ErrorIs(t, err, store.ErrExpired)
	})
}

func TestReject(t *testing.T) {
	now := time.Now()

	t.Run("requires a reason", func(t *testing.T) {
		svc, fake := newTestService(t, now)
		v := seedVersion(fake, "agent-1")
		seedReviewer(fake, "bob", models.RoleDeveloper)
		_, err := svc.RequestApproval(context.Background(), v.ID, "alice", 1, nil)
		require.NoError(t, err)

		err = svc.Reject(context.Background(), v.ID, "bob", "")
		var verr *store.ValidationError
		assert.True(t, errors.As(err, &verr))
	})

	t.Run("reverts the version to candidate", func(t *testing.T) {
		svc, fake := newTestService(t, now)
		v := seedVersion(fake, "agent-1")
		seedReviewer(fake, "bob", models.RoleDeveloper)
		_, err := svc.RequestApproval(context.Background(), v.ID, "alice", 1, nil)
		require.NoError(t, err)

		require.NoError(t, svc.Reject(context.Background(), v.ID, "bob", "needs more work"))
		assert.Equal(t, models.VersionCandidate, fake.Version(v.ID).Status)

		status, err := svc.GetApprovalStatus(context.Background(), v.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ApprovalRejected, status.Request.Status)
	})
}

func TestGetApprovalStatusLazilyExpires(t *testing.T) {
	now := time.Now()
	svc, fake := newTestService(t, now)
	v := seedVersion(fake, "agent-1")
	hours := 1
	_, err := svc.RequestApproval(context.Background(), v.ID, "alice", 1, &hours)
	require.NoError(t, err)

	svc.now = func() time.Time { return now.Add(2 * time.Hour) }
	status, err := svc.GetApprovalStatus(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalExpired, status.Request.Status)
}
