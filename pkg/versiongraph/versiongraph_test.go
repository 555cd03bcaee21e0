package versiongraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlightning/promptctl/internal/storetest"
	"github.com/agentlightning/promptctl/pkg/models"
	"github.com/agentlightning/promptctl/pkg/store"
)

func newTestService(t *testing.T) (*Service, *storetest.Fake) {
	t.Helper()
	fake := storetest.New()
	return New(fake), fake
}

func TestCreateBranch(t *testing.T) {
	svc, _ := newTestService(t)

	t.Run("requires a name", func(t *testing.T) {
		_, err := svc.CreateBranch(context.Background(), "agent-1", "", nil)
		assert.Error(t, err)
	})

	t.Run("creates a branch", func(t *testing.T) {
		b, err := svc.CreateBranch(context.Background(), "agent-1", "feature-x", nil)
		require.NoError(t, err)
		assert.Equal(t, "agent-1", b.AgentID)
		assert.Equal(t, "feature-x", b.Name)
	})
}

func TestDeleteBranch(t *testing.T) {
	t.Run("BranchNotEmpty when a version still lives on it", func(t *testing.T) {
		svc, fake := newTestService(t)
		b, err := svc.CreateBranch(context.Background(), "agent-1", "feature-x", nil)
		require.NoError(t, err)
		fake.PutVersion(&models.PromptVersion{AgentID: "agent-1", BranchID: b.ID})

		err = svc.DeleteBranch(context.Background(), b.ID)
		assert.True(t, store.IsConflict(err, "BranchNotEmpty"))
	})

	t.Run("deletes an empty branch", func(t *testing.T) {
		svc, _ := newTestService(t)
		b, err := svc.CreateBranch(context.Background(), "agent-1", "feature-x", nil)
		require.NoError(t, err)

		require.NoError(t, svc.DeleteBranch(context.Background(), b.ID))
		_, err = svc.ListBranches(context.Background(), "agent-1")
		require.NoError(t, err)
	})
}

func TestGetMainBranch(t *testing.T) {
	svc, _ := newTestService(t)

	first, err := svc.GetMainBranch(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "main", first.Name)
	assert.True(t, first.IsMain)

	second, err := svc.GetMainBranch(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestCreateVersionAutoNumbers(t *testing.T) {
	svc, _ := newTestService(t)
	b, err := svc.CreateBranch(context.Background(), "agent-1", "main", nil)
	require.NoError(t, err)

	v1, err := svc.CreateVersion(context.Background(), CreateVersionInput{AgentID: "agent-1", BranchID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)

	v2, err := svc.CreateVersion(context.Background(), CreateVersionInput{AgentID: "agent-1", BranchID: b.ID, ParentIDs: []string{v1.ID}})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
}

func TestGetLineage(t *testing.T) {
	svc, fake := newTestService(t)
	root := fake.PutVersion(&models.PromptVersion{AgentID: "agent-1"})
	mid := fake.PutVersion(&models.PromptVersion{AgentID: "agent-1", ParentIDs: []string{root.ID}})
	leaf := fake.PutVersion(&models.PromptVersion{AgentID: "agent-1", ParentIDs: []string{mid.ID}})

	lineage, err := svc.GetLineage(context.Background(), leaf.ID)
	require.NoError(t, err)
	require.Len(t, lineage, 2)
	ids := []string{lineage[0].ID, lineage[1].ID}
	assert.Contains(t, ids, root.ID)
	assert.Contains(t, ids, mid.ID)
}

func TestGetDescendants(t *testing.T) {
	svc, fake := newTestService(t)
	b := fake.PutBranch(&models.Branch{AgentID: "agent-1", Name: "main"})
	root := fake.PutVersion(&models.PromptVersion{AgentID: "agent-1", BranchID: b.ID})
	childA := fake.PutVersion(&models.PromptVersion{AgentID: "agent-1", BranchID: b.ID, ParentIDs: []string{root.ID}})
	childB := fake.PutVersion(&models.PromptVersion{AgentID: "agent-1", BranchID: b.ID, ParentIDs: []string{root.ID}})
	grandchild := fake.PutVersion(&models.PromptVersion{AgentID: "agent-1", BranchID: b.ID, ParentIDs: []string{childA.ID}})

	descendants, err := svc.GetDescendants(context.Background(), root.ID)
	require.NoError(t, err)
	ids := make([]string, 0, len(descendants))
	for _, d := range descendants {
		ids = append(ids, d.ID)
	}
	assert.ElementsMatch(t, []string{childA.ID, childB.ID, grandchild.ID}, ids)
}

func TestFindCommonAncestor(t *testing.T) {
	svc, fake := newTestService(t)
	root := fake.PutVersion(&models.PromptVersion{AgentID: "agent-1"})
	a := fake.PutVersion(&models.PromptVersion{AgentID: "agent-1", ParentIDs: []string{root.ID}})
	b := fake.PutVersion(&models.PromptVersion{AgentID: "agent-1", ParentIDs: []string{root.ID}})

	common, err := svc.FindCommonAncestor(context.Background(), a.ID, b.ID)
	require.NoError(t, err)
	require.NotNil(t, common)
	assert.Equal(t, root.ID, common.ID)
}

func TestCanMergeAndMergeBranch(t *testing.T) {
	svc, fake := newTestService(t)
	src, err := svc.CreateBranch(context.Background(), "agent-1", "feature", nil)
	require.NoError(t, err)
	tgt, err := svc.CreateBranch(context.Background(), "agent-1", "main", nil)
	require.NoError(t, err)

	t.Run("EmptyBranch when either side has no tip", func(t *testing.T) {
		_, err := svc.MergeBranch(context.Background(), src.ID, tgt.ID, "alice")
		assert.True(t, store.IsConflict(err, "EmptyBranch"))
	})

	srcTip := fake.PutVersion(&models.PromptVersion{AgentID: "agent-1", BranchID: src.ID, Version: 1})
	tgtTip := fake.PutVersion(&models.PromptVersion{AgentID: "agent-1", BranchID: tgt.ID, Version: 1})

	canMerge, err := svc.CanMerge(context.Background(), src.ID, tgt.ID)
	require.NoError(t, err)
	assert.True(t, canMerge)

	merged, err := svc.MergeBranch(context.Background(), src.ID, tgt.ID, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{tgtTip.ID, srcTip.ID}, merged.ParentIDs)
	assert.True(t, merged.IsMergeNode())

	t.Run("AlreadyMerged on a second merge of the same tips", func(t *testing.T) {
		_, err := svc.MergeBranch(context.Background(), src.ID, tgt.ID, "alice")
		assert.True(t, store.IsConflict(err, "AlreadyMerged"))
	})
}

func TestRecomputeFitness(t *testing.T) {
	svc, fake := newTestService(t)
	v := fake.PutVersion(&models.PromptVersion{AgentID: "agent-1"})
	other := fake.PutVersion(&models.PromptVersion{AgentID: "agent-1"})

	fake.PutComparisonFeedback(v.ID, &models.ComparisonFeedback{VersionAID: v.ID, VersionBID: other.ID, Preference: models.PreferenceA})
	fake.PutComparisonFeedback(v.ID, &models.ComparisonFeedback{VersionAID: v.ID, VersionBID: other.ID, Preference: models.PreferenceB})
	fake.PutComparisonFeedback(v.ID, &models.ComparisonFeedback{VersionAID: v.ID, VersionBID: other.ID, Preference: models.PreferenceTie})
	fake.PutComparisonFeedback(v.ID, &models.ComparisonFeedback{VersionAID: v.ID, VersionBID: other.ID, Skipped: true})
	fake.SetTrajectoryCounts(v.ID, 7, 10)

	fitness, err := svc.RecomputeFitness(context.Background(), v.ID)
	require.NoError(t, err)
	require.NotNil(t, fitness.WinRate)
	assert.InDelta(t, 0.75, *fitness.WinRate, 1e-9)
	require.NotNil(t, fitness.SuccessRate)
	assert.InDelta(t, 0.7, *fitness.SuccessRate, 1e-9)
	assert.Equal(t, 3, fitness.ComparisonCount)
	assert.Equal(t, fitness, fake.Version(v.ID).Fitness)
}
