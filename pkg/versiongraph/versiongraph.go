// Package versiongraph implements the branch tree and version DAG of
// spec.md §4.B: lineage queries, merges, and fitness aggregation, built as
// pure Go traversal over Store reads rather than an in-memory pointer graph
// (spec.md §9 design note on cyclic/shared graphs).
package versiongraph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentlightning/promptctl/pkg/models"
	"github.com/agentlightning/promptctl/pkg/store"
)

// Service implements the Version Graph component.
type Service struct {
	store  store.Store
	logger *slog.Logger
}

// New constructs a Service over the given Store.
func New(st store.Store) *Service {
	return &Service{
		store:  st,
		logger: slog.Default().With("component", "versiongraph"),
	}
}

// CreateBranch creates a named branch under agentID. parentBranchID is
// optional lineage metadata; it is not validated against a specific tip.
func (s *Service) CreateBranch(ctx context.Context, agentID, name string, parentBranchID *string) (*models.Branch, error) {
	if name == "" {
		return nil, store.NewValidationError("name", "required")
	}
	return s.store.CreateBranch(ctx, &models.Branch{
		AgentID:        agentID,
		Name:           name,
		ParentBranchID: parentBranchID,
	})
}

// ListBranches returns every branch owned by agentID.
func (s *Service) ListBranches(ctx context.Context, agentID string) ([]*models.Branch, error) {
	return s.store.ListBranches(ctx, agentID)
}

// DeleteBranch removes a branch, failing with a BranchNotEmpty conflict if
// it still owns any version.
func (s *Service) DeleteBranch(ctx context.Context, branchID string) error {
	n, err := s.store.CountVersionsInBranch(ctx, branchID)
	if err != nil {
		return fmt.Errorf("versiongraph: count versions in branch: %w", err)
	}
	if n > 0 {
		return store.NewConflict("BranchNotEmpty")
	}
	return s.store.DeleteBranch(ctx, branchID)
}

// GetMainBranch returns the agent's main branch, auto-creating one named
// "main" on first reference.
func (s *Service) GetMainBranch(ctx context.Context, agentID string) (*models.Branch, error) {
	b, err := s.store.GetBranchByName(ctx, agentID, "main")
	if err == nil {
		return b, nil
	}
	if err != store.ErrNotFound {
		return nil, fmt.Errorf("versiongraph: get main branch: %w", err)
	}
	return s.store.CreateBranch(ctx, &models.Branch{
		AgentID: agentID,
		Name:    "main",
		IsMain:  true,
	})
}

// CreateVersionInput is the argument to CreateVersion.
type CreateVersionInput struct {
	AgentID         string
	BranchID        string
	Content         models.PromptContent
	ParentIDs       []string
	MutationType    *string
	MutationDetails *string
	CreatedByKind   models.CreatedBy
}

// CreateVersion allocates the next version number for (agentId, branchId)
// and inserts the new candidate version inside a serializable transaction,
// race-free against concurrent inserts on the same pair (spec.md §3).
func (s *Service) CreateVersion(ctx context.Context, in CreateVersionInput) (*models.PromptVersion, error) {
	if in.AgentID == "" || in.BranchID == "" {
		return nil, store.NewValidationError("branchId", "agentId and branchId are required")
	}
	var created *models.PromptVersion
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Store) error {
		v, err := tx.CreatePromptVersion(ctx, &models.PromptVersion{
			AgentID:         in.AgentID,
			BranchID:        in.BranchID,
			Content:         in.Content,
			ParentIDs:       in.ParentIDs,
			MutationType:    in.MutationType,
			MutationDetails: in.MutationDetails,
			Status:          models.VersionCandidate,
			CreatedByKind:   in.CreatedByKind,
		})
		if err != nil {
			return err
		}
		created = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetLineage returns the ancestors of versionID (itself excluded), nearest
// first, via BFS over parentIds.
func (s *Service) GetLineage(ctx context.Context, versionID string) ([]*models.PromptVersion, error) {
	start, err := s.store.GetPromptVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{start.ID: true}
	queue := append([]string(nil), start.ParentIDs...)
	var out []*models.PromptVersion

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		v, err := s.store.GetPromptVersion(ctx, id)
		if err != nil {
			if err == store.ErrNotFound {
				continue
			}
			return nil, fmt.Errorf("versiongraph: get lineage: %w", err)
		}
		out = append(out, v)
		queue = append(queue, v.ParentIDs...)
	}
	return out, nil
}

// GetDescendants returns every version, across every branch of the agent,
// whose lineage includes versionID.
func (s *Service) GetDescendants(ctx context.Context, versionID string) ([]*models.PromptVersion, error) {
	start, err := s.store.GetPromptVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	all, err := s.listAllVersions(ctx, start.AgentID)
	if err != nil {
		return nil, err
	}

	childrenOf := make(map[string][]*models.PromptVersion)
	for _, v := range all {
		for _, p := range v.ParentIDs {
			childrenOf[p] = append(childrenOf[p], v)
		}
	}

	visited := map[string]bool{versionID: true}
	queue := append([]*models.PromptVersion(nil), childrenOf[versionID]...)
	var out []*models.PromptVersion
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		if visited[v.ID] {
			continue
		}
		visited[v.ID] = true
		out = append(out, v)
		queue = append(queue, childrenOf[v.ID]...)
	}
	return out, nil
}

// listAllVersions gathers every version across every branch of agentID.
// There is no dedicated Store method for this (spec.md §4.A never names
// one); it is assembled from ListBranches + ListVersionsByBranch, which
// keeps the Store's surface exactly the operations the spec enumerates.
func (s *Service) listAllVersions(ctx context.Context, agentID string) ([]*models.PromptVersion, error) {
	branches, err := s.store.ListBranches(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("versiongraph: list branches: %w", err)
	}
	var out []*models.PromptVersion
	for _, b := range branches {
		vs, err := s.store.ListVersionsByBranch(ctx, b.ID)
		if err != nil {
			return nil, fmt.Errorf("versiongraph: list versions by branch: %w", err)
		}
		out = append(out, vs...)
	}
	return out, nil
}

// FindCommonAncestor returns the most recent common ancestor of a and b by
// creation time, or nil if none exists.
func (s *Service) FindCommonAncestor(ctx context.Context, aID, bID string) (*models.PromptVersion, error) {
	aLineage, err := s.GetLineage(ctx, aID)
	if err != nil {
		return nil, err
	}
	a, err := s.store.GetPromptVersion(ctx, aID)
	if err != nil {
		return nil, err
	}
	aSet := map[string]bool{a.ID: true}
	for _, v := range aLineage {
		aSet[v.ID] = true
	}

	bLineage, err := s.GetLineage(ctx, bID)
	if err != nil {
		return nil, err
	}
	b, err := s.store.GetPromptVersion(ctx, bID)
	if err != nil {
		return nil, err
	}
	candidates := append([]*models.PromptVersion{b}, bLineage...)

	var best *models.PromptVersion
	for _, v := range candidates {
		if !aSet[v.ID] {
			continue
		}
		if best == nil || v.CreatedAt.After(best.CreatedAt) {
			best = v
		}
	}
	return best, nil
}

// CanMerge reports whether srcBranchID can be merged into tgtBranchID: both
// must have at least one version, and the source tip must not already be a
// parent of the target tip.
func (s *Service) CanMerge(ctx context.Context, srcBranchID, tgtBranchID string) (bool, error) {
	srcTip, err := s.store.TipOfBranch(ctx, srcBranchID)
	if err == store.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	tgtTip, err := s.store.TipOfBranch(ctx, tgtBranchID)
	if err == store.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if srcTip.ID == tgtTip.ID {
		return false, nil
	}
	for _, p := range tgtTip.ParentIDs {
		if p == srcTip.ID {
			return false, nil
		}
	}
	return true, nil
}

// MergeBranch creates a merge-node version on tgtBranchID whose content is
// the source tip's content and whose parentIds = [tgtTip, srcTip].
func (s *Service) MergeBranch(ctx context.Context, srcBranchID, tgtBranchID, approver string) (*models.PromptVersion, error) {
	srcTip, err := s.store.TipOfBranch(ctx, srcBranchID)
	if err == store.ErrNotFound {
		return nil, store.NewConflict("EmptyBranch")
	}
	if err != nil {
		return nil, fmt.Errorf("versiongraph: merge branch: %w", err)
	}
	tgtTip, err := s.store.TipOfBranch(ctx, tgtBranchID)
	if err == store.ErrNotFound {
		return nil, store.NewConflict("EmptyBranch")
	}
	if err != nil {
		return nil, fmt.Errorf("versiongraph: merge branch: %w", err)
	}
	if srcTip.ID == tgtTip.ID {
		return nil, store.NewConflict("AlreadyMerged")
	}
	for _, p := range tgtTip.ParentIDs {
		if p == srcTip.ID {
			return nil, store.NewConflict("AlreadyMerged")
		}
	}

	tgtBranch, err := s.store.GetBranch(ctx, tgtBranchID)
	if err != nil {
		return nil, fmt.Errorf("versiongraph: get target branch: %w", err)
	}

	var merged *models.PromptVersion
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Store) error {
		v, err := tx.CreatePromptVersion(ctx, &models.PromptVersion{
			AgentID:       tgtBranch.AgentID,
			BranchID:      tgtBranchID,
			Content:       srcTip.Content,
			ParentIDs:     []string{tgtTip.ID, srcTip.ID},
			Status:        models.VersionCandidate,
			CreatedByKind: models.CreatedByManual,
			ApprovedBy:    []string{approver},
		})
		if err != nil {
			return err
		}
		merged = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// RecomputeFitness recomputes winRate/successRate/comparisonCount for a
// version from its comparison feedback and trajectories, and persists the
// result. Idempotent; safe to call on demand or lazily.
func (s *Service) RecomputeFitness(ctx context.Context, versionID string) (models.Fitness, error) {
	feedback, err := s.store.GetComparisonFeedback(ctx, versionID)
	if err != nil {
		return models.Fitness{}, fmt.Errorf("versiongraph: get comparison feedback: %w", err)
	}

	var wins, losses, ties float64
	for _, f := range feedback {
		if f.Skipped {
			continue
		}
		switch f.Preference {
		case models.PreferenceTie:
			ties++
		case models.PreferenceA:
			if f.VersionAID == versionID {
				wins++
			} else if f.VersionBID == versionID {
				losses++
			}
		case models.PreferenceB:
			if f.VersionBID == versionID {
				wins++
			} else if f.VersionAID == versionID {
				losses++
			}
		}
	}

	fitness := models.Fitness{ComparisonCount: int(wins + losses + ties)}
	if denom := wins + losses + ties; denom > 0 {
		winRate := (wins + 0.5*ties) / denom
		fitness.WinRate = &winRate
	}

	successCount, total, err := s.store.CountSuccessfulTrajectories(ctx, versionID)
	if err != nil {
		return models.Fitness{}, fmt.Errorf("versiongraph: count successful trajectories: %w", err)
	}
	if total > 0 {
		successRate := float64(successCount) / float64(total)
		fitness.SuccessRate = &successRate
	}

	if err := s.store.UpdateVersionFitness(ctx, versionID, fitness); err != nil {
		return models.Fitness{}, fmt.Errorf("versiongraph: update version fitness: %w", err)
	}
	return fitness, nil
}
