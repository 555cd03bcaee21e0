package store

import (
	"context"
	"time"

	"github.com/agentlightning/promptctl/pkg/models"
)

// Store is the persistence boundary for the release-engineering control
// plane. It owns transactional boundaries (WithTx) and exposes typed
// operations grouped by entity, per spec.md §4.A. Implementations must
// enforce: unique (agentId, branchId, version); unique versionId per
// approval request; unique (requestId, approverId) per vote; exactly one
// isMain branch per agent; at most one active deployment per agent.
type Store interface {
	// WithTx runs fn against a Store bound to a single serializable
	// transaction, committing on success and rolling back on any error
	// (including a panic propagated by the caller). Calling WithTx on a
	// Store that is already transaction-scoped returns an error — nesting
	// is not supported.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// Agents
	EnsureAgent(ctx context.Context, agentID, name string) (*models.Agent, error)
	GetAgent(ctx context.Context, agentID string) (*models.Agent, error)
	SetAgentProductionVersion(ctx context.Context, agentID string, versionID *string) error

	// Branches
	CreateBranch(ctx context.Context, b *models.Branch) (*models.Branch, error)
	GetBranch(ctx context.Context, id string) (*models.Branch, error)
	GetBranchByName(ctx context.Context, agentID, name string) (*models.Branch, error)
	ListBranches(ctx context.Context, agentID string) ([]*models.Branch, error)
	DeleteBranch(ctx context.Context, id string) error
	CountVersionsInBranch(ctx context.Context, branchID string) (int, error)

	// Prompt versions
	GetPromptVersion(ctx context.Context, id string) (*models.PromptVersion, error)
	GetPromptVersions(ctx context.Context, ids []string) ([]*models.PromptVersion, error)
	// CreatePromptVersion allocates version = max(sibling.version)+1 for
	// (agentId, branchId) and inserts the row; must be called within a
	// serializable WithTx to be race-free against concurrent inserts.
	CreatePromptVersion(ctx context.Context, v *models.PromptVersion) (*models.PromptVersion, error)
	SetVersionStatus(ctx context.Context, id string, status models.VersionStatus) error
	SetVersionLifecycle(ctx context.Context, id string, status models.VersionStatus, deployedAt, retiredAt *time.Time) error
	AppendApprover(ctx context.Context, versionID, approverEmail string) error
	UpdateVersionFitness(ctx context.Context, id string, f models.Fitness) error
	ListVersionsByBranch(ctx context.Context, branchID string) ([]*models.PromptVersion, error)
	TipOfBranch(ctx context.Context, branchID string) (*models.PromptVersion, error)

	// Approvals
	CreateApprovalRequest(ctx context.Context, r *models.ApprovalRequest) (*models.ApprovalRequest, error)
	GetApprovalRequest(ctx context.Context, versionID string) (*models.ApprovalRequest, error)
	GetApprovalRequestByID(ctx context.Context, id string) (*models.ApprovalRequest, error)
	UpdateApprovalRequestStatus(ctx context.Context, id string, status models.ApprovalStatus) error
	// IncrementApprovalCount atomically increments currentApprovals and
	// returns the new value, so the caller can compare against
	// requiredApprovals without a races-prone read-then-write.
	IncrementApprovalCount(ctx context.Context, id string) (int, error)
	CreateApprovalVote(ctx context.Context, v *models.ApprovalVote) error
	HasVoted(ctx context.Context, requestID, approverID string) (bool, error)
	GetApprovalVotes(ctx context.Context, requestID string) ([]*models.ApprovalVote, error)
	ListPendingApprovals(ctx context.Context) ([]*models.ApprovalRequest, error)
	ExpirePendingApprovalsBefore(ctx context.Context, now time.Time) (int, error)

	// Deployments
	CreateDeployment(ctx context.Context, d *models.Deployment) (*models.Deployment, error)
	GetDeployment(ctx context.Context, id string) (*models.Deployment, error)
	GetCurrentDeployment(ctx context.Context, agentID string) (*models.Deployment, error)
	GetDeploymentHistory(ctx context.Context, agentID string, limit int) ([]*models.Deployment, error)
	UpdateDeploymentStatus(ctx context.Context, id string, status models.DeploymentStatus, supersededAt *time.Time) error
	UpdateDeploymentMetrics(ctx context.Context, id string, baseline, post *models.MetricsWindow, regressionDetected bool) error
	RollbackDeployment(ctx context.Context, id, rolledBackBy, reason string, at time.Time) error
	ReactivateDeployment(ctx context.Context, id string) error
	ListActiveDeploymentsDue(ctx context.Context, from, to time.Time) ([]*models.Deployment, error)

	// Regression reports
	CreateRegressionReport(ctx context.Context, r *models.RegressionReport) (*models.RegressionReport, error)
	GetLatestRegressionReport(ctx context.Context, deploymentID string) (*models.RegressionReport, error)

	// Reviewers
	GetReviewer(ctx context.Context, id string) (*models.Reviewer, error)
	GetReviewerByEmail(ctx context.Context, email string) (*models.Reviewer, error)
	FindAnyAdmin(ctx context.Context) (*models.Reviewer, error)
	TouchReviewerActivity(ctx context.Context, id string, at time.Time) error

	// Metrics reads (read-only aggregates; see pkg/metrics for the math).
	GetTrajectoryMetrics(ctx context.Context, agentID string, start, end time.Time) (models.MetricsWindow, error)
	GetVersionMetrics(ctx context.Context, versionID string, start, end time.Time) (models.MetricsWindow, error)
	GetComparisonFeedback(ctx context.Context, versionID string) ([]*models.ComparisonFeedback, error)
	CountSuccessfulTrajectories(ctx context.Context, versionID string) (success, total int, err error)

	// Ping verifies connectivity for the health endpoint.
	Ping(ctx context.Context) error
}
