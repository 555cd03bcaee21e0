package models

import "time"

// Agent is the top-level owner of branches and, at most, one production
// version at any instant.
type Agent struct {
	ID                        string  `json:"id" db:"id"`
	Name                      string  `json:"name" db:"name"`
	CurrentProductionVersionID *string `json:"currentProductionVersionId,omitempty" db:"current_production_version_id"`
}

// Branch is a named line of evolution for an agent's prompt versions.
type Branch struct {
	ID             string    `json:"id" db:"id"`
	AgentID        string    `json:"agentId" db:"agent_id"`
	Name           string    `json:"name" db:"name"`
	ParentBranchID *string   `json:"parentBranchId,omitempty" db:"parent_branch_id"`
	IsMain         bool      `json:"isMain" db:"is_main"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// PromptContent is the versioned payload of a prompt: the system prompt, the
// per-tool descriptions, and optional per-subagent prompt overrides.
type PromptContent struct {
	SystemPrompt     string            `json:"systemPrompt"`
	ToolDescriptions map[string]string `json:"toolDescriptions"`
	SubagentPrompts  map[string]string `json:"subagentPrompts,omitempty"`
}

// Fitness is the aggregated performance score of a version, recomputed from
// comparison feedback and trajectories.
type Fitness struct {
	WinRate         *float64 `json:"winRate,omitempty"`
	SuccessRate     *float64 `json:"successRate,omitempty"`
	AvgEfficiency   *float64 `json:"avgEfficiency,omitempty"`
	ComparisonCount int      `json:"comparisonCount"`
}

// PromptVersion is a concrete, immutable content snapshot within a branch.
type PromptVersion struct {
	ID              string        `json:"id" db:"id"`
	AgentID         string        `json:"agentId" db:"agent_id"`
	BranchID        string        `json:"branchId" db:"branch_id"`
	Version         int           `json:"version" db:"version"`
	Content         PromptContent `json:"content" db:"-"`
	ParentIDs       []string      `json:"parentIds" db:"-"`
	MutationType    *string       `json:"mutationType,omitempty" db:"mutation_type"`
	MutationDetails *string       `json:"mutationDetails,omitempty" db:"mutation_details"`
	Fitness         Fitness       `json:"fitness" db:"-"`
	Status          VersionStatus `json:"status" db:"status"`
	CreatedAt       time.Time     `json:"createdAt" db:"created_at"`
	CreatedByKind   CreatedBy     `json:"createdBy" db:"created_by"`
	ApprovedBy      []string      `json:"approvedBy" db:"-"`
	DeployedAt      *time.Time    `json:"deployedAt,omitempty" db:"deployed_at"`
	RetiredAt       *time.Time    `json:"retiredAt,omitempty" db:"retired_at"`
}

// IsMergeNode reports whether the version has two or more parents.
func (v *PromptVersion) IsMergeNode() bool {
	return len(v.ParentIDs) >= 2
}

// ApprovalRequest tracks multi-vote consensus for promoting a single version.
type ApprovalRequest struct {
	ID                string         `json:"id" db:"id"`
	VersionID         string         `json:"versionId" db:"version_id"`
	AgentID           string         `json:"agentId" db:"agent_id"`
	RequestedBy       string         `json:"requestedBy" db:"requested_by"`
	RequestedAt       time.Time      `json:"requestedAt" db:"requested_at"`
	RequiredApprovals int            `json:"requiredApprovals" db:"required_approvals"`
	CurrentApprovals  int            `json:"currentApprovals" db:"current_approvals"`
	Status            ApprovalStatus `json:"status" db:"status"`
	ExpiresAt         *time.Time     `json:"expiresAt,omitempty" db:"expires_at"`
}

// ApprovalVote is a single reviewer's decision on an ApprovalRequest.
type ApprovalVote struct {
	ID         string    `json:"id" db:"id"`
	RequestID  string    `json:"requestId" db:"request_id"`
	ApproverID string    `json:"approverId" db:"approver_id"`
	Vote       VoteKind  `json:"vote" db:"vote"`
	Reason     *string   `json:"reason,omitempty" db:"reason"`
	VotedAt    time.Time `json:"votedAt" db:"voted_at"`
}

// Deployment is one atomic promotion of a version to production for an agent.
type Deployment struct {
	ID                    string           `json:"id" db:"id"`
	VersionID             string           `json:"versionId" db:"version_id"`
	AgentID               string           `json:"agentId" db:"agent_id"`
	DeployedBy            string           `json:"deployedBy" db:"deployed_by"`
	DeployedAt            time.Time        `json:"deployedAt" db:"deployed_at"`
	Status                DeploymentStatus `json:"status" db:"status"`
	PreviousDeploymentID  *string          `json:"previousDeploymentId,omitempty" db:"previous_deployment_id"`
	MetricsBaseline       *MetricsWindow   `json:"metricsBaseline,omitempty" db:"-"`
	MetricsPostDeployment *MetricsWindow   `json:"metricsPostDeployment,omitempty" db:"-"`
	RegressionDetected    bool             `json:"regressionDetected" db:"regression_detected"`
	RolledBackAt          *time.Time       `json:"rolledBackAt,omitempty" db:"rolled_back_at"`
	RolledBackBy          *string          `json:"rolledBackBy,omitempty" db:"rolled_back_by"`
	RollbackReason        *string          `json:"rollbackReason,omitempty" db:"rollback_reason"`
	SupersededAt          *time.Time       `json:"supersededAt,omitempty" db:"superseded_at"`
}

// RegressionReport is one evaluation outcome for a deployment. Multiple
// reports may exist per deployment; the most recent wins.
type RegressionReport struct {
	ID                     string             `json:"id" db:"id"`
	DeploymentID           string             `json:"deploymentId" db:"deployment_id"`
	Detected               bool               `json:"detected" db:"detected"`
	Severity               *Severity          `json:"severity,omitempty" db:"severity"`
	Metrics                MetricsComparison  `json:"metrics" db:"-"`
	Recommendations        []string           `json:"recommendations" db:"-"`
	EvaluatedAt            time.Time          `json:"evaluatedAt" db:"evaluated_at"`
	AutoRollbackTriggered  bool               `json:"autoRollbackTriggered" db:"auto_rollback_triggered"`
	WindowStart            time.Time          `json:"windowStart" db:"window_start"`
	WindowEnd              time.Time          `json:"windowEnd" db:"window_end"`
}

// Reviewer is a human actor who may vote on, deploy, or roll back versions.
type Reviewer struct {
	ID           string     `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	Name         string     `json:"name" db:"name"`
	Role         Role       `json:"role" db:"role"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	LastActiveAt *time.Time `json:"lastActiveAt,omitempty" db:"last_active_at"`
}

// Trajectory is a recorded execution trace of an agent against a prompt
// version; the source of success/failure and efficiency signals. Ingested
// externally (out of scope); this subsystem only reads aggregates over it.
type Trajectory struct {
	ID         string    `json:"id" db:"id"`
	AgentID    string    `json:"agentId" db:"agent_id"`
	VersionID  string    `json:"versionId" db:"version_id"`
	Success    bool      `json:"success" db:"success"`
	Errored    bool      `json:"errored" db:"errored"`
	Efficiency *float64  `json:"efficiency,omitempty" db:"efficiency"`
	Steps      int       `json:"steps" db:"steps"`
	DurationMs int       `json:"durationMs" db:"duration_ms"`
	OccurredAt time.Time `json:"occurredAt" db:"occurred_at"`
}

// ComparisonFeedback is a human preference between two trajectories,
// contributing to a version's winRate.
type ComparisonFeedback struct {
	ID                string     `json:"id" db:"id"`
	AgentID           string     `json:"agentId" db:"agent_id"`
	VersionAID        string     `json:"versionAId" db:"version_a_id"`
	VersionBID        string     `json:"versionBId" db:"version_b_id"`
	PreferredVersionID *string   `json:"preferredVersionId,omitempty" db:"preferred_version_id"`
	Preference        Preference `json:"preference" db:"preference"`
	Skipped           bool       `json:"skipped" db:"skipped"`
	CreatedAt         time.Time  `json:"createdAt" db:"created_at"`
}
