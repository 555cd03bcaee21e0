package api

import (
	"time"

	"github.com/agentlightning/promptctl/pkg/models"
)

// HealthResponse is returned by GET /health, per spec.md §6.
type HealthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
}

// ApprovalStatusResponse is returned by the approve action and the status
// read, per spec.md §6.
type ApprovalStatusResponse struct {
	Request   *models.ApprovalRequest `json:"request"`
	Votes     []*models.ApprovalVote  `json:"votes"`
	CanDeploy bool                    `json:"canDeploy"`
}

// SuccessResponse is returned by POST /approvals/{versionId}/reject.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// DeploymentDetailResponse is returned by GET /deployments/{id}, per
// spec.md §6.
type DeploymentDetailResponse struct {
	Deployment       *models.Deployment        `json:"deployment"`
	RegressionReport *models.RegressionReport  `json:"regressionReport,omitempty"`
}

// ErrorResponse is the body of every non-2xx response, per spec.md §6.
type ErrorResponse struct {
	Error string `json:"error"`
}
