package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/agentlightning/promptctl/pkg/store"
)

// deployHandler handles POST /deployments.
func (s *Server) deployHandler(c *echo.Context) error {
	var req DeployRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	d, err := s.deployments.Deploy(c.Request().Context(), req.VersionID, req.DeployedBy)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

// rollbackHandler handles POST /deployments/{id}/rollback.
func (s *Server) rollbackHandler(c *echo.Context) error {
	var req RollbackRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	reason := ""
	if req.Reason != nil {
		reason = *req.Reason
	}

	d, err := s.deployments.Rollback(c.Request().Context(), c.Param("id"), req.RolledBackBy, reason)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, d)
}

// getDeploymentHandler handles GET /deployments/{id}.
func (s *Server) getDeploymentHandler(c *echo.Context) error {
	ctx := c.Request().Context()
	d, err := s.store.GetDeployment(ctx, c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}

	report, err := s.store.GetLatestRegressionReport(ctx, d.ID)
	if err != nil && err != store.ErrNotFound {
		return mapServiceError(err)
	}
	if err == store.ErrNotFound {
		report = nil
	}

	return c.JSON(http.StatusOK, &DeploymentDetailResponse{Deployment: d, RegressionReport: report})
}

// deploymentHistoryHandler handles GET /deployments/agent/{agentId}.
func (s *Server) deploymentHistoryHandler(c *echo.Context) error {
	const defaultHistoryLimit = 50
	limit := defaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}

	history, err := s.store.GetDeploymentHistory(c.Request().Context(), c.Param("agentId"), limit)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, history)
}

// currentDeploymentHandler handles GET /deployments/agent/{agentId}/current.
func (s *Server) currentDeploymentHandler(c *echo.Context) error {
	d, err := s.store.GetCurrentDeployment(c.Request().Context(), c.Param("agentId"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, d)
}
