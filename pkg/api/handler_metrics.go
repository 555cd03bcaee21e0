package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
)

// agentMetricsHandler handles GET /metrics/agent/{agentId}: the default
// baseline-sized trajectory window ending now, per spec.md §6.
func (s *Server) agentMetricsHandler(c *echo.Context) error {
	window, err := s.metricsSvc.CaptureBaseline(c.Request().Context(), c.Param("agentId"), time.Now().UTC())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, window)
}

// deploymentMetricsHandler handles GET /metrics/deployment/{id}: the
// current window for that deployment's version since it was deployed, per
// spec.md §6.
func (s *Server) deploymentMetricsHandler(c *echo.Context) error {
	ctx := c.Request().Context()
	d, err := s.store.GetDeployment(ctx, c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}

	window, err := s.metricsSvc.CaptureWindow(ctx, d.VersionID, d.DeployedAt, time.Now().UTC())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, window)
}
