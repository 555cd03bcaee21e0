package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// evaluateRegressionHandler handles POST /regression/evaluate/{deploymentId}.
func (s *Server) evaluateRegressionHandler(c *echo.Context) error {
	report, err := s.regressionSvc.Evaluate(c.Request().Context(), c.Param("deploymentId"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, report)
}

// getRegressionReportHandler handles GET /regression/report/{deploymentId}.
func (s *Server) getRegressionReportHandler(c *echo.Context) error {
	report, err := s.store.GetLatestRegressionReport(c.Request().Context(), c.Param("deploymentId"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, report)
}
