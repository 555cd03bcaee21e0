package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
)

// healthHandler handles GET /health, per spec.md §6: 200 when the database
// ping succeeds, 503 otherwise.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), healthPingTimeout)
	defer cancel()

	now := time.Now().UTC()
	if err := s.store.Ping(reqCtx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, &HealthResponse{
			Status:    "unhealthy",
			Database:  "unreachable",
			Timestamp: now,
		})
	}

	return c.JSON(http.StatusOK, &HealthResponse{
		Status:    "healthy",
		Database:  "connected",
		Timestamp: now,
	})
}
