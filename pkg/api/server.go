// Package api exposes the release-engineering control plane over HTTP+JSON,
// per spec.md §6.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/agentlightning/promptctl/pkg/approval"
	"github.com/agentlightning/promptctl/pkg/deployment"
	"github.com/agentlightning/promptctl/pkg/metrics"
	"github.com/agentlightning/promptctl/pkg/regression"
	"github.com/agentlightning/promptctl/pkg/store"
)

// Server is the HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	validate   *validator.Validate

	store         store.Store
	approvals     *approval.Service
	deployments   *deployment.Service
	metricsSvc    *metrics.Service
	regressionSvc *regression.Service
}

// NewServer creates a new API server with Echo v5, wiring every service
// component of spec.md §4 that has an HTTP surface into the route table of
// spec.md §6. The Version Graph component (spec.md §4.B) has no HTTP
// surface in this spec and is exercised directly by its own tests.
func NewServer(
	st store.Store,
	ap *approval.Service,
	dep *deployment.Service,
	ms *metrics.Service,
	rd *regression.Service,
) *Server {
	e := echo.New()

	s := &Server{
		echo:          e,
		validate:      validator.New(),
		store:         st,
		approvals:     ap,
		deployments:   dep,
		metricsSvc:    ms,
		regressionSvc: rd,
	}

	e.HTTPErrorHandler = httpErrorHandler
	e.Use(securityHeaders())
	s.setupRoutes()
	return s
}

// setupRoutes registers every endpoint of spec.md §6.
func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))

	s.echo.GET("/health", s.healthHandler)

	s.echo.POST("/approvals/request", s.requestApprovalHandler)
	s.echo.POST("/approvals/:versionId/approve", s.approveHandler)
	s.echo.POST("/approvals/:versionId/reject", s.rejectHandler)
	s.echo.GET("/approvals/pending", s.listPendingApprovalsHandler)
	s.echo.GET("/approvals/:versionId", s.getApprovalStatusHandler)

	s.echo.POST("/deployments", s.deployHandler)
	s.echo.POST("/deployments/:id/rollback", s.rollbackHandler)
	s.echo.GET("/deployments/agent/:agentId/current", s.currentDeploymentHandler)
	s.echo.GET("/deployments/agent/:agentId", s.deploymentHistoryHandler)
	s.echo.GET("/deployments/:id", s.getDeploymentHandler)

	s.echo.GET("/metrics/agent/:agentId", s.agentMetricsHandler)
	s.echo.GET("/metrics/deployment/:id", s.deploymentMetricsHandler)

	s.echo.POST("/regression/evaluate/:deploymentId", s.evaluateRegressionHandler)
	s.echo.GET("/regression/report/:deploymentId", s.getRegressionReportHandler)
}

// bind decodes the request body and validates it against its `validate`
// struct tags, returning a single 400 on either failure.
func (s *Server) bind(c *echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON")
	}
	if err := s.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// Start starts the HTTP server on the given address and blocks until the
// server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.echo,
	}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener. Used
// by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

const healthPingTimeout = 5 * time.Second
