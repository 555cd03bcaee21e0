package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// requestApprovalHandler handles POST /approvals/request.
func (s *Server) requestApprovalHandler(c *echo.Context) error {
	var req RequestApprovalRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	ar, err := s.approvals.RequestApproval(c.Request().Context(), req.VersionID, req.RequestedBy, req.RequiredApprovals, req.ExpiresInHours)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, ar)
}

// approveHandler handles POST /approvals/{versionId}/approve.
func (s *Server) approveHandler(c *echo.Context) error {
	var req VoteRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	status, err := s.approvals.Approve(c.Request().Context(), c.Param("versionId"), req.ApproverID, req.Reason)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &ApprovalStatusResponse{
		Request:   status.Request,
		Votes:     status.Votes,
		CanDeploy: status.CanDeploy,
	})
}

// rejectHandler handles POST /approvals/{versionId}/reject.
func (s *Server) rejectHandler(c *echo.Context) error {
	var req RejectRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	if err := s.approvals.Reject(c.Request().Context(), c.Param("versionId"), req.ApproverID, req.Reason); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &SuccessResponse{Success: true})
}

// getApprovalStatusHandler handles GET /approvals/{versionId}.
func (s *Server) getApprovalStatusHandler(c *echo.Context) error {
	status, err := s.approvals.GetApprovalStatus(c.Request().Context(), c.Param("versionId"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &ApprovalStatusResponse{
		Request:   status.Request,
		Votes:     status.Votes,
		CanDeploy: status.CanDeploy,
	})
}

// listPendingApprovalsHandler handles GET /approvals/pending.
func (s *Server) listPendingApprovalsHandler(c *echo.Context) error {
	pending, err := s.store.ListPendingApprovals(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, pending)
}
