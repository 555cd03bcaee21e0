package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agentlightning/promptctl/pkg/models"
	"github.com/google/uuid"
)

const approvalColumns = `id, version_id, agent_id, requested_by, requested_at, required_approvals,
	current_approvals, status, expires_at`

// CreateApprovalRequest implements Store.
func (s *pgStore) CreateApprovalRequest(ctx context.Context, r *models.ApprovalRequest) (*models.ApprovalRequest, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = models.ApprovalPending
	}
	q := `INSERT INTO approval_requests (id, version_id, agent_id, requested_by, required_approvals, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + approvalColumns
	var out models.ApprovalRequest
	err := s.ext().GetContext(ctx, &out, q, r.ID, r.VersionID, r.AgentID, r.RequestedBy, r.RequiredApprovals, string(r.Status), r.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("store: create approval request: %w", err)
	}
	return &out, nil
}

// GetApprovalRequest implements Store: looks up the (at most one, per the
// unique-versionId invariant of spec.md §4.C) request for a version.
func (s *pgStore) GetApprovalRequest(ctx context.Context, versionID string) (*models.ApprovalRequest, error) {
	q := `SELECT ` + approvalColumns + ` FROM approval_requests WHERE version_id = $1`
	var out models.ApprovalRequest
	if err := s.ext().GetContext(ctx, &out, q, versionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get approval request: %w", err)
	}
	return &out, nil
}

// GetApprovalRequestByID implements Store.
func (s *pgStore) GetApprovalRequestByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	q := `SELECT ` + approvalColumns + ` FROM approval_requests WHERE id = $1`
	var out models.ApprovalRequest
	if err := s.ext().GetContext(ctx, &out, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get approval request by id: %w", err)
	}
	return &out, nil
}

// UpdateApprovalRequestStatus implements Store.
func (s *pgStore) UpdateApprovalRequestStatus(ctx context.Context, id string, status models.ApprovalStatus) error {
	const q = `UPDATE approval_requests SET status = $2 WHERE id = $1`
	res, err := s.ext().ExecContext(ctx, q, id, string(status))
	if err != nil {
		return fmt.Errorf("store: update approval request status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementApprovalCount implements Store, using RETURNING to avoid a
// read-modify-write race across concurrent votes on the same request.
func (s *pgStore) IncrementApprovalCount(ctx context.Context, id string) (int, error) {
	const q = `UPDATE approval_requests SET current_approvals = current_approvals + 1 WHERE id = $1 RETURNING current_approvals`
	var n int
	if err := s.ext().GetContext(ctx, &n, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("store: increment approval count: %w", err)
	}
	return n, nil
}

// CreateApprovalVote implements Store. The unique (request_id, approver_id)
// constraint surfaces as a ConflictError so callers can map it to the
// "reviewer already voted" case without a prior HasVoted round-trip.
func (s *pgStore) CreateApprovalVote(ctx context.Context, v *models.ApprovalVote) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	const q = `INSERT INTO approval_votes (id, request_id, approver_id, vote, reason) VALUES ($1, $2, $3, $4, $5)`
	_, err := s.ext().ExecContext(ctx, q, v.ID, v.RequestID, v.ApproverID, string(v.Vote), v.Reason)
	if err != nil {
		if isUniqueViolation(err) {
			return NewConflict("AlreadyVoted")
		}
		return fmt.Errorf("store: create approval vote: %w", err)
	}
	return nil
}

// HasVoted implements Store.
func (s *pgStore) HasVoted(ctx context.Context, requestID, approverID string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM approval_votes WHERE request_id = $1 AND approver_id = $2)`
	var exists bool
	if err := s.ext().GetContext(ctx, &exists, q, requestID, approverID); err != nil {
		return false, fmt.Errorf("store: has voted: %w", err)
	}
	return exists, nil
}

// GetApprovalVotes implements Store.
func (s *pgStore) GetApprovalVotes(ctx context.Context, requestID string) ([]*models.ApprovalVote, error) {
	const q = `SELECT id, request_id, approver_id, vote, reason, voted_at FROM approval_votes WHERE request_id = $1 ORDER BY voted_at`
	var out []*models.ApprovalVote
	if err := s.ext().SelectContext(ctx, &out, q, requestID); err != nil {
		return nil, fmt.Errorf("store: get approval votes: %w", err)
	}
	return out, nil
}

// ListPendingApprovals implements Store.
func (s *pgStore) ListPendingApprovals(ctx context.Context) ([]*models.ApprovalRequest, error) {
	q := `SELECT ` + approvalColumns + ` FROM approval_requests WHERE status = $1 ORDER BY requested_at`
	var out []*models.ApprovalRequest
	if err := s.ext().SelectContext(ctx, &out, q, string(models.ApprovalPending)); err != nil {
		return nil, fmt.Errorf("store: list pending approvals: %w", err)
	}
	return out, nil
}

// ExpirePendingApprovalsBefore implements Store: the bulk expiry run by the
// scheduler's hourly sweep. GetApprovalStatus expires a single overdue
// request through UpdateApprovalRequestStatus instead.
func (s *pgStore) ExpirePendingApprovalsBefore(ctx context.Context, now time.Time) (int, error) {
	const q = `UPDATE approval_requests SET status = $2 WHERE status = $1 AND expires_at IS NOT NULL AND expires_at < $3`
	res, err := s.ext().ExecContext(ctx, q, string(models.ApprovalPending), string(models.ApprovalExpired), now)
	if err != nil {
		return 0, fmt.Errorf("store: expire pending approvals: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
