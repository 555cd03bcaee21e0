// Package approval implements the multi-party approval workflow of
// spec.md §4.C: request / vote / reject / expire, with idempotent voting
// enforced by the Store's unique-vote constraint and an atomic
// compare-and-increment on currentApprovals.
package approval

import (
	"context"
	"log/slog"
	"time"

	"github.com/agentlightning/promptctl/pkg/models"
	"github.com/agentlightning/promptctl/pkg/notify"
	"github.com/agentlightning/promptctl/pkg/rbac"
	"github.com/agentlightning/promptctl/pkg/store"
)

// Clock is injected so tests can control "now" deterministically (spec.md
// §8's expiration boundary behaviors).
type Clock func() time.Time

// Service implements the Approval Service component.
type Service struct {
	store  store.Store
	notify *notify.Gateway
	canAct func(models.Role) bool
	now    Clock
	logger *slog.Logger
}

// New constructs a Service. gw may be nil (notifications become no-ops).
func New(st store.Store, gw *notify.Gateway) *Service {
	return &Service{
		store:  st,
		notify: gw,
		canAct: rbac.CanDeployOrApprove,
		now:    time.Now,
		logger: slog.Default().With("component", "approval"),
	}
}

// SetNow overrides the service's clock. Exposed for callers in other
// packages (the deployment service's tests) that construct a Service
// directly and need deterministic timestamps.
func (s *Service) SetNow(now Clock) {
	s.now = now
}

// Status is the full status snapshot returned by vote operations and reads.
type Status struct {
	Request   *models.ApprovalRequest
	Votes     []*models.ApprovalVote
	CanDeploy bool
}

// RequestApproval creates a new pending approval request for versionId.
func (s *Service) RequestApproval(ctx context.Context, versionID, requestedBy string, requiredApprovals int, expiresInHours *int) (*models.ApprovalRequest, error) {
	if requiredApprovals < 1 {
		return nil, store.NewValidationError("requiredApprovals", "must be >= 1")
	}
	v, err := s.store.GetPromptVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if existing, err := s.store.GetApprovalRequest(ctx, versionID); err == nil {
		switch existing.Status {
		case models.ApprovalPending:
			return nil, store.NewConflict("AlreadyPending")
		case models.ApprovalApproved:
			return nil, store.NewConflict("AlreadyApproved")
		}
	} else if err != store.ErrNotFound {
		return nil, err
	}

	var expiresAt *time.Time
	if expiresInHours != nil {
		t := s.now().Add(time.Duration(*expiresInHours) * time.Hour)
		expiresAt = &t
	}

	req, err := s.store.CreateApprovalRequest(ctx, &models.ApprovalRequest{
		VersionID:         versionID,
		AgentID:           v.AgentID,
		RequestedBy:       requestedBy,
		RequiredApprovals: requiredApprovals,
		Status:            models.ApprovalPending,
		ExpiresAt:         expiresAt,
	})
	if err != nil {
		return nil, err
	}

	s.notify.Emit(ctx, notify.Event{
		Kind: notify.ApprovalNeeded, AgentID: v.AgentID, VersionID: versionID,
		RequestID: req.ID, OccurredAt: s.now(),
	})
	return req, nil
}

// Approve records an approve vote and, once currentApprovals reaches
// requiredApprovals, transitions the request to approved and the version to
// approved.
func (s *Service) Approve(ctx context.Context, versionID, approverID string, reason *string) (*Status, error) {
	reviewer, err := s.checkActor(ctx, approverID)
	if err != nil {
		return nil, err
	}

	req, err := s.prepareVote(ctx, versionID, approverID)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateApprovalVote(ctx, &models.ApprovalVote{
		RequestID: req.ID, ApproverID: approverID, Vote: models.VoteApprove, Reason: reason,
	}); err != nil {
		return nil, err
	}

	count, err := s.store.IncrementApprovalCount(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	req.CurrentApprovals = count

	if count >= req.RequiredApprovals {
		if err := s.store.UpdateApprovalRequestStatus(ctx, req.ID, models.ApprovalApproved); err != nil {
			return nil, err
		}
		if err := s.store.SetVersionStatus(ctx, versionID, models.VersionApproved); err != nil {
			return nil, err
		}
		req.Status = models.ApprovalApproved
		s.notify.Emit(ctx, notify.Event{
			Kind: notify.ApprovalReceived, AgentID: req.AgentID, VersionID: versionID,
			RequestID: req.ID, ActorID: approverID, OccurredAt: s.now(),
		})
	}

	_ = s.store.TouchReviewerActivity(ctx, reviewer.ID, s.now())

	return s.snapshot(ctx, req)
}

// Reject records a reject vote and transitions the request to rejected,
// reverting the version to candidate. reason is required.
func (s *Service) Reject(ctx context.Context, versionID, approverID, reason string) error {
	if reason == "" {
		return store.NewValidationError("reason", "required")
	}
	reviewer, err := s.checkActor(ctx, approverID)
	if err != nil {
		return err
	}

	req, err := s.prepareVote(ctx, versionID, approverID)
	if err != nil {
		return err
	}

	if err := s.store.CreateApprovalVote(ctx, &models.ApprovalVote{
		RequestID: req.ID, ApproverID: approverID, Vote: models.VoteReject, Reason: &reason,
	}); err != nil {
		return err
	}
	if err := s.store.UpdateApprovalRequestStatus(ctx, req.ID, models.ApprovalRejected); err != nil {
		return err
	}
	if err := s.store.SetVersionStatus(ctx, versionID, models.VersionCandidate); err != nil {
		return err
	}

	_ = s.store.TouchReviewerActivity(ctx, reviewer.ID, s.now())

	s.notify.Emit(ctx, notify.Event{
		Kind: notify.ApprovalRejected, AgentID: req.AgentID, VersionID: versionID,
		RequestID: req.ID, ActorID: approverID, Reason: reason, OccurredAt: s.now(),
	})
	return nil
}

// GetApprovalStatus returns the status snapshot for versionId, lazily
// expiring the request first if its window has elapsed.
func (s *Service) GetApprovalStatus(ctx context.Context, versionID string) (*Status, error) {
	req, err := s.store.GetApprovalRequest(ctx, versionID)
	if err != nil {
		return nil, err
	}
	s.expireIfDue(ctx, req)
	return s.snapshot(ctx, req)
}

// checkActor loads the reviewer and verifies their role permits approval.
func (s *Service) checkActor(ctx context.Context, approverID string) (*models.Reviewer, error) {
	reviewer, err := s.store.GetReviewer(ctx, approverID)
	if err != nil {
		return nil, err
	}
	if !s.canAct(reviewer.Role) {
		return nil, store.ErrPermissionDenied
	}
	return reviewer, nil
}

// prepareVote loads the request, applies the lazy expiry check, and
// verifies the request is pending and the approver has not already voted.
func (s *Service) prepareVote(ctx context.Context, versionID, approverID string) (*models.ApprovalRequest, error) {
	req, err := s.store.GetApprovalRequest(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if s.expireIfDue(ctx, req) {
		return nil, store.ErrExpired
	}
	if req.Status != models.ApprovalPending {
		return nil, store.NewConflict("NotPending")
	}
	voted, err := s.store.HasVoted(ctx, req.ID, approverID)
	if err != nil {
		return nil, err
	}
	if voted {
		return nil, store.NewConflict("AlreadyVoted")
	}
	return req, nil
}

// expireIfDue marks req expired (in the store and in the in-memory value) if
// its window has elapsed while still pending. Returns true if it expired.
func (s *Service) expireIfDue(ctx context.Context, req *models.ApprovalRequest) bool {
	if req.Status != models.ApprovalPending || req.ExpiresAt == nil || req.ExpiresAt.After(s.now()) {
		return false
	}
	if err := s.store.UpdateApprovalRequestStatus(ctx, req.ID, models.ApprovalExpired); err != nil {
		s.logger.Warn("failed to persist approval expiry", "request_id", req.ID, "error", err)
	}
	req.Status = models.ApprovalExpired
	return true
}

func (s *Service) snapshot(ctx context.Context, req *models.ApprovalRequest) (*Status, error) {
	votes, err := s.store.GetApprovalVotes(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return &Status{
		Request:   req,
		Votes:     votes,
		CanDeploy: req.Status == models.ApprovalApproved,
	}, nil
}
