package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agentlightning/promptctl/pkg/models"
)

const reviewerColumns = `id, email, name, role, created_at, last_active_at`

// GetReviewer implements Store.
func (s *pgStore) GetReviewer(ctx context.Context, id string) (*models.Reviewer, error) {
	q := `SELECT ` + reviewerColumns + ` FROM reviewers WHERE id = $1`
	var r models.Reviewer
	if err := s.ext().GetContext(ctx, &r, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get reviewer: %w", err)
	}
	return &r, nil
}

// GetReviewerByEmail implements Store.
func (s *pgStore) GetReviewerByEmail(ctx context.Context, email string) (*models.Reviewer, error) {
	q := `SELECT ` + reviewerColumns + ` FROM reviewers WHERE email = $1`
	var r models.Reviewer
	if err := s.ext().GetContext(ctx, &r, q, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get reviewer by email: %w", err)
	}
	return &r, nil
}

// FindAnyAdmin implements Store: used by the Deployment Controller's
// AutoRollback to pick the admin reviewer it acts as.
func (s *pgStore) FindAnyAdmin(ctx context.Context) (*models.Reviewer, error) {
	q := `SELECT ` + reviewerColumns + ` FROM reviewers WHERE role = $1 ORDER BY created_at LIMIT 1`
	var r models.Reviewer
	if err := s.ext().GetContext(ctx, &r, q, string(models.RoleAdmin)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: find any admin: %w", err)
	}
	return &r, nil
}

// TouchReviewerActivity implements Store.
func (s *pgStore) TouchReviewerActivity(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE reviewers SET last_active_at = $2 WHERE id = $1`
	res, err := s.ext().ExecContext(ctx, q, id, at)
	if err != nil {
		return fmt.Errorf("store: touch reviewer activity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
