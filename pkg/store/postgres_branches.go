package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/agentlightning/promptctl/pkg/models"
	"github.com/google/uuid"
)

// CreateBranch implements Store. Generates an id if b.ID is empty.
func (s *pgStore) CreateBranch(ctx context.Context, b *models.Branch) (*models.Branch, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO branches (id, agent_id, name, parent_branch_id, is_main)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, agent_id, name, parent_branch_id, is_main, created_at`
	var out models.Branch
	if err := s.ext().GetContext(ctx, &out, q, b.ID, b.AgentID, b.Name, b.ParentBranchID, b.IsMain); err != nil {
		return nil, fmt.Errorf("store: create branch: %w", err)
	}
	return &out, nil
}

// GetBranch implements Store.
func (s *pgStore) GetBranch(ctx context.Context, id string) (*models.Branch, error) {
	const q = `SELECT id, agent_id, name, parent_branch_id, is_main, created_at FROM branches WHERE id = $1`
	var b models.Branch
	if err := s.ext().GetContext(ctx, &b, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get branch: %w", err)
	}
	return &b, nil
}

// GetBranchByName implements Store.
func (s *pgStore) GetBranchByName(ctx context.Context, agentID, name string) (*models.Branch, error) {
	const q = `SELECT id, agent_id, name, parent_branch_id, is_main, created_at FROM branches WHERE agent_id = $1 AND name = $2`
	var b models.Branch
	if err := s.ext().GetContext(ctx, &b, q, agentID, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get branch by name: %w", err)
	}
	return &b, nil
}

// ListBranches implements Store.
func (s *pgStore) ListBranches(ctx context.Context, agentID string) ([]*models.Branch, error) {
	const q = `SELECT id, agent_id, name, parent_branch_id, is_main, created_at FROM branches WHERE agent_id = $1 ORDER BY created_at`
	var out []*models.Branch
	if err := s.ext().SelectContext(ctx, &out, q, agentID); err != nil {
		return nil, fmt.Errorf("store: list branches: %w", err)
	}
	return out, nil
}

// DeleteBranch implements Store. Callers must check CountVersionsInBranch
// first (BranchNotEmpty is a service-layer concern per spec.md §4.B).
func (s *pgStore) DeleteBranch(ctx context.Context, id string) error {
	const q = `DELETE FROM branches WHERE id = $1`
	res, err := s.ext().ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("store: delete branch: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountVersionsInBranch implements Store.
func (s *pgStore) CountVersionsInBranch(ctx context.Context, branchID string) (int, error) {
	const q = `SELECT count(*) FROM prompt_versions WHERE branch_id = $1`
	var n int
	if err := s.ext().GetContext(ctx, &n, q, branchID); err != nil {
		return 0, fmt.Errorf("store: count versions in branch: %w", err)
	}
	return n, nil
}
