package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/agentlightning/promptctl/pkg/models"
)

// EnsureAgent implements Store. Agents are referenced by a caller-supplied
// opaque string id (spec.md §3); this upserts a row on first reference,
// matching "the main branch is auto-created on first reference" for branches.
func (s *pgStore) EnsureAgent(ctx context.Context, agentID, name string) (*models.Agent, error) {
	const q = `
		INSERT INTO agents (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = agents.name
		RETURNING id, name, current_production_version_id`
	var a models.Agent
	if err := s.ext().GetContext(ctx, &a, q, agentID, name); err != nil {
		return nil, fmt.Errorf("store: ensure agent: %w", err)
	}
	return &a, nil
}

// GetAgent implements Store.
func (s *pgStore) GetAgent(ctx context.Context, agentID string) (*models.Agent, error) {
	const q = `SELECT id, name, current_production_version_id FROM agents WHERE id = $1`
	var a models.Agent
	if err := s.ext().GetContext(ctx, &a, q, agentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get agent: %w", err)
	}
	return &a, nil
}

// SetAgentProductionVersion implements Store.
func (s *pgStore) SetAgentProductionVersion(ctx context.Context, agentID string, versionID *string) error {
	const q = `UPDATE agents SET current_production_version_id = $2 WHERE id = $1`
	res, err := s.ext().ExecContext(ctx, q, agentID, versionID)
	if err != nil {
		return fmt.Errorf("store: set agent production version: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
