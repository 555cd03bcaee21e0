package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agentlightning/promptctl/pkg/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// versionRow is the wire shape for prompt_versions: sqlx can auto-scan the
// scalar columns, but content/fitness (JSONB) and parent_ids/approved_by
// (TEXT[]) need explicit Scanner types.
type versionRow struct {
	ID              string             `db:"id"`
	AgentID         string             `db:"agent_id"`
	BranchID        string             `db:"branch_id"`
	Version         int                `db:"version"`
	Content         jsonColumn[models.PromptContent] `db:"content"`
	ParentIDs       pq.StringArray     `db:"parent_ids"`
	MutationType    sql.NullString     `db:"mutation_type"`
	MutationDetails sql.NullString     `db:"mutation_details"`
	Fitness         jsonColumn[models.Fitness] `db:"fitness"`
	Status          string             `db:"status"`
	CreatedAt       time.Time          `db:"created_at"`
	CreatedBy       string             `db:"created_by"`
	ApprovedBy      pq.StringArray     `db:"approved_by"`
	DeployedAt      sql.NullTime       `db:"deployed_at"`
	RetiredAt       sql.NullTime       `db:"retired_at"`
}

func (r *versionRow) toModel() *models.PromptVersion {
	v := &models.PromptVersion{
		ID:            r.ID,
		AgentID:       r.AgentID,
		BranchID:      r.BranchID,
		Version:       r.Version,
		Content:       r.Content.V,
		ParentIDs:     []string(r.ParentIDs),
		Fitness:       r.Fitness.V,
		Status:        models.VersionStatus(r.Status),
		CreatedAt:     r.CreatedAt,
		CreatedByKind: models.CreatedBy(r.CreatedBy),
		ApprovedBy:    []string(r.ApprovedBy),
	}
	if r.MutationType.Valid {
		v.MutationType = &r.MutationType.String
	}
	if r.MutationDetails.Valid {
		v.MutationDetails = &r.MutationDetails.String
	}
	if r.DeployedAt.Valid {
		v.DeployedAt = &r.DeployedAt.Time
	}
	if r.RetiredAt.Valid {
		v.RetiredAt = &r.RetiredAt.Time
	}
	return v
}

const versionColumns = `id, agent_id, branch_id, version, content, parent_ids, mutation_type,
	mutation_details, fitness, status, created_at, created_by, approved_by, deployed_at, retired_at`

// GetPromptVersion implements Store.
func (s *pgStore) GetPromptVersion(ctx context.Context, id string) (*models.PromptVersion, error) {
	q := `SELECT ` + versionColumns + ` FROM prompt_versions WHERE id = $1`
	var row versionRow
	if err := s.ext().GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get prompt version: %w", err)
	}
	return row.toModel(), nil
}

// GetPromptVersions implements Store.
func (s *pgStore) GetPromptVersions(ctx context.Context, ids []string) ([]*models.PromptVersion, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT ` + versionColumns + ` FROM prompt_versions WHERE id = ANY($1)`
	var rows []versionRow
	if err := s.ext().SelectContext(ctx, &rows, q, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("store: get prompt versions: %w", err)
	}
	out := make([]*models.PromptVersion, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

// CreatePromptVersion implements Store. Allocates version =
// max(sibling.version)+1 for (agentId, branchId); the caller MUST invoke
// this within WithTx at serializable isolation for the allocation to be
// race-free against concurrent inserts on the same pair (spec.md §3).
func (s *pgStore) CreatePromptVersion(ctx context.Context, v *models.PromptVersion) (*models.PromptVersion, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.Status == "" {
		v.Status = models.VersionCandidate
	}
	const nextVersionQ = `SELECT coalesce(max(version), 0) + 1 FROM prompt_versions WHERE agent_id = $1 AND branch_id = $2`
	var next int
	if err := s.ext().GetContext(ctx, &next, nextVersionQ, v.AgentID, v.BranchID); err != nil {
		return nil, fmt.Errorf("store: allocate next version: %w", err)
	}
	v.Version = next

	q := `INSERT INTO prompt_versions (id, agent_id, branch_id, version, content, parent_ids,
			mutation_type, mutation_details, fitness, status, created_by, approved_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + versionColumns

	var row versionRow
	err := s.ext().GetContext(ctx, &row, q,
		v.ID, v.AgentID, v.BranchID, v.Version,
		jsonColumn[models.PromptContent]{V: v.Content}, pq.Array(v.ParentIDs),
		v.MutationType, v.MutationDetails,
		jsonColumn[models.Fitness]{V: v.Fitness}, string(v.Status), string(v.CreatedByKind), pq.Array(v.ApprovedBy))
	if err != nil {
		return nil, fmt.Errorf("store: create prompt version: %w", err)
	}
	return row.toModel(), nil
}

// SetVersionStatus implements Store.
func (s *pgStore) SetVersionStatus(ctx context.Context, id string, status models.VersionStatus) error {
	const q = `UPDATE prompt_versions SET status = $2 WHERE id = $1`
	res, err := s.ext().ExecContext(ctx, q, id, string(status))
	if err != nil {
		return fmt.Errorf("store: set version status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVersionLifecycle implements Store.
func (s *pgStore) SetVersionLifecycle(ctx context.Context, id string, status models.VersionStatus, deployedAt, retiredAt *time.Time) error {
	const q = `UPDATE prompt_versions SET status = $2, deployed_at = coalesce($3, deployed_at), retired_at = coalesce($4, retired_at) WHERE id = $1`
	res, err := s.ext().ExecContext(ctx, q, id, string(status), deployedAt, retiredAt)
	if err != nil {
		return fmt.Errorf("store: set version lifecycle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendApprover implements Store.
func (s *pgStore) AppendApprover(ctx context.Context, versionID, approverEmail string) error {
	const q = `UPDATE prompt_versions SET approved_by = array_append(approved_by, $2) WHERE id = $1`
	res, err := s.ext().ExecContext(ctx, q, versionID, approverEmail)
	if err != nil {
		return fmt.Errorf("store: append approver: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateVersionFitness implements Store.
func (s *pgStore) UpdateVersionFitness(ctx context.Context, id string, f models.Fitness) error {
	const q = `UPDATE prompt_versions SET fitness = $2 WHERE id = $1`
	res, err := s.ext().ExecContext(ctx, q, id, jsonColumn[models.Fitness]{V: f})
	if err != nil {
		return fmt.Errorf("store: update version fitness: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListVersionsByBranch implements Store.
func (s *pgStore) ListVersionsByBranch(ctx context.Context, branchID string) ([]*models.PromptVersion, error) {
	q := `SELECT ` + versionColumns + ` FROM prompt_versions WHERE branch_id = $1 ORDER BY version`
	var rows []versionRow
	if err := s.ext().SelectContext(ctx, &rows, q, branchID); err != nil {
		return nil, fmt.Errorf("store: list versions by branch: %w", err)
	}
	out := make([]*models.PromptVersion, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

// TipOfBranch implements Store: the highest-version row on the branch.
func (s *pgStore) TipOfBranch(ctx context.Context, branchID string) (*models.PromptVersion, error) {
	q := `SELECT ` + versionColumns + ` FROM prompt_versions WHERE branch_id = $1 ORDER BY version DESC LIMIT 1`
	var row versionRow
	if err := s.ext().GetContext(ctx, &row, q, branchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: tip of branch: %w", err)
	}
	return row.toModel(), nil
}
