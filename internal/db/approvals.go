package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/flow-agents/internal/types"
)

const approvalColumns = `id, project_id, artifact_id, status, created_at, decided_at`

// InsertApprovals creates pending approvals for every artifact in one transaction
func (db *DB) InsertApprovals(ctx context.Context, projectID uuid.UUID, artifactIDs []uuid.UUID) ([]types.Approval, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	approvals := make([]types.Approval, 0, len(artifactIDs))
	for _, artifactID := range artifactIDs {
		row := tx.QueryRow(ctx,
			`INSERT INTO approvals (id, project_id, artifact_id, status)
			 VALUES ($1, $2, $3, 'pending')
			 RETURNING `+approvalColumns,
			uuid.New(), projectID, artifactID,
		)
		a, err := scanApproval(row)
		if err != nil {
			return nil, fmt.Errorf("failed to insert approval: %w", err)
		}
		approvals = append(approvals, *a)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit approvals: %w", err)
	}
	return approvals, nil
}

// ListApprovals returns a project's approvals, optionally filtered by status
func (db *DB) ListApprovals(ctx context.Context, projectID uuid.UUID, status string) ([]types.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE project_id = $1`
	args := []any{projectID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY created_at ASC"

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	var approvals []types.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvals = append(approvals, *a)
	}
	return approvals, rows.Err()
}

// DecideApproval moves a pending approval to approved or rejected
func (db *DB) DecideApproval(ctx context.Context, id uuid.UUID, status string) (*types.Approval, error) {
	row := db.pool.QueryRow(ctx,
		`UPDATE approvals SET status = $2, decided_at = clock_timestamp()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+approvalColumns,
		id, status,
	)
	a, err := scanApproval(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to decide approval: %w", err)
	}

	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM approvals WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check approval: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrAlreadyDecided
}

func scanApproval(row pgx.Row) (*types.Approval, error) {
	var a types.Approval
	if err := row.Scan(&a.ID, &a.ProjectID, &a.ArtifactID, &a.Status, &a.CreatedAt, &a.DecidedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
