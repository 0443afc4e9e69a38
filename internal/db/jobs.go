package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/flow-agents/internal/types"
)

const jobColumns = `id, project_id, type, status, input_artifact_id, output_artifact_id, error, created_at, updated_at, completed_at`

// InsertJob creates a job row
func (db *DB) InsertJob(ctx context.Context, j *types.NewJob) (*types.Job, error) {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO jobs (id, project_id, type, status, input_artifact_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+jobColumns,
		uuid.New(), j.ProjectID, j.Type, string(j.Status), j.InputArtifactID,
	)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}
	return job, nil
}

// GetJob retrieves a job by ID
func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns a project's jobs newest first
func (db *DB) ListJobs(ctx context.Context, projectID uuid.UUID) ([]types.Job, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE project_id = $1 ORDER BY created_at DESC, seq DESC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// TransitionJob updates a job's status if it is still in status from
func (db *DB) TransitionJob(ctx context.Context, id uuid.UUID, from types.JobStatus, upd *types.JobUpdate) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE jobs
		 SET status = $3,
		     error = COALESCE($4, error),
		     output_artifact_id = COALESCE($5, output_artifact_id),
		     updated_at = clock_timestamp(),
		     completed_at = CASE WHEN $6 THEN clock_timestamp() ELSE completed_at END
		 WHERE id = $1 AND status = $2`,
		id, string(from), string(upd.Status), upd.Error, upd.OutputArtifactID, upd.Status.IsTerminal(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update job status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanJob(row pgx.Row) (*types.Job, error) {
	var j types.Job
	var status string
	if err := row.Scan(&j.ID, &j.ProjectID, &j.Type, &status, &j.InputArtifactID, &j.OutputArtifactID,
		&j.Error, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt); err != nil {
		return nil, err
	}
	j.Status = types.JobStatus(status)
	return &j, nil
}
