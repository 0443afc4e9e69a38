package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/flow-agents/internal/types"
)

const runLogColumns = `id, job_id, model, tokens_in, tokens_out, cost_estimate, duration_ms, created_at`

// InsertRunLog records usage accounting for a job run
func (db *DB) InsertRunLog(ctx context.Context, r *types.RunLog) (*types.RunLog, error) {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO runs (id, job_id, model, tokens_in, tokens_out, cost_estimate, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+runLogColumns,
		uuid.New(), r.JobID, r.Model, r.TokensIn, r.TokensOut, r.CostEstimate, r.DurationMs,
	)
	out, err := scanRunLog(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run log: %w", err)
	}
	return out, nil
}

// ListRunLogs returns a job's run logs oldest first
func (db *DB) ListRunLogs(ctx context.Context, jobID uuid.UUID) ([]types.RunLog, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+runLogColumns+` FROM runs WHERE job_id = $1 ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run logs: %w", err)
	}
	defer rows.Close()

	var logs []types.RunLog
	for rows.Next() {
		r, err := scanRunLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run log: %w", err)
		}
		logs = append(logs, *r)
	}
	return logs, rows.Err()
}

func scanRunLog(row pgx.Row) (*types.RunLog, error) {
	var r types.RunLog
	if err := row.Scan(&r.ID, &r.JobID, &r.Model, &r.TokensIn, &r.TokensOut, &r.CostEstimate, &r.DurationMs, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}
