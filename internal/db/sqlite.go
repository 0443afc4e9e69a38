package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jonathan/flow-agents/internal/types"
)

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
// ":memory:" opens a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps :memory: databases alive and serializes writers.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: sqlDB, now: time.Now}
	if err := s.Migrate(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}

// Migrate applies the embedded schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	stmts, err := schemaStatements("sqlite")
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) stamp() int64 {
	return s.now().UTC().UnixNano()
}

func fromStamp(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func fromNullStamp(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := fromStamp(ns.Int64)
	return &t
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func parseUUIDPtr(ns sql.NullString) (*uuid.UUID, error) {
	if !ns.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

// CreateProject inserts a new project.
func (s *SQLiteStore) CreateProject(ctx context.Context, req *types.CreateProjectRequest) (*types.Project, error) {
	id := uuid.New()
	now := s.stamp()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, client_name, language, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id.String(), req.ClientName, req.Language, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return s.GetProject(ctx, id)
}

// GetProject retrieves a project by ID.
func (s *SQLiteStore) GetProject(ctx context.Context, id uuid.UUID) (*types.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id.String())
	p, err := scanSQLiteProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects, newest first.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]types.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []types.Project
	for rows.Next() {
		p, err := scanSQLiteProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// UpdateProject edits project metadata.
func (s *SQLiteStore) UpdateProject(ctx context.Context, id uuid.UUID, req *types.UpdateProjectRequest) (*types.Project, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects
		 SET client_name = COALESCE(?, client_name), language = COALESCE(?, language), updated_at = ?
		 WHERE id = ?`,
		nullString(req.ClientName), nullString(req.Language), s.stamp(), id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetProject(ctx, id)
}

func scanSQLiteProject(row scanner) (*types.Project, error) {
	var p types.Project
	var id string
	var created, updated int64
	if err := row.Scan(&id, &p.ClientName, &p.Language, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	p.CreatedAt = fromStamp(created)
	p.UpdatedAt = fromStamp(updated)
	return &p, nil
}

// ---------------------------------------------------------------------------
// Artifacts
// ---------------------------------------------------------------------------

// InsertArtifact writes a new artifact row.
func (s *SQLiteStore) InsertArtifact(ctx context.Context, a *types.NewArtifact) (*types.Artifact, error) {
	id := uuid.New()
	content, contentJSON, fileURL := artifactPayloadArgs(a)
	var jsonCol sql.NullString
	if contentJSON != nil {
		jsonCol = sql.NullString{String: string(contentJSON), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, project_id, type, format, title, content, content_json, file_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), a.ProjectID.String(), a.Type, string(a.Format), a.Title,
		nullString(content), jsonCol, nullString(fileURL), s.stamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert artifact: %w", err)
	}
	return s.GetArtifact(ctx, id)
}

// GetArtifact retrieves an artifact by ID.
func (s *SQLiteStore) GetArtifact(ctx context.Context, id uuid.UUID) (*types.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id = ?`, id.String())
	a, err := scanSQLiteArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return a, nil
}

// ListArtifacts returns a project's artifacts newest first.
func (s *SQLiteStore) ListArtifacts(ctx context.Context, filter ArtifactFilter) ([]types.Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE project_id = ?`
	args := []any{filter.ProjectID.String()}
	if len(filter.Types) > 0 {
		query += " AND type IN (?" + strings.Repeat(", ?", len(filter.Types)-1) + ")"
		for _, t := range filter.Types {
			args = append(args, t)
		}
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []types.Artifact
	for rows.Next() {
		a, err := scanSQLiteArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, *a)
	}
	return artifacts, rows.Err()
}

func scanSQLiteArtifact(row scanner) (*types.Artifact, error) {
	var a types.Artifact
	var id, projectID, format string
	var content, contentJSON, fileURL sql.NullString
	var created int64
	if err := row.Scan(&id, &projectID, &a.Type, &format, &a.Title, &content, &contentJSON, &fileURL, &created); err != nil {
		return nil, err
	}
	var err error
	if a.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if a.ProjectID, err = uuid.Parse(projectID); err != nil {
		return nil, err
	}
	a.Format = types.ArtifactFormat(format)
	a.Content = stringPtr(content)
	if contentJSON.Valid {
		a.ContentJSON = []byte(contentJSON.String)
	}
	a.FileURL = stringPtr(fileURL)
	a.CreatedAt = fromStamp(created)
	return &a, nil
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

// InsertJob creates a job row.
func (s *SQLiteStore) InsertJob(ctx context.Context, j *types.NewJob) (*types.Job, error) {
	id := uuid.New()
	now := s.stamp()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, project_id, type, status, input_artifact_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), j.ProjectID.String(), j.Type, string(j.Status), j.InputArtifactID.String(), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob retrieves a job by ID.
func (s *SQLiteStore) GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id.String())
	j, err := scanSQLiteJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// ListJobs returns a project's jobs newest first.
func (s *SQLiteStore) ListJobs(ctx context.Context, projectID uuid.UUID) ([]types.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE project_id = ? ORDER BY created_at DESC, rowid DESC`,
		projectID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		j, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// TransitionJob updates a job's status if it is still in status from.
func (s *SQLiteStore) TransitionJob(ctx context.Context, id uuid.UUID, from types.JobStatus, upd *types.JobUpdate) (bool, error) {
	now := s.stamp()
	var completed sql.NullInt64
	if upd.Status.IsTerminal() {
		completed = sql.NullInt64{Int64: now, Valid: true}
	}
	var output sql.NullString
	if upd.OutputArtifactID != nil {
		output = sql.NullString{String: upd.OutputArtifactID.String(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs
		 SET status = ?, error = COALESCE(?, error), output_artifact_id = COALESCE(?, output_artifact_id),
		     updated_at = ?, completed_at = COALESCE(?, completed_at)
		 WHERE id = ? AND status = ?`,
		string(upd.Status), nullString(upd.Error), output, now, completed, id.String(), string(from),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update job status: %w", err)
	}
	return n == 1, nil
}

func scanSQLiteJob(row scanner) (*types.Job, error) {
	var j types.Job
	var id, projectID, status, input string
	var output, errMsg sql.NullString
	var created, updated int64
	var completed sql.NullInt64
	if err := row.Scan(&id, &projectID, &j.Type, &status, &input, &output, &errMsg, &created, &updated, &completed); err != nil {
		return nil, err
	}
	var err error
	if j.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if j.ProjectID, err = uuid.Parse(projectID); err != nil {
		return nil, err
	}
	if j.InputArtifactID, err = uuid.Parse(input); err != nil {
		return nil, err
	}
	if j.OutputArtifactID, err = parseUUIDPtr(output); err != nil {
		return nil, err
	}
	j.Status = types.JobStatus(status)
	j.Error = stringPtr(errMsg)
	j.CreatedAt = fromStamp(created)
	j.UpdatedAt = fromStamp(updated)
	j.CompletedAt = fromNullStamp(completed)
	return &j, nil
}

// ---------------------------------------------------------------------------
// Approvals
// ---------------------------------------------------------------------------

// InsertApprovals creates pending approvals for every artifact in one transaction.
func (s *SQLiteStore) InsertApprovals(ctx context.Context, projectID uuid.UUID, artifactIDs []uuid.UUID) ([]types.Approval, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.stamp()
	approvals := make([]types.Approval, 0, len(artifactIDs))
	for _, artifactID := range artifactIDs {
		a := types.Approval{
			ID:         uuid.New(),
			ProjectID:  projectID,
			ArtifactID: artifactID,
			Status:     types.ApprovalPending,
			CreatedAt:  fromStamp(now),
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO approvals (id, project_id, artifact_id, status, created_at) VALUES (?, ?, ?, ?, ?)`,
			a.ID.String(), projectID.String(), artifactID.String(), a.Status, now,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert approval: %w", err)
		}
		approvals = append(approvals, a)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit approvals: %w", err)
	}
	return approvals, nil
}

// ListApprovals returns a project's approvals, optionally filtered by status.
func (s *SQLiteStore) ListApprovals(ctx context.Context, projectID uuid.UUID, status string) ([]types.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE project_id = ?`
	args := []any{projectID.String()}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at ASC, rowid ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	var approvals []types.Approval
	for rows.Next() {
		a, err := scanSQLiteApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvals = append(approvals, *a)
	}
	return approvals, rows.Err()
}

// DecideApproval moves a pending approval to approved or rejected.
func (s *SQLiteStore) DecideApproval(ctx context.Context, id uuid.UUID, status string) (*types.Approval, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE approvals SET status = ?, decided_at = ? WHERE id = ? AND status = 'pending'`,
		status, s.stamp(), id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to decide approval: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to decide approval: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id = ?`, id.String())
	a, err := scanSQLiteApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	if n == 0 {
		return nil, ErrAlreadyDecided
	}
	return a, nil
}

func scanSQLiteApproval(row scanner) (*types.Approval, error) {
	var a types.Approval
	var id, projectID, artifactID string
	var created int64
	var decided sql.NullInt64
	if err := row.Scan(&id, &projectID, &artifactID, &a.Status, &created, &decided); err != nil {
		return nil, err
	}
	var err error
	if a.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if a.ProjectID, err = uuid.Parse(projectID); err != nil {
		return nil, err
	}
	if a.ArtifactID, err = uuid.Parse(artifactID); err != nil {
		return nil, err
	}
	a.CreatedAt = fromStamp(created)
	a.DecidedAt = fromNullStamp(decided)
	return &a, nil
}

// ---------------------------------------------------------------------------
// Run logs
// ---------------------------------------------------------------------------

// InsertRunLog records usage accounting for a job run.
func (s *SQLiteStore) InsertRunLog(ctx context.Context, r *types.RunLog) (*types.RunLog, error) {
	out := *r
	out.ID = uuid.New()
	now := s.stamp()
	out.CreatedAt = fromStamp(now)

	var tokensIn, tokensOut sql.NullInt64
	if r.TokensIn != nil {
		tokensIn = sql.NullInt64{Int64: int64(*r.TokensIn), Valid: true}
	}
	if r.TokensOut != nil {
		tokensOut = sql.NullInt64{Int64: int64(*r.TokensOut), Valid: true}
	}
	var cost sql.NullFloat64
	if r.CostEstimate != nil {
		cost = sql.NullFloat64{Float64: *r.CostEstimate, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, job_id, model, tokens_in, tokens_out, cost_estimate, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID.String(), r.JobID.String(), r.Model, tokensIn, tokensOut, cost, r.DurationMs, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run log: %w", err)
	}
	return &out, nil
}

// ListRunLogs returns a job's run logs oldest first.
func (s *SQLiteStore) ListRunLogs(ctx context.Context, jobID uuid.UUID) ([]types.RunLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runLogColumns+` FROM runs WHERE job_id = ? ORDER BY created_at ASC, rowid ASC`, jobID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list run logs: %w", err)
	}
	defer rows.Close()

	var logs []types.RunLog
	for rows.Next() {
		var r types.RunLog
		var id, job string
		var tokensIn, tokensOut sql.NullInt64
		var cost sql.NullFloat64
		var created int64
		if err := rows.Scan(&id, &job, &r.Model, &tokensIn, &tokensOut, &cost, &r.DurationMs, &created); err != nil {
			return nil, fmt.Errorf("failed to scan run log: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if r.JobID, err = uuid.Parse(job); err != nil {
			return nil, err
		}
		if tokensIn.Valid {
			v := int(tokensIn.Int64)
			r.TokensIn = &v
		}
		if tokensOut.Valid {
			v := int(tokensOut.Int64)
			r.TokensOut = &v
		}
		if cost.Valid {
			v := cost.Float64
			r.CostEstimate = &v
		}
		r.CreatedAt = fromStamp(created)
		logs = append(logs, r)
	}
	return logs, rows.Err()
}
