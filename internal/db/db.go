// Package db provides durable storage for projects, artifacts, jobs, approvals and run logs.
// Two backends implement Store: PostgreSQL (DB, via pgx) and SQLite (SQLiteStore).
package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/flow-agents/internal/types"
)

//go:embed schema/*.sql
var schemaFiles embed.FS

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyDecided is returned when deciding an approval that is no longer pending.
var ErrAlreadyDecided = errors.New("approval already decided")

// ProjectStore persists projects.
type ProjectStore interface {
	CreateProject(ctx context.Context, req *types.CreateProjectRequest) (*types.Project, error)
	GetProject(ctx context.Context, id uuid.UUID) (*types.Project, error)
	ListProjects(ctx context.Context) ([]types.Project, error)
	UpdateProject(ctx context.Context, id uuid.UUID, req *types.UpdateProjectRequest) (*types.Project, error)
}

// ArtifactFilter selects artifacts of one project.
type ArtifactFilter struct {
	ProjectID uuid.UUID
	// Types restricts the result to these artifact types; empty means all.
	Types []string
	// Limit caps the result size; zero means no limit.
	Limit int
}

// ArtifactStore persists artifacts. There is deliberately no update or delete.
type ArtifactStore interface {
	InsertArtifact(ctx context.Context, a *types.NewArtifact) (*types.Artifact, error)
	GetArtifact(ctx context.Context, id uuid.UUID) (*types.Artifact, error)
	// ListArtifacts returns matches newest first.
	ListArtifacts(ctx context.Context, filter ArtifactFilter) ([]types.Artifact, error)
}

// JobStore persists jobs.
type JobStore interface {
	InsertJob(ctx context.Context, j *types.NewJob) (*types.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error)
	// ListJobs returns the project's jobs newest first.
	ListJobs(ctx context.Context, projectID uuid.UUID) ([]types.Job, error)
	// TransitionJob applies upd only if the job is still in status from.
	// It reports whether the row was changed.
	TransitionJob(ctx context.Context, id uuid.UUID, from types.JobStatus, upd *types.JobUpdate) (bool, error)
}

// ApprovalStore persists approvals.
type ApprovalStore interface {
	// InsertApprovals creates one pending approval per artifact in a single transaction.
	InsertApprovals(ctx context.Context, projectID uuid.UUID, artifactIDs []uuid.UUID) ([]types.Approval, error)
	// ListApprovals returns the project's approvals oldest first; status "" means all.
	ListApprovals(ctx context.Context, projectID uuid.UUID, status string) ([]types.Approval, error)
	DecideApproval(ctx context.Context, id uuid.UUID, status string) (*types.Approval, error)
}

// RunLogStore persists usage accounting.
type RunLogStore interface {
	InsertRunLog(ctx context.Context, r *types.RunLog) (*types.RunLog, error)
	ListRunLogs(ctx context.Context, jobID uuid.UUID) ([]types.RunLog, error)
}

// Store is the full persistence surface.
type Store interface {
	ProjectStore
	ArtifactStore
	JobStore
	ApprovalStore
	RunLogStore
	Migrate(ctx context.Context) error
	Close()
}

// Open connects to the store named by url: "sqlite://path", "sqlite://:memory:",
// or a PostgreSQL connection URL.
func Open(ctx context.Context, url string) (Store, error) {
	if path, ok := strings.CutPrefix(url, "sqlite://"); ok {
		return OpenSQLite(path)
	}
	return Connect(ctx, url)
}

var (
	_ Store = (*DB)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	stmts, err := schemaStatements("postgres")
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// schemaStatements splits an embedded schema file on blank lines.
func schemaStatements(backend string) ([]string, error) {
	data, err := schemaFiles.ReadFile("schema/" + backend + ".sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read %s schema: %w", backend, err)
	}
	var stmts []string
	for _, block := range strings.Split(string(data), "\n\n") {
		if stmt := strings.TrimSpace(block); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}
