package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/flow-agents/internal/types"
)

const projectColumns = `id, client_name, language, created_at, updated_at`

// CreateProject inserts a new project
func (db *DB) CreateProject(ctx context.Context, req *types.CreateProjectRequest) (*types.Project, error) {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO projects (id, client_name, language)
		 VALUES ($1, $2, $3)
		 RETURNING `+projectColumns,
		uuid.New(), req.ClientName, req.Language,
	)
	p, err := scanProject(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return p, nil
}

// GetProject retrieves a project by ID
func (db *DB) GetProject(ctx context.Context, id uuid.UUID) (*types.Project, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects, newest first
func (db *DB) ListProjects(ctx context.Context) ([]types.Project, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []types.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// UpdateProject edits project metadata
func (db *DB) UpdateProject(ctx context.Context, id uuid.UUID, req *types.UpdateProjectRequest) (*types.Project, error) {
	row := db.pool.QueryRow(ctx,
		`UPDATE projects
		 SET client_name = COALESCE($2, client_name),
		     language = COALESCE($3, language),
		     updated_at = clock_timestamp()
		 WHERE id = $1
		 RETURNING `+projectColumns,
		id, req.ClientName, req.Language,
	)
	p, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return p, nil
}

func scanProject(row pgx.Row) (*types.Project, error) {
	var p types.Project
	if err := row.Scan(&p.ID, &p.ClientName, &p.Language, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
