package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/flow-agents/internal/types"
)

const artifactColumns = `id, project_id, type, format, title, content, content_json, file_url, created_at`

// InsertArtifact writes a new artifact row and returns it
func (db *DB) InsertArtifact(ctx context.Context, a *types.NewArtifact) (*types.Artifact, error) {
	content, contentJSON, fileURL := artifactPayloadArgs(a)
	row := db.pool.QueryRow(ctx,
		`INSERT INTO artifacts (id, project_id, type, format, title, content, content_json, file_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+artifactColumns,
		uuid.New(), a.ProjectID, a.Type, string(a.Format), a.Title, content, contentJSON, fileURL,
	)
	art, err := scanArtifact(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert artifact: %w", err)
	}
	return art, nil
}

// GetArtifact retrieves an artifact by ID
func (db *DB) GetArtifact(ctx context.Context, id uuid.UUID) (*types.Artifact, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id = $1`, id)
	art, err := scanArtifact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return art, nil
}

// ListArtifacts returns a project's artifacts newest first
func (db *DB) ListArtifacts(ctx context.Context, filter ArtifactFilter) ([]types.Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE project_id = $1`
	args := []any{filter.ProjectID}

	if len(filter.Types) > 0 {
		args = append(args, filter.Types)
		query += fmt.Sprintf(" AND type = ANY($%d)", len(args))
	}
	query += " ORDER BY created_at DESC, seq DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []types.Artifact
	for rows.Next() {
		art, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, *art)
	}
	return artifacts, rows.Err()
}

func scanArtifact(row pgx.Row) (*types.Artifact, error) {
	var a types.Artifact
	var format string
	var contentJSON []byte
	if err := row.Scan(&a.ID, &a.ProjectID, &a.Type, &format, &a.Title, &a.Content, &contentJSON, &a.FileURL, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Format = types.ArtifactFormat(format)
	if len(contentJSON) > 0 {
		a.ContentJSON = contentJSON
	}
	return &a, nil
}

// artifactPayloadArgs maps the payload fields to nullable column values.
func artifactPayloadArgs(a *types.NewArtifact) (content *string, contentJSON []byte, fileURL *string) {
	if a.Content != "" {
		content = &a.Content
	}
	if len(a.ContentJSON) > 0 {
		contentJSON = []byte(a.ContentJSON)
	}
	if a.FileURL != "" {
		fileURL = &a.FileURL
	}
	return content, contentJSON, fileURL
}
