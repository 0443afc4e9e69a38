// Package artifacts is the typed, write-once Artifact Store.
package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/flow-agents/internal/blob"
	"github.com/jonathan/flow-agents/internal/db"
	"github.com/jonathan/flow-agents/internal/types"
)

// ValidationError reports an artifact that does not match its declared format or type.
type ValidationError struct {
	Type    string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("artifact %s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("artifact %s: %s", e.Type, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// Store writes and reads artifacts.
type Store struct {
	db    db.ArtifactStore
	blobs blob.Store
}

// New returns a Store. blobs may be nil if no binary artifacts are written.
func New(store db.ArtifactStore, blobs blob.Store) *Store {
	return &Store{db: store, blobs: blobs}
}

// Put validates and writes a new artifact. It never overwrites an existing one.
func (s *Store) Put(ctx context.Context, a *types.NewArtifact) (*types.Artifact, error) {
	if err := validate(a); err != nil {
		return nil, err
	}
	return s.db.InsertArtifact(ctx, a)
}

// PutJSON marshals payload and writes it as a json artifact.
func (s *Store) PutJSON(ctx context.Context, projectID uuid.UUID, artifactType, title string, payload any) (*types.Artifact, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", artifactType, err)
	}
	return s.Put(ctx, &types.NewArtifact{
		ProjectID:   projectID,
		Type:        artifactType,
		Format:      types.FormatJSON,
		Title:       title,
		ContentJSON: raw,
	})
}

// PutFile uploads data to blob storage under the project's prefix and records a file artifact.
func (s *Store) PutFile(ctx context.Context, projectID uuid.UUID, artifactType, title, filename string, data []byte) (*types.Artifact, error) {
	if s.blobs == nil {
		return nil, fmt.Errorf("no blob storage configured for %s", artifactType)
	}
	url, err := s.blobs.Put(ctx, blob.Key(projectID.String(), filename), data, blob.DetectContentType(filename, data))
	if err != nil {
		return nil, err
	}
	return s.Put(ctx, &types.NewArtifact{
		ProjectID: projectID,
		Type:      artifactType,
		Format:    types.FormatFile,
		Title:     title,
		FileURL:   url,
	})
}

// Get returns the artifact or db.ErrNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*types.Artifact, error) {
	return s.db.GetArtifact(ctx, id)
}

// List returns the project's artifacts newest first, optionally restricted to types.
func (s *Store) List(ctx context.Context, projectID uuid.UUID, artifactTypes ...string) ([]types.Artifact, error) {
	return s.db.ListArtifacts(ctx, db.ArtifactFilter{ProjectID: projectID, Types: artifactTypes})
}

// Latest returns the most recent artifact of the first type in preference order that
// has any artifact at all. It returns db.ErrNotFound when none exists.
//
// Two concurrent runs of the same stage both write; whichever lands last becomes latest.
func (s *Store) Latest(ctx context.Context, projectID uuid.UUID, preference ...string) (*types.Artifact, error) {
	if len(preference) == 0 {
		return nil, fmt.Errorf("at least one artifact type is required")
	}
	for _, t := range preference {
		found, err := s.db.ListArtifacts(ctx, db.ArtifactFilter{ProjectID: projectID, Types: []string{t}, Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			return &found[0], nil
		}
	}
	return nil, db.ErrNotFound
}

// IsNotFound reports whether err means the artifact does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, db.ErrNotFound)
}

func validate(a *types.NewArtifact) error {
	if a.ProjectID == uuid.Nil {
		return &ValidationError{Type: a.Type, Message: "project id is required"}
	}
	if a.Type == "" {
		return &ValidationError{Type: "(none)", Message: "type is required"}
	}
	if !a.Format.Valid() {
		return &ValidationError{Type: a.Type, Message: fmt.Sprintf("unknown format %q", a.Format)}
	}

	switch a.Format {
	case types.FormatJSON:
		if !json.Valid(a.ContentJSON) {
			return &ValidationError{Type: a.Type, Message: "content_json is not valid JSON"}
		}
		if _, err := types.DecodePayload(a.Type, a.ContentJSON); err != nil {
			return &ValidationError{Type: a.Type, Message: "payload does not match type", Cause: err}
		}
	case types.FormatMarkdown:
		if a.Content == "" {
			return &ValidationError{Type: a.Type, Message: "markdown artifact has no content"}
		}
	case types.FormatFile:
		if a.FileURL == "" {
			return &ValidationError{Type: a.Type, Message: "file artifact has no file_url"}
		}
	}
	return nil
}
