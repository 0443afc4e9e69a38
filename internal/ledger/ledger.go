// Package ledger is the single source of truth for pipeline job state.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/flow-agents/internal/db"
	"github.com/jonathan/flow-agents/internal/types"
)

// ErrConflict is returned when a job changed status between read and write.
var ErrConflict = errors.New("job status changed concurrently")

// InputError reports a job whose input artifact cannot be used.
type InputError struct {
	ArtifactID uuid.UUID
	Reason     string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input artifact %s: %s", e.ArtifactID, e.Reason)
}

// Store is the persistence the ledger needs.
type Store interface {
	db.JobStore
	GetArtifact(ctx context.Context, id uuid.UUID) (*types.Artifact, error)
}

// Ledger creates jobs and guards their status transitions.
type Ledger struct {
	store Store
}

// New returns a Ledger backed by store.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// CreateJob records a new job in running status. The input artifact must already
// exist and belong to the project.
func (l *Ledger) CreateJob(ctx context.Context, projectID uuid.UUID, jobType string, inputArtifactID uuid.UUID) (*types.Job, error) {
	if jobType == "" {
		return nil, fmt.Errorf("job type is required")
	}
	input, err := l.store.GetArtifact(ctx, inputArtifactID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, &InputError{ArtifactID: inputArtifactID, Reason: "does not exist"}
	}
	if err != nil {
		return nil, err
	}
	if input.ProjectID != projectID {
		return nil, &InputError{ArtifactID: inputArtifactID, Reason: "belongs to another project"}
	}

	return l.store.InsertJob(ctx, &types.NewJob{
		ProjectID:       projectID,
		Type:            jobType,
		Status:          types.JobStatusRunning,
		InputArtifactID: inputArtifactID,
	})
}

// GetJob returns the job or db.ErrNotFound.
func (l *Ledger) GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	return l.store.GetJob(ctx, id)
}

// ListJobs returns the project's jobs newest first.
func (l *Ledger) ListJobs(ctx context.Context, projectID uuid.UUID) ([]types.Job, error) {
	return l.store.ListJobs(ctx, projectID)
}

// UpdateStatus moves a job to upd.Status. Transitions out of a terminal status are
// rejected with *types.TransitionError. done and needs_approval require an output
// artifact that already exists.
func (l *Ledger) UpdateStatus(ctx context.Context, jobID uuid.UUID, upd types.JobUpdate) error {
	job, err := l.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := types.ValidateTransition(job.Status, upd.Status); err != nil {
		return err
	}

	if upd.Status.RequiresOutput() {
		if upd.OutputArtifactID == nil {
			return fmt.Errorf("status %s requires an output artifact", upd.Status)
		}
		out, err := l.store.GetArtifact(ctx, *upd.OutputArtifactID)
		if errors.Is(err, db.ErrNotFound) {
			return &InputError{ArtifactID: *upd.OutputArtifactID, Reason: "output artifact does not exist"}
		}
		if err != nil {
			return err
		}
		if out.ProjectID != job.ProjectID {
			return &InputError{ArtifactID: out.ID, Reason: "output artifact belongs to another project"}
		}
	}

	ok, err := l.store.TransitionJob(ctx, jobID, job.Status, &upd)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: job %s left %s", ErrConflict, jobID, job.Status)
	}
	return nil
}

// Fail marks a job failed with msg.
func (l *Ledger) Fail(ctx context.Context, jobID uuid.UUID, msg string) error {
	return l.UpdateStatus(ctx, jobID, types.JobUpdate{Status: types.JobStatusFailed, Error: &msg})
}
