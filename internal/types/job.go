package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

// Job statuses. Jobs are created directly in JobStatusRunning; pending and queued
// are accepted by the transition table but nothing creates jobs in them yet.
const (
	JobStatusPending       JobStatus = "pending"
	JobStatusQueued        JobStatus = "queued"
	JobStatusRunning       JobStatus = "running"
	JobStatusDone          JobStatus = "done"
	JobStatusNeedsApproval JobStatus = "needs_approval"
	JobStatusFailed        JobStatus = "failed"
)

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	_, ok := jobTransitions[s]
	return ok
}

// IsTerminal reports whether s is a sink state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusNeedsApproval || s == JobStatusFailed
}

// RequiresOutput reports whether reaching s needs a primary output artifact.
func (s JobStatus) RequiresOutput() bool {
	return s == JobStatusDone || s == JobStatusNeedsApproval
}

var jobTransitions = map[JobStatus]map[JobStatus]struct{}{
	JobStatusPending: {
		JobStatusQueued:  {},
		JobStatusRunning: {},
		JobStatusFailed:  {},
	},
	JobStatusQueued: {
		JobStatusRunning: {},
		JobStatusFailed:  {},
	},
	JobStatusRunning: {
		JobStatusDone:          {},
		JobStatusNeedsApproval: {},
		JobStatusFailed:        {},
	},
	JobStatusDone:          {},
	JobStatusNeedsApproval: {},
	JobStatusFailed:        {},
}

// TransitionError reports a status change the state machine does not allow.
type TransitionError struct {
	From JobStatus
	To   JobStatus
}

func (e *TransitionError) Error() string {
	if e.From.IsTerminal() {
		return fmt.Sprintf("invalid job transition: %s -> %s (job already terminal)", e.From, e.To)
	}
	return fmt.Sprintf("invalid job transition: %s -> %s", e.From, e.To)
}

// ValidateTransition checks from -> to against the job state machine.
func ValidateTransition(from, to JobStatus) error {
	if !to.Valid() {
		return fmt.Errorf("unknown job status: %q", to)
	}
	allowed, ok := jobTransitions[from]
	if !ok {
		return fmt.Errorf("unknown job status: %q", from)
	}
	if _, ok := allowed[to]; !ok {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// Job is one execution attempt of one stage for one project.
type Job struct {
	ID               uuid.UUID  `json:"id"`
	ProjectID        uuid.UUID  `json:"project_id"`
	Type             string     `json:"type"`
	Status           JobStatus  `json:"status"`
	InputArtifactID  uuid.UUID  `json:"input_artifact_id"`
	OutputArtifactID *uuid.UUID `json:"output_artifact_id"`
	Error            *string    `json:"error"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// NewJob is the input for creating a job.
type NewJob struct {
	ProjectID       uuid.UUID
	Type            string
	Status          JobStatus
	InputArtifactID uuid.UUID
}

// JobUpdate is a status change with its optional result fields.
type JobUpdate struct {
	Status           JobStatus
	Error            *string
	OutputArtifactID *uuid.UUID
}
