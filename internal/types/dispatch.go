package types

import (
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DispatchBody is the request body of a worker dispatch. It only names a job
// that already exists; the worker checks the ids against the stored job.
type DispatchBody struct {
	ProjectID       string   `json:"project_id" validate:"required,uuid"`
	InputArtifactID string   `json:"input_artifact_id" validate:"required,uuid"`
	JobID           string   `json:"job_id" validate:"required,uuid"`
	Channels        []string `json:"channels,omitempty" validate:"omitempty,max=10,dive,required"`
}

// Validate validates the DispatchBody using the validator.
func (r *DispatchBody) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// DispatchResponse acknowledges a dispatch. Artifacts is only set by a
// synchronous dispatch that finished.
type DispatchResponse struct {
	Success   bool       `json:"success"`
	JobID     uuid.UUID  `json:"job_id"`
	Status    JobStatus  `json:"status,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// CreateJobRequest asks for a job of one stage, built from the project's latest input.
type CreateJobRequest struct {
	Type string `json:"type" validate:"required"`
}

// Validate validates the CreateJobRequest using the validator.
func (r *CreateJobRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// RunStageRequest is the optional body of a one-call stage run.
type RunStageRequest struct {
	Channels []string `json:"channels,omitempty" validate:"omitempty,max=10,dive,required"`
}

// Validate validates the RunStageRequest using the validator.
func (r *RunStageRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// RunStageResponse is the answer to a one-call stage run: the created job plus
// the dispatch acknowledgement.
type RunStageResponse struct {
	DispatchResponse
	Job *Job `json:"job"`
}

// ProjectSnapshot is everything a client shows for one project.
type ProjectSnapshot struct {
	Project   Project    `json:"project"`
	Artifacts []Artifact `json:"artifacts"`
	Jobs      []Job      `json:"jobs"`
}
