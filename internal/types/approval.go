package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Approval statuses.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Approval is a human sign-off record for one artifact.
type Approval struct {
	ID         uuid.UUID  `json:"id"`
	ProjectID  uuid.UUID  `json:"project_id"`
	ArtifactID uuid.UUID  `json:"artifact_id"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
}

// DecideApprovalRequest approves or rejects a pending approval.
type DecideApprovalRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
}

// Validate validates the DecideApprovalRequest using the validator.
func (r *DecideApprovalRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}
