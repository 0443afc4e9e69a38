package types

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ArtifactFormat describes how an artifact's payload is stored.
type ArtifactFormat string

const (
	FormatJSON     ArtifactFormat = "json"
	FormatMarkdown ArtifactFormat = "markdown"
	FormatFile     ArtifactFormat = "file"
)

// Valid reports whether f is a known format.
func (f ArtifactFormat) Valid() bool {
	switch f {
	case FormatJSON, FormatMarkdown, FormatFile:
		return true
	}
	return false
}

// Artifact type tags.
const (
	ArtifactOnboardingReportJSON = "onboarding_report_json"
	ArtifactOnboardingReport     = "onboarding_report"
	ArtifactResearchPackJSON     = "research_foundation_pack_json"
	ArtifactResearchPackMarkdown = "research_foundation_pack_md"
	ArtifactKBFile               = "kb_file"
	ArtifactPresentationContent  = "presentation_content_json"
	ArtifactPresentation         = "presentation"
	ArtifactContentPlanJSON      = "content_plan_json"
	ArtifactContentPlanMarkdown  = "content_plan_md"
	ArtifactQAResultsJSON        = "qa_results_json"
)

// Artifact is an immutable, typed output (or user-supplied input) owned by a project.
// Exactly one of Content, ContentJSON or FileURL carries the payload, per Format.
type Artifact struct {
	ID          uuid.UUID       `json:"id"`
	ProjectID   uuid.UUID       `json:"project_id"`
	Type        string          `json:"type"`
	Format      ArtifactFormat  `json:"format"`
	Title       string          `json:"title"`
	Content     *string         `json:"content"`
	ContentJSON json.RawMessage `json:"content_json"`
	FileURL     *string         `json:"file_url"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewArtifact is the input for writing an artifact.
type NewArtifact struct {
	ProjectID   uuid.UUID
	Type        string
	Format      ArtifactFormat
	Title       string
	Content     string
	ContentJSON json.RawMessage
	FileURL     string
}

// UploadArtifactRequest is the API shape for user-supplied input artifacts.
type UploadArtifactRequest struct {
	Type        string          `json:"type" validate:"required,oneof=onboarding_report_json onboarding_report"`
	Title       string          `json:"title,omitempty" validate:"max=300"`
	Content     string          `json:"content,omitempty"`
	ContentJSON json.RawMessage `json:"content_json,omitempty"`
}

// Validate validates the UploadArtifactRequest using the validator.
func (r *UploadArtifactRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// NewArtifact converts the upload into a write. The JSON type carries
// content_json; the markdown fallback carries content.
func (r *UploadArtifactRequest) NewArtifact(projectID uuid.UUID) *NewArtifact {
	a := &NewArtifact{ProjectID: projectID, Type: r.Type, Title: r.Title}
	if IsJSONType(r.Type) {
		a.Format = FormatJSON
		a.ContentJSON = r.ContentJSON
	} else {
		a.Format = FormatMarkdown
		a.Content = r.Content
	}
	if a.Title == "" {
		a.Title = "Onboarding Report"
	}
	return a
}
