// Package types provides the records and payload shapes shared by the agent pipeline.
package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Supported project languages.
const (
	LanguagePortuguese = "pt"
	LanguageEnglish    = "en"
)

// Project is one client engagement. It owns every job and artifact below it.
type Project struct {
	ID         uuid.UUID `json:"id"`
	ClientName string    `json:"client_name"`
	Language   string    `json:"language"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateProjectRequest is the input for creating a project.
type CreateProjectRequest struct {
	ClientName string `json:"client_name" validate:"required,min=1,max=200"`
	Language   string `json:"language,omitempty" validate:"omitempty,oneof=pt en"`
}

// Validate validates the CreateProjectRequest using the validator.
func (r *CreateProjectRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Normalize fills defaults.
func (r *CreateProjectRequest) Normalize() {
	if r.Language == "" {
		r.Language = LanguagePortuguese
	}
}

// UpdateProjectRequest edits project metadata. Nil fields are left unchanged.
type UpdateProjectRequest struct {
	ClientName *string `json:"client_name,omitempty" validate:"omitempty,min=1,max=200"`
	Language   *string `json:"language,omitempty" validate:"omitempty,oneof=pt en"`
}

// Validate validates the UpdateProjectRequest using the validator.
func (r *UpdateProjectRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}
