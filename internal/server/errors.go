package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/flow-agents/internal/artifacts"
	"github.com/jonathan/flow-agents/internal/db"
	"github.com/jonathan/flow-agents/internal/ledger"
	"github.com/jonathan/flow-agents/internal/orchestrator"
	"github.com/jonathan/flow-agents/internal/types"
)

// ValidationError indicates a malformed request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validationErr   *ValidationError
		payloadErr      *types.PayloadError
		artifactErr     *artifacts.ValidationError
		inputErr        *ledger.InputError
		fieldErrs       validator.ValidationErrors
		preconditionErr *orchestrator.PreconditionError
		transitionErr   *types.TransitionError
		rejectedErr     *orchestrator.RejectedError
	)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &validationErr),
		errors.As(err, &payloadErr),
		errors.As(err, &artifactErr),
		errors.As(err, &inputErr),
		errors.As(err, &fieldErrs),
		errors.Is(err, orchestrator.ErrUnknownStage):
		return http.StatusBadRequest
	case errors.As(err, &preconditionErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &transitionErr),
		errors.As(err, &rejectedErr),
		errors.Is(err, ledger.ErrConflict),
		errors.Is(err, db.ErrAlreadyDecided):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
