package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/flow-agents/internal/agents"
	"github.com/jonathan/flow-agents/internal/types"
)

// ErrUnknownStage is returned for a stage name missing from the registry.
var ErrUnknownStage = errors.New("unknown stage")

// AuxiliaryInput is a context artifact a stage reads besides its primary input.
type AuxiliaryInput struct {
	Type string
	// All loads every artifact of Type instead of only the latest.
	All bool
	// Required makes the stage's precondition fail when none exists.
	Required bool
}

// StageDefinition describes one pipeline stage.
type StageDefinition struct {
	Name string
	// InputTypes is the primary input in preference order.
	InputTypes       []string
	Auxiliary        []AuxiliaryInput
	RequiresApproval bool
}

// StageRegistry holds every stage definition.
var StageRegistry = map[string]StageDefinition{
	agents.NameResearch: {
		Name:       agents.NameResearch,
		InputTypes: []string{types.ArtifactOnboardingReportJSON, types.ArtifactOnboardingReport},
	},
	agents.NameKBBuilder: {
		Name:             agents.NameKBBuilder,
		InputTypes:       []string{types.ArtifactResearchPackJSON},
		RequiresApproval: true,
	},
	agents.NamePresentation: {
		Name:       agents.NamePresentation,
		InputTypes: []string{types.ArtifactResearchPackJSON},
		Auxiliary:  []AuxiliaryInput{{Type: types.ArtifactKBFile, All: true}},
	},
	agents.NameContentPlanner: {
		Name:       agents.NameContentPlanner,
		InputTypes: []string{types.ArtifactResearchPackJSON},
		Auxiliary:  []AuxiliaryInput{{Type: types.ArtifactKBFile, All: true}},
	},
	agents.NameQA: {
		Name:       agents.NameQA,
		InputTypes: []string{types.ArtifactContentPlanJSON},
		Auxiliary:  []AuxiliaryInput{{Type: types.ArtifactResearchPackJSON, Required: true}},
	},
}

// stageOrder is the order a project normally moves through.
var stageOrder = []string{
	agents.NameResearch,
	agents.NameKBBuilder,
	agents.NamePresentation,
	agents.NameContentPlanner,
	agents.NameQA,
}

// Stages returns the stage names in pipeline order.
func Stages() []string {
	return append([]string(nil), stageOrder...)
}

// Lookup returns the definition of stage.
func Lookup(stage string) (StageDefinition, error) {
	def, ok := StageRegistry[stage]
	if !ok {
		return StageDefinition{}, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	return def, nil
}

// PreconditionError reports artifacts a stage needs that the project does not have yet.
// No job exists when it is returned.
type PreconditionError struct {
	Stage   string
	Missing []string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot run %s: missing %s", e.Stage, strings.Join(e.Missing, ", "))
}
