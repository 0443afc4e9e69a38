package types

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

// Payload is the decoded content_json of a JSON artifact.
type Payload interface {
	ArtifactType() string
}

func (*OnboardingReport) ArtifactType() string    { return ArtifactOnboardingReportJSON }
func (*ResearchPack) ArtifactType() string        { return ArtifactResearchPackJSON }
func (*PresentationContent) ArtifactType() string { return ArtifactPresentationContent }
func (*ContentPlan) ArtifactType() string         { return ArtifactContentPlanJSON }
func (*QAResults) ArtifactType() string           { return ArtifactQAResultsJSON }

var payloadRegistry = map[string]func() Payload{
	ArtifactOnboardingReportJSON: func() Payload { return &OnboardingReport{} },
	ArtifactResearchPackJSON:     func() Payload { return &ResearchPack{} },
	ArtifactPresentationContent:  func() Payload { return &PresentationContent{} },
	ArtifactContentPlanJSON:      func() Payload { return &ContentPlan{} },
	ArtifactQAResultsJSON:        func() Payload { return &QAResults{} },
}

var payloadValidator = validator.New()

// PayloadError reports a content_json that does not match its artifact type.
type PayloadError struct {
	Type    string
	Message string
	Cause   error
}

func (e *PayloadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid %s payload: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid %s payload: %s", e.Type, e.Message)
}

func (e *PayloadError) Unwrap() error {
	return e.Cause
}

// IsJSONType reports whether artifactType has a registered payload shape.
func IsJSONType(artifactType string) bool {
	_, ok := payloadRegistry[artifactType]
	return ok
}

// JSONTypes lists the registered payload types in sorted order.
func JSONTypes() []string {
	out := make([]string, 0, len(payloadRegistry))
	for t := range payloadRegistry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// DecodePayload decodes and validates raw as the payload registered for artifactType.
func DecodePayload(artifactType string, raw json.RawMessage) (Payload, error) {
	factory, ok := payloadRegistry[artifactType]
	if !ok {
		return nil, &PayloadError{Type: artifactType, Message: "no payload shape registered"}
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, &PayloadError{Type: artifactType, Message: "content_json is empty"}
	}
	p := factory()
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, &PayloadError{Type: artifactType, Message: "malformed JSON", Cause: err}
	}
	if err := payloadValidator.Struct(p); err != nil {
		return nil, &PayloadError{Type: artifactType, Message: "validation failed", Cause: err}
	}
	return p, nil
}

// DecodeAs decodes raw into the concrete payload type T.
func DecodeAs[T Payload](artifactType string, raw json.RawMessage) (T, error) {
	var zero T
	p, err := DecodePayload(artifactType, raw)
	if err != nil {
		return zero, err
	}
	out, ok := p.(T)
	if !ok {
		return zero, &PayloadError{Type: artifactType, Message: fmt.Sprintf("payload is %T", p)}
	}
	return out, nil
}
