package llm

import (
	"encoding/json"
	"fmt"
)

// Schema is a provider-neutral subset of JSON Schema used for controlled generation.
// Keywords outside this subset are ignored when parsing.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	MinItems    *int64             `json:"minItems,omitempty"`
	MaxItems    *int64             `json:"maxItems,omitempty"`
}

// ParseSchema parses JSON Schema text into a Schema.
func ParseSchema(text string) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return nil, fmt.Errorf("failed to parse response schema: %w", err)
	}
	if err := s.check(""); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Schema) check(path string) error {
	if path == "" {
		path = "(root)"
	}
	switch s.Type {
	case "object":
		for name, prop := range s.Properties {
			if prop == nil {
				return fmt.Errorf("schema property %s.%s is null", path, name)
			}
			if err := prop.check(path + "." + name); err != nil {
				return err
			}
		}
	case "array":
		if s.Items == nil {
			return fmt.Errorf("schema array %s has no items", path)
		}
		return s.Items.check(path + "[]")
	case "string", "integer", "number", "boolean":
	default:
		return fmt.Errorf("schema %s has unsupported type %q", path, s.Type)
	}
	return nil
}
