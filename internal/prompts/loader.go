// Package prompts holds the agents' instruction templates. Each agent has a
// "<agent>-system" and a "<agent>-user" template in agents.json, embedded at
// compile time.
package prompts

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
)

//go:embed agents.json
var agentsJSON []byte

var load = sync.OnceValues(func() (map[string]string, error) {
	var templates map[string]string
	if err := json.Unmarshal(agentsJSON, &templates); err != nil {
		return nil, fmt.Errorf("failed to parse agent prompts: %w", err)
	}
	return templates, nil
})

// Get returns the raw template for key.
func Get(key string) (string, error) {
	templates, err := load()
	if err != nil {
		return "", err
	}
	template, ok := templates[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found", key)
	}
	return template, nil
}

// Keys lists every template key, sorted.
func Keys() ([]string, error) {
	templates, err := load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(templates))
	for key := range templates {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys, nil
}

// Render fills the {{.Name}} placeholders of template key from data. Every
// placeholder must have a value; values are inserted verbatim and never
// expanded again.
func Render(key string, data map[string]string) (string, error) {
	template, err := Get(key)
	if err != nil {
		return "", err
	}
	names := Placeholders(template)
	pairs := make([]string, 0, 2*len(names))
	for _, name := range names {
		value, ok := data[name]
		if !ok {
			return "", fmt.Errorf("prompt %q has unfilled placeholder {{.%s}}", key, name)
		}
		pairs = append(pairs, "{{."+name+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template), nil
}

// Placeholders lists the {{.Name}} names used by template, in order of first use.
func Placeholders(template string) []string {
	var names []string
	rest := template
	for {
		_, after, ok := strings.Cut(rest, "{{.")
		if !ok {
			return names
		}
		name, tail, ok := strings.Cut(after, "}}")
		if !ok {
			return names
		}
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
		rest = tail
	}
}
