// Package agents implements the five Agent Invokers. Each invoker makes exactly
// one bounded call to a generation backend and turns the validated response into
// artifacts for the orchestrator to write.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/flow-agents/internal/llm"
	"github.com/jonathan/flow-agents/internal/prompts"
	"github.com/jonathan/flow-agents/internal/schemas"
	"github.com/jonathan/flow-agents/internal/types"
)

// Agent names double as stage names.
const (
	NameResearch       = "research"
	NameKBBuilder      = "kb_builder"
	NamePresentation   = "presentation"
	NameContentPlanner = "content_planner"
	NameQA             = "qa"
)

// DefaultTimeout is the per-call bound; it sits below the default stage ceiling of 300s.
const DefaultTimeout = 270 * time.Second

// Agent is one Agent Invoker.
type Agent interface {
	Name() string
	Invoke(ctx context.Context, in *Input) (*Result, error)
}

// Input is everything an invoker may read. Auxiliary artifacts are keyed by type, newest first.
type Input struct {
	Project   *types.Project
	Primary   *types.Artifact
	Auxiliary map[string][]types.Artifact
	Channels  []string
}

// Latest returns the newest auxiliary artifact of artifactType.
func (in *Input) Latest(artifactType string) (*types.Artifact, bool) {
	found := in.Auxiliary[artifactType]
	if len(found) == 0 {
		return nil, false
	}
	return &found[0], true
}

// File is binary output to upload before its artifact is written.
type File struct {
	Name string
	Data []byte
}

// Output is one artifact to write. When File is set the artifact's FileURL is filled
// in after upload.
type Output struct {
	Artifact types.NewArtifact
	File     *File
	Primary  bool
}

// Result is the outcome of one successful invocation.
type Result struct {
	Outputs []Output
	Usage   llm.Usage
	Model   string
}

// Options tunes an invoker.
type Options struct {
	Timeout     time.Duration
	Tier        llm.ModelTier
	Temperature float32
}

func (o Options) withDefaults(tier llm.ModelTier, temperature float32) Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Tier == "" {
		o.Tier = tier
	}
	if o.Temperature == 0 {
		o.Temperature = temperature
	}
	return o
}

var validate = validator.New()

// base holds what every invoker shares: the backend, the prompt pair and the
// response schema.
type base struct {
	name      string
	prompt    string
	schema    string
	grounding bool
	client    llm.Client
	opts      Options
}

func (b *base) Name() string {
	return b.name
}

// bound applies the agent timeout.
func (b *base) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.opts.Timeout)
}

// generate performs the single backend call and returns JSON text that already
// passed the agent's response schema.
func (b *base) generate(ctx context.Context, system, user map[string]string) (string, *llm.Response, error) {
	systemText, err := prompts.Render(b.prompt+"-system", system)
	if err != nil {
		return "", nil, err
	}
	userText, err := prompts.Render(b.prompt+"-user", user)
	if err != nil {
		return "", nil, err
	}
	schemaText, err := schemas.Get(b.schema)
	if err != nil {
		return "", nil, err
	}
	schema, err := llm.ParseSchema(schemaText)
	if err != nil {
		return "", nil, err
	}

	resp, err := b.client.GenerateJSON(ctx, &llm.Request{
		SystemInstruction: systemText,
		Prompt:            userText,
		Schema:            schema,
		Tier:              b.opts.Tier,
		Temperature:       b.opts.Temperature,
		Grounding:         b.grounding,
	})
	if err != nil {
		return "", nil, llm.Classify(ctx, b.name, err)
	}

	var text string
	if b.grounding {
		text = llm.ExtractJSONObject(resp.Text)
	} else {
		text = llm.CleanJSONBlock(resp.Text)
	}
	if text == "" {
		return "", resp, llm.Malformed(b.name, "empty response", nil)
	}
	if err := schemas.Validate(b.schema, text); err != nil {
		return "", resp, llm.Malformed(b.name, "response does not match schema", err)
	}
	return text, resp, nil
}

// decode unmarshals text into out and runs struct validation.
func (b *base) decode(text string, out any) error {
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return llm.Malformed(b.name, "response is not valid JSON", err)
	}
	if err := validate.Struct(out); err != nil {
		return llm.Malformed(b.name, "response failed validation", err)
	}
	return nil
}

func (b *base) result(resp *llm.Response, outputs ...Output) *Result {
	return &Result{Outputs: outputs, Usage: resp.Usage, Model: resp.Model}
}

// requirePrimary checks the primary input's type against the accepted set.
func requirePrimary(name string, in *Input, accepted ...string) error {
	if in == nil || in.Project == nil {
		return fmt.Errorf("%s agent: project is required", name)
	}
	if in.Primary == nil {
		return fmt.Errorf("%s agent: input artifact is required", name)
	}
	for _, t := range accepted {
		if in.Primary.Type == t {
			return nil
		}
	}
	return fmt.Errorf("%s agent: input artifact %s has type %s, want %s",
		name, in.Primary.ID, in.Primary.Type, strings.Join(accepted, " or "))
}

// artifactText renders an artifact for inclusion in a prompt.
func artifactText(a *types.Artifact) string {
	switch {
	case len(a.ContentJSON) > 0:
		var pretty strings.Builder
		var v any
		if err := json.Unmarshal(a.ContentJSON, &v); err == nil {
			enc := json.NewEncoder(&pretty)
			enc.SetIndent("", "  ")
			if enc.Encode(v) == nil {
				return strings.TrimSpace(pretty.String())
			}
		}
		return string(a.ContentJSON)
	case a.Content != nil:
		return *a.Content
	case a.FileURL != nil:
		return *a.FileURL
	}
	return ""
}

// knowledgeBase joins every kb_file into one document, oldest first.
func knowledgeBase(in *Input) string {
	files := in.Auxiliary[types.ArtifactKBFile]
	if len(files) == 0 {
		return "(no knowledge base files yet)"
	}
	var b strings.Builder
	for i := len(files) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", files[i].Title, artifactText(&files[i]))
	}
	return strings.TrimSpace(b.String())
}

func languageName(lang string) string {
	if lang == types.LanguageEnglish {
		return "English (UK)"
	}
	return "European Portuguese (pt-PT)"
}

func jsonOutput(project types.Project, artifactType, title string, raw []byte, primary bool) Output {
	return Output{
		Artifact: types.NewArtifact{
			ProjectID:   project.ID,
			Type:        artifactType,
			Format:      types.FormatJSON,
			Title:       title,
			ContentJSON: raw,
		},
		Primary: primary,
	}
}

func markdownOutput(project types.Project, artifactType, title, content string, primary bool) Output {
	return Output{
		Artifact: types.NewArtifact{
			ProjectID: project.ID,
			Type:      artifactType,
			Format:    types.FormatMarkdown,
			Title:     title,
			Content:   content,
		},
		Primary: primary,
	}
}
