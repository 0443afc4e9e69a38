package agents

import (
	"context"

	"github.com/jonathan/flow-agents/internal/llm"
	"github.com/jonathan/flow-agents/internal/schemas"
	"github.com/jonathan/flow-agents/internal/types"
)

// KBBuilder writes the client knowledge base from the research pack.
type KBBuilder struct {
	base
}

// NewKBBuilder builds the knowledge base invoker.
func NewKBBuilder(client llm.Client, opts Options) *KBBuilder {
	return &KBBuilder{base: base{
		name:   NameKBBuilder,
		prompt: "kb-builder",
		schema: schemas.KBBuilder,
		client: client,
		opts:   opts.withDefaults(llm.TierStandard, 0.5),
	}}
}

type kbResponse struct {
	Files []types.KBFile `json:"files" validate:"required,min=1,dive"`
}

// LanguageDirective is the writing instruction for a project language.
func LanguageDirective(lang string) string {
	if lang == types.LanguageEnglish {
		return "Write every file in UK English spelling and idiom."
	}
	return "Write every file in European Portuguese (pt-PT), never Brazilian Portuguese."
}

func (k *KBBuilder) Invoke(ctx context.Context, in *Input) (*Result, error) {
	if err := requirePrimary(k.name, in, types.ArtifactResearchPackJSON); err != nil {
		return nil, err
	}
	ctx, cancel := k.bound(ctx)
	defer cancel()

	text, resp, err := k.generate(ctx,
		map[string]string{"LanguageDirective": LanguageDirective(in.Project.Language)},
		map[string]string{
			"ClientName":   in.Project.ClientName,
			"ResearchPack": artifactText(in.Primary),
		})
	if err != nil {
		return nil, err
	}

	var out kbResponse
	if err := k.decode(text, &out); err != nil {
		return nil, err
	}

	outputs := make([]Output, 0, len(out.Files))
	for i, f := range out.Files {
		outputs = append(outputs, markdownOutput(*in.Project, types.ArtifactKBFile, f.Filename+": "+f.Title, f.Content, i == 0))
	}
	return k.result(resp, outputs...), nil
}
