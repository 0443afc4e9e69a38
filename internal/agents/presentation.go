package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/flow-agents/internal/llm"
	"github.com/jonathan/flow-agents/internal/schemas"
	"github.com/jonathan/flow-agents/internal/types"
)

// DeckRenderer turns slide copy into a deck file.
type DeckRenderer interface {
	Render(ctx context.Context, content *types.PresentationContent) (*File, error)
}

// MarkdownDeck renders a deck as a single markdown document, one section per slide.
// File names carry the render date and a random id, so two renders never share a key.
type MarkdownDeck struct {
	Now func() time.Time
}

func (d MarkdownDeck) Render(_ context.Context, c *types.PresentationContent) (*File, error) {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n_%s_\n", c.DeckTitle, c.ClientName)
	for i, s := range c.Slides {
		fmt.Fprintf(&b, "\n---\n\n## %d. %s\n\n", i+1, s.Title)
		for _, p := range s.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", p)
		}
		if s.VisualSuggestion != "" {
			fmt.Fprintf(&b, "\n**Visual:** %s\n", s.VisualSuggestion)
		}
		if s.SpeakerNotes != "" {
			fmt.Fprintf(&b, "\n> %s\n", strings.ReplaceAll(s.SpeakerNotes, "\n", "\n> "))
		}
	}
	return &File{
		Name: fmt.Sprintf("presentation-%s-%s.md", now().UTC().Format("20060102"), uuid.New()),
		Data: []byte(b.String()),
	}, nil
}

// Presentation writes the client strategy deck.
type Presentation struct {
	base
	renderer DeckRenderer
}

// NewPresentation builds the presentation invoker. A nil renderer means MarkdownDeck.
func NewPresentation(client llm.Client, renderer DeckRenderer, opts Options) *Presentation {
	if renderer == nil {
		renderer = MarkdownDeck{}
	}
	return &Presentation{
		base: base{
			name:   NamePresentation,
			prompt: "presentation",
			schema: schemas.Presentation,
			client: client,
			opts:   opts.withDefaults(llm.TierStandard, 0.6),
		},
		renderer: renderer,
	}
}

func (p *Presentation) Invoke(ctx context.Context, in *Input) (*Result, error) {
	if err := requirePrimary(p.name, in, types.ArtifactResearchPackJSON); err != nil {
		return nil, err
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()

	text, resp, err := p.generate(ctx, nil, map[string]string{
		"ClientName":    in.Project.ClientName,
		"Language":      languageName(in.Project.Language),
		"ResearchPack":  artifactText(in.Primary),
		"KnowledgeBase": knowledgeBase(in),
	})
	if err != nil {
		return nil, err
	}

	content, err := types.DecodeAs[*types.PresentationContent](types.ArtifactPresentationContent, []byte(text))
	if err != nil {
		return nil, llm.Malformed(p.name, "slides failed validation", err)
	}
	file, err := p.renderer.Render(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("failed to render deck: %w", err)
	}

	deck := Output{
		Artifact: types.NewArtifact{
			ProjectID: in.Project.ID,
			Type:      types.ArtifactPresentation,
			Format:    types.FormatFile,
			Title:     content.DeckTitle,
		},
		File:    file,
		Primary: true,
	}
	return p.result(resp,
		deck,
		jsonOutput(*in.Project, types.ArtifactPresentationContent, "Presentation Content: "+in.Project.ClientName, []byte(text), false),
	), nil
}
