package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/flow-agents/internal/llm"
	"github.com/jonathan/flow-agents/internal/schemas"
	"github.com/jonathan/flow-agents/internal/types"
)

// DefaultChannels are planned when a dispatch names none.
var DefaultChannels = []string{"instagram", "linkedin"}

// KnownChannels are the channels a dispatch may request.
var KnownChannels = []string{"instagram", "linkedin", "facebook", "tiktok", "x", "youtube"}

// ContentPlanner writes the 30-day social calendar.
type ContentPlanner struct {
	base
}

// NewContentPlanner builds the content planner invoker.
func NewContentPlanner(client llm.Client, opts Options) *ContentPlanner {
	return &ContentPlanner{base: base{
		name:   NameContentPlanner,
		prompt: "content-planner",
		schema: schemas.ContentPlanner,
		client: client,
		opts:   opts.withDefaults(llm.TierStandard, 0.7),
	}}
}

func (c *ContentPlanner) Invoke(ctx context.Context, in *Input) (*Result, error) {
	if err := requirePrimary(c.name, in, types.ArtifactResearchPackJSON); err != nil {
		return nil, err
	}
	channels := in.Channels
	if len(channels) == 0 {
		channels = DefaultChannels
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()

	text, resp, err := c.generate(ctx, nil, map[string]string{
		"ClientName":    in.Project.ClientName,
		"Language":      languageName(in.Project.Language),
		"Channels":      strings.Join(channels, ", "),
		"ResearchPack":  artifactText(in.Primary),
		"KnowledgeBase": knowledgeBase(in),
	})
	if err != nil {
		return nil, err
	}

	plan, err := types.DecodeAs[*types.ContentPlan](types.ArtifactContentPlanJSON, []byte(text))
	if err != nil {
		return nil, llm.Malformed(c.name, "plan failed validation", err)
	}
	if len(plan.Posts) != types.PostsPerPlan {
		return nil, llm.Malformed(c.name, fmt.Sprintf("plan has %d posts, want %d", len(plan.Posts), types.PostsPerPlan), nil)
	}
	raw, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal content plan: %w", err)
	}

	client := in.Project.ClientName
	return c.result(resp,
		jsonOutput(*in.Project, types.ArtifactContentPlanJSON, "Content Calendar: "+client, raw, true),
		markdownOutput(*in.Project, types.ArtifactContentPlanMarkdown, "Content Calendar (Markdown): "+client, PlanMarkdown(client, plan), false),
	), nil
}

// PlanMarkdown renders a content plan as a readable calendar.
func PlanMarkdown(client string, plan *types.ContentPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Content Calendar: %s\n\n%s\n", client, plan.StrategyOverview)
	for i, p := range plan.Posts {
		fmt.Fprintf(&b, "\n## Post %d: day %d, %s", i+1, p.Day, p.Channel)
		if p.Format != "" {
			fmt.Fprintf(&b, " (%s)", p.Format)
		}
		b.WriteString("\n\n")
		if p.Pillar != "" {
			fmt.Fprintf(&b, "**Pillar:** %s\n\n", p.Pillar)
		}
		fmt.Fprintf(&b, "**Hook:** %s\n\n%s\n", p.Hook, p.Caption)
		if p.CTA != "" {
			fmt.Fprintf(&b, "\n**CTA:** %s\n", p.CTA)
		}
		if len(p.Hashtags) > 0 {
			fmt.Fprintf(&b, "\n%s\n", strings.Join(p.Hashtags, " "))
		}
		if p.VisualBrief != "" {
			fmt.Fprintf(&b, "\n_Visual:_ %s\n", p.VisualBrief)
		}
	}
	return b.String()
}
