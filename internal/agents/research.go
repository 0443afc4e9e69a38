package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonathan/flow-agents/internal/fetch"
	"github.com/jonathan/flow-agents/internal/llm"
	"github.com/jonathan/flow-agents/internal/schemas"
	"github.com/jonathan/flow-agents/internal/types"
)

// Research turns an onboarding report into the research foundation pack.
// It is the only agent that runs with search grounding.
type Research struct {
	base
	snapshots fetch.Snapshotter
}

// NewResearch builds the research invoker. snapshots may be nil, in which case
// no website snapshot is taken.
func NewResearch(client llm.Client, snapshots fetch.Snapshotter, opts Options) *Research {
	return &Research{
		base: base{
			name:      NameResearch,
			prompt:    "research",
			schema:    schemas.Research,
			grounding: true,
			client:    client,
			opts:      opts.withDefaults(llm.TierAdvanced, 0.4),
		},
		snapshots: snapshots,
	}
}

type researchResponse struct {
	Pack     json.RawMessage `json:"research_foundation_pack"`
	Markdown string          `json:"research_markdown" validate:"required"`
}

func (r *Research) Invoke(ctx context.Context, in *Input) (*Result, error) {
	if err := requirePrimary(r.name, in, types.ArtifactOnboardingReportJSON, types.ArtifactOnboardingReport); err != nil {
		return nil, err
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	text, resp, err := r.generate(ctx, nil, map[string]string{
		"ClientName":       in.Project.ClientName,
		"Language":         languageName(in.Project.Language),
		"OnboardingReport": artifactText(in.Primary),
		"WebsiteSnapshot":  r.websiteSnapshot(ctx, in.Primary),
	})
	if err != nil {
		return nil, err
	}

	var out researchResponse
	if err := r.decode(text, &out); err != nil {
		return nil, err
	}
	if _, err := types.DecodeAs[*types.ResearchPack](types.ArtifactResearchPackJSON, out.Pack); err != nil {
		return nil, llm.Malformed(r.name, "research pack failed validation", err)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, out.Pack); err != nil {
		return nil, llm.Malformed(r.name, "research pack is not valid JSON", err)
	}

	client := in.Project.ClientName
	return r.result(resp,
		jsonOutput(*in.Project, types.ArtifactResearchPackJSON, "Research Foundation Pack: "+client, compact.Bytes(), true),
		markdownOutput(*in.Project, types.ArtifactResearchPackMarkdown, "Research Foundation Pack (Markdown): "+client, out.Markdown, false),
	), nil
}

// websiteSnapshot fetches the site named in a JSON onboarding report. Any
// failure degrades to a note in the prompt; research can proceed without it.
func (r *Research) websiteSnapshot(ctx context.Context, report *types.Artifact) string {
	if r.snapshots == nil || report.Type != types.ArtifactOnboardingReportJSON {
		return "(not available)"
	}
	parsed, err := types.DecodeAs[*types.OnboardingReport](types.ArtifactOnboardingReportJSON, report.ContentJSON)
	if err != nil || parsed.Website == "" {
		return "(no website in onboarding report)"
	}
	snap, err := r.snapshots.Snapshot(ctx, parsed.Website)
	if err != nil {
		return fmt.Sprintf("(could not fetch %s: %v)", parsed.Website, err)
	}
	return snap.String()
}
