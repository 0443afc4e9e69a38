package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jonathan/flow-agents/internal/llm"
	"github.com/jonathan/flow-agents/internal/schemas"
	"github.com/jonathan/flow-agents/internal/types"
)

// QA reviews every post of a content plan against the brand's claims rules.
type QA struct {
	base
}

// NewQA builds the QA invoker.
func NewQA(client llm.Client, opts Options) *QA {
	return &QA{base: base{
		name:   NameQA,
		prompt: "qa",
		schema: schemas.QA,
		client: client,
		opts:   opts.withDefaults(llm.TierLite, 0.2),
	}}
}

// brandContext is the slice of the research pack QA checks posts against.
type brandContext struct {
	PositioningStatement string                  `json:"positioning_statement"`
	MessagingPillars     []types.MessagingPillar `json:"messaging_pillars"`
	ClaimsRules          types.ClaimsRules       `json:"claims_rules"`
	ContentThemes        []string                `json:"content_themes"`
}

func (q *QA) Invoke(ctx context.Context, in *Input) (*Result, error) {
	if err := requirePrimary(q.name, in, types.ArtifactContentPlanJSON); err != nil {
		return nil, err
	}
	plan, err := types.DecodeAs[*types.ContentPlan](types.ArtifactContentPlanJSON, in.Primary.ContentJSON)
	if err != nil {
		return nil, fmt.Errorf("qa agent: content plan: %w", err)
	}
	brand, err := q.brand(in)
	if err != nil {
		return nil, err
	}
	planJSON, err := json.MarshalIndent(plan.Posts, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal posts: %w", err)
	}

	ctx, cancel := q.bound(ctx)
	defer cancel()

	text, resp, err := q.generate(ctx, nil, map[string]string{
		"ClientName":   in.Project.ClientName,
		"Language":     languageName(in.Project.Language),
		"BrandContext": brand,
		"PostCount":    strconv.Itoa(len(plan.Posts)),
		"ContentPlan":  string(planJSON),
	})
	if err != nil {
		return nil, err
	}

	var out types.QAResults
	if err := q.decode(text, &out); err != nil {
		return nil, err
	}
	if err := checkCoverage(out.Results, len(plan.Posts)); err != nil {
		return nil, llm.Malformed(q.name, err.Error(), nil)
	}
	out.Summary = types.Summarize(out.Results)

	raw, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal qa results: %w", err)
	}
	return q.result(resp,
		jsonOutput(*in.Project, types.ArtifactQAResultsJSON, "QA Results: "+in.Project.ClientName, raw, true),
	), nil
}

func (q *QA) brand(in *Input) (string, error) {
	research, ok := in.Latest(types.ArtifactResearchPackJSON)
	if !ok {
		return "", fmt.Errorf("qa agent: no %s for project %s", types.ArtifactResearchPackJSON, in.Project.ID)
	}
	pack, err := types.DecodeAs[*types.ResearchPack](types.ArtifactResearchPackJSON, research.ContentJSON)
	if err != nil {
		return "", fmt.Errorf("qa agent: research pack: %w", err)
	}
	cf := pack.CampaignFoundations
	raw, err := json.MarshalIndent(brandContext{
		PositioningStatement: cf.PositioningStatement,
		MessagingPillars:     cf.MessagingPillars,
		ClaimsRules:          cf.ClaimsRules,
		ContentThemes:        cf.ContentThemes,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal brand context: %w", err)
	}
	return string(raw), nil
}

// checkCoverage requires exactly one result per post, each index in range and unique.
func checkCoverage(results []types.QAResult, posts int) error {
	if len(results) != posts {
		return fmt.Errorf("got %d results for %d posts", len(results), posts)
	}
	seen := make(map[int]bool, posts)
	for _, r := range results {
		if r.PostIndex < 0 || r.PostIndex >= posts {
			return fmt.Errorf("post_index %d out of range", r.PostIndex)
		}
		if seen[r.PostIndex] {
			return fmt.Errorf("post_index %d reviewed twice", r.PostIndex)
		}
		seen[r.PostIndex] = true
	}
	return nil
}
