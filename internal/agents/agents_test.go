package agents

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/flow-agents/internal/agents/agenttest"
	"github.com/jonathan/flow-agents/internal/fetch"
	"github.com/jonathan/flow-agents/internal/llm"
	"github.com/jonathan/flow-agents/internal/types"
)

func testProject(lang string) *types.Project {
	return &types.Project{ID: uuid.New(), ClientName: "Acme", Language: lang}
}

func jsonArtifact(p *types.Project, artifactType, raw string) *types.Artifact {
	return &types.Artifact{ID: uuid.New(), ProjectID: p.ID, Type: artifactType, Format: types.FormatJSON, ContentJSON: json.RawMessage(raw)}
}

func mdArtifact(p *types.Project, artifactType, title, content string) types.Artifact {
	return types.Artifact{ID: uuid.New(), ProjectID: p.ID, Type: artifactType, Format: types.FormatMarkdown, Title: title, Content: &content}
}

func assertKind(t *testing.T, err error, kind llm.ErrorKind) {
	t.Helper()
	var ge *llm.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, kind, ge.Kind)
}

type stubSnapshots struct {
	urls []string
	err  error
}

func (s *stubSnapshots) Snapshot(_ context.Context, url string) (*fetch.Snapshot, error) {
	s.urls = append(s.urls, url)
	if s.err != nil {
		return nil, s.err
	}
	return &fetch.Snapshot{URL: url, Title: "Acme Roasters", Text: "Roasted every morning"}, nil
}

func TestResearch_Invoke(t *testing.T) {
	p := testProject("pt")
	client := agenttest.NewClient("```json\n" + agenttest.ResearchResponse() + "\n```")
	snaps := &stubSnapshots{}
	agent := NewResearch(client, snaps, Options{})

	report := jsonArtifact(p, types.ArtifactOnboardingReportJSON, `{"client_name":"Acme","website":"https://acme.example","goals":"awareness"}`)
	res, err := agent.Invoke(context.Background(), &Input{Project: p, Primary: report})
	require.NoError(t, err)

	require.Len(t, res.Outputs, 2)
	assert.True(t, res.Outputs[0].Primary)
	assert.Equal(t, types.ArtifactResearchPackJSON, res.Outputs[0].Artifact.Type)
	assert.Equal(t, p.ID, res.Outputs[0].Artifact.ProjectID)
	_, err = types.DecodeAs[*types.ResearchPack](types.ArtifactResearchPackJSON, res.Outputs[0].Artifact.ContentJSON)
	assert.NoError(t, err)
	assert.Equal(t, types.ArtifactResearchPackMarkdown, res.Outputs[1].Artifact.Type)
	assert.Contains(t, res.Outputs[1].Artifact.Content, "Acme roasts daily")

	assert.Equal(t, 1200, res.Usage.TokensIn)
	assert.Equal(t, "gemini-2.5-flash", res.Model)
	assert.Equal(t, []string{"https://acme.example"}, snaps.urls)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Grounding)
	assert.Equal(t, llm.TierAdvanced, reqs[0].Tier)
	assert.Contains(t, reqs[0].Prompt, "European Portuguese")
	assert.Contains(t, reqs[0].Prompt, "Roasted every morning")
	assert.Contains(t, reqs[0].Prompt, `"goals": "awareness"`)
	require.NotNil(t, reqs[0].Schema)
	assert.Equal(t, "object", reqs[0].Schema.Type)
}

func TestResearch_GroundedProseAroundJSON(t *testing.T) {
	p := testProject("en")
	client := agenttest.NewClient("Here is the pack you asked for:\n" + agenttest.ResearchResponse() + "\nLet me know.")
	report := mdArtifact(p, types.ArtifactOnboardingReport, "Intake", "# Acme\nCoffee roaster")

	res, err := NewResearch(client, nil, Options{}).Invoke(context.Background(), &Input{Project: p, Primary: &report})
	require.NoError(t, err)
	assert.Len(t, res.Outputs, 2)
	assert.Contains(t, client.Requests()[0].Prompt, "(not available)")
}

func TestResearch_SnapshotFailureIsNotFatal(t *testing.T) {
	p := testProject("pt")
	client := agenttest.NewClient(agenttest.ResearchResponse())
	report := jsonArtifact(p, types.ArtifactOnboardingReportJSON, `{"website":"https://down.example"}`)

	_, err := NewResearch(client, &stubSnapshots{err: errors.New("connection refused")}, Options{}).
		Invoke(context.Background(), &Input{Project: p, Primary: report})
	require.NoError(t, err)
	assert.Contains(t, client.Requests()[0].Prompt, "could not fetch https://down.example")
}

func TestResearch_WrongInputType(t *testing.T) {
	p := testProject("pt")
	client := agenttest.NewClient(agenttest.ResearchResponse())
	_, err := NewResearch(client, nil, Options{}).
		Invoke(context.Background(), &Input{Project: p, Primary: jsonArtifact(p, types.ArtifactContentPlanJSON, agenttest.ContentPlan(30))})
	require.Error(t, err)
	assert.Empty(t, client.Requests())
}

func TestGenerate_FailureKinds(t *testing.T) {
	p := testProject("pt")
	research := jsonArtifact(p, types.ArtifactResearchPackJSON, agenttest.ResearchPack)

	tests := []struct {
		name   string
		client *agenttest.Client
		kind   llm.ErrorKind
	}{
		{"upstream", agenttest.Failing(errors.New("quota exceeded")), llm.KindUpstream},
		{"not json", agenttest.NewClient("I cannot help with that"), llm.KindMalformed},
		{"schema mismatch", agenttest.NewClient(`{"files": []}`), llm.KindMalformed},
		{"empty", agenttest.NewClient("   "), llm.KindMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewKBBuilder(tt.client, Options{}).Invoke(context.Background(), &Input{Project: p, Primary: research})
			assertKind(t, err, tt.kind)
			assert.Len(t, tt.client.Requests(), 1, "never retried")
		})
	}
}

func TestGenerate_Timeout(t *testing.T) {
	p := testProject("pt")
	client := agenttest.NewClient(agenttest.KBResponse(8))
	client.Block = true

	start := time.Now()
	_, err := NewKBBuilder(client, Options{Timeout: 20 * time.Millisecond}).
		Invoke(context.Background(), &Input{Project: p, Primary: jsonArtifact(p, types.ArtifactResearchPackJSON, agenttest.ResearchPack)})
	assertKind(t, err, llm.KindTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)

	var ge *llm.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.True(t, ge.Transient())
}

func TestKBBuilder_Invoke(t *testing.T) {
	for _, tt := range []struct {
		lang      string
		directive string
	}{
		{"en", "UK English"},
		{"pt", "European Portuguese"},
	} {
		t.Run(tt.lang, func(t *testing.T) {
			p := testProject(tt.lang)
			client := agenttest.NewClient(agenttest.KBResponse(8))

			res, err := NewKBBuilder(client, Options{}).
				Invoke(context.Background(), &Input{Project: p, Primary: jsonArtifact(p, types.ArtifactResearchPackJSON, agenttest.ResearchPack)})
			require.NoError(t, err)
			require.Len(t, res.Outputs, 8)
			for i, out := range res.Outputs {
				assert.Equal(t, types.ArtifactKBFile, out.Artifact.Type)
				assert.Equal(t, types.FormatMarkdown, out.Artifact.Format)
				assert.Equal(t, i == 0, out.Primary)
			}
			assert.Equal(t, "01-section.md: Section 1", res.Outputs[0].Artifact.Title)
			assert.Contains(t, client.Requests()[0].SystemInstruction, tt.directive)
		})
	}
}

func TestPresentation_Invoke(t *testing.T) {
	p := testProject("en")
	client := agenttest.NewClient(agenttest.PresentationResponse())
	deck := MarkdownDeck{Now: func() time.Time { return time.UnixMilli(1700000000000) }}

	in := &Input{
		Project: p,
		Primary: jsonArtifact(p, types.ArtifactResearchPackJSON, agenttest.ResearchPack),
		Auxiliary: map[string][]types.Artifact{
			types.ArtifactKBFile: {
				mdArtifact(p, types.ArtifactKBFile, "02 Products", "Espresso blends"),
				mdArtifact(p, types.ArtifactKBFile, "01 Overview", "Porto roastery"),
			},
		},
	}
	res, err := NewPresentation(client, deck, Options{}).Invoke(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, res.Outputs, 2)

	file := res.Outputs[0]
	assert.True(t, file.Primary)
	assert.Equal(t, types.FormatFile, file.Artifact.Format)
	require.NotNil(t, file.File)
	assert.Regexp(t, `^presentation-20231114-[0-9a-f-]{36}\.md$`, file.File.Name)
	assert.Contains(t, string(file.File.Data), "## 1. Positioning")
	assert.Contains(t, string(file.File.Data), "**Visual:** Roaster photo")
	assert.Equal(t, types.ArtifactPresentationContent, res.Outputs[1].Artifact.Type)

	prompt := client.Requests()[0].Prompt
	assert.Less(t, strings.Index(prompt, "01 Overview"), strings.Index(prompt, "02 Products"), "kb files oldest first")
}

func TestMarkdownDeck_NamesAreUnique(t *testing.T) {
	deck := MarkdownDeck{Now: func() time.Time { return time.UnixMilli(1700000000000) }}
	content := &types.PresentationContent{DeckTitle: "Strategy", ClientName: "Acme"}

	first, err := deck.Render(context.Background(), content)
	require.NoError(t, err)
	second, err := deck.Render(context.Background(), content)
	require.NoError(t, err)

	assert.NotEqual(t, first.Name, second.Name, "same millisecond, different files")
	assert.Equal(t, first.Data, second.Data)
}

func TestContentPlanner_Invoke(t *testing.T) {
	p := testProject("pt")
	client := agenttest.NewClient(agenttest.ContentPlan(30))
	in := &Input{Project: p, Primary: jsonArtifact(p, types.ArtifactResearchPackJSON, agenttest.ResearchPack)}

	res, err := NewContentPlanner(client, Options{}).Invoke(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, res.Outputs, 2)

	plan, err := types.DecodeAs[*types.ContentPlan](types.ArtifactContentPlanJSON, res.Outputs[0].Artifact.ContentJSON)
	require.NoError(t, err)
	assert.Len(t, plan.Posts, types.PostsPerPlan)
	assert.Contains(t, res.Outputs[1].Artifact.Content, "## Post 30: day 30, linkedin (carousel)")
	assert.Contains(t, client.Requests()[0].Prompt, "Channels: instagram, linkedin")
	assert.Contains(t, client.Requests()[0].Prompt, "(no knowledge base files yet)")
}

func TestContentPlanner_CustomChannels(t *testing.T) {
	p := testProject("pt")
	client := agenttest.NewClient(agenttest.ContentPlan(30))
	in := &Input{Project: p, Primary: jsonArtifact(p, types.ArtifactResearchPackJSON, agenttest.ResearchPack), Channels: []string{"tiktok"}}

	_, err := NewContentPlanner(client, Options{}).Invoke(context.Background(), in)
	require.NoError(t, err)
	assert.Contains(t, client.Requests()[0].Prompt, "Channels: tiktok")
}

func TestQA_Invoke(t *testing.T) {
	p := testProject("pt")
	client := agenttest.NewClient(agenttest.QAResponse(30))
	in := &Input{
		Project: p,
		Primary: jsonArtifact(p, types.ArtifactContentPlanJSON, agenttest.ContentPlan(30)),
		Auxiliary: map[string][]types.Artifact{
			types.ArtifactResearchPackJSON: {*jsonArtifact(p, types.ArtifactResearchPackJSON, agenttest.ResearchPack)},
		},
	}

	res, err := NewQA(client, Options{}).Invoke(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, res.Outputs, 1)

	qa, err := types.DecodeAs[*types.QAResults](types.ArtifactQAResultsJSON, res.Outputs[0].Artifact.ContentJSON)
	require.NoError(t, err)
	assert.Equal(t, types.QASummary{Total: 30, Approved: 10, MinorEdits: 10, NeedsRevision: 10}, qa.Summary)

	req := client.Requests()[0]
	assert.Equal(t, llm.TierLite, req.Tier)
	assert.False(t, req.Grounding)
	assert.Contains(t, req.Prompt, "Best coffee in the world")
	assert.NotContains(t, req.Prompt, "Generic coffee", "only campaign foundations reach QA")
}

func TestQA_CoverageMismatch(t *testing.T) {
	p := testProject("pt")
	in := &Input{
		Project: p,
		Primary: jsonArtifact(p, types.ArtifactContentPlanJSON, agenttest.ContentPlan(30)),
		Auxiliary: map[string][]types.Artifact{
			types.ArtifactResearchPackJSON: {*jsonArtifact(p, types.ArtifactResearchPackJSON, agenttest.ResearchPack)},
		},
	}

	_, err := NewQA(agenttest.NewClient(agenttest.QAResponse(29)), Options{}).Invoke(context.Background(), in)
	assertKind(t, err, llm.KindMalformed)
	assert.ErrorContains(t, err, "29 results for 30 posts")
}

func TestQA_RequiresResearchPack(t *testing.T) {
	p := testProject("pt")
	client := agenttest.NewClient(agenttest.QAResponse(30))
	_, err := NewQA(client, Options{}).Invoke(context.Background(), &Input{
		Project: p,
		Primary: jsonArtifact(p, types.ArtifactContentPlanJSON, agenttest.ContentPlan(30)),
	})
	require.Error(t, err)
	assert.Empty(t, client.Requests())
}

func TestCheckCoverage(t *testing.T) {
	results := func(idx ...int) []types.QAResult {
		out := make([]types.QAResult, len(idx))
		for i, n := range idx {
			out[i] = types.QAResult{PostIndex: n, OverallStatus: types.QAStatusApproved}
		}
		return out
	}
	assert.NoError(t, checkCoverage(results(2, 0, 1), 3))
	assert.Error(t, checkCoverage(results(0, 1), 3))
	assert.Error(t, checkCoverage(results(0, 1, 3), 3))
	assert.Error(t, checkCoverage(results(0, 1, 1), 3))
}
