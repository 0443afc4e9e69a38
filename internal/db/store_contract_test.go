package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/flow-agents/internal/types"
)

// runStoreContract exercises behavior every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("projects", func(t *testing.T) { testProjects(t, newStore(t)) })
	t.Run("artifacts newest first", func(t *testing.T) { testArtifactOrdering(t, newStore(t)) })
	t.Run("artifact payload columns", func(t *testing.T) { testArtifactPayloads(t, newStore(t)) })
	t.Run("job transitions", func(t *testing.T) { testJobTransitions(t, newStore(t)) })
	t.Run("approvals", func(t *testing.T) { testApprovals(t, newStore(t)) })
	t.Run("run logs", func(t *testing.T) { testRunLogs(t, newStore(t)) })
	t.Run("not found", func(t *testing.T) { testNotFound(t, newStore(t)) })
}

func seedProject(t *testing.T, s Store) *types.Project {
	t.Helper()
	p, err := s.CreateProject(context.Background(), &types.CreateProjectRequest{ClientName: "Padaria Lusa", Language: "pt"})
	require.NoError(t, err)
	return p
}

func seedArtifact(t *testing.T, s Store, projectID uuid.UUID, artifactType string) *types.Artifact {
	t.Helper()
	a, err := s.InsertArtifact(context.Background(), &types.NewArtifact{
		ProjectID:   projectID,
		Type:        artifactType,
		Format:      types.FormatJSON,
		Title:       artifactType,
		ContentJSON: json.RawMessage(`{"k":"v"}`),
	})
	require.NoError(t, err)
	return a
}

func testProjects(t *testing.T, s Store) {
	ctx := context.Background()
	p := seedProject(t, s)
	assert.Equal(t, "Padaria Lusa", p.ClientName)
	assert.Equal(t, "pt", p.Language)
	assert.False(t, p.CreatedAt.IsZero())

	name := "Padaria Lusa Lda"
	updated, err := s.UpdateProject(ctx, p.ID, &types.UpdateProjectRequest{ClientName: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.ClientName)
	assert.Equal(t, "pt", updated.Language)

	second, err := s.CreateProject(ctx, &types.CreateProjectRequest{ClientName: "Acme", Language: "en"})
	require.NoError(t, err)

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	positions := map[uuid.UUID]int{}
	for i, proj := range projects {
		positions[proj.ID] = i
	}
	require.Contains(t, positions, p.ID)
	require.Contains(t, positions, second.ID)
	assert.Less(t, positions[second.ID], positions[p.ID])
}

func testArtifactOrdering(t *testing.T, s Store) {
	ctx := context.Background()
	p := seedProject(t, s)

	first := seedArtifact(t, s, p.ID, types.ArtifactResearchPackJSON)
	seedArtifact(t, s, p.ID, types.ArtifactContentPlanJSON)
	second := seedArtifact(t, s, p.ID, types.ArtifactResearchPackJSON)

	got, err := s.ListArtifacts(ctx, ArtifactFilter{ProjectID: p.ID, Types: []string{types.ArtifactResearchPackJSON}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, first.ID, got[1].ID)

	all, err := s.ListArtifacts(ctx, ArtifactFilter{ProjectID: p.ID})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := s.ListArtifacts(ctx, ArtifactFilter{ProjectID: p.ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, second.ID, limited[0].ID)

	other := seedProject(t, s)
	none, err := s.ListArtifacts(ctx, ArtifactFilter{ProjectID: other.ID})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testArtifactPayloads(t *testing.T, s Store) {
	ctx := context.Background()
	p := seedProject(t, s)

	md, err := s.InsertArtifact(ctx, &types.NewArtifact{
		ProjectID: p.ID, Type: types.ArtifactKBFile, Format: types.FormatMarkdown,
		Title: "01-company-overview.md", Content: "# Overview",
	})
	require.NoError(t, err)
	require.NotNil(t, md.Content)
	assert.Equal(t, "# Overview", *md.Content)
	assert.Nil(t, md.ContentJSON)
	assert.Nil(t, md.FileURL)

	file, err := s.InsertArtifact(ctx, &types.NewArtifact{
		ProjectID: p.ID, Type: types.ArtifactPresentation, Format: types.FormatFile,
		Title: "Deck", FileURL: "https://cdn.example/deck.md",
	})
	require.NoError(t, err)
	require.NotNil(t, file.FileURL)
	assert.Equal(t, "https://cdn.example/deck.md", *file.FileURL)
	assert.Nil(t, file.Content)

	js := seedArtifact(t, s, p.ID, types.ArtifactQAResultsJSON)
	fetched, err := s.GetArtifact(ctx, js.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":"v"}`, string(fetched.ContentJSON))
	assert.Equal(t, types.FormatJSON, fetched.Format)
}

func testJobTransitions(t *testing.T, s Store) {
	ctx := context.Background()
	p := seedProject(t, s)
	input := seedArtifact(t, s, p.ID, types.ArtifactOnboardingReportJSON)
	output := seedArtifact(t, s, p.ID, types.ArtifactResearchPackJSON)

	job, err := s.InsertJob(ctx, &types.NewJob{
		ProjectID: p.ID, Type: "research", Status: types.JobStatusRunning, InputArtifactID: input.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusRunning, job.Status)
	assert.Equal(t, input.ID, job.InputArtifactID)
	assert.Nil(t, job.OutputArtifactID)
	assert.Nil(t, job.CompletedAt)

	ok, err := s.TransitionJob(ctx, job.ID, types.JobStatusRunning, &types.JobUpdate{
		Status: types.JobStatusDone, OutputArtifactID: &output.ID,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// A second closer racing on the old status loses.
	msg := "late failure"
	ok, err = s.TransitionJob(ctx, job.ID, types.JobStatusRunning, &types.JobUpdate{Status: types.JobStatusFailed, Error: &msg})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusDone, got.Status)
	require.NotNil(t, got.OutputArtifactID)
	assert.Equal(t, output.ID, *got.OutputArtifactID)
	assert.Nil(t, got.Error)
	assert.NotNil(t, got.CompletedAt)

	jobs, err := s.ListJobs(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func testApprovals(t *testing.T, s Store) {
	ctx := context.Background()
	p := seedProject(t, s)
	a1 := seedArtifact(t, s, p.ID, types.ArtifactKBFile)
	a2 := seedArtifact(t, s, p.ID, types.ArtifactKBFile)

	approvals, err := s.InsertApprovals(ctx, p.ID, []uuid.UUID{a1.ID, a2.ID})
	require.NoError(t, err)
	require.Len(t, approvals, 2)
	for _, a := range approvals {
		assert.Equal(t, types.ApprovalPending, a.Status)
	}

	decided, err := s.DecideApproval(ctx, approvals[0].ID, types.ApprovalApproved)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalApproved, decided.Status)
	assert.NotNil(t, decided.DecidedAt)

	_, err = s.DecideApproval(ctx, approvals[0].ID, types.ApprovalRejected)
	assert.ErrorIs(t, err, ErrAlreadyDecided)

	pending, err := s.ListApprovals(ctx, p.ID, types.ApprovalPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a2.ID, pending[0].ArtifactID)

	all, err := s.ListApprovals(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Duplicate approvals for the same artifact roll back the whole batch.
	a3 := seedArtifact(t, s, p.ID, types.ArtifactKBFile)
	_, err = s.InsertApprovals(ctx, p.ID, []uuid.UUID{a3.ID, a1.ID})
	assert.Error(t, err)
	all, err = s.ListApprovals(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func testRunLogs(t *testing.T, s Store) {
	ctx := context.Background()
	p := seedProject(t, s)
	input := seedArtifact(t, s, p.ID, types.ArtifactOnboardingReportJSON)
	job, err := s.InsertJob(ctx, &types.NewJob{ProjectID: p.ID, Type: "research", Status: types.JobStatusRunning, InputArtifactID: input.ID})
	require.NoError(t, err)

	in, out := 1200, 3400
	cost := types.EstimateCost("gemini-2.5-flash", &in, &out)
	_, err = s.InsertRunLog(ctx, &types.RunLog{JobID: job.ID, Model: "gemini-2.5-flash", TokensIn: &in, TokensOut: &out, CostEstimate: cost, DurationMs: 4200})
	require.NoError(t, err)
	_, err = s.InsertRunLog(ctx, &types.RunLog{JobID: job.ID, DurationMs: 10})
	require.NoError(t, err)

	logs, err := s.ListRunLogs(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.NotNil(t, logs[0].TokensIn)
	assert.Equal(t, 1200, *logs[0].TokensIn)
	require.NotNil(t, logs[0].CostEstimate)
	assert.InDelta(t, *cost, *logs[0].CostEstimate, 1e-9)
	assert.Equal(t, int64(4200), logs[0].DurationMs)
	assert.Nil(t, logs[1].TokensIn)
	assert.Nil(t, logs[1].CostEstimate)
}

func testNotFound(t *testing.T, s Store) {
	ctx := context.Background()
	missing := uuid.New()

	_, err := s.GetProject(ctx, missing)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.GetArtifact(ctx, missing)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.GetJob(ctx, missing)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.DecideApproval(ctx, missing, types.ApprovalApproved)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.UpdateProject(ctx, missing, &types.UpdateProjectRequest{})
	assert.True(t, errors.Is(err, ErrNotFound))
}
