package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/flow-agents/internal/db"
	"github.com/jonathan/flow-agents/internal/types"
)

type fixture struct {
	store   *db.SQLiteStore
	ledger  *Ledger
	project *types.Project
	input   *types.Artifact
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)

	ctx := context.Background()
	project, err := store.CreateProject(ctx, &types.CreateProjectRequest{ClientName: "Acme", Language: "en"})
	require.NoError(t, err)
	input, err := store.InsertArtifact(ctx, &types.NewArtifact{
		ProjectID: project.ID, Type: types.ArtifactOnboardingReportJSON, Format: types.FormatJSON,
		ContentJSON: json.RawMessage(`{"client_name":"Acme"}`),
	})
	require.NoError(t, err)

	return &fixture{store: store, ledger: New(store), project: project, input: input}
}

func (f *fixture) output(t *testing.T, projectID uuid.UUID) *types.Artifact {
	t.Helper()
	a, err := f.store.InsertArtifact(context.Background(), &types.NewArtifact{
		ProjectID: projectID, Type: types.ArtifactResearchPackMarkdown, Format: types.FormatMarkdown, Content: "# Pack",
	})
	require.NoError(t, err)
	return a
}

func TestCreateJob(t *testing.T) {
	f := newFixture(t)

	job, err := f.ledger.CreateJob(context.Background(), f.project.ID, "research", f.input.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusRunning, job.Status)
	assert.Equal(t, f.input.ID, job.InputArtifactID)
	assert.Equal(t, "research", job.Type)
	assert.Nil(t, job.OutputArtifactID)
	assert.Nil(t, job.Error)
}

func TestCreateJob_MissingInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.CreateJob(context.Background(), f.project.ID, "research", uuid.New())
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Contains(t, err.Error(), "does not exist")

	jobs, err := f.ledger.ListJobs(context.Background(), f.project.ID)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestCreateJob_InputFromAnotherProject(t *testing.T) {
	f := newFixture(t)
	other, err := f.store.CreateProject(context.Background(), &types.CreateProjectRequest{ClientName: "Other", Language: "pt"})
	require.NoError(t, err)

	_, err = f.ledger.CreateJob(context.Background(), other.ID, "research", f.input.ID)
	assert.ErrorContains(t, err, "another project")
}

func TestUpdateStatus_Done(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, err := f.ledger.CreateJob(ctx, f.project.ID, "research", f.input.ID)
	require.NoError(t, err)
	out := f.output(t, f.project.ID)

	require.NoError(t, f.ledger.UpdateStatus(ctx, job.ID, types.JobUpdate{Status: types.JobStatusDone, OutputArtifactID: &out.ID}))

	got, err := f.ledger.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusDone, got.Status)
	assert.Equal(t, out.ID, *got.OutputArtifactID)
}

func TestUpdateStatus_TerminalIsSink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, err := f.ledger.CreateJob(ctx, f.project.ID, "research", f.input.ID)
	require.NoError(t, err)
	out := f.output(t, f.project.ID)
	require.NoError(t, f.ledger.UpdateStatus(ctx, job.ID, types.JobUpdate{Status: types.JobStatusDone, OutputArtifactID: &out.ID}))

	for _, next := range []types.JobStatus{types.JobStatusFailed, types.JobStatusDone, types.JobStatusRunning, types.JobStatusNeedsApproval} {
		err := f.ledger.UpdateStatus(ctx, job.ID, types.JobUpdate{Status: next, OutputArtifactID: &out.ID})
		var te *types.TransitionError
		assert.ErrorAs(t, err, &te, "done -> %s", next)
	}

	got, err := f.ledger.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusDone, got.Status)
}

func TestUpdateStatus_DoneRequiresExistingOutput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, err := f.ledger.CreateJob(ctx, f.project.ID, "research", f.input.ID)
	require.NoError(t, err)

	err = f.ledger.UpdateStatus(ctx, job.ID, types.JobUpdate{Status: types.JobStatusDone})
	assert.ErrorContains(t, err, "requires an output artifact")

	missing := uuid.New()
	err = f.ledger.UpdateStatus(ctx, job.ID, types.JobUpdate{Status: types.JobStatusDone, OutputArtifactID: &missing})
	var inputErr *InputError
	assert.ErrorAs(t, err, &inputErr)

	got, err := f.ledger.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusRunning, got.Status)
}

func TestFail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, err := f.ledger.CreateJob(ctx, f.project.ID, "qa", f.input.ID)
	require.NoError(t, err)

	require.NoError(t, f.ledger.Fail(ctx, job.ID, "qa agent: timeout"))

	got, err := f.ledger.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "qa agent: timeout", *got.Error)
	assert.Nil(t, got.OutputArtifactID)
}

func TestUpdateStatus_UnknownJob(t *testing.T) {
	f := newFixture(t)
	err := f.ledger.Fail(context.Background(), uuid.New(), "boom")
	assert.True(t, errors.Is(err, db.ErrNotFound))

	_, err = f.ledger.GetJob(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, db.ErrNotFound))
}

// racingStore lets another writer close the job between read and write.
type racingStore struct {
	*db.SQLiteStore
	race func()
}

func (r *racingStore) TransitionJob(ctx context.Context, id uuid.UUID, from types.JobStatus, upd *types.JobUpdate) (bool, error) {
	if r.race != nil {
		race := r.race
		r.race = nil
		race()
	}
	return r.SQLiteStore.TransitionJob(ctx, id, from, upd)
}

func TestUpdateStatus_ConcurrentClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, err := f.ledger.CreateJob(ctx, f.project.ID, "research", f.input.ID)
	require.NoError(t, err)

	rs := &racingStore{SQLiteStore: f.store}
	rs.race = func() {
		require.NoError(t, f.ledger.Fail(ctx, job.ID, "first writer"))
	}
	err = New(rs).Fail(ctx, job.ID, "second writer")
	assert.ErrorIs(t, err, ErrConflict)

	got, err := f.ledger.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "first writer", *got.Error)
}
