package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/flow-agents/internal/poller"
	"github.com/jonathan/flow-agents/internal/types"
)

// executeCommand runs the root command in-process against apiURL.
func executeCommand(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(append([]string{"--api-url", url}, args...))
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		runDetach = false
		runChannels = nil
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestUploadRequest(t *testing.T) {
	t.Run("json file", func(t *testing.T) {
		req, err := uploadRequest("report.JSON", []byte(`{"company":"Acme"}`), "")
		require.NoError(t, err)
		assert.Equal(t, types.ArtifactOnboardingReportJSON, req.Type)
		assert.JSONEq(t, `{"company":"Acme"}`, string(req.ContentJSON))
		assert.Empty(t, req.Content)
	})

	t.Run("markdown file", func(t *testing.T) {
		req, err := uploadRequest("report.md", []byte("# Acme\n"), "Kickoff")
		require.NoError(t, err)
		assert.Equal(t, types.ArtifactOnboardingReport, req.Type)
		assert.Equal(t, "# Acme\n", req.Content)
		assert.Equal(t, "Kickoff", req.Title)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := uploadRequest("report.json", []byte(`{"company":`), "")
		assert.ErrorContains(t, err, "not valid JSON")
	})

	t.Run("empty markdown", func(t *testing.T) {
		_, err := uploadRequest("report.txt", []byte("  \n"), "")
		assert.ErrorContains(t, err, "is empty")
	})
}

func TestOutcomeError(t *testing.T) {
	msg := "research: deadline exceeded "
	failed := &poller.Outcome{Terminal: true, Job: &types.Job{Status: types.JobStatusFailed, Error: &msg}}
	assert.EqualError(t, outcomeError(failed), "job failed: research: deadline exceeded")

	failed.Job.Error = nil
	assert.EqualError(t, outcomeError(failed), "job failed")

	done := &poller.Outcome{Terminal: true, Job: &types.Job{Status: types.JobStatusDone}}
	assert.NoError(t, outcomeError(done))

	running := &poller.Outcome{StillRunning: true, Job: &types.Job{Status: types.JobStatusRunning}}
	assert.NoError(t, outcomeError(running))
}

func TestParseID(t *testing.T) {
	id := uuid.New()
	got, err := parseID("project", id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = parseID("project", "acme")
	assert.ErrorContains(t, err, "--project must be a UUID")
}

func TestProjectList(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"projects": []types.Project{{ID: id, ClientName: "Acme", Language: "pt"}},
			"count":    1,
		})
	}))
	defer srv.Close()

	out, err := executeCommand(t, srv.URL, "project", "list")
	require.NoError(t, err)
	assert.Contains(t, out, id.String())
	assert.Contains(t, out, "Acme")
}

func TestUploadCommand(t *testing.T) {
	projectID := uuid.New()
	var got types.UploadArtifactRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/"+projectID.String()+"/artifacts", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusCreated, types.Artifact{ID: uuid.New(), ProjectID: projectID, Type: got.Type})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"company":"Acme"}`), 0o600))

	out, err := executeCommand(t, srv.URL, "upload", "--project", projectID.String(), "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Uploaded onboarding_report_json")
	assert.Equal(t, types.ArtifactOnboardingReportJSON, got.Type)
}

func TestRunCommand(t *testing.T) {
	projectID := uuid.New()
	jobID := uuid.New()
	output := uuid.New()
	now := time.Now().UTC()

	newServer := func(status types.JobStatus, errMsg *string) *httptest.Server {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /projects/{id}/stages/{stage}/run", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "research", r.PathValue("stage"))
			writeJSON(w, http.StatusAccepted, types.RunStageResponse{
				DispatchResponse: types.DispatchResponse{Success: true, JobID: jobID, Status: types.JobStatusRunning},
			})
		})
		mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
			job := types.Job{ID: jobID, ProjectID: projectID, Type: "research", Status: status, Error: errMsg, CreatedAt: now}
			if status == types.JobStatusDone {
				job.OutputArtifactID = &output
			}
			writeJSON(w, http.StatusOK, job)
		})
		return httptest.NewServer(mux)
	}

	t.Run("done", func(t *testing.T) {
		srv := newServer(types.JobStatusDone, nil)
		defer srv.Close()

		out, err := executeCommand(t, srv.URL, "run", "--project", projectID.String(), "--stage", "research")
		require.NoError(t, err)
		assert.Contains(t, out, "Dispatched research job "+jobID.String())
		assert.Contains(t, out, "status: done")
	})

	t.Run("failed", func(t *testing.T) {
		msg := "research pack failed validation"
		srv := newServer(types.JobStatusFailed, &msg)
		defer srv.Close()

		_, err := executeCommand(t, srv.URL, "run", "--project", projectID.String(), "--stage", "research")
		assert.EqualError(t, err, "job failed: "+msg)
	})

	t.Run("detach", func(t *testing.T) {
		srv := newServer(types.JobStatusRunning, nil)
		defer srv.Close()

		out, err := executeCommand(t, srv.URL, "run", "--project", projectID.String(), "--stage", "research", "--detach")
		require.NoError(t, err)
		assert.Contains(t, out, "Dispatched research job")
		assert.NotContains(t, out, "status:")
	})
}
