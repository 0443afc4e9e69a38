package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/flow-agents/internal/poller"
	"github.com/jonathan/flow-agents/internal/types"
)

func ptr[T any](v T) *T { return &v }

func TestPrintProject(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintProject(&types.Project{ID: uuid.New(), ClientName: "Padaria Lusa", Language: "pt"})
	output := buf.String()

	assert.Contains(t, output, "PROJECT")
	assert.Contains(t, output, "Padaria Lusa")
	assert.Contains(t, output, "pt")
}

func TestPrintProject_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintProject(nil)
	assert.Empty(t, buf.String())
}

func TestPrintJob(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	created := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	p.PrintJob(&types.Job{
		ID:          uuid.New(),
		Type:        "content_planner",
		Status:      types.JobStatusFailed,
		Error:       ptr("plan has 29 posts, want 30"),
		CreatedAt:   created,
		CompletedAt: ptr(created.Add(42 * time.Second)),
	})
	output := buf.String()

	assert.Contains(t, output, "content_planner")
	assert.Contains(t, output, "✗ failed")
	assert.Contains(t, output, "plan has 29 posts")
	assert.Contains(t, output, "42s")
}

func TestPrintOutcome(t *testing.T) {
	job := &types.Job{ID: uuid.New(), Type: "research", Status: types.JobStatusRunning}

	tests := []struct {
		name string
		out  *poller.Outcome
		want string
	}{
		{"terminal", &poller.Outcome{Terminal: true, Job: &types.Job{ID: job.ID, Type: "research", Status: types.JobStatusDone}}, "✓ done"},
		{"still running", &poller.Outcome{StillRunning: true, Job: job, Polls: 72, Elapsed: 6 * time.Minute}, "still running after 6m0s (72 polls)"},
		{"never read", &poller.Outcome{StillRunning: true, Polls: 3, Elapsed: time.Second, LastErr: errors.New("connection refused")}, "connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewPrinter(&buf).PrintOutcome(tt.out)
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestPrintArtifacts_Truncates(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	var list []types.Artifact
	for i := 0; i < 12; i++ {
		list = append(list, types.Artifact{ID: uuid.New(), Type: types.ArtifactKBFile, Title: "brand_voice.md: Brand Voice"})
	}
	list[0].FileURL = ptr("https://files.example/p/presentation-1.md")

	p.PrintArtifacts(list)
	output := buf.String()

	assert.Contains(t, output, "ARTIFACTS (12)")
	assert.Contains(t, output, "... and 4 more")
	assert.Contains(t, output, "presentation-1.md")
}

func TestPrintSnapshot_LatestJobPerStage(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintSnapshot(&types.ProjectSnapshot{
		Project: types.Project{ID: uuid.New(), ClientName: "Acme"},
		Jobs: []types.Job{
			{Type: "research", Status: types.JobStatusDone},
			{Type: "research", Status: types.JobStatusFailed},
			{Type: "kb_builder", Status: types.JobStatusNeedsApproval},
		},
	})
	output := buf.String()

	assert.Contains(t, output, "LATEST JOBS")
	assert.Equal(t, 1, strings.Count(output, "research "))
	assert.NotContains(t, output, "failed")
	assert.Contains(t, output, "needs approval")
}

func TestPrintRunLogs(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintRunLogs([]types.RunLog{
		{Model: "gemini-2.5-flash", TokensIn: ptr(1200), TokensOut: ptr(800), CostEstimate: ptr(0.00236), DurationMs: 4200},
		{Model: "gemini-2.5-pro", DurationMs: 270000},
	})
	output := buf.String()

	assert.Contains(t, output, "1200 in / 800 out")
	assert.Contains(t, output, "tokens n/a")
	assert.Contains(t, output, "Total estimated cost: $0.0024")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "Comunicaç...", truncate("Comunicação digital", 12))
}
