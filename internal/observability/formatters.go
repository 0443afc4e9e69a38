// Package observability provides formatted terminal output for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonathan/flow-agents/internal/poller"
	"github.com/jonathan/flow-agents/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 72
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 8
)

// Printer handles formatted output
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintProject outputs one project.
func (p *Printer) PrintProject(project *types.Project) {
	if project == nil {
		return
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("ID:       %s\n", project.ID))
	sb.WriteString(fmt.Sprintf("Client:   %s\n", project.ClientName))
	sb.WriteString(fmt.Sprintf("Language: %s\n", project.Language))
	sb.WriteString(fmt.Sprintf("Created:  %s", project.CreatedAt.Format(time.RFC3339)))
	p.printBox("PROJECT", sb.String())
}

// PrintProjects outputs a one-line-per-project table.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProjects(projects []types.Project) {
	if len(projects) == 0 {
		fmt.Fprintln(p.out, "No projects.")
		return
	}
	for _, project := range projects {
		fmt.Fprintf(p.out, "%s  %-2s  %s\n", project.ID, project.Language, project.ClientName)
	}
}

// PrintJob outputs the polling view of a job.
func (p *Printer) PrintJob(job *types.Job) {
	if job == nil {
		return
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Job:     %s\n", job.ID))
	sb.WriteString(fmt.Sprintf("Stage:   %s\n", job.Type))
	sb.WriteString(fmt.Sprintf("Status:  %s\n", statusLabel(job.Status)))
	sb.WriteString(fmt.Sprintf("Input:   %s", job.InputArtifactID))
	if job.OutputArtifactID != nil {
		sb.WriteString(fmt.Sprintf("\nOutput:  %s", *job.OutputArtifactID))
	}
	if job.Error != nil {
		sb.WriteString(fmt.Sprintf("\nError:   %s", *job.Error))
	}
	if job.CompletedAt != nil {
		sb.WriteString(fmt.Sprintf("\nTook:    %s", job.CompletedAt.Sub(job.CreatedAt).Round(time.Second)))
	}
	p.printBox("JOB", sb.String())
}

// PrintOutcome outputs the end of a wait. A job that outlived the budget is
// shown as still running; it may finish later.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintOutcome(out *poller.Outcome) {
	if out == nil {
		return
	}
	switch {
	case out.Terminal:
		p.PrintJob(out.Job)
	case out.Job != nil:
		fmt.Fprintf(p.out, "Job %s is still running after %s (%d polls). Check again with: flow_agent job --job %s\n",
			out.Job.ID, out.Elapsed.Round(time.Second), out.Polls, out.Job.ID)
	default:
		fmt.Fprintf(p.out, "Job state unknown after %s (%d polls)", out.Elapsed.Round(time.Second), out.Polls)
		if out.LastErr != nil {
			fmt.Fprintf(p.out, ": %v", out.LastErr)
		}
		fmt.Fprintln(p.out)
	}
}

// PrintArtifacts outputs a project's artifacts, newest first.
func (p *Printer) PrintArtifacts(artifacts []types.Artifact) {
	if len(artifacts) == 0 {
		return
	}
	var sb strings.Builder
	count := min(len(artifacts), maxItemsToShow)
	for i := 0; i < count; i++ {
		a := artifacts[i]
		sb.WriteString(fmt.Sprintf("%s  %-30s %s\n", a.CreatedAt.Format("2006-01-02 15:04"), a.Type, a.Title))
		if a.FileURL != nil {
			sb.WriteString(fmt.Sprintf("    %s\n", *a.FileURL))
		}
	}
	if len(artifacts) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more\n", len(artifacts)-maxItemsToShow))
	}
	p.printBox(fmt.Sprintf("ARTIFACTS (%d)", len(artifacts)), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintSnapshot outputs a project with its artifacts and the latest job per stage.
func (p *Printer) PrintSnapshot(snap *types.ProjectSnapshot) {
	if snap == nil {
		return
	}
	p.PrintProject(&snap.Project)
	p.PrintArtifacts(snap.Artifacts)

	if len(snap.Jobs) == 0 {
		return
	}
	var sb strings.Builder
	seen := map[string]bool{}
	for _, job := range snap.Jobs {
		if seen[job.Type] {
			continue
		}
		seen[job.Type] = true
		sb.WriteString(fmt.Sprintf("%-16s %-15s %s\n", job.Type, statusLabel(job.Status), job.UpdatedAt.Format("2006-01-02 15:04")))
	}
	p.printBox("LATEST JOBS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintRunLogs outputs usage accounting rows.
func (p *Printer) PrintRunLogs(runs []types.RunLog) {
	if len(runs) == 0 {
		return
	}
	var sb strings.Builder
	var total float64
	for _, r := range runs {
		tokens := "tokens n/a"
		if r.TokensIn != nil && r.TokensOut != nil {
			tokens = fmt.Sprintf("%d in / %d out", *r.TokensIn, *r.TokensOut)
		}
		cost := "-"
		if r.CostEstimate != nil {
			cost = fmt.Sprintf("$%.4f", *r.CostEstimate)
			total += *r.CostEstimate
		}
		sb.WriteString(fmt.Sprintf("%-22s %-22s %6.1fs  %s\n", r.Model, tokens, float64(r.DurationMs)/1000, cost))
	}
	sb.WriteString(fmt.Sprintf("Total estimated cost: $%.4f", total))
	p.printBox("USAGE", sb.String())
}

// PrintApprovals outputs approvals, oldest first.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintApprovals(approvals []types.Approval) {
	if len(approvals) == 0 {
		fmt.Fprintln(p.out, "No approvals.")
		return
	}
	for _, a := range approvals {
		fmt.Fprintf(p.out, "%s  %-8s  artifact %s\n", a.ID, a.Status, a.ArtifactID)
	}
}

func statusLabel(s types.JobStatus) string {
	switch s {
	case types.JobStatusDone:
		return "✓ done"
	case types.JobStatusNeedsApproval:
		return "⚑ needs approval"
	case types.JobStatusFailed:
		return "✗ failed"
	default:
		return "… " + string(s)
	}
}
