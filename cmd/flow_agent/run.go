package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/flow-agents/internal/config"
	"github.com/jonathan/flow-agents/internal/observability"
	"github.com/jonathan/flow-agents/internal/poller"
	"github.com/jonathan/flow-agents/internal/types"
)

var (
	runProject  string
	runStage    string
	runChannels []string
	runDetach   bool
	pollJob     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a pipeline stage for a project",
	Long: `Create a job for the stage from the project's latest input, dispatch it, and poll until it
finishes. A job that outlives the poll budget is reported as still running; check it later with "job".`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		id, err := parseID("project", runProject)
		if err != nil {
			return err
		}
		c, cfg, err := newClient()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		resp, err := c.RunStage(cmd.Context(), id, runStage, runChannels, false)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Dispatched %s job %s\n", runStage, resp.JobID)
		if runDetach {
			return nil
		}

		outcome, err := c.WaitForJob(cmd.Context(), resp.JobID, pollConfig(cfg, out))
		if err != nil {
			return err
		}
		observability.NewPrinter(out).PrintOutcome(outcome)
		return outcomeError(outcome)
	},
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Wait for a job to finish",
	RunE: func(cmd *cobra.Command, _ []string) error {
		id, err := parseID("job", pollJob)
		if err != nil {
			return err
		}
		c, cfg, err := newClient()
		if err != nil {
			return err
		}
		outcome, err := c.WaitForJob(cmd.Context(), id, pollConfig(cfg, cmd.OutOrStdout()))
		if err != nil {
			return err
		}
		observability.NewPrinter(cmd.OutOrStdout()).PrintOutcome(outcome)
		return outcomeError(outcome)
	},
}

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Show a job and its usage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		id, err := parseID("job", pollJob)
		if err != nil {
			return err
		}
		c, _, err := newClient()
		if err != nil {
			return err
		}
		job, err := c.GetJob(cmd.Context(), id)
		if err != nil {
			return err
		}
		runs, err := c.ListRunLogs(cmd.Context(), id)
		if err != nil {
			return err
		}
		p := observability.NewPrinter(cmd.OutOrStdout())
		p.PrintJob(job)
		p.PrintRunLogs(runs)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runProject, "project", "", "Project ID")
	runCmd.Flags().StringVar(&runStage, "stage", "", "Stage: research, kb_builder, presentation, content_planner or qa")
	runCmd.Flags().StringSliceVar(&runChannels, "channels", nil, "Channels for content_planner (default instagram,linkedin)")
	runCmd.Flags().BoolVar(&runDetach, "detach", false, "Dispatch and return without polling")
	_ = runCmd.MarkFlagRequired("project")
	_ = runCmd.MarkFlagRequired("stage")

	for _, c := range []*cobra.Command{pollCmd, jobCmd} {
		c.Flags().StringVar(&pollJob, "job", "", "Job ID")
		_ = c.MarkFlagRequired("job")
	}

	rootCmd.AddCommand(runCmd, pollCmd, jobCmd)
}

// pollConfig prints each status change as it is observed.
func pollConfig(cfg *config.Config, out io.Writer) poller.Config {
	return poller.Config{
		Interval: cfg.PollInterval,
		Budget:   cfg.PollBudget,
		OnChange: func(job *types.Job) {
			fmt.Fprintf(out, "  status: %s\n", job.Status)
		},
	}
}

// outcomeError turns a failed job into a non-zero exit. Still running is not a failure.
func outcomeError(out *poller.Outcome) error {
	if out.Terminal && out.Job.Status == types.JobStatusFailed {
		if out.Job.Error != nil {
			return fmt.Errorf("job failed: %s", strings.TrimSpace(*out.Job.Error))
		}
		return errors.New("job failed")
	}
	return nil
}
