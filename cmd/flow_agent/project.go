package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/flow-agents/internal/observability"
	"github.com/jonathan/flow-agents/internal/types"
)

var (
	projectName     string
	projectLanguage string
	projectID       string
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a project",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, _, err := newClient()
		if err != nil {
			return err
		}
		project, err := c.CreateProject(cmd.Context(), &types.CreateProjectRequest{
			ClientName: projectName,
			Language:   projectLanguage,
		})
		if err != nil {
			return err
		}
		observability.NewPrinter(cmd.OutOrStdout()).PrintProject(project)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, _, err := newClient()
		if err != nil {
			return err
		}
		projects, err := c.ListProjects(cmd.Context())
		if err != nil {
			return err
		}
		observability.NewPrinter(cmd.OutOrStdout()).PrintProjects(projects)
		return nil
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a project with its artifacts and latest jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		id, err := parseID("project", projectID)
		if err != nil {
			return err
		}
		c, _, err := newClient()
		if err != nil {
			return err
		}
		snap, err := c.Snapshot(cmd.Context(), id)
		if err != nil {
			return err
		}
		observability.NewPrinter(cmd.OutOrStdout()).PrintSnapshot(snap)
		return nil
	},
}

func init() {
	projectCreateCmd.Flags().StringVar(&projectName, "name", "", "Client name")
	projectCreateCmd.Flags().StringVar(&projectLanguage, "language", "", "Output language: pt (default) or en")
	_ = projectCreateCmd.MarkFlagRequired("name")

	projectShowCmd.Flags().StringVar(&projectID, "project", "", "Project ID")
	_ = projectShowCmd.MarkFlagRequired("project")

	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectShowCmd)
	rootCmd.AddCommand(projectCmd)
}

// parseID parses a UUID flag value.
func parseID(flag, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s must be a UUID: %w", flag, err)
	}
	return id, nil
}
