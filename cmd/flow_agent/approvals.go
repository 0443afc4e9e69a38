package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/flow-agents/internal/observability"
)

var (
	approvalsProject string
	approvalsStatus  string
	decideID         string
	decideStatus     string
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "List a project's approvals",
	RunE: func(cmd *cobra.Command, _ []string) error {
		id, err := parseID("project", approvalsProject)
		if err != nil {
			return err
		}
		c, _, err := newClient()
		if err != nil {
			return err
		}
		approvals, err := c.ListApprovals(cmd.Context(), id, approvalsStatus)
		if err != nil {
			return err
		}
		observability.NewPrinter(cmd.OutOrStdout()).PrintApprovals(approvals)
		return nil
	},
}

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Approve or reject a pending approval",
	RunE: func(cmd *cobra.Command, _ []string) error {
		id, err := parseID("approval", decideID)
		if err != nil {
			return err
		}
		c, _, err := newClient()
		if err != nil {
			return err
		}
		approval, err := c.DecideApproval(cmd.Context(), id, decideStatus)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Approval %s is %s\n", approval.ID, approval.Status)
		return nil
	},
}

func init() {
	approvalsCmd.Flags().StringVar(&approvalsProject, "project", "", "Project ID")
	approvalsCmd.Flags().StringVar(&approvalsStatus, "status", "", "Filter: pending, approved or rejected")
	_ = approvalsCmd.MarkFlagRequired("project")

	decideCmd.Flags().StringVar(&decideID, "approval", "", "Approval ID")
	decideCmd.Flags().StringVar(&decideStatus, "status", "", "approved or rejected")
	_ = decideCmd.MarkFlagRequired("approval")
	_ = decideCmd.MarkFlagRequired("status")

	rootCmd.AddCommand(approvalsCmd, decideCmd)
}
