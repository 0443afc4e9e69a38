package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/flow-agents/internal/types"
)

var (
	uploadProject string
	uploadFile    string
	uploadTitle   string
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload an onboarding report",
	Long: `Upload the client's onboarding report. A .json file is stored as onboarding_report_json;
any other file is stored as markdown (onboarding_report).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		id, err := parseID("project", uploadProject)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(uploadFile)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", uploadFile, err)
		}
		req, err := uploadRequest(uploadFile, data, uploadTitle)
		if err != nil {
			return err
		}

		c, _, err := newClient()
		if err != nil {
			return err
		}
		artifact, err := c.UploadArtifact(cmd.Context(), id, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s %s\n", artifact.Type, artifact.ID)
		return nil
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadProject, "project", "", "Project ID")
	uploadCmd.Flags().StringVar(&uploadFile, "file", "", "Path to the onboarding report (.json or markdown)")
	uploadCmd.Flags().StringVar(&uploadTitle, "title", "", "Artifact title")
	_ = uploadCmd.MarkFlagRequired("project")
	_ = uploadCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(uploadCmd)
}

// uploadRequest picks the artifact type from the file extension.
func uploadRequest(path string, data []byte, title string) (*types.UploadArtifactRequest, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if !json.Valid(data) {
			return nil, fmt.Errorf("%s is not valid JSON", path)
		}
		return &types.UploadArtifactRequest{Type: types.ArtifactOnboardingReportJSON, Title: title, ContentJSON: data}, nil
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return &types.UploadArtifactRequest{Type: types.ArtifactOnboardingReport, Title: title, Content: string(data)}, nil
}
