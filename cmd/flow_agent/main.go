// Package main provides the entry point for the marketing agent pipeline: the
// HTTP API server and a CLI client for it.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonathan/flow-agents/internal/client"
	"github.com/jonathan/flow-agents/internal/config"
)

var (
	cfgFile string
	apiURL  string
)

var rootCmd = &cobra.Command{
	Use:   "flow_agent",
	Short: "Marketing agent pipeline server and client",
	Long: "flow_agent runs the agency pipeline (research, knowledge base, presentation, content plan, QA) " +
		"as an HTTP API and drives it from the command line.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API base URL (overrides api_url)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the configuration, applying global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if apiURL != "" {
		cfg.APIURL = apiURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newClient builds an API client from the configuration. Synchronous calls
// may take as long as a whole stage.
func newClient() (*client.Client, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	c, err := client.New(client.Config{BaseURL: cfg.APIURL, Timeout: cfg.StageCeiling + cfg.PollInterval})
	if err != nil {
		return nil, nil, err
	}
	return c, cfg, nil
}
