package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/jonathan/flow-agents/internal/agents"
	"github.com/jonathan/flow-agents/internal/blob"
	"github.com/jonathan/flow-agents/internal/config"
	"github.com/jonathan/flow-agents/internal/db"
	"github.com/jonathan/flow-agents/internal/fetch"
	"github.com/jonathan/flow-agents/internal/llm"
	"github.com/jonathan/flow-agents/internal/orchestrator"
	"github.com/jonathan/flow-agents/internal/server"
	"github.com/jonathan/flow-agents/internal/server/ratelimit"
)

var (
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes the project, artifact, job and worker dispatch endpoints.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	apiKey, err := resolveAPIKey(ctx, cfg)
	if err != nil {
		return err
	}
	llmConfig, err := llm.NewConfig(cfg.LLMProvider, cfg.LLMModel)
	if err != nil {
		return err
	}
	llmClient, err := llm.NewClient(ctx, llmConfig, apiKey)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	defer func() { _ = llmClient.Close() }()

	orch, err := orchestrator.New(store, blobs, newAgents(llmClient, cfg),
		orchestrator.WithLogger(logger),
		orchestrator.WithStageCeiling(cfg.StageCeiling),
		orchestrator.WithDefaultModel(llmClient.GetModel(llm.TierStandard)),
	)
	if err != nil {
		return err
	}

	rateLimit := ratelimit.DefaultConfig()
	rateLimit.Enabled = cfg.RateLimitEnabled

	srv := server.New(server.Config{
		Port:         cfg.Port,
		PollInterval: cfg.PollInterval,
		PollBudget:   cfg.PollBudget,
		RateLimit:    rateLimit,
		Logger:       logger,
	}, store, orch)
	return srv.Start(ctx)
}

// newAgents builds one agent per stage, all sharing the generation backend.
func newAgents(client llm.Client, cfg *config.Config) []agents.Agent {
	opts := agents.Options{Timeout: cfg.AgentTimeout}
	return []agents.Agent{
		agents.NewResearch(client, fetch.NewCachedFetcher(nil), opts),
		agents.NewKBBuilder(client, opts),
		agents.NewPresentation(client, nil, opts),
		agents.NewContentPlanner(client, opts),
		agents.NewQA(client, opts),
	}
}

// newBlobStore selects where rendered decks are stored.
func newBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.StorageBackend {
	case "s3":
		var opts []blob.S3Option
		if cfg.StoragePublicURL != "" {
			opts = append(opts, blob.WithPublicURL(cfg.StoragePublicURL))
		}
		return blob.NewS3Store(ctx, cfg.StorageBucket, cfg.StorageRegion, opts...)
	default:
		return blob.NewFSStore(afero.NewOsFs(), cfg.StorageDir, cfg.StoragePublicURL), nil
	}
}

// resolveAPIKey only reaches for AWS when the key is not set directly.
func resolveAPIKey(ctx context.Context, cfg *config.Config) (string, error) {
	var secrets config.SecretGetter
	if cfg.GeminiAPIKey == "" && cfg.GeminiAPIKeySecretID != "" {
		sm, err := config.NewSecretsManager(ctx, cfg.StorageRegion)
		if err != nil {
			return "", err
		}
		secrets = sm
	}
	return cfg.ResolveAPIKey(ctx, secrets)
}
