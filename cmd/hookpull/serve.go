package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/hookpull/internal/config"
	"github.com/mattjoyce/hookpull/internal/gitsync"
	"github.com/mattjoyce/hookpull/internal/history"
	"github.com/mattjoyce/hookpull/internal/log"
	"github.com/mattjoyce/hookpull/internal/storage"
	"github.com/mattjoyce/hookpull/internal/webhook"
)

type serveOptions struct {
	*globalOptions

	listen   string
	repoPath string
}

func newServeCmd(global *globalOptions) *cobra.Command {
	opts := &serveOptions{globalOptions: global}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		Long: "Serve listens for GitHub deliveries and runs git pull for each verified push. " +
			"Without a config file it runs on built-in defaults, taking the secret from $" + config.EnvSecret + ".",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := serveConfig(cmd, opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&opts.listen, "listen", "", "Override server.listen (host:port)")
	cmd.Flags().StringVar(&opts.repoPath, "repo", "", "Override repo.path")

	return cmd
}

// serveConfig loads the config, or falls back to defaults when none was
// given and none can be discovered.
func serveConfig(cmd *cobra.Command, opts *serveOptions) (*config.Config, error) {
	var cfg *config.Config
	if opts.configPath == "" {
		if _, err := config.Discover(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "No config found, using defaults: %v\n", err)
			cfg = config.Defaults()
			if secret := os.Getenv(config.EnvSecret); secret != "" {
				cfg.Webhook.Secret = secret
			}
		}
	}
	if cfg == nil {
		loaded, err := loadConfig(cmd, opts.globalOptions)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if opts.listen != "" {
		cfg.Server.Listen = opts.listen
	}
	if opts.repoPath != "" {
		cfg.Repo.Path = opts.repoPath
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")

	logger.Info("hookpull starting",
		"version", version,
		"config", cfg.SourcePath,
		"repo_path", cfg.Repo.Path,
		"secret_configured", !cfg.SecretIsPlaceholder(),
	)
	if cfg.SecretIsPlaceholder() {
		logger.Warn("webhook secret is not configured; set webhook.secret or $" + config.EnvSecret)
	}
	if cfg.RepoPathIsPlaceholder() {
		logger.Warn("repo.path is still the example value", "repo_path", cfg.Repo.Path)
	}

	syncer := gitsync.New(gitsync.Options{
		RepoPath:  cfg.Repo.Path,
		GitBinary: cfg.Sync.GitBinary,
		Remote:    cfg.Sync.Remote,
		Timeout:   cfg.Sync.Timeout,
		Logger:    log.WithComponent("gitsync"),
	})
	if err := syncer.Check(); err != nil {
		logger.Warn("repository not ready; pushes will fail until it is", "repo_path", syncer.RepoPath(), "error", err)
	}

	var recorder webhook.Recorder
	if cfg.HistoryEnabled() {
		db, err := storage.OpenSQLite(ctx, cfg.History.Path)
		if err != nil {
			logger.Error("failed to open history database", "path", cfg.History.Path, "error", err)
			return err
		}
		defer func() { _ = db.Close() }()
		recorder = history.New(db)
		logger.Info("delivery history enabled", "path", cfg.History.Path)
	}

	webhookConfig, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to configure webhook server: %w", err)
	}

	server := webhook.New(webhookConfig, syncer, recorder, log.WithComponent("webhook"))
	logger.Info("hookpull running (press Ctrl+C to stop)", "listen", webhookConfig.Listen)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("webhook server failed", "error", err)
		return err
	}

	logger.Info("hookpull stopped")
	return nil
}
