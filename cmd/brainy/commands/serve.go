package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brainybot/brainy/pkg/brainy/assistant"
	"github.com/brainybot/brainy/pkg/brainy/channels/whatsapp"
	"github.com/brainybot/brainy/pkg/brainy/llm"
	"github.com/brainybot/brainy/pkg/brainy/memory"
	"github.com/brainybot/brainy/pkg/brainy/scheduler"
	"github.com/brainybot/brainy/pkg/brainy/webui"
)

// newServeCmd creates the `brainy serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the assistant daemon",
		Long: `Start Brainy as a daemon service: connect the WhatsApp link (QR pairing
on first run), serve the web chat UI, and schedule the daily digest.

Examples:
  brainy serve
  brainy serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// ── Load config ──
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	// ── Configure logger ──
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logLevel := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)

	// ── Resolve secrets ──
	assistant.ResolveAPIKey(cfg, logger)
	if cfg.API.APIKey == "" && !cfg.Ephemeral {
		return fmt.Errorf("no API key configured, run: brainy setup")
	}

	// ── Normalize the authorized counterparty ──
	var authorizedID string
	if cfg.AuthorizedNumber != "" {
		authorizedID, err = whatsapp.UserID(cfg.AuthorizedNumber)
		if err != nil {
			return fmt.Errorf("invalid authorized_number: %w", err)
		}
	}

	// ── Build collaborators ──
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	embedder := memory.NewEmbedder(cfg.Memory.Embedding)
	store, err := memory.Open(cfg.Memory.Path, embedder, logger)
	if err != nil {
		return fmt.Errorf("opening memory store: %w", err)
	}
	defer store.Close()

	llmClient := llm.New(cfg.API, logger)

	sched, err := scheduler.New(cfg.Timezone, logger)
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	transport := whatsapp.New(cfg.Channels.WhatsApp, logger)

	ast, err := assistant.New(cfg, assistant.Deps{
		Transport:    transport,
		Completer:    llmClient,
		Memory:       store,
		Scheduler:    sched,
		AuthorizedID: authorizedID,
	}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Start web UI first (independent of the messaging link) ──
	var webServer *webui.Server
	if cfg.WebUI.Enabled {
		webServer = webui.New(cfg.WebUI, ast, logger)
		if err := webServer.Start(ctx); err != nil {
			logger.Error("failed to start web UI", "error", err)
		} else {
			logger.Info("web UI running", "address", cfg.WebUI.Address)
		}
	}

	// ── Start assistant (transport, processing loops, scheduler) ──
	if err := ast.Start(ctx); err != nil {
		if webServer != nil {
			webServer.Stop()
		}
		return fmt.Errorf("starting assistant: %w", err)
	}

	logger.Info("Brainy running. Press Ctrl+C to stop.",
		"name", cfg.Name,
		"mode", cfg.Mode,
		"timezone", cfg.Timezone,
	)

	// ── Wait for shutdown ──
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigChan:
		logger.Info("shutdown signal received, stopping...")
	case err := <-ast.Fatal():
		logger.Error("fatal error", "error", err)
		runErr = err
	}

	// Graceful shutdown with timeout.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if webServer != nil {
		webServer.Stop()
	}
	ast.Stop(shutdownCtx)

	if runErr != nil {
		return runErr
	}
	logger.Info("shutdown complete")
	return nil
}

// resolveConfig loads the config from the --config flag or standard
// locations.
func resolveConfig(cmd *cobra.Command) (*assistant.Config, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath != "" {
		cfg, err := assistant.LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	if found := assistant.FindConfigFile(); found != "" {
		cfg, err := assistant.LoadConfigFromFile(found)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", found, err)
		}
		slog.Info("config loaded", "path", found)
		return cfg, nil
	}

	return nil, fmt.Errorf("no configuration file found, run: brainy setup")
}
