package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opuscare/sahayak/internal/api"
	"github.com/opuscare/sahayak/internal/backfill"
	"github.com/opuscare/sahayak/internal/classifier"
	"github.com/opuscare/sahayak/internal/config"
	"github.com/opuscare/sahayak/internal/dedup"
	"github.com/opuscare/sahayak/internal/flow"
	"github.com/opuscare/sahayak/internal/gateway"
	"github.com/opuscare/sahayak/internal/ledger"
	"github.com/opuscare/sahayak/internal/opsalert"
	"github.com/opuscare/sahayak/internal/orchestrator"
	"github.com/opuscare/sahayak/internal/store"
	"github.com/opuscare/sahayak/internal/tools"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "sahayak",
		Short:        "Hinglish support agent for the Opus Care voice line",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), validateFlowsCmd(), backfillCmd(), dedupCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent: NATS subscriptions plus the ops HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("sahayak starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	slog.Info("database connected")

	gw, err := gateway.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer gw.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	registry := tools.NewRegistry(cfg.DataDir, cfg.CallerNumber)
	flows := flow.NewStore(cfg.FlowsDir)
	if issues := flows.Validate(registry); len(issues) > 0 {
		for _, issue := range issues {
			slog.Error("flow validation failed", "flow", issue.Flow, "step", issue.Step, "problem", issue.Problem)
		}
		return fmt.Errorf("%d flow validation issues", len(issues))
	}
	slog.Info("flows validated", "dir", cfg.FlowsDir)

	// Ops alerts are optional. Escalations and sink failures still land in
	// the logs when no chat channel is configured.
	poster := opsalert.NewPoster(cfg.OpsChatToken, cfg.OpsChatChannel, slog.Default())
	if poster.Enabled() {
		slog.Info("ops alerts ready", "channel", cfg.OpsChatChannel)
	} else {
		slog.Warn("ops chat not configured, alerts go to logs only")
	}

	led := ledger.New(db, poster, slog.Default(), cfg.LedgerMaxAttempts)

	orch := orchestrator.New(orchestrator.Config{
		Classifier:  classifier.New(cfg.ConfidenceMin),
		Flows:       flows,
		Tools:       registry,
		Ledger:      led,
		Publisher:   gw,
		Escalator:   poster,
		Logger:      slog.Default(),
		SessionTTL:  cfg.SessionTTL,
		ToolTimeout: cfg.ToolTimeout,
	})

	if err := gw.Subscribe(gateway.SubjectUtterance, orch.HandleUtterance); err != nil {
		return fmt.Errorf("subscribe to utterances: %w", err)
	}
	if err := gw.Subscribe(gateway.SubjectCallClosed, orch.HandleCallClosed); err != nil {
		return fmt.Errorf("subscribe to call closed: %w", err)
	}

	srv := api.NewServer(cfg.Port, db, orch.Sessions(), flows, registry)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	instance, _ := os.Hostname()
	if instance == "" {
		instance = "sahayak"
	}
	if err := gw.Publish(gateway.SubjectRegistered, gateway.RegisteredEvent{
		Instance:  instance,
		StartedAt: time.Now().UTC(),
	}); err != nil {
		slog.Warn("failed to publish registration", "error", err)
	}

	slog.Info("sahayak ready", "port", cfg.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("sahayak stopped")
	return nil
}

func validateFlowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-flows",
		Short: "Check every intent's flow file and exit non-zero on problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			setupLogging(cfg.LogLevel)

			registry := tools.NewRegistry(cfg.DataDir, cfg.CallerNumber)
			issues := flow.NewStore(cfg.FlowsDir).Validate(registry)
			if len(issues) == 0 {
				fmt.Println("flows OK")
				return nil
			}
			for _, issue := range issues {
				fmt.Printf("%s/%s: %s\n", issue.Flow, issue.Step, issue.Problem)
			}
			return fmt.Errorf("%d flow validation issues", len(issues))
		},
	}
}

func backfillCmd() *cobra.Command {
	var (
		file      string
		statePath string
		dryRun    bool
		source    string
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Import a legacy complaints.json ledger into the record store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			setupLogging(cfg.LogLevel)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			db, err := store.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()
			if err := db.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}

			runner := backfill.NewRunner(backfill.Config{
				File:      file,
				StatePath: statePath,
				DryRun:    dryRun,
				Source:    source,
			}, db, slog.Default())
			return runner.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&file, "file", "data/complaints.json", "path to the legacy complaints.json")
	cmd.Flags().StringVar(&statePath, "state", "sahayak-backfill-state.json", "path to the resumable state file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and report without writing records")
	cmd.Flags().StringVar(&source, "source", "", "source label for imported records (default backfill)")
	return cmd
}

func dedupCmd() *cobra.Command {
	var execute bool
	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Sweep duplicate records left by pre-constraint imports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			setupLogging(cfg.LogLevel)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			db, err := store.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			result, err := dedup.New(db, slog.Default()).Sweep(ctx, execute)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal result: %w", err)
			}
			fmt.Println(string(out))
			if !execute {
				fmt.Println("dry run: pass --execute to delete")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&execute, "execute", false, "actually delete the duplicates")
	return cmd
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
