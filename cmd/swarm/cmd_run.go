package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"swarm/pkg/bus"
	"swarm/pkg/config"
	"swarm/pkg/coord"
	"swarm/pkg/engine"
	enganthropic "swarm/pkg/engine/anthropic"
	engopenai "swarm/pkg/engine/openai"
	"swarm/pkg/human"
	"swarm/pkg/mcp"
	"swarm/pkg/memory"
	"swarm/pkg/metrics"
	"swarm/pkg/tool"
	"swarm/pkg/worker"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"
)

// newRunCmd creates the "swarm run" subcommand: the long-running agent loop.
func newRunCmd() *cobra.Command {
	var (
		configPath string
		spoolDir   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent work loop",
		Long:  "Start the autonomous work loop: poll the spool directory for task\nfiles, execute them through the tool engine, and record every step\non the event log. Runs until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if spoolDir == "" {
				return fmt.Errorf("--spool is required")
			}
			if err := os.MkdirAll(spoolDir, 0o755); err != nil {
				return fmt.Errorf("create spool dir: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runLoop(ctx, cfg, spoolDir, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to TOML config (defaults apply when unset)")
	cmd.Flags().StringVar(&spoolDir, "spool", "", "directory holding queued task files")
	return cmd
}

// runLoop wires the runtime together and blocks until ctx is cancelled.
func runLoop(ctx context.Context, cfg config.Config, spoolDir string, out io.Writer) error {
	logger := slog.New(slog.NewTextHandler(out, nil)).With("agent", cfg.AgentID)

	db, events, learnings, err := openStores(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server", "error", err)
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	b := bus.New(events, logger, m)
	defer b.Close()

	recall := memory.NewService(learnings, b, cfg.AgentID, logger)

	tracker := coord.NewTracker(b)
	defer tracker.Close()

	humans := human.NewRegistry(b, logger)
	defer humans.Close()

	registry := mcp.NewRegistry(logger)
	for _, src := range cfg.ToolSources {
		client, err := mcp.Spawn(ctx, src.Name, src.Command, src.Args, logger)
		if err != nil {
			logger.Warn("tool source unavailable", "source", src.Name, "error", err)
			continue
		}
		if err := registry.AddSource(ctx, src.Name, client); err != nil {
			logger.Warn("tool source rejected", "source", src.Name, "error", err)
		}
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithRemoteExecutor(mcp.NewExecutor(registry)),
	}
	if model := newModelCaller(cfg.Model); model != nil {
		opts = append(opts, engine.WithModel(model))
	}
	eng := engine.New(tool.NewLocalExecutor(), opts...)

	agent := newSpoolAgent(spoolDir, cfg.AgentID, eng, b, logger)
	for _, t := range builtinTools(recall, humans) {
		agent.RegisterTool(t)
	}

	loop := worker.NewLoop(agent, cfg.AgentID, workerConfig(cfg.Loop), b, logger, m)
	loop.Start(ctx)
	defer loop.Stop()

	watchDir := cfg.Loop.WatchDir
	if watchDir == "" {
		watchDir = spoolDir
	}
	if err := loop.Watch(ctx, watchDir); err != nil {
		logger.Warn("spool watch unavailable, polling only", "dir", watchDir, "error", err)
	}

	logger.Info("swarm running", "db", cfg.DBPath, "spool", spoolDir)
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// newModelCaller builds the completion backend named by the config, or nil
// when no provider is configured.
func newModelCaller(mc config.ModelConfig) engine.ModelCaller {
	switch mc.Provider {
	case "anthropic":
		return enganthropic.New(func(o *enganthropic.Options) {
			if mc.Name != "" {
				o.Model = anthropicsdk.Model(mc.Name)
			}
		})
	case "openai":
		return engopenai.New(func(o *engopenai.Options) {
			if mc.Name != "" {
				o.Model = mc.Name
			}
		})
	}
	return nil
}

// workerConfig converts the file representation to loop tuning.
func workerConfig(lc config.LoopConfig) worker.Config {
	return worker.Config{
		MaxPerHour:      lc.MaxPerHour,
		PollInterval:    lc.PollInterval.Std(),
		BackoffInterval: lc.BackoffInterval.Std(),
		BaseDelay:       lc.BaseDelay.Std(),
		CapDelay:        lc.CapDelay.Std(),
		ItemTimeout:     lc.ItemTimeout.Std(),
	}
}
