package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/agentperch/perchgate/internal/adapter/inbound/mcptool"
	"github.com/agentperch/perchgate/internal/adapter/outbound/memory"
	"github.com/agentperch/perchgate/internal/adapter/outbound/sqlite"
	"github.com/agentperch/perchgate/internal/config"
	"github.com/agentperch/perchgate/internal/observe"
	"github.com/agentperch/perchgate/internal/service"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve the governance gateway over MCP stdio",
	Long: `Run the perchgate gateway.

The gateway serves the Model Context Protocol on stdio. An agent runtime
connects as an MCP client and calls perchgate_evaluate before every mutating
action, then perchgate_complete after performing it.

Examples:
  # Run with config file settings
  perchgate run

  # Run with a specific config file
  perchgate --config /path/to/perchgate.yaml run

  # Force dry-run regardless of config
  PERCHGATE_POLICY_DRY_RUN=true perchgate run`,
	RunE: runRun,
}

var modeFlag string

func init() {
	runCmd.Flags().StringVar(&modeFlag, "mode", "", "override operating mode (manual/supervised/autonomous)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if modeFlag != "" {
		cfg.Mode = modeFlag
		if !cfg.OperatingMode().IsValid() {
			return fmt.Errorf("invalid mode %q", modeFlag)
		}
	}

	// Signal context for graceful shutdown. stop() restores default signal
	// handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	// Logger goes to stderr; stdout is reserved for the MCP stream.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	return run(ctx, cfg, logger)
}

// run wires the stores, evaluator, gateway, and MCP server together and
// serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Telemetry exporters write to stderr for the same reason the logger
	// does: stdout carries the MCP stream.
	telemetry, err := observe.NewTelemetry(observe.TelemetryConfig{
		ServiceName:    "perchgate",
		ServiceVersion: Version,
		Enabled:        cfg.Telemetry.Enabled,
		Writer:         os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	metrics := observe.NewMetrics(registry)

	storeCfg := sqlite.DefaultConfig()
	storeCfg.Path = cfg.Store.Path
	store, err := sqlite.Open(storeCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	trail := sqlite.NewTrailStore(store)
	counters := sqlite.NewCounterStore(store)
	actions := sqlite.NewActionLog(store)
	queue := memory.NewApprovalQueue(memory.DefaultMaxPending)

	evaluator, err := service.NewEvaluator(counters, actions, logger)
	if err != nil {
		return fmt.Errorf("failed to create evaluator: %w", err)
	}

	gateway := service.NewGateway(evaluator, trail, queue, logger,
		service.WithMetrics(metrics),
		service.WithTracer(telemetry.Tracer()),
		service.WithDedupWindow(cfg.DedupWindow),
	)

	pol := cfg.ToPolicy()
	server := mcptool.New(mcptool.Config{
		Version: Version,
		Policy:  pol,
		Mode:    cfg.OperatingMode(),
	}, gateway, logger)

	logger.Info("perchgate starting",
		"version", Version,
		"mode", cfg.Mode,
		"template", pol.Template,
		"policy_version", pol.Version,
		"enforcing", pol.EnforceForMutations,
		"dry_run", pol.DryRun,
		"store", cfg.Store.Path,
		"dedup_window", cfg.DedupWindow,
	)

	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	if n := server.PendingCount(); n > 0 {
		logger.Warn("shutting down with uncompleted mutations", "pending", n)
	}
	logger.Info("perchgate stopped")
	return nil
}

// parseLogLevel converts a string log level to slog.Level. Returns
// slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
