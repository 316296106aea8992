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

	"github.com/spf13/cobra"

	"github.com/Modelgate-Labs/modelgate/internal/adapter/inbound/httpapi"
	"github.com/Modelgate-Labs/modelgate/internal/adapter/outbound/memory"
	"github.com/Modelgate-Labs/modelgate/internal/adapter/outbound/redisstore"
	"github.com/Modelgate-Labs/modelgate/internal/adapter/outbound/sqlite"
	"github.com/Modelgate-Labs/modelgate/internal/config"
	"github.com/Modelgate-Labs/modelgate/internal/service"
	"github.com/Modelgate-Labs/modelgate/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the Modelgate HTTP API server.

The server exposes guardrail checks, tool-call interception, agent trace
evaluation, and model safety evaluations under /api/v1/, plus Prometheus
metrics on /metrics and a health probe on /health.

Examples:
  # Start with config file settings
  modelgate serve

  # Start with a specific config file
  modelgate --config /path/to/config.yaml serve

  # Override the listen address
  MODELGATE_SERVER_HTTP_ADDR=:9090 modelgate serve`,
	RunE: runServe,
}

var devMode bool

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging, open API)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}

	logger := newLogger(cfg.Server.LogLevel, cfg.DevMode)
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	// stop() restores default signal handling so a second Ctrl+C does a
	// hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	if err := serve(ctx, cfg, logger); err != nil {
		return err
	}
	logger.Info("modelgate stopped")
	return nil
}

// serve wires the adapters and services together and runs the HTTP server
// until the context is cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	provider, err := telemetry.NewProvider(telemetry.Config{
		Enabled:     cfg.Telemetry.TracingEnabled,
		Exporter:    "stdout",
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	// Persistent store is optional; without it the event, audit, and
	// async evaluation endpoints degrade gracefully.
	var store *sqlite.Store
	if cfg.Storage.SQLitePath != "" {
		store, err = sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open sqlite store: %w", err)
		}
		defer func() { _ = store.Close() }()
		logger.Info("sqlite store opened", "path", cfg.Storage.SQLitePath)
	}

	// Redis fans check and interception events out to subscribers. An
	// unreachable redis is non-fatal: events stay local.
	var events httpapi.EventPublisher
	if cfg.Storage.RedisAddr != "" {
		redisClient, err := redisstore.New(cfg.Storage.RedisAddr, cfg.Storage.RedisPassword, cfg.Storage.RedisDB)
		if err != nil {
			logger.Warn("redis unavailable, event fanout disabled",
				"addr", cfg.Storage.RedisAddr, "error", err)
		} else {
			defer func() { _ = redisClient.Close() }()
			events = redisClient
			logger.Info("redis event fanout enabled", "addr", cfg.Storage.RedisAddr)
		}
	}

	guard, err := service.NewGuardService(cfg.Guardrail, cfg.Policies, logger,
		service.WithGuardTelemetry(provider))
	if err != nil {
		return fmt.Errorf("failed to create guard service: %w", err)
	}

	intercepts, err := service.NewInterceptService(cfg.Intercept, cfg.Sandbox, logger,
		service.WithInterceptTelemetry(provider))
	if err != nil {
		return fmt.Errorf("failed to create intercept service: %w", err)
	}
	defer intercepts.Close()

	var evalStore service.EvaluationStore
	if store != nil {
		evalStore = store
	}
	evals, err := service.NewEvaluationService(cfg.Threshold, evalStore, logger,
		service.WithEvaluationTelemetry(provider))
	if err != nil {
		return fmt.Errorf("failed to create evaluation service: %w", err)
	}
	defer evals.Close()

	apiKeys := cfg.Auth.APIKeys
	if cfg.DevMode {
		apiKeys = nil
		logger.Warn("dev mode: API authentication disabled")
	}

	handler := httpapi.NewHandler(
		httpapi.WithGuardService(guard),
		httpapi.WithInterceptService(intercepts),
		httpapi.WithEvaluationService(evals),
		httpapi.WithPolicyStore(memory.NewPolicyStore()),
		httpapi.WithGuardrailStore(memory.NewGuardrailStore()),
		httpapi.WithStore(store),
		httpapi.WithEventPublisher(events),
		httpapi.WithAPIKeys(apiKeys),
		httpapi.WithLogger(logger),
		httpapi.WithVersion(Version),
	)

	logger.Info("modelgate starting",
		"version", Version,
		"dev_mode", cfg.DevMode,
		"http_addr", cfg.Server.HTTPAddr,
		"checkpoints", len(cfg.Guardrail.Checkpoints),
		"custom_rules", len(cfg.Policies),
		"sandbox_mode", cfg.Sandbox.Mode,
		"threshold_policy", cfg.Threshold.Policy,
		"persistent", store != nil,
	)
	printBanner(Version, cfg.Server.HTTPAddr, cfg.DevMode)

	server := httpapi.NewServer(handler,
		httpapi.WithAddr(cfg.Server.HTTPAddr),
		httpapi.WithShutdownTimeout(config.ParseDuration(cfg.Server.ShutdownTimeout, 10*time.Second)),
		httpapi.WithServerLogger(logger),
	)
	return server.Start(ctx)
}

// printBanner prints a formatted startup banner to stderr.
func printBanner(version, httpAddr string, devMode bool) {
	const (
		reset = "\033[0m"
		bold  = "\033[1m"
		cyan  = "\033[36m"
		green = "\033[32m"
		amber = "\033[33m"
		dim   = "\033[2m"
	)

	apiURL := fmt.Sprintf("http://localhost%s/api/v1", httpAddr)
	metricsURL := fmt.Sprintf("http://localhost%s/metrics", httpAddr)
	if !strings.HasPrefix(httpAddr, ":") {
		apiURL = fmt.Sprintf("http://%s/api/v1", httpAddr)
		metricsURL = fmt.Sprintf("http://%s/metrics", httpAddr)
	}

	modeStr := green + "production" + reset
	if devMode {
		modeStr = amber + "development" + reset + dim + " (no auth)" + reset
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  %s%sModelgate %s%s\n", bold, cyan, version, reset)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "  %-10s %s\n", "API:", apiURL)
	fmt.Fprintf(os.Stderr, "  %-10s %s\n", "Metrics:", metricsURL)
	fmt.Fprintf(os.Stderr, "  %-10s %s\n", "Mode:", modeStr)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "\n")
}
