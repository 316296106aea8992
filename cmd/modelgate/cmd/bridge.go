package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Modelgate-Labs/modelgate/internal/adapter/inbound/mcpbridge"
	"github.com/Modelgate-Labs/modelgate/internal/config"
	"github.com/Modelgate-Labs/modelgate/internal/service"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge -- command [args...]",
	Short: "Gate an MCP tool server behind the interception pipeline",
	Long: `Run an MCP tool server as a subprocess and gate it over stdio.

The bridge speaks newline-delimited JSON-RPC on stdin/stdout. tools/call
requests are run through the interception pipeline before they reach the
server; blocked calls are answered with a JSON-RPC error instead. When
output checkpoints are configured, tool results are filtered on the way
back.

Examples:
  # Gate a filesystem tool server
  modelgate bridge -- npx @modelcontextprotocol/server-filesystem /tmp

  # With a specific config file
  modelgate --config /path/to/config.yaml bridge -- ./toolserver`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
}

func runBridge(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("tool server command required: modelgate bridge -- command [args]")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Logs go to stderr; stdout carries the MCP stream.
	logger := newLogger(cfg.Server.LogLevel, cfg.DevMode)

	intercepts, err := service.NewInterceptService(cfg.Intercept, cfg.Sandbox, logger)
	if err != nil {
		return fmt.Errorf("failed to create intercept service: %w", err)
	}
	defer intercepts.Close()

	opts := []mcpbridge.BridgeOption{
		mcpbridge.WithInterceptService(intercepts),
		mcpbridge.WithLogger(logger),
	}

	// Output filtering only when the config names output checkpoints.
	if hasOutputCheckpoint(cfg) {
		guard, err := service.NewGuardService(cfg.Guardrail, cfg.Policies, logger)
		if err != nil {
			return fmt.Errorf("failed to create guard service: %w", err)
		}
		opts = append(opts, mcpbridge.WithGuardService(guard))
	}

	upstream := mcpbridge.NewStdioUpstream(args[0], args[1:]...)
	logger.Info("bridge starting", "command", args[0], "args", args[1:])

	bridge := mcpbridge.NewBridge(opts...)
	return bridge.Run(cmd.Context(), os.Stdin, os.Stdout, upstream)
}

func hasOutputCheckpoint(cfg *config.Config) bool {
	for _, cp := range cfg.Guardrail.Checkpoints {
		if cp.Position == "output" || cp.Position == "both" {
			return true
		}
	}
	return false
}
