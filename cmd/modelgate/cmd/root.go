// Package cmd provides the CLI commands for Modelgate.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Modelgate-Labs/modelgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "modelgate",
	Short: "Modelgate - AI safety control plane",
	Long: `Modelgate is a control plane for AI safety: guardrail checks on model
input and output, interception and sandboxing of agent tool calls, and
scored safety evaluations with deployment gates.

Quick start:
  1. Create a config file: modelgate.yaml
  2. Run: modelgate serve

Configuration:
  Config is loaded from modelgate.yaml in the current directory,
  $HOME/.modelgate/, or /etc/modelgate/.

  Environment variables can override config values with the MODELGATE_ prefix.
  Example: MODELGATE_SERVER_HTTP_ADDR=:9090

Commands:
  serve       Start the HTTP API server
  bridge      Gate an MCP tool server behind the interception pipeline
  check       Run a one-shot guardrail check
  hash-key    Generate an Argon2id hash for an API key
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./modelgate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

// newLogger builds the process logger on stderr. Stdout stays reserved for
// the MCP stream in bridge mode.
func newLogger(level string, devMode bool) *slog.Logger {
	logLevel := parseLogLevel(level)
	if devMode {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
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
