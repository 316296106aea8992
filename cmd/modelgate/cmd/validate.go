package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Modelgate-Labs/modelgate/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate a config file",
	Long: `Strictly parse and validate a Modelgate config file.

Unlike normal startup, validation rejects unknown keys, so typos that
would silently fall back to defaults are reported. Without an argument
the --config flag or the standard search locations are used.

Example:
  modelgate validate modelgate.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		path = config.ConfigFileUsed()
	}
	if path == "" {
		return errors.New("no config file found: pass a path or use --config")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	cfg, err := config.ParseStrict(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	fmt.Printf("%s: OK\n", path)
	fmt.Printf("  checkpoints:      %d\n", len(cfg.Guardrail.Checkpoints))
	fmt.Printf("  custom rules:     %d\n", len(cfg.Policies))
	fmt.Printf("  api keys:         %d\n", len(cfg.Auth.APIKeys))
	fmt.Printf("  sandbox mode:     %s\n", cfg.Sandbox.Mode)
	fmt.Printf("  threshold policy: %s\n", cfg.Threshold.Policy)
	return nil
}
