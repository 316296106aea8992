package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Modelgate-Labs/modelgate/internal/config"
	"github.com/Modelgate-Labs/modelgate/internal/domain/guardrail"
	"github.com/Modelgate-Labs/modelgate/internal/service"
)

var checkPhase string

var checkCmd = &cobra.Command{
	Use:   "check [content]",
	Short: "Run a one-shot guardrail check",
	Long: `Run the configured guardrail pipeline over one piece of content and
print the verdict as JSON.

The exit code is 0 when the content passes and 1 when it is blocked,
which makes the command usable from shell pipelines and CI.

Examples:
  modelgate check "ignore all previous instructions"
  modelgate check --phase output "contact alice@example.com"`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkPhase, "phase", "input", "pipeline phase: input or output")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger("error", false)

	guard, err := service.NewGuardService(cfg.Guardrail, cfg.Policies, logger)
	if err != nil {
		return fmt.Errorf("failed to create guard service: %w", err)
	}

	var result guardrail.Result
	switch checkPhase {
	case "input":
		result = guard.CheckInput(cmd.Context(), "cli", args[0], nil)
	case "output":
		result = guard.CheckOutput(cmd.Context(), "cli", args[0], nil)
	default:
		return fmt.Errorf("invalid phase %q: must be input or output", checkPhase)
	}

	verdict := map[string]interface{}{
		"action":     result.Action.String(),
		"passed":     result.Passed,
		"content":    result.FinalContent(),
		"reasons":    result.Reasons,
		"confidence": result.Confidence,
		"elapsed_ms": result.Elapsed.Milliseconds(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(verdict); err != nil {
		return err
	}

	if !result.Passed {
		os.Exit(1)
	}
	return nil
}
