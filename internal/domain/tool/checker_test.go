package tool

import (
	"context"
	"testing"

	"github.com/Modelgate-Labs/modelgate/internal/domain/score"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		toolName string
		want     score.RiskLevel
	}{
		{"delete operation", "file_delete", score.RiskCritical},
		{"execute operation", "execute_command", score.RiskCritical},
		{"shell operation", "shell_run", score.RiskCritical},
		{"sudo operation", "sudo_run", score.RiskCritical},
		{"truncate operation", "truncate_table", score.RiskCritical},
		{"mixed case", "FILE_DELETE", score.RiskCritical},
		{"write operation", "write_config", score.RiskHigh},
		{"upload operation", "upload_artifact", score.RiskHigh},
		{"deploy operation", "deploy_service", score.RiskHigh},
		{"fetch operation", "fetch_page", score.RiskMedium},
		{"query operation", "query_metrics", score.RiskMedium},
		{"export operation", "export_report", score.RiskMedium},
		{"informational", "help", score.RiskLow},
		{"list tool", "show_status", score.RiskLow},
		{"critical beats high", "create_and_delete", score.RiskCritical},
		{"high beats medium", "fetch_and_upload", score.RiskHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.toolName); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.toolName, got, tt.want)
			}
		})
	}
}

func TestPatternChecker(t *testing.T) {
	ctx := context.Background()

	t.Run("deny list is always unsafe", func(t *testing.T) {
		c := NewPatternChecker([]string{"calculator"}, nil)
		v, err := c.CheckTool(ctx, "calculator", nil)
		if err != nil {
			t.Fatal(err)
		}
		if v.Safe {
			t.Error("deny-listed tool reported safe")
		}
	})

	t.Run("critical unsafe by default", func(t *testing.T) {
		c := NewPatternChecker(nil, nil)
		v, err := c.CheckTool(ctx, "execute_shell", nil)
		if err != nil {
			t.Fatal(err)
		}
		if v.Safe || v.Risk != score.RiskCritical {
			t.Errorf("verdict = %+v", v)
		}
	})

	t.Run("allow list overrides critical", func(t *testing.T) {
		c := NewPatternChecker(nil, []string{"admin_reset"})
		v, err := c.CheckTool(ctx, "admin_reset", nil)
		if err != nil {
			t.Fatal(err)
		}
		if !v.Safe {
			t.Error("allow-listed critical tool reported unsafe")
		}
	})

	t.Run("ordinary tool is safe", func(t *testing.T) {
		c := NewPatternChecker(nil, nil)
		v, err := c.CheckTool(ctx, "summarize", nil)
		if err != nil {
			t.Fatal(err)
		}
		if !v.Safe || v.Risk != score.RiskLow {
			t.Errorf("verdict = %+v", v)
		}
	})
}
