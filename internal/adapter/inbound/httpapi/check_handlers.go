package httpapi

import (
	"net/http"
	"time"

	"github.com/Modelgate-Labs/modelgate/internal/adapter/outbound/sqlite"
	"github.com/Modelgate-Labs/modelgate/internal/config"
	"github.com/Modelgate-Labs/modelgate/internal/domain/guardrail"
)

// CheckRequest is the JSON request for a guardrail check.
type CheckRequest struct {
	SessionID string                 `json:"session_id"`
	Content   string                 `json:"content"`
	Phase     string                 `json:"phase"` // input (default) or output
	Context   map[string]interface{} `json:"context,omitempty"`
}

// CheckResponse is the JSON verdict for one guardrail check.
type CheckResponse struct {
	Action     string                 `json:"action"`
	Passed     bool                   `json:"passed"`
	Content    string                 `json:"content,omitempty"`
	Reasons    []string               `json:"reasons,omitempty"`
	Confidence float64                `json:"confidence"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	ElapsedMS  int64                  `json:"elapsed_ms"`
}

// handleGuardCheck runs one phase of the pipeline over the content.
func (h *Handler) handleGuardCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Content == "" {
		h.respondError(w, http.StatusBadRequest, "content is required")
		return
	}
	phase := req.Phase
	if phase == "" {
		phase = "input"
	}

	var result guardrail.Result
	switch phase {
	case "input":
		result = h.guard.CheckInput(r.Context(), req.SessionID, req.Content, req.Context)
	case "output":
		result = h.guard.CheckOutput(r.Context(), req.SessionID, req.Content, req.Context)
	default:
		h.respondError(w, http.StatusBadRequest, "phase must be input or output")
		return
	}

	if h.metrics != nil {
		h.metrics.ChecksTotal.WithLabelValues(phase, result.Action.String()).Inc()
		h.metrics.CheckDuration.WithLabelValues(phase).Observe(result.Elapsed.Seconds())
	}
	h.recordCheckEvent(r, req.SessionID, phase, result)

	h.respondJSON(w, http.StatusOK, CheckResponse{
		Action:     result.Action.String(),
		Passed:     result.Passed,
		Content:    result.FinalContent(),
		Reasons:    result.Reasons,
		Confidence: result.Confidence,
		Metadata:   result.Metadata,
		ElapsedMS:  result.Elapsed.Milliseconds(),
	})
}

// recordCheckEvent persists the verdict when a store is configured and
// fans it out over pub/sub when a publisher is wired.
func (h *Handler) recordCheckEvent(r *http.Request, sessionID, phase string, result guardrail.Result) {
	event := sqlite.GuardrailEvent{
		SessionID: sessionID,
		Check:     phase,
		Action:    result.Action.String(),
		Reasons:   result.Reasons,
		ElapsedMS: result.Elapsed.Milliseconds(),
	}
	h.publishEvent(r.Context(), "guard.check", event)
	if h.store == nil {
		return
	}
	if err := h.store.RecordGuardrailEvent(r.Context(), event); err != nil {
		h.logger.Error("failed to record guardrail event", "session_id", sessionID, "error", err)
	}
}

// handleGuardStats returns the pipeline metrics snapshot.
func (h *Handler) handleGuardStats(w http.ResponseWriter, r *http.Request) {
	stats := h.guard.Stats()
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"total":           stats.Total,
		"passed":          stats.Passed,
		"blocked":         stats.Blocked,
		"modified":        stats.Modified,
		"errors":          stats.Errors,
		"mean_latency_ms": float64(stats.MeanLatency) / float64(time.Millisecond),
		"checkpoints":     stats.Checkpoints,
		"cache_entries":   h.guard.CacheSize(),
	})
}

// RulesRequest carries custom rules for validation.
type RulesRequest struct {
	Rules []config.PolicyRuleConfig `json:"rules"`
}

// handleValidateRules compiles the submitted CEL rules without applying
// them.
func (h *Handler) handleValidateRules(w http.ResponseWriter, r *http.Request) {
	var req RulesRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := h.guard.ValidateRules(req.Rules); err != nil {
		h.respondJSON(w, http.StatusOK, map[string]interface{}{"valid": false, "error": err.Error()})
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"valid": true})
}
