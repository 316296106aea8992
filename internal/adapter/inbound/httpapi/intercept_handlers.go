package httpapi

import (
	"net/http"
	"time"

	"github.com/Modelgate-Labs/modelgate/internal/domain/agent"
	"github.com/Modelgate-Labs/modelgate/internal/domain/guardrail"
	"github.com/Modelgate-Labs/modelgate/internal/domain/intercept"
)

// InterceptRequest is the JSON request for a tool-call verdict.
type InterceptRequest struct {
	SessionID string                 `json:"session_id"`
	ToolName  string                 `json:"tool_name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	Execute   bool                   `json:"execute,omitempty"`
}

// InterceptResponse is the JSON verdict, with the execution outcome when
// one was requested and admitted.
type InterceptResponse struct {
	Action    string             `json:"action"`
	RiskScore float64            `json:"risk_score"`
	Reasons   []string           `json:"reasons,omitempty"`
	ElapsedMS int64              `json:"elapsed_ms"`
	Execution *ExecutionResponse `json:"execution,omitempty"`
}

// ExecutionResponse is the sandboxed execution outcome.
type ExecutionResponse struct {
	Success   bool   `json:"success"`
	Stdout    string `json:"stdout,omitempty"`
	Stderr    string `json:"stderr,omitempty"`
	ExitCode  int    `json:"exit_code"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) toolCall(req InterceptRequest) intercept.ToolCall {
	return intercept.ToolCall{
		SessionID: req.SessionID,
		ToolName:  req.ToolName,
		Arguments: req.Arguments,
	}
}

func verdictResponse(result intercept.Result) InterceptResponse {
	return InterceptResponse{
		Action:    result.Action.String(),
		RiskScore: result.RiskScore,
		Reasons:   result.Reasons,
		ElapsedMS: result.Elapsed.Milliseconds(),
	}
}

// handleIntercept produces a verdict without executing the call.
func (h *Handler) handleIntercept(w http.ResponseWriter, r *http.Request) {
	var req InterceptRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ToolName == "" {
		h.respondError(w, http.StatusBadRequest, "tool_name is required")
		return
	}
	result := h.intercepts.Intercept(r.Context(), h.toolCall(req))
	if h.metrics != nil {
		h.metrics.InterceptionsTotal.WithLabelValues(result.Action.String()).Inc()
	}
	h.publishEvent(r.Context(), "intercept.verdict", map[string]interface{}{
		"session_id": req.SessionID,
		"tool_name":  req.ToolName,
		"action":     result.Action.String(),
		"risk_score": result.RiskScore,
	})
	h.respondJSON(w, http.StatusOK, verdictResponse(result))
}

// handleExecute intercepts and, when admitted, runs the call in a sandbox.
func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req InterceptRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ToolName == "" {
		h.respondError(w, http.StatusBadRequest, "tool_name is required")
		return
	}
	outcome, err := h.intercepts.Execute(r.Context(), h.toolCall(req))
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if h.metrics != nil {
		h.metrics.InterceptionsTotal.WithLabelValues(outcome.Verdict.Action.String()).Inc()
	}

	resp := verdictResponse(outcome.Verdict)
	if outcome.Execution != nil {
		resp.Execution = &ExecutionResponse{
			Success:   outcome.Execution.Success,
			Stdout:    outcome.Execution.Stdout,
			Stderr:    outcome.Execution.Stderr,
			ExitCode:  outcome.Execution.ExitCode,
			ElapsedMS: outcome.Execution.ElapsedMS,
			Error:     outcome.Execution.Error,
		}
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// AuditRecordResponse is one audited verdict.
type AuditRecordResponse struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	ToolName  string    `json:"tool_name"`
	Action    string    `json:"action"`
	RiskScore float64   `json:"risk_score"`
	Reasons   []string  `json:"reasons,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// handleInterceptAudit queries the in-memory verdict trail. Filters via
// query parameters: session_id, action, since (RFC 3339).
func (h *Handler) handleInterceptAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var since time.Time
	if raw := q.Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		since = parsed
	}

	records := h.intercepts.Trail().Query(q.Get("session_id"), guardrail.Action(q.Get("action")), since)
	out := make([]AuditRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, AuditRecordResponse{
			ID:        rec.ID,
			SessionID: rec.SessionID,
			ToolName:  rec.ToolName,
			Action:    rec.Action.String(),
			RiskScore: rec.RiskScore,
			Reasons:   rec.Reasons,
			Timestamp: rec.Timestamp,
		})
	}
	h.respondJSON(w, http.StatusOK, out)
}

// handleInterceptStats summarizes the verdict trail.
func (h *Handler) handleInterceptStats(w http.ResponseWriter, r *http.Request) {
	stats := h.intercepts.Trail().Stats()
	byAction := make(map[string]int, len(stats.ByAction))
	for action, n := range stats.ByAction {
		byAction[action.String()] = n
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"total":      stats.Total,
		"by_action":  byAction,
		"block_rate": stats.BlockRate,
		"mean_risk":  stats.MeanRisk,
	})
}

// TraceCallRequest is one call of a submitted agent trace.
type TraceCallRequest struct {
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// AgentEvaluateRequest is the JSON request for trace evaluation.
type AgentEvaluateRequest struct {
	AgentID string             `json:"agent_id"`
	Trace   []TraceCallRequest `json:"trace"`
}

// FindingResponse is one behavioral finding.
type FindingResponse struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// AgentEvaluateResponse is the trace evaluation outcome.
type AgentEvaluateResponse struct {
	AgentID         string            `json:"agent_id"`
	OverallScore    float64           `json:"overall_score"`
	Risk            string            `json:"risk"`
	TotalCalls      int               `json:"total_calls"`
	BlockedCalls    int               `json:"blocked_calls"`
	HighRiskCalls   int               `json:"high_risk_calls"`
	MediumRiskCalls int               `json:"medium_risk_calls"`
	LowRiskCalls    int               `json:"low_risk_calls"`
	Findings        []FindingResponse `json:"findings,omitempty"`
	ToolCounts      map[string]int    `json:"tool_counts,omitempty"`
	ElapsedMS       int64             `json:"elapsed_ms"`
}

// handleAgentEvaluate scores a full agent session trace.
func (h *Handler) handleAgentEvaluate(w http.ResponseWriter, r *http.Request) {
	var req AgentEvaluateRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Trace) == 0 {
		h.respondError(w, http.StatusBadRequest, "trace is required")
		return
	}

	trace := make([]agent.CallRecord, 0, len(req.Trace))
	for _, call := range req.Trace {
		trace = append(trace, agent.CallRecord{Tool: call.Tool, Arguments: call.Arguments})
	}
	result := h.intercepts.EvaluateTrace(r.Context(), req.AgentID, trace)

	resp := AgentEvaluateResponse{
		AgentID:         result.AgentID,
		OverallScore:    result.OverallScore,
		Risk:            result.Risk.String(),
		TotalCalls:      result.TotalCalls,
		BlockedCalls:    result.BlockedCalls,
		HighRiskCalls:   result.HighRiskCalls,
		MediumRiskCalls: result.MediumRiskCalls,
		LowRiskCalls:    result.LowRiskCalls,
		ToolCounts:      result.ToolCounts,
		ElapsedMS:       result.ElapsedMS,
	}
	for _, f := range result.Findings {
		resp.Findings = append(resp.Findings, FindingResponse{
			Type:        f.Type,
			Severity:    string(f.Severity),
			Description: f.Description,
		})
	}
	h.respondJSON(w, http.StatusOK, resp)
}
