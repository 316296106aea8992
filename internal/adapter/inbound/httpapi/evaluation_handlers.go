package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Modelgate-Labs/modelgate/internal/adapter/outbound/sqlite"
	"github.com/Modelgate-Labs/modelgate/internal/domain/score"
	"github.com/Modelgate-Labs/modelgate/internal/service"
)

// ModelRequest is the JSON request for registering a model.
type ModelRequest struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	Version  string            `json:"version,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// handleCreateModel registers a model in the persistent store.
func (h *Handler) handleCreateModel(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.respondError(w, http.StatusServiceUnavailable, "persistent storage not configured")
		return
	}
	var req ModelRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ID == "" || req.Name == "" {
		h.respondError(w, http.StatusBadRequest, "id and name are required")
		return
	}
	m := sqlite.Model{
		ID:       req.ID,
		Name:     req.Name,
		Type:     sqlite.ModelType(req.Type),
		Version:  req.Version,
		Metadata: req.Metadata,
	}
	if err := h.store.CreateModel(r.Context(), m); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.audit(r.Context(), "create", "model/"+req.ID, map[string]any{"name": req.Name, "type": req.Type})
	h.respondJSON(w, http.StatusCreated, m)
}

// handleListModels returns all registered models.
func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.respondError(w, http.StatusServiceUnavailable, "persistent storage not configured")
		return
	}
	models, err := h.store.ListModels(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to list models")
		return
	}
	h.respondJSON(w, http.StatusOK, models)
}

// EvaluationRequest is the JSON request for an evaluation run.
type EvaluationRequest struct {
	ModelID  string                `json:"model_id"`
	Pillars  []service.PillarInput `json:"pillars"`
	Strategy string                `json:"strategy,omitempty"`
}

// ReportResponse is the full evaluation outcome.
type ReportResponse struct {
	ID             string                 `json:"id"`
	ModelID        string                 `json:"model_id"`
	Overall        float64                `json:"overall"`
	Risk           string                 `json:"risk"`
	Strategy       string                 `json:"strategy"`
	Confidence     float64                `json:"confidence"`
	Contributions  map[string]float64     `json:"contributions,omitempty"`
	Pillars        []PillarResponse       `json:"pillars"`
	Passed         bool                   `json:"passed"`
	Levels         map[string]string      `json:"levels"`
	Violations     []ViolationResponse    `json:"violations,omitempty"`
	Recommendation RecommendationResponse `json:"recommendation"`
}

// PillarResponse is one pillar's scored result.
type PillarResponse struct {
	Pillar     string             `json:"pillar"`
	Value      float64            `json:"value"`
	Confidence float64            `json:"confidence"`
	Weight     float64            `json:"weight"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// ViolationResponse is one threshold violation.
type ViolationResponse struct {
	Pillar   string  `json:"pillar"`
	Score    float64 `json:"score"`
	Observed string  `json:"observed"`
	Expected string  `json:"expected"`
}

// RecommendationResponse pairs the deployment decision with suggestions.
type RecommendationResponse struct {
	Decision    string   `json:"decision"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func reportResponse(report service.EvaluationReport) ReportResponse {
	resp := ReportResponse{
		ID:            report.ID,
		ModelID:       report.ModelID,
		Overall:       report.Aggregate.Overall,
		Risk:          report.Aggregate.Risk.String(),
		Strategy:      string(report.Aggregate.Strategy),
		Confidence:    report.Aggregate.Confidence,
		Contributions: report.Aggregate.Contributions,
		Passed:        report.Check.Passed,
		Levels:        make(map[string]string, len(report.Check.Levels)),
		Recommendation: RecommendationResponse{
			Decision:    string(report.Recommendation.Decision),
			Suggestions: report.Recommendation.Suggestions,
		},
	}
	for pillar, level := range report.Check.Levels {
		resp.Levels[pillar] = level.String()
	}
	for _, p := range report.Pillars {
		resp.Pillars = append(resp.Pillars, PillarResponse{
			Pillar:     p.Pillar,
			Value:      p.Score.Value,
			Confidence: p.Score.Confidence,
			Weight:     p.Score.Weight,
			Metrics:    p.Metrics,
		})
	}
	for _, v := range report.Check.Violations {
		resp.Violations = append(resp.Violations, ViolationResponse{
			Pillar:   v.Pillar,
			Score:    v.Score,
			Observed: v.Observed.String(),
			Expected: v.Expected.String(),
		})
	}
	return resp
}

// handleSyncEvaluation runs an evaluation synchronously and returns the
// full report.
func (h *Handler) handleSyncEvaluation(w http.ResponseWriter, r *http.Request) {
	var req EvaluationRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	report, err := h.evals.Evaluate(r.Context(), req.ModelID, req.Pillars, score.Strategy(req.Strategy))
	if err != nil {
		if h.metrics != nil {
			h.metrics.EvaluationsTotal.WithLabelValues("error").Inc()
		}
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.metrics != nil {
		h.metrics.EvaluationsTotal.WithLabelValues(passedLabel(report.Check.Passed)).Inc()
	}
	h.respondJSON(w, http.StatusOK, reportResponse(report))
}

func passedLabel(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

// handleSubmitEvaluation starts an asynchronous evaluation.
func (h *Handler) handleSubmitEvaluation(w http.ResponseWriter, r *http.Request) {
	var req EvaluationRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	id, err := h.evals.Submit(r.Context(), req.ModelID, req.Pillars, score.Strategy(req.Strategy))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "pending"})
}

// handleGetEvaluation returns the stored evaluation with its per-pillar
// results.
func (h *Handler) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	eval, results, err := h.evals.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "evaluation not found")
			return
		}
		h.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"evaluation": eval,
		"results":    results,
	})
}

// handleListEvaluations queries stored evaluations. Filters via query
// parameters: model_id, status, since (RFC 3339), limit, offset.
func (h *Handler) handleListEvaluations(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.respondError(w, http.StatusServiceUnavailable, "persistent storage not configured")
		return
	}
	q := r.URL.Query()
	opts := sqlite.ListEvaluationsOptions{
		ModelID: q.Get("model_id"),
		Status:  sqlite.EvaluationStatus(q.Get("status")),
	}
	if raw := q.Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		opts.Since = &parsed
	}
	if raw := q.Get("limit"); raw != "" {
		opts.Limit, _ = strconv.Atoi(raw)
	}
	if raw := q.Get("offset"); raw != "" {
		opts.Offset, _ = strconv.Atoi(raw)
	}
	evals, err := h.store.ListEvaluations(r.Context(), opts)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to list evaluations")
		return
	}
	h.respondJSON(w, http.StatusOK, evals)
}

// handleCancelEvaluation stops a running evaluation.
func (h *Handler) handleCancelEvaluation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.evals.Cancel(r.Context(), id); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.audit(r.Context(), "cancel", "evaluation/"+id, nil)
	h.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "cancelled"})
}

// ThresholdPolicyRequest selects the running threshold policy by name.
type ThresholdPolicyRequest struct {
	Policy string `json:"policy"`
}

// handleLoadThresholdPolicy swaps the running deployment gate.
func (h *Handler) handleLoadThresholdPolicy(w http.ResponseWriter, r *http.Request) {
	var req ThresholdPolicyRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := h.evals.LoadPolicy(req.Policy); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.audit(r.Context(), "update", "threshold/policy", map[string]any{"policy": req.Policy})
	h.respondJSON(w, http.StatusOK, map[string]string{"policy": req.Policy})
}

// ComplianceRequest maps pillar scores onto a framework.
type ComplianceRequest struct {
	Framework    string             `json:"framework"`
	PillarScores map[string]float64 `json:"pillar_scores"`
	GapThreshold float64            `json:"gap_threshold,omitempty"`
}

// handleComplianceReport scores framework controls from pillar scores.
func (h *Handler) handleComplianceReport(w http.ResponseWriter, r *http.Request) {
	var req ComplianceRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	report, err := h.evals.ComplianceReport(req.Framework, req.PillarScores, req.GapThreshold)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	controls := make([]map[string]interface{}, 0, len(report.Controls))
	for _, c := range report.Controls {
		controls = append(controls, map[string]interface{}{
			"control": c.Control,
			"title":   c.Title,
			"score":   c.Score,
			"pillars": c.Pillars,
		})
	}
	gaps := make([]map[string]interface{}, 0, len(report.Gaps))
	for _, g := range report.Gaps {
		gaps = append(gaps, map[string]interface{}{
			"control":      g.Control,
			"title":        g.Title,
			"score":        g.Score,
			"worst_pillar": g.WorstPillar,
		})
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"framework":  report.Framework,
		"controls":   controls,
		"gaps":       gaps,
		"mean_score": report.MeanScore,
	})
}
