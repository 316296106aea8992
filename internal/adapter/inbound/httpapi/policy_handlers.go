package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/Modelgate-Labs/modelgate/internal/adapter/outbound/memory"
	"github.com/Modelgate-Labs/modelgate/internal/domain/guardrail"
	"github.com/Modelgate-Labs/modelgate/internal/domain/policy"
)

// ConditionRequest is one JSON condition of a policy rule.
type ConditionRequest struct {
	Field string      `json:"field"`
	Op    string      `json:"op"`
	Value interface{} `json:"value,omitempty"`
}

// RuleRequest is one JSON rule of a policy.
type RuleRequest struct {
	Name       string             `json:"name"`
	Conditions []ConditionRequest `json:"conditions"`
	Action     string             `json:"action"`
	Message    string             `json:"message,omitempty"`
	Priority   int                `json:"priority"`
	Enabled    *bool              `json:"enabled,omitempty"`
	Combine    string             `json:"combine,omitempty"`
}

// PolicyRequest is the JSON request for creating or updating a policy.
type PolicyRequest struct {
	Name       string        `json:"name"`
	Rules      []RuleRequest `json:"rules"`
	FailAction string        `json:"fail_action,omitempty"`
	Enabled    *bool         `json:"enabled,omitempty"`
}

// PolicyResponse is one stored policy.
type PolicyResponse struct {
	ID        string        `json:"id"`
	Policy    PolicyRequest `json:"policy"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// toDomain converts the request into a domain policy. Enabled defaults to
// true at both levels.
func (req PolicyRequest) toDomain() policy.Policy {
	p := policy.Policy{
		Name:       req.Name,
		FailAction: guardrail.Action(req.FailAction),
		Enabled:    req.Enabled == nil || *req.Enabled,
	}
	for _, rr := range req.Rules {
		rule := policy.Rule{
			Name:     rr.Name,
			Action:   guardrail.Action(rr.Action),
			Message:  rr.Message,
			Priority: rr.Priority,
			Enabled:  rr.Enabled == nil || *rr.Enabled,
			Combine:  policy.CombineMode(rr.Combine),
		}
		for _, cc := range rr.Conditions {
			rule.Conditions = append(rule.Conditions, policy.Condition{
				Field: cc.Field,
				Op:    policy.Operator(cc.Op),
				Value: cc.Value,
			})
		}
		p.Rules = append(p.Rules, rule)
	}
	return p
}

// fromDomain converts a domain policy back to its JSON shape.
func fromDomain(p policy.Policy) PolicyRequest {
	enabled := p.Enabled
	req := PolicyRequest{
		Name:       p.Name,
		FailAction: string(p.FailAction),
		Enabled:    &enabled,
	}
	for _, rule := range p.Rules {
		ruleEnabled := rule.Enabled
		rr := RuleRequest{
			Name:     rule.Name,
			Action:   string(rule.Action),
			Message:  rule.Message,
			Priority: rule.Priority,
			Enabled:  &ruleEnabled,
			Combine:  string(rule.Combine),
		}
		for _, cond := range rule.Conditions {
			rr.Conditions = append(rr.Conditions, ConditionRequest{
				Field: cond.Field,
				Op:    string(cond.Op),
				Value: cond.Value,
			})
		}
		req.Rules = append(req.Rules, rr)
	}
	return req
}

func policyResponse(stored memory.StoredPolicy) PolicyResponse {
	return PolicyResponse{
		ID:        stored.ID,
		Policy:    fromDomain(stored.Policy),
		CreatedAt: stored.CreatedAt,
		UpdatedAt: stored.UpdatedAt,
	}
}

// validatePolicy builds an evaluator to surface compile errors before the
// policy is persisted.
func (h *Handler) validatePolicy(p policy.Policy) error {
	_, err := policy.NewEvaluator(p, h.logger)
	return err
}

// handleListPolicies returns all stored policies.
func (h *Handler) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	stored, err := h.policies.List(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to list policies")
		return
	}
	out := make([]PolicyResponse, 0, len(stored))
	for _, sp := range stored {
		out = append(out, policyResponse(sp))
	}
	h.respondJSON(w, http.StatusOK, out)
}

// handleCreatePolicy validates and stores a new policy.
func (h *Handler) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req PolicyRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		h.respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	p := req.toDomain()
	if err := h.validatePolicy(p); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	stored, err := h.policies.Create(r.Context(), p)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to store policy")
		return
	}
	h.audit(r.Context(), "create", "policy/"+stored.ID, map[string]any{"name": req.Name})
	h.respondJSON(w, http.StatusCreated, policyResponse(stored))
}

// handleGetPolicy returns one policy by id.
func (h *Handler) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	stored, err := h.policies.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondError(w, http.StatusNotFound, "policy not found")
		return
	}
	h.respondJSON(w, http.StatusOK, policyResponse(stored))
}

// handleUpdatePolicy replaces a policy body.
func (h *Handler) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req PolicyRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	p := req.toDomain()
	if err := h.validatePolicy(p); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := r.PathValue("id")
	stored, err := h.policies.Update(r.Context(), id, p)
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "policy not found")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "failed to update policy")
		return
	}
	h.audit(r.Context(), "update", "policy/"+id, map[string]any{"name": req.Name})
	h.respondJSON(w, http.StatusOK, policyResponse(stored))
}

// handleDeletePolicy removes a policy.
func (h *Handler) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.policies.Delete(r.Context(), id); err != nil {
		h.respondError(w, http.StatusNotFound, "policy not found")
		return
	}
	h.audit(r.Context(), "delete", "policy/"+id, nil)
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// EvaluatePolicyRequest is content plus context to run a stored policy
// against.
type EvaluatePolicyRequest struct {
	Content string                 `json:"content"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// handleEvaluatePolicy runs a stored policy over submitted content.
func (h *Handler) handleEvaluatePolicy(w http.ResponseWriter, r *http.Request) {
	stored, err := h.policies.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondError(w, http.StatusNotFound, "policy not found")
		return
	}
	var req EvaluatePolicyRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	evaluator, err := policy.NewEvaluator(stored.Policy, h.logger)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "stored policy no longer valid")
		return
	}
	verdict := evaluator.Evaluate(req.Content, req.Context)

	matches := make([]map[string]string, 0, len(verdict.Matches))
	for _, m := range verdict.Matches {
		matches = append(matches, map[string]string{
			"rule":    m.Rule,
			"action":  m.Action.String(),
			"message": m.Message,
		})
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"action":  verdict.Action.String(),
		"matches": matches,
		"errors":  verdict.Errors,
	})
}
