package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/Modelgate-Labs/modelgate/internal/adapter/outbound/memory"
	"github.com/Modelgate-Labs/modelgate/internal/config"
)

// GuardrailRequest is the JSON request for creating or updating a
// guardrail definition.
type GuardrailRequest struct {
	Name   string                    `json:"name"`
	Config config.GuardrailConfig    `json:"config"`
	Rules  []config.PolicyRuleConfig `json:"rules,omitempty"`
}

// GuardrailResponse is one stored guardrail definition.
type GuardrailResponse struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Config    config.GuardrailConfig `json:"config"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func guardrailResponse(g memory.StoredGuardrail) GuardrailResponse {
	return GuardrailResponse{
		ID:        g.ID,
		Name:      g.Name,
		Config:    g.Config,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

// handleListGuardrails returns all stored definitions.
func (h *Handler) handleListGuardrails(w http.ResponseWriter, r *http.Request) {
	stored, err := h.guardrails.List(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to list guardrails")
		return
	}
	out := make([]GuardrailResponse, 0, len(stored))
	for _, g := range stored {
		out = append(out, guardrailResponse(g))
	}
	h.respondJSON(w, http.StatusOK, out)
}

// handleCreateGuardrail validates and stores a new definition.
func (h *Handler) handleCreateGuardrail(w http.ResponseWriter, r *http.Request) {
	var req GuardrailRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		h.respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	stored, err := h.guardrails.Create(r.Context(), req.Name, req.Config)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to store guardrail")
		return
	}
	h.audit(r.Context(), "create", "guardrail/"+stored.ID, map[string]any{"name": req.Name})
	h.respondJSON(w, http.StatusCreated, guardrailResponse(stored))
}

// handleGetGuardrail returns one definition by id.
func (h *Handler) handleGetGuardrail(w http.ResponseWriter, r *http.Request) {
	stored, err := h.guardrails.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondError(w, http.StatusNotFound, "guardrail not found")
		return
	}
	h.respondJSON(w, http.StatusOK, guardrailResponse(stored))
}

// handleUpdateGuardrail replaces a definition body.
func (h *Handler) handleUpdateGuardrail(w http.ResponseWriter, r *http.Request) {
	var req GuardrailRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	id := r.PathValue("id")
	stored, err := h.guardrails.Update(r.Context(), id, req.Name, req.Config)
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "guardrail not found")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "failed to update guardrail")
		return
	}
	h.audit(r.Context(), "update", "guardrail/"+id, map[string]any{"name": req.Name})
	h.respondJSON(w, http.StatusOK, guardrailResponse(stored))
}

// handleDeleteGuardrail removes a definition.
func (h *Handler) handleDeleteGuardrail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.guardrails.Delete(r.Context(), id); err != nil {
		h.respondError(w, http.StatusNotFound, "guardrail not found")
		return
	}
	h.audit(r.Context(), "delete", "guardrail/"+id, nil)
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ActivateRequest optionally carries custom rules to load alongside the
// stored definition.
type ActivateRequest struct {
	Rules []config.PolicyRuleConfig `json:"rules,omitempty"`
}

// handleActivateGuardrail hot-reloads the running pipeline from a stored
// definition. Rules are validated before the swap so an invalid
// configuration cannot take the service down.
func (h *Handler) handleActivateGuardrail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	stored, err := h.guardrails.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "guardrail not found")
		return
	}

	var req ActivateRequest
	if r.ContentLength > 0 {
		if err := h.readJSON(r, &req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	if err := h.guard.ValidateRules(req.Rules); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.guard.Reload(stored.Config, req.Rules); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.audit(r.Context(), "activate", "guardrail/"+id, map[string]any{"name": stored.Name, "rules": len(req.Rules)})
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "active", "guardrail": stored.Name})
}
