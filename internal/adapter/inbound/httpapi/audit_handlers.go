package httpapi

import (
	"net/http"
	"strconv"
	"time"
)

// handleListEvents queries persisted guardrail events. Filters via query
// parameters: session_id, limit.
func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.respondError(w, http.StatusServiceUnavailable, "persistent storage not configured")
		return
	}
	q := r.URL.Query()
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	events, err := h.store.ListGuardrailEvents(r.Context(), q.Get("session_id"), limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	h.respondJSON(w, http.StatusOK, events)
}

// handleListAudit queries the persistent configuration audit log. Filters
// via query parameters: since (RFC 3339), limit.
func (h *Handler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.respondError(w, http.StatusServiceUnavailable, "persistent storage not configured")
		return
	}
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
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	entries, err := h.store.ListAudit(r.Context(), since, limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}
	h.respondJSON(w, http.StatusOK, entries)
}
