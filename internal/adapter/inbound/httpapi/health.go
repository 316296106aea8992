package httpapi

import (
	"net/http"
	"time"
)

// healthResponse is the /health payload.
type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Persistent    bool   `json:"persistent"`
}

// handleHealth reports liveness. Always 200 once the process serves
// requests; readiness gating belongs to the deployment layer.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Persistent:    h.store != nil,
	})
}
