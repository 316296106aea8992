package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Modelgate-Labs/modelgate/internal/adapter/outbound/memory"
	"github.com/Modelgate-Labs/modelgate/internal/adapter/outbound/sqlite"
	"github.com/Modelgate-Labs/modelgate/internal/config"
	"github.com/Modelgate-Labs/modelgate/internal/service"
)

// EventPublisher broadcasts runtime events to subscribers outside the
// process. Satisfied by the redis client.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, message []byte) error
}

// eventsChannel is the pub/sub channel guardrail and interception events
// are fanned out on.
const eventsChannel = "modelgate.events"

// Handler provides the JSON API endpoints for Modelgate: guardrail checks,
// tool-call interception, evaluations, and runtime policy management.
type Handler struct {
	guard      *service.GuardService
	intercepts *service.InterceptService
	evals      *service.EvaluationService
	policies   *memory.PolicyStore
	guardrails *memory.GuardrailStore
	store      *sqlite.Store
	events     EventPublisher
	apiKeys    []config.APIKeyConfig
	metrics    *Metrics
	logger     *slog.Logger
	version    string
	startTime  time.Time
}

// HandlerOption configures a Handler dependency.
type HandlerOption func(*Handler)

// WithGuardService sets the guardrail check service.
func WithGuardService(s *service.GuardService) HandlerOption {
	return func(h *Handler) { h.guard = s }
}

// WithInterceptService sets the tool-call interception service.
func WithInterceptService(s *service.InterceptService) HandlerOption {
	return func(h *Handler) { h.intercepts = s }
}

// WithEvaluationService sets the model evaluation service.
func WithEvaluationService(s *service.EvaluationService) HandlerOption {
	return func(h *Handler) { h.evals = s }
}

// WithPolicyStore sets the guard policy store.
func WithPolicyStore(s *memory.PolicyStore) HandlerOption {
	return func(h *Handler) { h.policies = s }
}

// WithGuardrailStore sets the guardrail definition store.
func WithGuardrailStore(s *memory.GuardrailStore) HandlerOption {
	return func(h *Handler) { h.guardrails = s }
}

// WithStore sets the persistent store. Optional; without it the event and
// audit endpoints report 503.
func WithStore(s *sqlite.Store) HandlerOption {
	return func(h *Handler) { h.store = s }
}

// WithEventPublisher enables pub/sub fanout of check and interception
// events. Optional; without it events stay local.
func WithEventPublisher(p EventPublisher) HandlerOption {
	return func(h *Handler) { h.events = p }
}

// WithAPIKeys sets the accepted API key hashes.
func WithAPIKeys(keys []config.APIKeyConfig) HandlerOption {
	return func(h *Handler) { h.apiKeys = keys }
}

// WithMetrics sets the Prometheus metrics.
func WithMetrics(m *Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = l }
}

// WithVersion sets the version string reported by the health endpoint.
func WithVersion(v string) HandlerOption {
	return func(h *Handler) { h.version = v }
}

// NewHandler creates a Handler with the given options.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		logger:    slog.Default(),
		version:   "dev",
		startTime: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns an http.Handler with all API routes registered. The
// health endpoint is accessible without authentication; everything else
// requires an API key when keys are configured.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)

	protected := http.NewServeMux()

	// Guardrail checks and runtime configuration.
	protected.HandleFunc("POST /api/v1/guard/check", h.handleGuardCheck)
	protected.HandleFunc("GET /api/v1/guard/stats", h.handleGuardStats)
	protected.HandleFunc("POST /api/v1/guard/rules/validate", h.handleValidateRules)

	// Guardrail definition CRUD + activation.
	protected.HandleFunc("GET /api/v1/guardrails", h.handleListGuardrails)
	protected.HandleFunc("POST /api/v1/guardrails", h.handleCreateGuardrail)
	protected.HandleFunc("GET /api/v1/guardrails/{id}", h.handleGetGuardrail)
	protected.HandleFunc("PUT /api/v1/guardrails/{id}", h.handleUpdateGuardrail)
	protected.HandleFunc("DELETE /api/v1/guardrails/{id}", h.handleDeleteGuardrail)
	protected.HandleFunc("POST /api/v1/guardrails/{id}/activate", h.handleActivateGuardrail)

	// Guard policy CRUD + evaluation.
	protected.HandleFunc("GET /api/v1/policies", h.handleListPolicies)
	protected.HandleFunc("POST /api/v1/policies", h.handleCreatePolicy)
	protected.HandleFunc("GET /api/v1/policies/{id}", h.handleGetPolicy)
	protected.HandleFunc("PUT /api/v1/policies/{id}", h.handleUpdatePolicy)
	protected.HandleFunc("DELETE /api/v1/policies/{id}", h.handleDeletePolicy)
	protected.HandleFunc("POST /api/v1/policies/{id}/evaluate", h.handleEvaluatePolicy)

	// Tool-call interception.
	protected.HandleFunc("POST /api/v1/intercept", h.handleIntercept)
	protected.HandleFunc("POST /api/v1/intercept/execute", h.handleExecute)
	protected.HandleFunc("GET /api/v1/intercept/audit", h.handleInterceptAudit)
	protected.HandleFunc("GET /api/v1/intercept/stats", h.handleInterceptStats)
	protected.HandleFunc("POST /api/v1/agents/evaluate", h.handleAgentEvaluate)

	// Models and evaluations.
	protected.HandleFunc("GET /api/v1/models", h.handleListModels)
	protected.HandleFunc("POST /api/v1/models", h.handleCreateModel)
	protected.HandleFunc("POST /api/v1/evaluations", h.handleSubmitEvaluation)
	protected.HandleFunc("POST /api/v1/evaluations/sync", h.handleSyncEvaluation)
	protected.HandleFunc("GET /api/v1/evaluations", h.handleListEvaluations)
	protected.HandleFunc("GET /api/v1/evaluations/{id}", h.handleGetEvaluation)
	protected.HandleFunc("POST /api/v1/evaluations/{id}/cancel", h.handleCancelEvaluation)
	protected.HandleFunc("PUT /api/v1/threshold/policy", h.handleLoadThresholdPolicy)
	protected.HandleFunc("POST /api/v1/compliance/report", h.handleComplianceReport)

	// Guardrail events and the configuration audit log.
	protected.HandleFunc("GET /api/v1/events", h.handleListEvents)
	protected.HandleFunc("GET /api/v1/audit", h.handleListAudit)

	mux.Handle("/api/", APIKeyMiddleware(h.apiKeys, h.logger)(protected))
	return mux
}

// --- JSON helper methods ---

// respondJSON writes a JSON response with the given status code and data.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response with the given status code.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// readJSON decodes the request body into the given value.
func (h *Handler) readJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// audit appends a configuration change to the persistent audit log when a
// store is configured. Failures are logged, never surfaced to the caller.
func (h *Handler) audit(ctx context.Context, action, resource string, detail map[string]any) {
	if h.store == nil {
		return
	}
	if err := h.store.AppendAudit(ctx, sqlite.AuditLog{
		Actor:    "api",
		Action:   action,
		Resource: resource,
		Detail:   detail,
	}); err != nil {
		h.logger.Error("failed to append audit log", "action", action, "error", err)
	}
}

// publishEvent fans an event out over pub/sub when a publisher is wired.
// Best-effort: failures are logged and the request proceeds.
func (h *Handler) publishEvent(ctx context.Context, kind string, payload interface{}) {
	if h.events == nil {
		return
	}
	raw, err := json.Marshal(map[string]interface{}{
		"kind": kind,
		"at":   time.Now().UTC().Format(time.RFC3339Nano),
		"data": payload,
	})
	if err != nil {
		return
	}
	if err := h.events.Publish(ctx, eventsChannel, raw); err != nil {
		h.logger.Warn("event publish failed", "kind", kind, "error", err)
	}
}
