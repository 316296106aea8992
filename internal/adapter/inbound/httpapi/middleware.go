package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/Modelgate-Labs/modelgate/internal/config"
)

// MetricsMiddleware wraps an HTTP handler to record Prometheus metrics.
// It records request_duration_seconds (by method) and requests_total
// (by method and status).
func MetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip metrics for the scrape and health endpoints themselves.
			if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			metrics.RequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
			metrics.RequestsTotal.WithLabelValues(r.Method, statusToLabel(wrapped.status)).Inc()
		})
	}
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush delegates to the underlying ResponseWriter if it supports
// http.Flusher.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// statusToLabel converts an HTTP status code to a metric label value.
func statusToLabel(code int) string {
	if code >= 200 && code < 400 {
		return "ok"
	}
	return "error"
}

// APIKeyMiddleware enforces API-key authentication. Keys are presented in
// X-API-Key or as an Authorization bearer token and verified against the
// configured argon2id hashes. With no keys configured all requests pass,
// which is the dev-mode default.
func APIKeyMiddleware(keys []config.APIKeyConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(keys) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			presented := extractAPIKey(r)
			if presented == "" {
				http.Error(w, `{"error":"missing API key"}`, http.StatusUnauthorized)
				return
			}
			for _, key := range keys {
				match, err := argon2id.ComparePasswordAndHash(presented, key.KeyHash)
				if err != nil {
					logger.Warn("api key hash comparison failed", "key_name", key.Name, "error", err)
					continue
				}
				if match {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, `{"error":"invalid API key"}`, http.StatusUnauthorized)
		})
	}
}

// extractAPIKey reads the key from X-API-Key or a bearer Authorization
// header.
func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
