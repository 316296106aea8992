// Package telemetry manages OpenTelemetry tracing for guardrail checks,
// tool interception, and evaluation runs.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Exporter    string `yaml:"exporter" mapstructure:"exporter"` // "stdout" or "none"
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
}

// Provider manages the tracer lifecycle.
type Provider struct {
	config   Config
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// NewProvider creates a telemetry provider. With tracing disabled or the
// exporter set to "none" it returns a provider backed by the global no-op
// tracer.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "modelgate"
	}
	if !cfg.Enabled || cfg.Exporter != "stdout" {
		return &Provider{
			config: cfg,
			tracer: otel.Tracer(cfg.ServiceName),
		}, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		slog.Error("stdout trace exporter creation failed", "error", err)
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	otel.SetTracerProvider(tp)
	slog.Info("stdout trace exporter initialized", "service", cfg.ServiceName)

	return &Provider{
		config:   cfg,
		tracer:   tp.Tracer(cfg.ServiceName),
		provider: tp,
	}, nil
}

// NoopProvider returns a provider that records nothing. Used in tests.
func NoopProvider() *Provider {
	return &Provider{
		config: Config{},
		tracer: otel.Tracer("modelgate-noop"),
	}
}

// Tracer returns the tracer for creating spans.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Enabled reports whether spans are actually exported.
func (p *Provider) Enabled() bool {
	return p.config.Enabled && p.provider != nil
}

// Shutdown flushes and stops the trace provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider != nil {
		return p.provider.Shutdown(ctx)
	}
	return nil
}

// Span attribute keys.
const (
	AttrSessionID     = "modelgate.session.id"
	AttrCheckName     = "modelgate.check.name"
	AttrCheckAction   = "modelgate.check.action"
	AttrCheckReasons  = "modelgate.check.reasons"
	AttrToolName      = "modelgate.tool.name"
	AttrToolRisk      = "modelgate.tool.risk_score"
	AttrEvaluationID  = "modelgate.evaluation.id"
	AttrModelID       = "modelgate.model.id"
	AttrOverallScore  = "modelgate.score.overall"
	AttrRiskLevel     = "modelgate.score.risk"
	AttrPillarCount   = "modelgate.score.pillars"
	AttrElapsedMS     = "modelgate.elapsed.ms"
	AttrCacheHit      = "modelgate.cache.hit"
	AttrRequestMethod = "http.request.method"
	AttrRequestPath   = "url.path"
	AttrResponseCode  = "http.response.status_code"
)

// StartCheckSpan starts a span for one guardrail check.
func (p *Provider) StartCheckSpan(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "guardrail.check",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrSessionID, sessionID),
		),
	)
}

// EndCheckSpan records the check outcome and ends the span.
func (p *Provider) EndCheckSpan(span trace.Span, action string, reasons []string, elapsedMS int64, err error) {
	span.SetAttributes(
		attribute.String(AttrCheckAction, action),
		attribute.StringSlice(AttrCheckReasons, reasons),
		attribute.Int64(AttrElapsedMS, elapsedMS),
	)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// RecordInterception emits a span for one intercepted tool call.
func (p *Provider) RecordInterception(ctx context.Context, sessionID, toolName, action string, riskScore float64, elapsedMS int64) {
	_, span := p.tracer.Start(ctx, "intercept.tool_call",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrSessionID, sessionID),
			attribute.String(AttrToolName, toolName),
			attribute.String(AttrCheckAction, action),
			attribute.Float64(AttrToolRisk, riskScore),
			attribute.Int64(AttrElapsedMS, elapsedMS),
		),
	)
	span.End()
}

// RecordEvaluation emits a span for a completed evaluation run.
func (p *Provider) RecordEvaluation(ctx context.Context, evaluationID, modelID string, overall float64, risk string, pillars int) {
	_, span := p.tracer.Start(ctx, "evaluation.completed",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrEvaluationID, evaluationID),
			attribute.String(AttrModelID, modelID),
			attribute.Float64(AttrOverallScore, overall),
			attribute.String(AttrRiskLevel, risk),
			attribute.Int(AttrPillarCount, pillars),
		),
	)
	span.End()

	slog.Debug("evaluation record exported",
		"evaluation_id", evaluationID,
		"model_id", modelID,
		"overall", overall,
		"risk", risk,
	)
}
