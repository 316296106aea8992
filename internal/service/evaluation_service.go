package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Modelgate-Labs/modelgate/internal/adapter/outbound/sqlite"
	"github.com/Modelgate-Labs/modelgate/internal/config"
	"github.com/Modelgate-Labs/modelgate/internal/domain/compliance"
	"github.com/Modelgate-Labs/modelgate/internal/domain/score"
	"github.com/Modelgate-Labs/modelgate/internal/domain/threshold"
	"github.com/Modelgate-Labs/modelgate/internal/telemetry"
)

// PillarInput is one pillar's raw metrics submitted for evaluation.
type PillarInput struct {
	// Pillar is the pillar name (fairness, robustness, privacy, ...).
	Pillar string `json:"pillar"`
	// Metrics maps metric name to its raw value. Known metric names are
	// normalized with their registered configs; unknown ones are clamped.
	Metrics map[string]float64 `json:"metrics"`
	// Confidence is how reliable the metrics are, in [0,1].
	Confidence float64 `json:"confidence"`
	// Weight is the pillar's aggregation weight.
	Weight float64 `json:"weight"`
	// Findings carries observations raised while measuring.
	Findings []score.Finding `json:"findings,omitempty"`
}

// EvaluationReport is the full outcome of one evaluation run.
type EvaluationReport struct {
	ID             string                   `json:"id"`
	ModelID        string                   `json:"model_id"`
	Aggregate      score.AggregatedScore    `json:"aggregate"`
	Pillars        []score.PillarResult     `json:"pillars"`
	Check          threshold.CheckResult    `json:"check"`
	Recommendation threshold.Recommendation `json:"recommendation"`
}

// EvaluationStore is the persistence surface the service needs. The sqlite
// store satisfies it; a nil store keeps everything in memory only.
type EvaluationStore interface {
	CreateEvaluation(ctx context.Context, id, modelID string) error
	TransitionEvaluation(ctx context.Context, id string, status sqlite.EvaluationStatus, evalErr string) error
	CompleteEvaluation(ctx context.Context, id string, agg score.AggregatedScore, results []score.PillarResult) error
	GetEvaluation(ctx context.Context, id string) (sqlite.Evaluation, error)
	GetEvaluationResults(ctx context.Context, id string) ([]sqlite.EvaluationResult, error)
}

// EvaluationService runs the scoring flow: normalize raw metrics, aggregate
// pillar scores, gate against thresholds, and map to compliance frameworks.
type EvaluationService struct {
	normalizer *score.Normalizer
	aggregator *score.Aggregator
	thresholds *threshold.Manager
	registry   *threshold.PolicyRegistry
	compliance *compliance.Mapper
	store      EvaluationStore
	telemetry  *telemetry.Provider
	logger     *slog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// EvaluationServiceOption configures EvaluationService.
type EvaluationServiceOption func(*EvaluationService)

// WithEvaluationTelemetry attaches a telemetry provider.
func WithEvaluationTelemetry(p *telemetry.Provider) EvaluationServiceOption {
	return func(s *EvaluationService) { s.telemetry = p }
}

// WithAggregatorConfig overrides the default aggregator settings.
func WithAggregatorConfig(cfg score.AggregatorConfig) EvaluationServiceOption {
	return func(s *EvaluationService) { s.aggregator = score.NewAggregator(cfg) }
}

// NewEvaluationService builds the service with the configured threshold
// policy. A nil store disables persistence.
func NewEvaluationService(cfg config.ThresholdConfig, store EvaluationStore, logger *slog.Logger, opts ...EvaluationServiceOption) (*EvaluationService, error) {
	registry := threshold.NewPolicyRegistry()
	policy, err := registry.Get(cfg.Policy)
	if err != nil {
		return nil, err
	}
	if cfg.MaxAcceptableRisk != "" {
		policy.MaxAcceptableRisk = score.RiskLevel(cfg.MaxAcceptableRisk)
	}
	if cfg.FailOnAnyViolation != nil {
		policy.FailOnAnyViolation = *cfg.FailOnAnyViolation
	}

	manager := threshold.NewManager()
	manager.Load(policy)

	s := &EvaluationService{
		normalizer: score.NewNormalizer(),
		aggregator: score.NewAggregator(score.DefaultAggregatorConfig()),
		thresholds: manager,
		registry:   registry,
		compliance: compliance.NewMapper(),
		store:      store,
		telemetry:  telemetry.NoopProvider(),
		logger:     logger,
		running:    make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}

	logger.Info("evaluation service initialized",
		"threshold_policy", policy.Name,
		"max_acceptable_risk", policy.MaxAcceptableRisk,
		"persistent", store != nil,
	)
	return s, nil
}

// Thresholds exposes the running threshold manager.
func (s *EvaluationService) Thresholds() *threshold.Manager {
	return s.thresholds
}

// Compliance exposes the compliance mapper.
func (s *EvaluationService) Compliance() *compliance.Mapper {
	return s.compliance
}

// scorePillar normalizes one pillar's metrics into a single score: the mean
// of the normalized metric values.
func (s *EvaluationService) scorePillar(in PillarInput) (score.PillarResult, error) {
	if len(in.Metrics) == 0 {
		return score.PillarResult{}, fmt.Errorf("pillar %s has no metrics", in.Pillar)
	}
	start := time.Now()
	normalized := make(map[string]float64, len(in.Metrics))
	var sum float64
	for name, v := range in.Metrics {
		nv := s.normalizer.Normalize(name, v)
		normalized[name] = nv
		sum += nv
	}
	value := sum / float64(len(in.Metrics))

	return score.PillarResult{
		Pillar: in.Pillar,
		Score: score.Score{
			Value:      value,
			Confidence: in.Confidence,
			Weight:     in.Weight,
		},
		Metrics:  normalized,
		Findings: in.Findings,
		Elapsed:  time.Since(start),
	}, nil
}

// Evaluate runs the scoring flow synchronously and returns the full report.
func (s *EvaluationService) Evaluate(ctx context.Context, modelID string, pillars []PillarInput, strategy score.Strategy) (EvaluationReport, error) {
	if len(pillars) == 0 {
		return EvaluationReport{}, fmt.Errorf("no pillars submitted")
	}
	if strategy == "" {
		strategy = score.StrategyWeightedAverage
	}

	results := make([]score.PillarResult, 0, len(pillars))
	inputs := make([]score.Input, 0, len(pillars))
	pillarScores := make(map[string]float64, len(pillars))
	for _, in := range pillars {
		r, err := s.scorePillar(in)
		if err != nil {
			return EvaluationReport{}, err
		}
		results = append(results, r)
		inputs = append(inputs, score.Input{
			Pillar:     r.Pillar,
			Value:      r.Score.Value,
			Confidence: r.Score.Confidence,
			Weight:     r.Score.Weight,
		})
		pillarScores[r.Pillar] = r.Score.Value
	}

	agg, err := s.aggregator.Aggregate(inputs, strategy)
	if err != nil {
		return EvaluationReport{}, fmt.Errorf("aggregation failed: %w", err)
	}

	check := s.thresholds.Check(pillarScores)
	report := EvaluationReport{
		ID:             uuid.NewString(),
		ModelID:        modelID,
		Aggregate:      agg,
		Pillars:        results,
		Check:          check,
		Recommendation: threshold.Recommend(check),
	}

	s.telemetry.RecordEvaluation(ctx, report.ID, modelID, agg.Overall, agg.Risk.String(), len(results))
	s.logger.Info("evaluation completed",
		"evaluation_id", report.ID,
		"model_id", modelID,
		"overall", agg.Overall,
		"risk", agg.Risk,
		"passed", check.Passed,
		"decision", report.Recommendation.Decision,
	)
	return report, nil
}

// Submit starts an asynchronous evaluation and returns its id immediately.
// Requires a persistent store to track status.
func (s *EvaluationService) Submit(ctx context.Context, modelID string, pillars []PillarInput, strategy score.Strategy) (string, error) {
	if s.store == nil {
		return "", fmt.Errorf("submit requires persistent storage")
	}
	id := uuid.NewString()
	if err := s.store.CreateEvaluation(ctx, id, modelID); err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.running[id] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(runCtx, id, modelID, pillars, strategy)
	return id, nil
}

// run executes one submitted evaluation in the background.
func (s *EvaluationService) run(ctx context.Context, id, modelID string, pillars []PillarInput, strategy score.Strategy) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
	}()

	if err := s.store.TransitionEvaluation(ctx, id, sqlite.StatusRunning, ""); err != nil {
		s.logger.Error("failed to mark evaluation running", "evaluation_id", id, "error", err)
		return
	}

	report, err := s.Evaluate(ctx, modelID, pillars, strategy)
	if ctx.Err() != nil {
		// Cancel already transitioned the row; nothing further to record.
		s.logger.Info("evaluation cancelled", "evaluation_id", id)
		return
	}
	if err != nil {
		if terr := s.store.TransitionEvaluation(ctx, id, sqlite.StatusFailed, err.Error()); terr != nil {
			s.logger.Error("failed to mark evaluation failed", "evaluation_id", id, "error", terr)
		}
		return
	}

	if err := s.store.CompleteEvaluation(context.Background(), id, report.Aggregate, report.Pillars); err != nil {
		s.logger.Error("failed to persist evaluation", "evaluation_id", id, "error", err)
	}
}

// Cancel stops a running evaluation and marks it cancelled.
func (s *EvaluationService) Cancel(ctx context.Context, id string) error {
	if s.store == nil {
		return fmt.Errorf("cancel requires persistent storage")
	}
	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return s.store.TransitionEvaluation(ctx, id, sqlite.StatusCancelled, "")
}

// Status returns the stored state of an evaluation.
func (s *EvaluationService) Status(ctx context.Context, id string) (sqlite.Evaluation, []sqlite.EvaluationResult, error) {
	if s.store == nil {
		return sqlite.Evaluation{}, nil, fmt.Errorf("status requires persistent storage")
	}
	eval, err := s.store.GetEvaluation(ctx, id)
	if err != nil {
		return sqlite.Evaluation{}, nil, err
	}
	results, err := s.store.GetEvaluationResults(ctx, id)
	if err != nil {
		return sqlite.Evaluation{}, nil, err
	}
	return eval, results, nil
}

// ComplianceReport maps pillar scores onto a registered framework.
func (s *EvaluationService) ComplianceReport(frameworkID string, pillarScores map[string]float64, gapThreshold float64) (compliance.Report, error) {
	return s.compliance.Map(frameworkID, pillarScores, gapThreshold)
}

// LoadPolicy swaps the running threshold policy by name.
func (s *EvaluationService) LoadPolicy(name string) error {
	policy, err := s.registry.Get(name)
	if err != nil {
		return err
	}
	s.thresholds.Load(policy)
	s.logger.Info("threshold policy loaded", "policy", name)
	return nil
}

// Close waits for in-flight background evaluations to finish.
func (s *EvaluationService) Close() {
	s.mu.Lock()
	for _, cancel := range s.running {
		cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
