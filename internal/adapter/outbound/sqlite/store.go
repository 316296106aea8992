// Package sqlite provides persistent storage for models, evaluations,
// guardrail events, and audit logs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Modelgate-Labs/modelgate/internal/domain/score"
)

// ErrNotFound is returned for lookups of unknown ids.
var ErrNotFound = errors.New("not found")

// ModelType classifies a registered model.
type ModelType string

const (
	ModelPredictive ModelType = "predictive"
	ModelGenerative ModelType = "generative"
	ModelAgentic    ModelType = "agentic"
)

// EvaluationStatus is the lifecycle state of an evaluation run.
type EvaluationStatus string

const (
	StatusPending   EvaluationStatus = "pending"
	StatusRunning   EvaluationStatus = "running"
	StatusCompleted EvaluationStatus = "completed"
	StatusFailed    EvaluationStatus = "failed"
	StatusCancelled EvaluationStatus = "cancelled"
)

// terminal reports whether a status admits no further transitions.
func (s EvaluationStatus) terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Model is a registered model under evaluation.
type Model struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Type      ModelType         `json:"type"`
	Version   string            `json:"version"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Evaluation is one evaluation run of a model.
type Evaluation struct {
	ID           string           `json:"id"`
	ModelID      string           `json:"model_id"`
	Status       EvaluationStatus `json:"status"`
	OverallScore float64          `json:"overall_score"`
	Risk         score.RiskLevel  `json:"risk"`
	Error        string           `json:"error,omitempty"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// EvaluationResult is the stored outcome of one pillar within an evaluation.
type EvaluationResult struct {
	EvaluationID string             `json:"evaluation_id"`
	Pillar       string             `json:"pillar"`
	Value        float64            `json:"value"`
	Confidence   float64            `json:"confidence"`
	Weight       float64            `json:"weight"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	Findings     []score.Finding    `json:"findings,omitempty"`
}

// GuardrailEvent records one pipeline decision.
type GuardrailEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Check     string    `json:"check"`
	Action    string    `json:"action"`
	Reasons   []string  `json:"reasons,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditLog records one administrative or security-relevant action.
type AuditLog struct {
	ID        int64          `json:"id"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Store provides SQLite-backed persistence.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL improves concurrent reader behavior.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("sqlite storage initialized", "path", dbPath)
	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS models (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('predictive', 'generative', 'agentic')),
		version TEXT NOT NULL DEFAULT '',
		metadata TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS evaluations (
		id TEXT PRIMARY KEY,
		model_id TEXT NOT NULL REFERENCES models(id),
		status TEXT NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed', 'cancelled')),
		overall_score REAL NOT NULL DEFAULT 0,
		risk TEXT NOT NULL DEFAULT 'unknown'
			CHECK (risk IN ('critical', 'high', 'medium', 'low', 'minimal', 'unknown')),
		error TEXT NOT NULL DEFAULT '',
		started_at DATETIME,
		completed_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS evaluation_results (
		evaluation_id TEXT NOT NULL REFERENCES evaluations(id),
		pillar TEXT NOT NULL,
		value REAL NOT NULL,
		confidence REAL NOT NULL,
		weight REAL NOT NULL,
		metrics TEXT,
		findings TEXT,
		PRIMARY KEY (evaluation_id, pillar)
	);

	CREATE TABLE IF NOT EXISTS guardrail_events (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		check_name TEXT NOT NULL,
		action TEXT NOT NULL,
		reasons TEXT,
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS audit_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		resource TEXT NOT NULL,
		detail TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_evaluations_model_id ON evaluations(model_id);
	CREATE INDEX IF NOT EXISTS idx_evaluations_status ON evaluations(status);
	CREATE INDEX IF NOT EXISTS idx_guardrail_events_session ON guardrail_events(session_id);
	CREATE INDEX IF NOT EXISTS idx_guardrail_events_created ON guardrail_events(created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at);

	CREATE TRIGGER IF NOT EXISTS models_touch_updated_at
	AFTER UPDATE ON models
	BEGIN
		UPDATE models SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
	END;

	CREATE TRIGGER IF NOT EXISTS evaluations_touch_updated_at
	AFTER UPDATE ON evaluations
	BEGIN
		UPDATE evaluations SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
	END;
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateModel registers a model.
func (s *Store) CreateModel(ctx context.Context, m Model) error {
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		metadata = []byte("{}")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO models (id, name, type, version, metadata)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Name, string(m.Type), m.Version, string(metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}
	return nil
}

// GetModel retrieves a model by id.
func (s *Store) GetModel(ctx context.Context, id string) (Model, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, version, metadata, created_at, updated_at
		FROM models WHERE id = ?`, id)

	var m Model
	var metadataStr string
	err := row.Scan(&m.ID, &m.Name, &m.Type, &m.Version, &metadataStr, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Model{}, ErrNotFound
	}
	if err != nil {
		return Model{}, fmt.Errorf("failed to get model: %w", err)
	}
	if metadataStr != "" {
		json.Unmarshal([]byte(metadataStr), &m.Metadata)
	}
	return m, nil
}

// ListModels returns all registered models, newest first.
func (s *Store) ListModels(ctx context.Context) ([]Model, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, version, metadata, created_at, updated_at
		FROM models ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var models []Model
	for rows.Next() {
		var m Model
		var metadataStr string
		if err := rows.Scan(&m.ID, &m.Name, &m.Type, &m.Version, &metadataStr, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		if metadataStr != "" {
			json.Unmarshal([]byte(metadataStr), &m.Metadata)
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

// CreateEvaluation inserts a new evaluation in pending state.
func (s *Store) CreateEvaluation(ctx context.Context, id, modelID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluations (id, model_id, status) VALUES (?, ?, ?)`,
		id, modelID, string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("failed to create evaluation: %w", err)
	}
	return nil
}

// TransitionEvaluation moves an evaluation to a new status. Transitions out
// of a terminal status are rejected.
func (s *Store) TransitionEvaluation(ctx context.Context, id string, status EvaluationStatus, evalErr string) error {
	current, err := s.GetEvaluation(ctx, id)
	if err != nil {
		return err
	}
	if current.Status.terminal() {
		return fmt.Errorf("evaluation %s is already %s", id, current.Status)
	}

	var startedAt, completedAt any
	now := time.Now().UTC()
	if status == StatusRunning {
		startedAt = now
	}
	if status.terminal() {
		completedAt = now
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE evaluations
		SET status = ?, error = ?,
		    started_at = COALESCE(?, started_at),
		    completed_at = COALESCE(?, completed_at)
		WHERE id = ?`,
		string(status), evalErr, startedAt, completedAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update evaluation: %w", err)
	}
	return nil
}

// CompleteEvaluation stores the aggregate verdict and per-pillar results
// and marks the evaluation completed, all in one transaction.
func (s *Store) CompleteEvaluation(ctx context.Context, id string, agg score.AggregatedScore, results []score.PillarResult) error {
	current, err := s.GetEvaluation(ctx, id)
	if err != nil {
		return err
	}
	if current.Status.terminal() {
		return fmt.Errorf("evaluation %s is already %s", id, current.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE evaluations
		SET status = ?, overall_score = ?, risk = ?, completed_at = ?
		WHERE id = ?`,
		string(StatusCompleted), agg.Overall, string(agg.Risk), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize evaluation: %w", err)
	}

	for _, r := range results {
		metrics, merr := json.Marshal(r.Metrics)
		if merr != nil {
			metrics = []byte("{}")
		}
		findings, ferr := json.Marshal(r.Findings)
		if ferr != nil {
			findings = []byte("[]")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO evaluation_results
			(evaluation_id, pillar, value, confidence, weight, metrics, findings)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, r.Pillar, r.Score.Value, r.Score.Confidence, r.Score.Weight,
			string(metrics), string(findings),
		)
		if err != nil {
			return fmt.Errorf("failed to save result for pillar %s: %w", r.Pillar, err)
		}
	}

	return tx.Commit()
}

// GetEvaluation retrieves an evaluation by id.
func (s *Store) GetEvaluation(ctx context.Context, id string) (Evaluation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, model_id, status, overall_score, risk, error,
		       started_at, completed_at, created_at, updated_at
		FROM evaluations WHERE id = ?`, id)

	var e Evaluation
	err := row.Scan(&e.ID, &e.ModelID, &e.Status, &e.OverallScore, &e.Risk, &e.Error,
		&e.StartedAt, &e.CompletedAt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Evaluation{}, ErrNotFound
	}
	if err != nil {
		return Evaluation{}, fmt.Errorf("failed to get evaluation: %w", err)
	}
	return e, nil
}

// GetEvaluationResults returns the per-pillar rows of one evaluation.
func (s *Store) GetEvaluationResults(ctx context.Context, id string) ([]EvaluationResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT evaluation_id, pillar, value, confidence, weight, metrics, findings
		FROM evaluation_results WHERE evaluation_id = ? ORDER BY pillar`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	var results []EvaluationResult
	for rows.Next() {
		var r EvaluationResult
		var metricsStr, findingsStr string
		if err := rows.Scan(&r.EvaluationID, &r.Pillar, &r.Value, &r.Confidence, &r.Weight, &metricsStr, &findingsStr); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if metricsStr != "" {
			json.Unmarshal([]byte(metricsStr), &r.Metrics)
		}
		if findingsStr != "" {
			json.Unmarshal([]byte(findingsStr), &r.Findings)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListEvaluationsOptions filters ListEvaluations.
type ListEvaluationsOptions struct {
	ModelID string
	Status  EvaluationStatus
	Since   *time.Time
	Limit   int
	Offset  int
}

// ListEvaluations retrieves evaluations with filtering and pagination,
// newest first.
func (s *Store) ListEvaluations(ctx context.Context, opts ListEvaluationsOptions) ([]Evaluation, error) {
	query := `
		SELECT id, model_id, status, overall_score, risk, error,
		       started_at, completed_at, created_at, updated_at
		FROM evaluations WHERE 1=1`
	args := []interface{}{}

	if opts.ModelID != "" {
		query += " AND model_id = ?"
		args = append(args, opts.ModelID)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	if opts.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, *opts.Since)
	}

	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	var evals []Evaluation
	for rows.Next() {
		var e Evaluation
		if err := rows.Scan(&e.ID, &e.ModelID, &e.Status, &e.OverallScore, &e.Risk, &e.Error,
			&e.StartedAt, &e.CompletedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		evals = append(evals, e)
	}
	return evals, rows.Err()
}

// RecordGuardrailEvent persists one pipeline decision.
func (s *Store) RecordGuardrailEvent(ctx context.Context, ev GuardrailEvent) error {
	reasons, err := json.Marshal(ev.Reasons)
	if err != nil {
		reasons = []byte("[]")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO guardrail_events (id, session_id, check_name, action, reasons, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SessionID, ev.Check, ev.Action, string(reasons), ev.ElapsedMS,
	)
	if err != nil {
		return fmt.Errorf("failed to record guardrail event: %w", err)
	}
	return nil
}

// ListGuardrailEvents returns events for a session, newest first.
func (s *Store) ListGuardrailEvents(ctx context.Context, sessionID string, limit int) ([]GuardrailEvent, error) {
	query := `
		SELECT id, session_id, check_name, action, reasons, elapsed_ms, created_at
		FROM guardrail_events WHERE session_id = ? ORDER BY created_at DESC`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list guardrail events: %w", err)
	}
	defer rows.Close()

	var events []GuardrailEvent
	for rows.Next() {
		var ev GuardrailEvent
		var reasonsStr string
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Check, &ev.Action, &reasonsStr, &ev.ElapsedMS, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan guardrail event: %w", err)
		}
		if reasonsStr != "" {
			json.Unmarshal([]byte(reasonsStr), &ev.Reasons)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// AppendAudit writes one audit log entry.
func (s *Store) AppendAudit(ctx context.Context, entry AuditLog) error {
	detail, err := json.Marshal(entry.Detail)
	if err != nil {
		detail = []byte("{}")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (actor, action, resource, detail)
		VALUES (?, ?, ?, ?)`,
		entry.Actor, entry.Action, entry.Resource, string(detail),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit log: %w", err)
	}
	return nil
}

// ListAudit returns audit entries since the given time, newest first.
func (s *Store) ListAudit(ctx context.Context, since time.Time, limit int) ([]AuditLog, error) {
	query := `
		SELECT id, actor, action, resource, detail, created_at
		FROM audit_logs WHERE created_at >= ? ORDER BY created_at DESC, id DESC`
	args := []interface{}{since}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []AuditLog
	for rows.Next() {
		var entry AuditLog
		var detailStr string
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.Action, &entry.Resource, &detailStr, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if detailStr != "" {
			json.Unmarshal([]byte(detailStr), &entry.Detail)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Cleanup removes guardrail events and audit logs older than the
// retention window. Returns the number of rows deleted.
func (s *Store) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	var total int64
	for _, table := range []string{"guardrail_events", "audit_logs"} {
		result, err := s.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE created_at < ?", table), cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to clean up %s: %w", table, err)
		}
		deleted, _ := result.RowsAffected()
		total += deleted
	}
	if total > 0 {
		slog.Info("cleaned up old records", "deleted", total, "retention_days", retentionDays)
	}
	return total, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
