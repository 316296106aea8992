// Package config provides configuration types and loading for Modelgate.
package config

import "time"

// Config is the top-level Modelgate configuration.
type Config struct {
	// Server configures the HTTP API listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Guardrail configures the checkpoint pipeline.
	Guardrail GuardrailConfig `yaml:"guardrail" mapstructure:"guardrail"`

	// Intercept configures the tool-call interceptor.
	Intercept InterceptConfig `yaml:"intercept" mapstructure:"intercept"`

	// Sandbox configures command execution isolation.
	Sandbox SandboxConfig `yaml:"sandbox" mapstructure:"sandbox"`

	// Threshold selects and tunes the deployment gate.
	Threshold ThresholdConfig `yaml:"threshold" mapstructure:"threshold"`

	// Storage configures the evaluation store and the key-value store.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Auth configures API-key authentication for the HTTP API.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Telemetry configures tracing.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// Policies defines custom CEL guard rules evaluated per request.
	Policies []PolicyRuleConfig `yaml:"policies" mapstructure:"policies" validate:"omitempty,dive"`

	// DevMode enables development defaults (verbose logging, no auth).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server. TLS is left to a reverse proxy.
type ServerConfig struct {
	// HTTPAddr is the listen address. Defaults to "127.0.0.1:8080".
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel is the minimum log level. Defaults to "info";
	// DevMode overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// ShutdownTimeout bounds graceful shutdown (e.g. "10s").
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"omitempty"`
}

// GuardrailConfig configures the pipeline and its built-in filters.
type GuardrailConfig struct {
	// FailOpen is the pipeline-wide default. Per-checkpoint config can
	// override. Defaults to false (fail closed).
	FailOpen bool `yaml:"fail_open" mapstructure:"fail_open"`

	// CheckpointTimeout is the per-checkpoint budget (e.g. "500ms").
	CheckpointTimeout string `yaml:"checkpoint_timeout" mapstructure:"checkpoint_timeout" validate:"omitempty"`

	// CacheTTL enables the input-phase verdict cache when non-empty
	// (e.g. "60s").
	CacheTTL string `yaml:"cache_ttl" mapstructure:"cache_ttl" validate:"omitempty"`

	// CacheSize is the verdict cache capacity. Defaults to 1024.
	CacheSize int `yaml:"cache_size" mapstructure:"cache_size" validate:"omitempty,gt=0"`

	// RedactionChar fills redacted PII spans. Defaults to "*".
	RedactionChar string `yaml:"redaction_char" mapstructure:"redaction_char" validate:"omitempty,len=1"`

	// BlockedTopics maps topic names to keyword groups.
	BlockedTopics map[string][]string `yaml:"blocked_topics" mapstructure:"blocked_topics"`

	// AllowedTopics exempts topics from the blocked set.
	AllowedTopics []string `yaml:"allowed_topics" mapstructure:"allowed_topics"`

	// Checkpoints tunes the built-in filters.
	Checkpoints []CheckpointConfig `yaml:"checkpoints" mapstructure:"checkpoints" validate:"omitempty,dive"`
}

// CheckpointConfig tunes one built-in filter registration.
type CheckpointConfig struct {
	// Name is the filter: pii, toxicity, jailbreak, topic, or refusal.
	Name string `yaml:"name" mapstructure:"name" validate:"required,oneof=pii toxicity jailbreak topic refusal"`

	// Position is input, output, or both. Defaults to "input".
	Position string `yaml:"position" mapstructure:"position" validate:"omitempty,oneof=input output both"`

	// Action is the action-on-match. Defaults to "block".
	Action string `yaml:"action" mapstructure:"action" validate:"omitempty,oneof=allow log audit warn modify review block"`

	// Enabled gates the checkpoint. Defaults to true via SetDefaults.
	Enabled *bool `yaml:"enabled" mapstructure:"enabled"`

	// FailOpen overrides the pipeline default for this checkpoint.
	FailOpen *bool `yaml:"fail_open" mapstructure:"fail_open"`

	// Timeout overrides the per-checkpoint budget (e.g. "250ms").
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty"`
}

// InterceptConfig configures the tool-call interceptor.
type InterceptConfig struct {
	// RateLimitPerMinute is the per-session admission limit.
	// Zero disables rate limiting.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute" validate:"omitempty,gte=0"`

	// AllowedTools is an exclusive allow list when non-empty.
	AllowedTools []string `yaml:"allowed_tools" mapstructure:"allowed_tools"`

	// DeniedTools always rejects.
	DeniedTools []string `yaml:"denied_tools" mapstructure:"denied_tools"`
}

// SandboxConfig configures the execution sandbox and pool.
type SandboxConfig struct {
	// Mode is none, process, or container. Defaults to "process".
	Mode string `yaml:"mode" mapstructure:"mode" validate:"omitempty,oneof=none process container"`

	// Timeout is the wall-clock budget per execution (e.g. "30s").
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty"`

	// PoolSize is the number of pre-initialized sandboxes. Defaults to 4.
	PoolSize int `yaml:"pool_size" mapstructure:"pool_size" validate:"omitempty,gt=0"`

	// MemoryLimitMB caps container memory.
	MemoryLimitMB int `yaml:"memory_limit_mb" mapstructure:"memory_limit_mb" validate:"omitempty,gt=0"`

	// CPUShares sets the container CPU weight.
	CPUShares int `yaml:"cpu_shares" mapstructure:"cpu_shares" validate:"omitempty,gt=0"`

	// Runtime is the container runtime binary. Defaults to "docker".
	Runtime string `yaml:"runtime" mapstructure:"runtime"`

	// Image is the container image, required in container mode.
	Image string `yaml:"image" mapstructure:"image"`
}

// ThresholdConfig selects the deployment gate policy.
type ThresholdConfig struct {
	// Policy is strict, standard, or lenient. Defaults to "standard".
	Policy string `yaml:"policy" mapstructure:"policy" validate:"omitempty,oneof=strict standard lenient"`

	// MaxAcceptableRisk overrides the policy's acceptance bar.
	MaxAcceptableRisk string `yaml:"max_acceptable_risk" mapstructure:"max_acceptable_risk" validate:"omitempty,oneof=critical high medium low minimal"`

	// FailOnAnyViolation overrides the policy's violation handling.
	FailOnAnyViolation *bool `yaml:"fail_on_any_violation" mapstructure:"fail_on_any_violation"`
}

// StorageConfig configures persistence.
type StorageConfig struct {
	// SQLitePath is the evaluation store database file.
	// Empty disables persistence.
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`

	// RedisAddr enables the Redis-backed key-value store when non-empty.
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr" validate:"omitempty,hostname_port"`

	// RedisPassword authenticates the Redis connection.
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`

	// RedisDB selects the Redis logical database.
	RedisDB int `yaml:"redis_db" mapstructure:"redis_db" validate:"omitempty,gte=0"`
}

// AuthConfig configures API-key authentication.
type AuthConfig struct {
	// APIKeys lists the accepted keys as argon2id hashes.
	APIKeys []APIKeyConfig `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`
}

// APIKeyConfig is one accepted API key.
type APIKeyConfig struct {
	// Name identifies the key owner in logs.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// KeyHash is the argon2id PHC-format hash of the key.
	// Generate with: modelgate hash-key
	KeyHash string `yaml:"key_hash" mapstructure:"key_hash" validate:"required,startswith=$argon2id$"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	// TracingEnabled turns on span export.
	TracingEnabled bool `yaml:"tracing_enabled" mapstructure:"tracing_enabled"`

	// ServiceName overrides the reported service name.
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
}

// PolicyRuleConfig is one custom CEL guard rule.
type PolicyRuleConfig struct {
	// Name identifies the rule in results.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Expression is a CEL boolean expression over content and context.
	Expression string `yaml:"expression" mapstructure:"expression" validate:"required"`

	// Action is the verdict when the expression is true. Defaults to "block".
	Action string `yaml:"action" mapstructure:"action" validate:"omitempty,oneof=allow log audit warn modify review block"`

	// Priority orders evaluation, highest first.
	Priority int `yaml:"priority" mapstructure:"priority"`

	// Enabled gates the rule. Defaults to true via SetDefaults.
	Enabled *bool `yaml:"enabled" mapstructure:"enabled"`
}

// SetDefaults fills optional fields with their documented defaults.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Guardrail.CheckpointTimeout == "" {
		c.Guardrail.CheckpointTimeout = "500ms"
	}
	if c.Guardrail.CacheSize == 0 {
		c.Guardrail.CacheSize = 1024
	}
	if c.Guardrail.RedactionChar == "" {
		c.Guardrail.RedactionChar = "*"
	}
	for i := range c.Guardrail.Checkpoints {
		cp := &c.Guardrail.Checkpoints[i]
		if cp.Position == "" {
			cp.Position = "input"
		}
		if cp.Action == "" {
			cp.Action = "block"
		}
		if cp.Enabled == nil {
			enabled := true
			cp.Enabled = &enabled
		}
	}
	if c.Sandbox.Mode == "" {
		c.Sandbox.Mode = "process"
	}
	if c.Sandbox.Timeout == "" {
		c.Sandbox.Timeout = "30s"
	}
	if c.Sandbox.PoolSize == 0 {
		c.Sandbox.PoolSize = 4
	}
	if c.Sandbox.Runtime == "" {
		c.Sandbox.Runtime = "docker"
	}
	if c.Threshold.Policy == "" {
		c.Threshold.Policy = "standard"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "modelgate"
	}
	for i := range c.Policies {
		rule := &c.Policies[i]
		if rule.Action == "" {
			rule.Action = "block"
		}
		if rule.Enabled == nil {
			enabled := true
			rule.Enabled = &enabled
		}
	}
}

// SetDevDefaults applies permissive development defaults. Only effective
// when DevMode is set.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.Server.LogLevel = "debug"
}

// ParseDuration parses a config duration with a fallback for empty input.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
