package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

func TestSetDefaults(t *testing.T) {
	cfg := validConfig()

	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("http_addr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Guardrail.CheckpointTimeout != "500ms" {
		t.Errorf("checkpoint_timeout = %q", cfg.Guardrail.CheckpointTimeout)
	}
	if cfg.Guardrail.CacheSize != 1024 {
		t.Errorf("cache_size = %d", cfg.Guardrail.CacheSize)
	}
	if cfg.Guardrail.RedactionChar != "*" {
		t.Errorf("redaction_char = %q", cfg.Guardrail.RedactionChar)
	}
	if cfg.Sandbox.Mode != "process" || cfg.Sandbox.PoolSize != 4 {
		t.Errorf("sandbox = %+v", cfg.Sandbox)
	}
	if cfg.Threshold.Policy != "standard" {
		t.Errorf("threshold policy = %q", cfg.Threshold.Policy)
	}
}

func TestSetDefaultsFillsCheckpointFields(t *testing.T) {
	cfg := &Config{
		Guardrail: GuardrailConfig{
			Checkpoints: []CheckpointConfig{{Name: "pii"}},
		},
	}
	cfg.SetDefaults()

	cp := cfg.Guardrail.Checkpoints[0]
	if cp.Position != "input" || cp.Action != "block" {
		t.Errorf("checkpoint = %+v", cp)
	}
	if cp.Enabled == nil || !*cp.Enabled {
		t.Error("checkpoint should default to enabled")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad log level", func(c *Config) { c.Server.LogLevel = "loud" }, "one of"},
		{"bad addr", func(c *Config) { c.Server.HTTPAddr = "not-an-addr" }, "host:port"},
		{"bad duration", func(c *Config) { c.Sandbox.Timeout = "fast" }, "duration"},
		{"bad checkpoint name", func(c *Config) {
			c.Guardrail.Checkpoints = []CheckpointConfig{{Name: "unknown", Position: "input", Action: "block"}}
		}, "one of"},
		{"container needs image", func(c *Config) { c.Sandbox.Mode = "container" }, "image"},
		{"plain key hash", func(c *Config) {
			c.Auth.APIKeys = []APIKeyConfig{{Name: "ops", KeyHash: "sha256:abc"}}
		}, "$argon2id$"},
		{"policy without expression", func(c *Config) {
			c.Policies = []PolicyRuleConfig{{Name: "r1"}}
		}, "required"},
		{"public listener without keys", func(c *Config) { c.Server.HTTPAddr = "0.0.0.0:8080" }, "api_keys"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAllowsPublicListenerWithKeys(t *testing.T) {
	cfg := validConfig()
	cfg.Server.HTTPAddr = "0.0.0.0:8080"
	cfg.Auth.APIKeys = []APIKeyConfig{{
		Name:    "ops",
		KeyHash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdHNhbHQ$aGFzaGhhc2g",
	}}
	if err := cfg.Validate(); err != nil {
		t.Errorf("config should validate: %v", err)
	}
}

func TestSetDevDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.DevMode = true
	cfg.SetDevDefaults()
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("log_level = %q, want debug in dev mode", cfg.Server.LogLevel)
	}

	cfg = validConfig()
	cfg.SetDevDefaults()
	if cfg.Server.LogLevel != "info" {
		t.Error("dev defaults should not apply outside dev mode")
	}
}

func TestParseDuration(t *testing.T) {
	if d := ParseDuration("", 5*time.Second); d != 5*time.Second {
		t.Errorf("empty = %v", d)
	}
	if d := ParseDuration("250ms", time.Second); d != 250*time.Millisecond {
		t.Errorf("parsed = %v", d)
	}
	if d := ParseDuration("junk", time.Second); d != time.Second {
		t.Errorf("fallback = %v", d)
	}
}
