package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, standard locations are searched for
// modelgate.yaml/.yml; the explicit extension requirement keeps Viper from
// matching the binary itself.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("modelgate")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: MODELGATE_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("MODELGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for modelgate.yaml or .yml.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".modelgate"),
		"/etc/modelgate",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "modelgate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys for environment overrides.
// Array-valued keys (policies, checkpoints, api_keys) stay file-only.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.shutdown_timeout")

	_ = viper.BindEnv("guardrail.fail_open")
	_ = viper.BindEnv("guardrail.checkpoint_timeout")
	_ = viper.BindEnv("guardrail.cache_ttl")
	_ = viper.BindEnv("guardrail.cache_size")
	_ = viper.BindEnv("guardrail.redaction_char")

	_ = viper.BindEnv("intercept.rate_limit_per_minute")

	_ = viper.BindEnv("sandbox.mode")
	_ = viper.BindEnv("sandbox.timeout")
	_ = viper.BindEnv("sandbox.pool_size")
	_ = viper.BindEnv("sandbox.memory_limit_mb")
	_ = viper.BindEnv("sandbox.cpu_shares")
	_ = viper.BindEnv("sandbox.runtime")
	_ = viper.BindEnv("sandbox.image")

	_ = viper.BindEnv("threshold.policy")
	_ = viper.BindEnv("threshold.max_acceptable_risk")
	_ = viper.BindEnv("threshold.fail_on_any_violation")

	_ = viper.BindEnv("storage.sqlite_path")
	_ = viper.BindEnv("storage.redis_addr")
	_ = viper.BindEnv("storage.redis_password")
	_ = viper.BindEnv("storage.redis_db")

	_ = viper.BindEnv("telemetry.tracing_enabled")
	_ = viper.BindEnv("telemetry.service_name")

	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the config file, applies environment overrides and
// defaults, and validates. A missing config file is not an error; the
// process can run on environment variables alone.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the loaded config file path, empty when running
// on environment variables only.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
