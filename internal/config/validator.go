package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validate checks struct tags plus cross-field rules, returning actionable
// error messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateDurations(); err != nil {
		return err
	}
	if err := c.validateSandbox(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	return nil
}

// validateDurations parses every duration-typed string field.
func (c *Config) validateDurations() error {
	fields := map[string]string{
		"server.shutdown_timeout":      c.Server.ShutdownTimeout,
		"guardrail.checkpoint_timeout": c.Guardrail.CheckpointTimeout,
		"guardrail.cache_ttl":          c.Guardrail.CacheTTL,
		"sandbox.timeout":              c.Sandbox.Timeout,
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: invalid duration %q", name, value)
		}
	}
	for i, cp := range c.Guardrail.Checkpoints {
		if cp.Timeout == "" {
			continue
		}
		if _, err := time.ParseDuration(cp.Timeout); err != nil {
			return fmt.Errorf("guardrail.checkpoints[%d].timeout: invalid duration %q", i, cp.Timeout)
		}
	}
	return nil
}

// validateSandbox enforces container-mode requirements.
func (c *Config) validateSandbox() error {
	if c.Sandbox.Mode == "container" && c.Sandbox.Image == "" {
		return errors.New("sandbox: container mode requires an image")
	}
	return nil
}

// validateAuth requires at least one API key outside dev mode when the
// server binds beyond localhost.
func (c *Config) validateAuth() error {
	if c.DevMode || len(c.Auth.APIKeys) > 0 {
		return nil
	}
	host := c.Server.HTTPAddr
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	if host == "127.0.0.1" || host == "localhost" || host == "::1" {
		return nil
	}
	return errors.New("auth: non-localhost listener requires api_keys (or dev_mode)")
}

// formatValidationErrors converts validator errors to readable messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
