package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ParseStrict decodes raw YAML into a Config, rejecting unknown fields.
// Viper silently drops unrecognized keys, so a typoed key in the config
// file would otherwise fall back to a default without warning. The result
// has defaults applied and is validated. An empty document is valid and
// yields the defaults.
func ParseStrict(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
