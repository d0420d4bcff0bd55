package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/revforecast/pkg/metrics"
)

// labelName is the Prometheus label name grammar.
var labelName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// EnvPrefix prefixes every environment override, e.g. REVFORECAST_LOG_LEVEL.
const EnvPrefix = "REVFORECAST_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) at path, or REVFORECAST_CONFIG when path is empty
//  3. env (prefix REVFORECAST_)
func Load(_ context.Context, path string) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrLoadConfig, path, err)
		}
	}

	// Map env keys like REVFORECAST_MAX_STEPS -> max_steps (flat keys).
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, strings.ToLower(EnvPrefix))
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late, mid-run.
func (c *Config) Validate() error {
	c.Model = strings.ToLower(strings.TrimSpace(c.Model))
	switch c.Model {
	case ModelNHITS, ModelSmoothing:
	default:
		return fmt.Errorf("%w: model must be %q or %q, got %q", ErrInvalidConfig, ModelNHITS, ModelSmoothing, c.Model)
	}
	if c.MaxSteps < 0 || c.HiddenUnits < 0 || c.WindowsBatchSize < 0 {
		return fmt.Errorf("%w: model overrides must not be negative", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	for name := range c.MetricsLabels {
		if !labelName.MatchString(name) || strings.HasPrefix(name, "__") || slices.Contains(metrics.ReservedLabels, name) {
			return fmt.Errorf("%w: metrics_labels: %q is not a usable label name", ErrInvalidConfig, name)
		}
	}
	return nil
}
