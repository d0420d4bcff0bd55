// Package config defines worker configuration structures and loading hooks.
//
// Conventions:
//   - Defaults live in New; Load layers file and environment on top.
//   - Model overrides of zero keep the built-in model defaults.
//   - External errors are wrapped with this package's sentinel errors.
package config

// Model names accepted by the Model field.
const (
	ModelNHITS     = "nhits"
	ModelSmoothing = "ses"
)

// Config contains process configuration. It never carries per-request data.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the diagnostic format written to stderr: text or json.
	LogFormat string `koanf:"log_format"`

	// Model selects the learned tier tried before the mean heuristic: nhits or ses.
	Model string `koanf:"model"`

	// MaxSteps overrides the training step budget of the learned model.
	MaxSteps int `koanf:"max_steps"`

	// HiddenUnits overrides the width of every MLP layer.
	HiddenUnits int `koanf:"hidden_units"`

	// WindowsBatchSize overrides the number of training windows sampled per step.
	WindowsBatchSize int `koanf:"windows_batch_size"`

	// RandomSeed overrides the weight initialisation and dropout seed.
	RandomSeed int64 `koanf:"random_seed"`

	// MetricsTextfile, when set, receives the run's metrics in Prometheus text format.
	MetricsTextfile string `koanf:"metrics_textfile"`

	// PushgatewayURL, when set, receives the run's metrics via push.
	PushgatewayURL string `koanf:"pushgateway_url"`

	// MetricsLabels are constant labels attached to every exported metric.
	MetricsLabels map[string]string `koanf:"metrics_labels"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Model:     ModelNHITS,
	}
}
