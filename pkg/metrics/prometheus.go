package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metric name parts and the job label used when pushing to a Pushgateway.
const (
	namespace = "revforecast"
	subsystem = "worker"
	PushJob   = "revforecast"
)

// durationBuckets spans a mean-tier microsecond run up to a full training budget.
var durationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// ReservedLabels are the variable label names; custom labels must not reuse them.
var ReservedLabels = []string{"model", "reason", "kind"}

// Fallback reasons.
const (
	ReasonInsufficientHistory = "insufficient_history"
	ReasonTrainingFailure     = "training_failure"
	ReasonInferenceFailure    = "inference_failure"
	ReasonEstimatorFailure    = "estimator_failure"
)

// Manager owns the worker's metrics on a private registry. A worker runs
// once per process, so the registry is exported explicitly at exit rather
// than scraped. All methods are safe on a nil Manager.
type Manager struct {
	customLabels map[string]string
	registry     *prometheus.Registry

	forecasts            *prometheus.CounterVec
	fallbacks            *prometheus.CounterVec
	failures             *prometheus.CounterVec
	trainingDuration     *prometheus.HistogramVec
	substitutedForecasts prometheus.Counter
	historyLength        prometheus.Gauge
	horizon              prometheus.Gauge
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		customLabels: make(map[string]string),
	}

	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.customLabels)

	m.forecasts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "forecasts_total",
		Help:        "Forecasts produced, by the tier that produced them",
		ConstLabels: labels,
	}, []string{"model"})

	m.fallbacks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "fallbacks_total",
		Help:        "Tiers skipped or abandoned, by tier and reason",
		ConstLabels: labels,
	}, []string{"model", "reason"})

	m.failures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "request_failures_total",
		Help:        "Requests answered with success=false, by error kind",
		ConstLabels: labels,
	}, []string{"kind"})

	m.trainingDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "estimator_duration_seconds",
		Help:        "Time spent fitting and predicting, by tier",
		Buckets:     durationBuckets,
		ConstLabels: labels,
	}, []string{"model"})

	m.substitutedForecasts = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "substituted_predictions_total",
		Help:        "Predictions replaced by the series mean for being non-finite or non-positive",
		ConstLabels: labels,
	})

	m.historyLength = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "history_length",
		Help:        "Observations in the last normalized series",
		ConstLabels: labels,
	})

	m.horizon = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "horizon",
		Help:        "Horizon of the last request",
		ConstLabels: labels,
	})
}

// RecordForecast counts a forecast produced by model.
func (m *Manager) RecordForecast(model string) {
	if m == nil {
		return
	}
	m.forecasts.WithLabelValues(model).Inc()
}

// RecordFallback counts a tier that did not produce the forecast.
func (m *Manager) RecordFallback(model, reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(model, reason).Inc()
}

// RecordFailure counts a failed request by error kind.
func (m *Manager) RecordFailure(kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind).Inc()
}

// ObserveEstimatorDuration records how long a tier ran, in seconds.
func (m *Manager) ObserveEstimatorDuration(model string, seconds float64) {
	if m == nil {
		return
	}
	m.trainingDuration.WithLabelValues(model).Observe(seconds)
}

// RecordSubstitutions adds n substituted predictions.
func (m *Manager) RecordSubstitutions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.substitutedForecasts.Add(float64(n))
}

// SetRequestShape records the history length and horizon of a request.
func (m *Manager) SetRequestShape(history, horizon int) {
	if m == nil {
		return
	}
	m.historyLength.Set(float64(history))
	m.horizon.Set(float64(horizon))
}

// Registry returns the registry the metrics live on.
func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes the registry in text exposition format to path,
// for collection by the node exporter textfile collector.
func (m *Manager) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("%w: textfile %s: %w", ErrExportFailed, path, err)
	}
	return nil
}

// Push sends the registry to the Pushgateway at url under PushJob, with
// instance as grouping label when non-empty.
func (m *Manager) Push(url, instance string) error {
	if m == nil || url == "" {
		return nil
	}
	p := push.New(url, PushJob).Gatherer(m.registry)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	if err := p.Push(); err != nil {
		return fmt.Errorf("%w: pushgateway %s: %w", ErrExportFailed, url, err)
	}
	return nil
}
