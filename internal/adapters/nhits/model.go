// Package nhits implements the learned tier of the forecast chain: a small
// N-HITS network trained from scratch on the request's own history.
package nhits

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/okian/revforecast/internal/domain/forecast"
	"github.com/okian/revforecast/internal/domain/model"
	"github.com/okian/revforecast/pkg/logger"
	"github.com/okian/revforecast/pkg/metrics"
)

// Option configures a Model.
type Option func(*Model)

// WithModelOptions applies overrides to every ModelConfig the model builds.
func WithModelOptions(opts ...forecast.ModelOption) Option {
	return func(m *Model) {
		m.configOpts = append(m.configOpts, opts...)
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(m *Model) {
		if log != nil {
			m.log = log
		}
	}
}

// WithMetrics records substituted predictions on mgr.
func WithMetrics(mgr *metrics.Manager) Option {
	return func(m *Model) {
		m.metrics = mgr
	}
}

// Model trains a fresh network per Forecast call. It holds no state between
// calls and is safe to reuse.
type Model struct {
	configOpts []forecast.ModelOption
	log        logger.Logger
	metrics    *metrics.Manager
}

// New creates a Model.
func New(opts ...Option) *Model {
	m := &Model{log: logger.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements forecast.Estimator.
func (*Model) Name() string { return forecast.TagNHITS }

// Forecast fits the network on s and predicts the next horizon values.
func (m *Model) Forecast(ctx context.Context, s model.Series, horizon int) (preds []float64, err error) {
	if !forecast.Sufficient(len(s)) {
		return nil, fmt.Errorf("%w: %d observations, need %d", forecast.ErrInsufficientHistory, len(s), forecast.MinHistory)
	}
	values := s.Values()
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: observation %d (%s) is not a finite number",
				forecast.ErrTrainingFailure, i, s[i].Date.Format("2006-01-02"))
		}
	}
	cfg, err := forecast.NewModelConfig(horizon, len(values), m.configOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", forecast.ErrTrainingFailure, err)
	}

	defer func() {
		if r := recover(); r != nil {
			preds = nil
			err = fmt.Errorf("%w: panic: %v", forecast.ErrTrainingFailure, r)
		}
	}()

	sc := fitScaler(cfg.Scaler, values)
	scaled := sc.transform(values)
	net, err := m.fit(ctx, cfg, scaled)
	if err != nil {
		return nil, err
	}

	x := mat.NewDense(1, cfg.InputSize, append([]float64(nil), scaled[len(scaled)-cfg.InputSize:]...))
	out := net.forward(x, false)
	raw := sc.inverse(out.RawRowView(0))
	if len(raw) != horizon {
		return nil, fmt.Errorf("%w: got %d predictions for horizon %d", forecast.ErrInferenceFailure, len(raw), horizon)
	}

	mean, _ := forecast.Mean(values)
	if n := forecast.Sanitize(raw, mean); n > 0 {
		m.metrics.RecordSubstitutions(n)
		m.log.Debug(ctx, "substituted non-positive predictions",
			logger.Int("count", n), logger.Float64("mean", mean))
	}
	return raw, nil
}

func (m *Model) fit(ctx context.Context, cfg forecast.ModelConfig, y []float64) (*network, error) {
	rng := rand.New(rand.NewSource(cfg.RandomSeed)) //nolint:gosec // deterministic seed for reproducible training
	net := newNetwork(cfg, rng)
	data := buildWindows(y, cfg.InputSize, cfg.Horizon)
	opt := &adam{lr: cfg.LearningRate}
	decay := cfg.DecayEvery()

	var loss float64
	for step := 1; step <= cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", forecast.ErrTrainingFailure, err)
		}
		x, target, mask := data.batch(cfg.WindowsBatchSize, rng)
		pred := net.forward(x, true)
		var grad *mat.Dense
		loss, grad = maskedMAE(pred, target, mask)
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return nil, fmt.Errorf("%w: loss is %v at step %d", forecast.ErrTrainingFailure, loss, step)
		}
		net.backward(grad)
		opt.t++
		net.step(opt)
		if decay > 0 && step%decay == 0 {
			opt.lr *= 0.5
		}
	}
	m.log.Debug(ctx, "model trained",
		logger.String("series", cfg.SeriesID),
		logger.Int("steps", cfg.MaxSteps),
		logger.Int("windows", data.len()),
		logger.Int("input_size", cfg.InputSize),
		logger.Float64("final_loss", loss))
	return net, nil
}

var _ forecast.Estimator = (*Model)(nil)
