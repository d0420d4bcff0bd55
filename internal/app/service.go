// Package service runs one forecast request through the fallback chain:
// normalize, gate, learned model, historical mean, raw mean.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/revforecast/internal/adapters/nhits"
	"github.com/okian/revforecast/internal/domain/forecast"
	"github.com/okian/revforecast/internal/domain/model"
	"github.com/okian/revforecast/internal/domain/series"
	"github.com/okian/revforecast/pkg/logger"
	"github.com/okian/revforecast/pkg/metrics"
)

// Attempt records a tier that ran or was skipped without producing the forecast.
type Attempt struct {
	Model string
	Err   error
}

// Result is a successful forecast.
type Result struct {
	Predictions []float64
	Model       string    // tier tag that produced Predictions
	Attempts    []Attempt // tiers abandoned before it, in order
}

// Service implements the forecast fallback chain.
type Service struct {
	learned forecast.Estimator
	mean    forecast.Estimator

	logger  logger.Logger
	metrics *metrics.Manager
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLearned sets the learned tier. Defaults to the N-HITS model.
func WithLearned(e forecast.Estimator) Option {
	return func(s *Service) {
		if e != nil {
			s.learned = e
		}
	}
}

// WithMean replaces the heuristic tier.
func WithMean(e forecast.Estimator) Option {
	return func(s *Service) {
		if e != nil {
			s.mean = e
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithMetrics sets the metrics manager.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a new Service.
func New(opts ...Option) *Service {
	s := &Service{
		mean:   forecast.NewMeanEstimator(),
		logger: logger.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.learned == nil {
		s.learned = nhits.New(
			nhits.WithLogger(s.logger.Named("nhits")),
			nhits.WithMetrics(s.metrics),
		)
	}
	return s
}

// Forecast produces req's horizon predictions. It fails only for bad input
// (series.ErrEmptyInput, ErrMalformedInput, ErrInvalidHorizon) or for an
// estimator error outside the recoverable kinds.
func (s *Service) Forecast(ctx context.Context, req model.Request) (Result, error) {
	if len(req.HistoricalData) == 0 {
		return Result{}, fmt.Errorf("%w: no records", series.ErrEmptyInput)
	}
	horizon := req.HorizonOrDefault()
	if horizon < 1 || horizon > model.MaxHorizon {
		return Result{}, fmt.Errorf("%w: %d, must be between 1 and %d", series.ErrInvalidHorizon, horizon, model.MaxHorizon)
	}

	hist, err := series.Normalize(req.HistoricalData)
	if err != nil {
		return Result{}, err
	}
	s.metrics.SetRequestShape(len(hist), horizon)
	s.logger.Debug(ctx, "series normalized",
		logger.Int("observations", len(hist)),
		logger.Int("horizon", horizon))

	var res Result

	if forecast.Sufficient(len(hist)) {
		preds, err := s.run(ctx, s.learned, hist, horizon)
		if err == nil {
			return s.done(ctx, res, preds, s.learned.Name()), nil
		}
		if !recoverable(err) {
			return Result{}, fmt.Errorf("%s tier: %w", s.learned.Name(), err)
		}
		s.fallback(ctx, &res, s.learned.Name(), err)
	} else {
		err := fmt.Errorf("%w: %d observations, need %d", forecast.ErrInsufficientHistory, len(hist), forecast.MinHistory)
		s.fallback(ctx, &res, s.learned.Name(), err)
	}

	preds, err := s.run(ctx, s.mean, hist, horizon)
	if err == nil {
		return s.done(ctx, res, preds, s.mean.Name()), nil
	}
	if !errors.Is(err, forecast.ErrEstimatorFailure) {
		return Result{}, fmt.Errorf("%s tier: %w", s.mean.Name(), err)
	}
	s.fallback(ctx, &res, s.mean.Name(), err)
	s.logger.Error(ctx, "catastrophic failure, using raw mean of input records", logger.Error(err))

	return s.done(ctx, res, forecast.RawMean(req.HistoricalData, horizon), forecast.TagRawMean), nil
}

func (s *Service) run(ctx context.Context, e forecast.Estimator, hist model.Series, horizon int) ([]float64, error) {
	start := time.Now()
	preds, err := e.Forecast(ctx, hist, horizon)
	s.metrics.ObserveEstimatorDuration(e.Name(), time.Since(start).Seconds())
	if err == nil && len(preds) != horizon {
		return nil, fmt.Errorf("%w: %d predictions for horizon %d", forecast.ErrInferenceFailure, len(preds), horizon)
	}
	return preds, err
}

func (s *Service) done(ctx context.Context, res Result, preds []float64, tier string) Result {
	res.Predictions = preds
	res.Model = tier
	s.metrics.RecordForecast(tier)
	s.logger.Info(ctx, "forecast produced",
		logger.String("model", tier),
		logger.Int("horizon", len(preds)),
		logger.Int("fallbacks", len(res.Attempts)))
	return res
}

func (s *Service) fallback(ctx context.Context, res *Result, tier string, err error) {
	res.Attempts = append(res.Attempts, Attempt{Model: tier, Err: err})
	s.metrics.RecordFallback(tier, reason(err))
	s.logger.Warn(ctx, "tier did not produce a forecast, falling back",
		logger.String("model", tier),
		logger.String("reason", reason(err)),
		logger.Error(err))
}

// recoverable reports whether the chain may move on from a learned-tier error.
func recoverable(err error) bool {
	return errors.Is(err, forecast.ErrTrainingFailure) ||
		errors.Is(err, forecast.ErrInferenceFailure) ||
		errors.Is(err, forecast.ErrInsufficientHistory)
}

func reason(err error) string {
	switch {
	case errors.Is(err, forecast.ErrInsufficientHistory):
		return metrics.ReasonInsufficientHistory
	case errors.Is(err, forecast.ErrTrainingFailure):
		return metrics.ReasonTrainingFailure
	case errors.Is(err, forecast.ErrInferenceFailure):
		return metrics.ReasonInferenceFailure
	default:
		return metrics.ReasonEstimatorFailure
	}
}
