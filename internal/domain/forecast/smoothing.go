package forecast

import (
	"context"
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"

	"github.com/okian/revforecast/internal/domain/model"
)

const defaultSmoothingPeriod = 7

// SmoothingEstimator is simple exponential smoothing: the forecast is the
// last exponentially smoothed level, repeated over the horizon. It is the
// lightweight alternative to the learned model.
type SmoothingEstimator struct {
	period       int
	onSubstitute func(n int)
}

// SmoothingOption configures a SmoothingEstimator.
type SmoothingOption func(*SmoothingEstimator)

// WithSmoothingPeriod sets the EMA period. Non-positive values are ignored.
func WithSmoothingPeriod(period int) SmoothingOption {
	return func(e *SmoothingEstimator) {
		if period > 0 {
			e.period = period
		}
	}
}

// WithOnSubstitute registers fn to be told how many predictions were replaced
// by the series mean.
func WithOnSubstitute(fn func(n int)) SmoothingOption {
	return func(e *SmoothingEstimator) {
		e.onSubstitute = fn
	}
}

// NewSmoothingEstimator creates a smoothing estimator.
func NewSmoothingEstimator(opts ...SmoothingOption) *SmoothingEstimator {
	e := &SmoothingEstimator{period: defaultSmoothingPeriod}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements Estimator.
func (*SmoothingEstimator) Name() string { return TagSmoothing }

// Forecast implements Estimator. Unobserved days are skipped.
func (e *SmoothingEstimator) Forecast(_ context.Context, s model.Series, horizon int) ([]float64, error) {
	if !Sufficient(len(s)) {
		return nil, fmt.Errorf("%w: %d observations, need %d", ErrInsufficientHistory, len(s), MinHistory)
	}
	values := make([]float64, 0, len(s))
	for _, v := range s.Values() {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no finite revenue to smooth", ErrTrainingFailure)
	}
	mean, _ := Mean(values)

	ema := trend.NewEmaWithPeriod[float64](min(e.period, len(values)))
	levels := helper.ChanToSlice(ema.Compute(helper.SliceToChan(values)))
	if len(levels) == 0 {
		return nil, fmt.Errorf("%w: smoothing produced no level", ErrInferenceFailure)
	}

	out := Constant(levels[len(levels)-1], horizon)
	if n := Sanitize(out, mean); n > 0 && e.onSubstitute != nil {
		e.onSubstitute(n)
	}
	return out, nil
}

var _ Estimator = (*SmoothingEstimator)(nil)
