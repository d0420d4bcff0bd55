package forecast

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/okian/revforecast/internal/domain/model"
	"github.com/okian/revforecast/internal/domain/series"
)

// Mean returns the arithmetic mean of the finite values. ok is false when
// there are none or the mean overflows.
func Mean(values []float64) (mean float64, ok bool) {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return 0, false
	}
	mean = stat.Mean(finite, nil)
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		return 0, false
	}
	return mean, true
}

// Constant returns horizon copies of v.
func Constant(v float64, horizon int) []float64 {
	if horizon < 0 {
		horizon = 0
	}
	out := make([]float64, horizon)
	for i := range out {
		out[i] = v
	}
	return out
}

// Sanitize replaces every prediction that is not finite and strictly positive
// with fallback, in place, and returns how many were replaced. A fallback that
// is itself not positive is still used.
func Sanitize(predictions []float64, fallback float64) int {
	replaced := 0
	for i, p := range predictions {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			predictions[i] = fallback
			replaced++
		}
	}
	return replaced
}

// MeanEstimator forecasts the historical mean for every step.
type MeanEstimator struct{}

// NewMeanEstimator returns the heuristic tier.
func NewMeanEstimator() *MeanEstimator {
	return &MeanEstimator{}
}

// Name implements Estimator.
func (*MeanEstimator) Name() string { return TagMean }

// Forecast implements Estimator. It fails only when the series holds no finite value.
func (*MeanEstimator) Forecast(_ context.Context, s model.Series, horizon int) ([]float64, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("%w: empty series", ErrEstimatorFailure)
	}
	mean, ok := Mean(s.Values())
	if !ok {
		return nil, fmt.Errorf("%w: no finite revenue among %d observations", ErrEstimatorFailure, len(s))
	}
	return Constant(mean, horizon), nil
}

// RawMean is the last-resort forecast computed straight from unvalidated
// records. Missing, non-numeric and non-finite revenues count as zero. It
// returns horizon zeros for empty input and never fails.
func RawMean(records []model.Record, horizon int) []float64 {
	if len(records) == 0 {
		return Constant(0, horizon)
	}
	var sum float64
	for _, rec := range records {
		v, err := series.ParseValue(rec[series.ValueField])
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v
	}
	mean := sum / float64(len(records))
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		mean = 0
	}
	return Constant(mean, horizon)
}

var _ Estimator = (*MeanEstimator)(nil)
