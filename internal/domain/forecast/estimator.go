// Package forecast defines the estimator contract and the statistical tiers of
// the revenue forecast fallback chain.
package forecast

import (
	"context"

	"github.com/okian/revforecast/internal/domain/model"
)

// Tier tags reported in the response "model" field.
const (
	TagNHITS     = "NHITS"
	TagSmoothing = "SES"
	TagMean      = "MEAN"
	TagRawMean   = "RAW_MEAN"
)

// Estimator produces horizon point forecasts for a series.
//
// Implementations return exactly horizon values or an error wrapping one of
// this package's sentinel errors.
type Estimator interface {
	Forecast(ctx context.Context, s model.Series, horizon int) ([]float64, error)
	// Name returns the tier tag reported to callers.
	Name() string
}
