package nhits

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// scaler maps revenue into a robust-scaled space and back.
type scaler struct {
	center float64
	scale  float64
}

// fitScaler centres on the median and scales by the median absolute deviation.
// A zero MAD falls back to the mean absolute deviation, then to 1, so flat
// series stay representable. kind "identity" disables scaling.
func fitScaler(kind string, values []float64) scaler {
	if kind == "identity" || len(values) == 0 {
		return scaler{center: 0, scale: 1}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	median := medianSorted(sorted)

	dev := make([]float64, len(values))
	for i, v := range values {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	scale := medianSorted(dev)
	if scale == 0 {
		scale = stat.Mean(dev, nil)
	}
	if scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		scale = 1
	}
	return scaler{center: median, scale: scale}
}

func (s scaler) transform(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - s.center) / s.scale
	}
	return out
}

func (s scaler) inverse(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v*s.scale + s.center
	}
	return out
}

func medianSorted(x []float64) float64 {
	n := len(x)
	if n%2 == 1 {
		return x[n/2]
	}
	return (x[n/2-1] + x[n/2]) / 2
}
