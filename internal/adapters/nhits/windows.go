package nhits

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// windows describes every training example of one scaled series without
// copying it: window t has the inputSize points before t as input and the
// horizon points from t as target, masked past the end of history. Rows are
// materialised only for the sampled batch.
type windows struct {
	y         []float64
	inputSize int
	horizon   int
}

func buildWindows(y []float64, inputSize, horizon int) windows {
	return windows{y: y, inputSize: inputSize, horizon: horizon}
}

func (w windows) len() int { return max(len(w.y)-w.inputSize, 0) }

// fill writes window t into the given rows.
func (w windows) fill(t int, input, target, mask []float64) {
	copy(input, w.y[t-w.inputSize:t])
	for j := range target {
		if t+j < len(w.y) {
			target[j] = w.y[t+j]
			mask[j] = 1
		} else {
			target[j] = 0
			mask[j] = 0
		}
	}
}

// batch samples up to size windows without replacement and packs them into
// input, target and mask matrices.
func (w windows) batch(size int, rng *rand.Rand) (x, y, mask *mat.Dense) {
	idx := rng.Perm(w.len())
	if len(idx) > size {
		idx = idx[:size]
	}
	x = mat.NewDense(len(idx), w.inputSize, nil)
	y = mat.NewDense(len(idx), w.horizon, nil)
	mask = mat.NewDense(len(idx), w.horizon, nil)
	for row, i := range idx {
		w.fill(w.inputSize+i, x.RawRowView(row), y.RawRowView(row), mask.RawRowView(row))
	}
	return x, y, mask
}

// maskedMAE returns the mean absolute error over unmasked cells and its
// gradient w.r.t. the prediction.
func maskedMAE(pred, target, mask *mat.Dense) (float64, *mat.Dense) {
	rows, cols := pred.Dims()
	grad := mat.NewDense(rows, cols, nil)
	count := mat.Sum(mask)
	if count == 0 {
		return 0, grad
	}
	var loss float64
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m := mask.At(i, j)
			if m == 0 {
				continue
			}
			d := pred.At(i, j) - target.At(i, j)
			switch {
			case d > 0:
				loss += d * m
				grad.Set(i, j, m/count)
			case d < 0:
				loss -= d * m
				grad.Set(i, j, -m/count)
			}
		}
	}
	return loss / count, grad
}
