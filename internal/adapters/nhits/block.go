package nhits

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// block is one N-HITS block: max-pool the residual window, run an MLP, and
// split its output into a backcast over the window and a few forecast knots
// that are linearly interpolated to the horizon.
type block struct {
	inputSize int
	horizon   int
	knots     int
	kernel    int

	layers []*dense // hidden layers followed by the theta projection
	acts   []*relu
	drop   *dropout
	interp *mat.Dense // knots x horizon

	argmax [][]int // per row, per pooled cell: index into the window
}

func newBlock(inputSize, horizon, knots, kernel int, units []int, dropoutP float64, rng *rand.Rand) *block {
	b := &block{
		inputSize: inputSize,
		horizon:   horizon,
		knots:     knots,
		kernel:    kernel,
		drop:      &dropout{p: dropoutP, rng: rng},
		interp:    interpolation(knots, horizon),
	}
	in := pooledSize(inputSize, kernel)
	for _, u := range units {
		b.layers = append(b.layers, newDense(in, u, rng))
		b.acts = append(b.acts, &relu{})
		in = u
	}
	b.layers = append(b.layers, newDense(in, inputSize+knots, rng))
	return b
}

// pooledSize is the ceil-mode output length of a stride=kernel max pool.
func pooledSize(n, kernel int) int {
	return (n + kernel - 1) / kernel
}

// interpolation returns the knots x horizon matrix of linear interpolation
// weights with half-pixel alignment, so forecast = knots * M.
func interpolation(knots, horizon int) *mat.Dense {
	m := mat.NewDense(knots, horizon, nil)
	ratio := float64(knots) / float64(horizon)
	for i := 0; i < horizon; i++ {
		src := (float64(i)+0.5)*ratio - 0.5
		if src < 0 {
			src = 0
		}
		lo := int(math.Floor(src))
		if lo > knots-1 {
			lo = knots - 1
		}
		hi := min(lo+1, knots-1)
		w := src - float64(lo)
		m.Set(lo, i, m.At(lo, i)+1-w)
		m.Set(hi, i, m.At(hi, i)+w)
	}
	return m
}

func (b *block) pool(r *mat.Dense) *mat.Dense {
	rows, _ := r.Dims()
	cells := pooledSize(b.inputSize, b.kernel)
	out := mat.NewDense(rows, cells, nil)
	b.argmax = make([][]int, rows)
	for i := 0; i < rows; i++ {
		src := r.RawRowView(i)
		dst := out.RawRowView(i)
		idx := make([]int, cells)
		for c := 0; c < cells; c++ {
			best := c * b.kernel
			end := min(best+b.kernel, b.inputSize)
			for k := best + 1; k < end; k++ {
				if src[k] > src[best] {
					best = k
				}
			}
			idx[c] = best
			dst[c] = src[best]
		}
		b.argmax[i] = idx
	}
	return out
}

func (b *block) unpool(grad *mat.Dense) *mat.Dense {
	rows, _ := grad.Dims()
	out := mat.NewDense(rows, b.inputSize, nil)
	for i := 0; i < rows; i++ {
		g := grad.RawRowView(i)
		dst := out.RawRowView(i)
		for c, k := range b.argmax[i] {
			dst[k] += g[c]
		}
	}
	return out
}

// forward returns the backcast (rows x inputSize) and forecast (rows x horizon).
func (b *block) forward(r *mat.Dense, train bool) (*mat.Dense, *mat.Dense) {
	h := b.pool(r)
	for i, act := range b.acts {
		h = act.forward(b.layers[i].forward(h))
	}
	h = b.drop.forward(h, train)
	theta := b.layers[len(b.layers)-1].forward(h)

	rows, _ := theta.Dims()
	backcast := mat.DenseCopyOf(theta.Slice(0, rows, 0, b.inputSize))
	forecast := mat.NewDense(rows, b.horizon, nil)
	forecast.Mul(theta.Slice(0, rows, b.inputSize, b.inputSize+b.knots), b.interp)
	return backcast, forecast
}

// backward takes the loss gradients w.r.t. both outputs, accumulates parameter
// gradients, and returns the gradient w.r.t. the block input.
func (b *block) backward(dBackcast, dForecast *mat.Dense) *mat.Dense {
	rows, _ := dForecast.Dims()
	dKnots := mat.NewDense(rows, b.knots, nil)
	dKnots.Mul(dForecast, b.interp.T())

	dTheta := mat.NewDense(rows, b.inputSize+b.knots, nil)
	for i := 0; i < rows; i++ {
		row := dTheta.RawRowView(i)
		copy(row[:b.inputSize], dBackcast.RawRowView(i))
		copy(row[b.inputSize:], dKnots.RawRowView(i))
	}

	g := b.layers[len(b.layers)-1].backward(dTheta)
	g = b.drop.backward(g)
	for i := len(b.acts) - 1; i >= 0; i-- {
		g = b.layers[i].backward(b.acts[i].backward(g))
	}
	return b.unpool(g)
}

func (b *block) step(opt *adam) {
	for _, l := range b.layers {
		l.step(opt)
	}
}
