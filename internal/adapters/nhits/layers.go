package nhits

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Adam hyperparameters (PyTorch defaults).
const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// dense is a fully connected layer y = xW + b over a batch of rows.
type dense struct {
	w  *mat.Dense // in x out
	b  []float64
	gw *mat.Dense
	gb []float64

	// Adam moments.
	mw, vw *mat.Dense
	mb, vb []float64

	in *mat.Dense // last forward input
}

// newDense initialises weights and bias uniformly in ±1/sqrt(in).
func newDense(in, out int, rng *rand.Rand) *dense {
	bound := 1 / math.Sqrt(float64(in))
	uniform := func(n int) []float64 {
		s := make([]float64, n)
		for i := range s {
			s[i] = (rng.Float64()*2 - 1) * bound
		}
		return s
	}
	return &dense{
		w:  mat.NewDense(in, out, uniform(in*out)),
		b:  uniform(out),
		gw: mat.NewDense(in, out, nil),
		gb: make([]float64, out),
		mw: mat.NewDense(in, out, nil),
		vw: mat.NewDense(in, out, nil),
		mb: make([]float64, out),
		vb: make([]float64, out),
	}
}

func (d *dense) forward(x *mat.Dense) *mat.Dense {
	d.in = x
	rows, _ := x.Dims()
	_, cols := d.w.Dims()
	out := mat.NewDense(rows, cols, nil)
	out.Mul(x, d.w)
	for i := 0; i < rows; i++ {
		floats.Add(out.RawRowView(i), d.b)
	}
	return out
}

// backward stores parameter gradients and returns the gradient w.r.t. the input.
func (d *dense) backward(grad *mat.Dense) *mat.Dense {
	d.gw.Mul(d.in.T(), grad)
	for j := range d.gb {
		d.gb[j] = 0
	}
	rows, _ := grad.Dims()
	for i := 0; i < rows; i++ {
		floats.Add(d.gb, grad.RawRowView(i))
	}
	inRows, inCols := d.in.Dims()
	dx := mat.NewDense(inRows, inCols, nil)
	dx.Mul(grad, d.w.T())
	return dx
}

func (d *dense) step(opt *adam) {
	opt.update(d.w.RawMatrix().Data, d.gw.RawMatrix().Data, d.mw.RawMatrix().Data, d.vw.RawMatrix().Data)
	opt.update(d.b, d.gb, d.mb, d.vb)
}

type relu struct {
	out *mat.Dense
}

func (r *relu) forward(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	r.out = mat.NewDense(rows, cols, nil)
	r.out.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, x)
	return r.out
}

func (r *relu) backward(grad *mat.Dense) *mat.Dense {
	rows, cols := grad.Dims()
	dx := mat.NewDense(rows, cols, nil)
	dx.Apply(func(i, j int, v float64) float64 {
		if r.out.At(i, j) <= 0 {
			return 0
		}
		return v
	}, grad)
	return dx
}

// dropout zeroes activations with probability p while training and rescales
// the survivors by 1/(1-p). It is the identity at inference.
type dropout struct {
	p    float64
	rng  *rand.Rand
	mask *mat.Dense
}

func (d *dropout) forward(x *mat.Dense, train bool) *mat.Dense {
	if !train || d.p == 0 {
		d.mask = nil
		return x
	}
	rows, cols := x.Dims()
	keep := 1 / (1 - d.p)
	d.mask = mat.NewDense(rows, cols, nil)
	data := d.mask.RawMatrix().Data
	for i := range data {
		if d.rng.Float64() >= d.p {
			data[i] = keep
		}
	}
	out := mat.NewDense(rows, cols, nil)
	out.MulElem(x, d.mask)
	return out
}

func (d *dropout) backward(grad *mat.Dense) *mat.Dense {
	if d.mask == nil {
		return grad
	}
	rows, cols := grad.Dims()
	dx := mat.NewDense(rows, cols, nil)
	dx.MulElem(grad, d.mask)
	return dx
}

// adam is the Adam optimizer with a step learning rate schedule.
type adam struct {
	lr float64
	t  int
}

func (a *adam) update(params, grads, m, v []float64) {
	c1 := 1 - math.Pow(adamBeta1, float64(a.t))
	c2 := 1 - math.Pow(adamBeta2, float64(a.t))
	for i, g := range grads {
		m[i] = adamBeta1*m[i] + (1-adamBeta1)*g
		v[i] = adamBeta2*v[i] + (1-adamBeta2)*g*g
		params[i] -= a.lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + adamEpsilon)
	}
}
