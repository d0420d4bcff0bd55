package nhits

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/okian/revforecast/internal/domain/forecast"
)

// network stacks N-HITS blocks. Each block sees the residual left by the
// previous ones; the forecast is the last observed level plus the sum of
// every block forecast.
type network struct {
	inputSize int
	horizon   int
	blocks    []*block
}

func newNetwork(cfg forecast.ModelConfig, rng *rand.Rand) *network {
	n := &network{inputSize: cfg.InputSize, horizon: cfg.Horizon}
	for i := 0; i < cfg.Stacks(); i++ {
		n.blocks = append(n.blocks, newBlock(
			cfg.InputSize, cfg.Horizon, cfg.Knots(i), cfg.PoolKernelSizes[i],
			cfg.MLPUnits, cfg.DropoutTheta, rng,
		))
	}
	return n
}

// forward maps rows of scaled input windows to rows of scaled forecasts.
func (n *network) forward(x *mat.Dense, train bool) *mat.Dense {
	rows, _ := x.Dims()
	residual := mat.DenseCopyOf(x)
	out := mat.NewDense(rows, n.horizon, nil)
	for i := 0; i < rows; i++ {
		level := x.At(i, n.inputSize-1)
		row := out.RawRowView(i)
		for j := range row {
			row[j] = level
		}
	}
	for _, b := range n.blocks {
		backcast, fc := b.forward(residual, train)
		residual.Sub(residual, backcast)
		out.Add(out, fc)
	}
	return out
}

// backward propagates the loss gradient w.r.t. the forecast through every block.
func (n *network) backward(dForecast *mat.Dense) {
	rows, _ := dForecast.Dims()
	dResidual := mat.NewDense(rows, n.inputSize, nil)
	for i := len(n.blocks) - 1; i >= 0; i-- {
		dBackcast := mat.NewDense(rows, n.inputSize, nil)
		dBackcast.Scale(-1, dResidual)
		dIn := n.blocks[i].backward(dBackcast, dForecast)
		dResidual.Add(dResidual, dIn)
	}
}

func (n *network) step(opt *adam) {
	for _, b := range n.blocks {
		b.step(opt)
	}
}
