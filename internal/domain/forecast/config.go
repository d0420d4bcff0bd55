package forecast

import (
	"fmt"

	"github.com/creasty/defaults"
)

// maxInputSize caps the lookback window of the learned model.
const maxInputSize = 28

// ModelConfig is the fixed configuration of the learned model. Only Horizon
// and InputSize depend on the request; everything else comes from the
// default tags or process-level overrides.
type ModelConfig struct {
	Horizon   int
	InputSize int

	MaxSteps     int     `default:"100"`
	LearningRate float64 `default:"0.001"`
	NumLRDecays  int     `default:"3"`

	// One entry per stack; every stack holds a single block.
	PoolKernelSizes []int `default:"[2,2]"`
	FreqDownsample  []int `default:"[2,1]"`
	MLPUnits        []int `default:"[512,512]"`

	DropoutTheta float64 `default:"0.1"`
	Activation   string  `default:"ReLU"`
	Scaler       string  `default:"robust"`
	Loss         string  `default:"MAE"`

	WindowsBatchSize int    `default:"128"`
	RandomSeed       int64  `default:"42"`
	SeriesID         string `default:"revenue"`
}

// ModelOption overrides a ModelConfig default. Zero values leave the default.
type ModelOption func(*ModelConfig)

// WithMaxSteps overrides the training step budget.
func WithMaxSteps(steps int) ModelOption {
	return func(c *ModelConfig) {
		if steps > 0 {
			c.MaxSteps = steps
		}
	}
}

// WithHiddenUnits sets the width of every MLP layer.
func WithHiddenUnits(units int) ModelOption {
	return func(c *ModelConfig) {
		if units > 0 {
			for i := range c.MLPUnits {
				c.MLPUnits[i] = units
			}
		}
	}
}

// WithWindowsBatchSize overrides how many windows are sampled per step.
func WithWindowsBatchSize(size int) ModelOption {
	return func(c *ModelConfig) {
		if size > 0 {
			c.WindowsBatchSize = size
		}
	}
}

// WithRandomSeed overrides the initialisation and dropout seed.
func WithRandomSeed(seed int64) ModelOption {
	return func(c *ModelConfig) {
		if seed != 0 {
			c.RandomSeed = seed
		}
	}
}

// NewModelConfig builds the configuration for a series of length n and the
// given horizon. The input window is min(28, n-1) so at least one point is
// left as a training target.
func NewModelConfig(horizon, n int, opts ...ModelOption) (ModelConfig, error) {
	var c ModelConfig
	if err := defaults.Set(&c); err != nil {
		return ModelConfig{}, fmt.Errorf("%w: %v", ErrInvalidModelConfig, err)
	}
	c.Horizon = horizon
	c.InputSize = min(maxInputSize, n-1)
	for _, opt := range opts {
		opt(&c)
	}
	if err := c.Validate(); err != nil {
		return ModelConfig{}, err
	}
	return c, nil
}

// Stacks returns the number of stacks.
func (c ModelConfig) Stacks() int {
	return len(c.PoolKernelSizes)
}

// Knots returns how many forecast coefficients stack i emits before
// interpolation to the horizon.
func (c ModelConfig) Knots(i int) int {
	return max(c.Horizon/c.FreqDownsample[i], 1)
}

// DecayEvery returns the step interval between learning rate halvings, or 0
// when the rate is constant.
func (c ModelConfig) DecayEvery() int {
	if c.NumLRDecays <= 0 {
		return 0
	}
	return max(c.MaxSteps/c.NumLRDecays, 1)
}

// Validate rejects configurations the model cannot be built from.
func (c ModelConfig) Validate() error {
	switch {
	case c.Horizon < 1:
		return fmt.Errorf("%w: horizon %d", ErrInvalidModelConfig, c.Horizon)
	case c.InputSize < 1:
		return fmt.Errorf("%w: input size %d", ErrInvalidModelConfig, c.InputSize)
	case c.MaxSteps < 1:
		return fmt.Errorf("%w: max steps %d", ErrInvalidModelConfig, c.MaxSteps)
	case c.LearningRate <= 0:
		return fmt.Errorf("%w: learning rate %g", ErrInvalidModelConfig, c.LearningRate)
	case c.DropoutTheta < 0 || c.DropoutTheta >= 1:
		return fmt.Errorf("%w: dropout %g", ErrInvalidModelConfig, c.DropoutTheta)
	case c.WindowsBatchSize < 1:
		return fmt.Errorf("%w: windows batch size %d", ErrInvalidModelConfig, c.WindowsBatchSize)
	case len(c.PoolKernelSizes) == 0 || len(c.PoolKernelSizes) != len(c.FreqDownsample):
		return fmt.Errorf("%w: %d pooling kernels for %d downsample factors",
			ErrInvalidModelConfig, len(c.PoolKernelSizes), len(c.FreqDownsample))
	case len(c.MLPUnits) == 0:
		return fmt.Errorf("%w: no MLP layers", ErrInvalidModelConfig)
	case c.Activation != "ReLU":
		return fmt.Errorf("%w: activation %q", ErrInvalidModelConfig, c.Activation)
	case c.Loss != "MAE":
		return fmt.Errorf("%w: loss %q", ErrInvalidModelConfig, c.Loss)
	case c.Scaler != "robust" && c.Scaler != "identity":
		return fmt.Errorf("%w: scaler %q", ErrInvalidModelConfig, c.Scaler)
	}
	for i := range c.PoolKernelSizes {
		if c.PoolKernelSizes[i] < 1 || c.FreqDownsample[i] < 1 {
			return fmt.Errorf("%w: stack %d has non-positive pooling or downsampling", ErrInvalidModelConfig, i)
		}
	}
	for i, u := range c.MLPUnits {
		if u < 1 {
			return fmt.Errorf("%w: MLP layer %d has %d units", ErrInvalidModelConfig, i, u)
		}
	}
	return nil
}
