package nn

import (
	"fmt"

	"github.com/example/go-light-tts/internal/runtime/ops"
	"github.com/example/go-light-tts/internal/runtime/tensor"
)

// BatchNormConv is a bias-free 1D convolution with padding kernel/2, an
// optional activation, and batch normalization, applied in that order.
// Input and output are [batch, channels, time].
type BatchNormConv struct {
	Weight     *tensor.Tensor // [out, in, kernel]
	Norm       ops.BatchNorm
	Activation ops.Activation
	kernel     int64
}

func NewBatchNormConv(b *Builder, in, out, kernel int64, act ops.Activation) (*BatchNormConv, error) {
	if kernel < 1 {
		return nil, fmt.Errorf("nn: conv kernel must be >= 1, got %d", kernel)
	}

	w, err := b.Path("conv").Uniform("weight", fanInBound(in*kernel), out, in, kernel)
	if err != nil {
		return nil, err
	}

	bn := b.Path("bnorm")

	norm := ops.BatchNorm{Eps: ops.BatchNormEps, Momentum: ops.BatchNormMomentum}

	if norm.Weight, err = bn.Constant("weight", 1, out); err != nil {
		return nil, err
	}

	if norm.Bias, err = bn.Constant("bias", 0, out); err != nil {
		return nil, err
	}

	if norm.RunningMean, err = bn.Constant("running_mean", 0, out); err != nil {
		return nil, err
	}

	if norm.RunningVar, err = bn.Constant("running_var", 1, out); err != nil {
		return nil, err
	}

	return &BatchNormConv{Weight: w, Norm: norm, Activation: act, kernel: kernel}, nil
}

// Forward convolves x. For even kernels the result is one frame longer than
// the input. In training mode the running statistics are updated.
func (c *BatchNormConv) Forward(x *tensor.Tensor, train bool) (*tensor.Tensor, error) {
	y, err := ops.Conv1D(x, c.Weight, nil, c.kernel/2)
	if err != nil {
		return nil, err
	}

	if c.Activation != nil {
		y = y.Map(c.Activation)
	}

	return ops.BatchNorm1D(y, c.Norm, train)
}
