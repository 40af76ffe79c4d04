package ops

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-light-tts/internal/runtime/tensor"
)

// BatchNorm holds the affine parameters and running statistics of a 1D batch
// normalization layer. All four tensors have shape [channels].
type BatchNorm struct {
	Weight      *tensor.Tensor
	Bias        *tensor.Tensor
	RunningMean *tensor.Tensor
	RunningVar  *tensor.Tensor
	Eps         float32
	Momentum    float32
}

// Default batch-norm hyperparameters.
const (
	BatchNormEps      = 1e-5
	BatchNormMomentum = 0.1
)

// BatchNorm1D normalizes x of shape [batch, channels, length] per channel.
//
// In training mode the batch mean and biased variance over (batch, length)
// are used, and the running statistics are updated in place with
// running = (1-momentum)*running + momentum*batch, where the variance term is
// the unbiased estimate. In eval mode the running statistics are used and
// nothing is mutated.
func BatchNorm1D(x *tensor.Tensor, bn BatchNorm, train bool) (*tensor.Tensor, error) {
	if x == nil {
		return nil, errors.New("ops: batchnorm requires non-nil input")
	}

	if bn.Weight == nil || bn.Bias == nil || bn.RunningMean == nil || bn.RunningVar == nil {
		return nil, errors.New("ops: batchnorm requires weight, bias and running statistics")
	}

	shape := x.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("ops: batchnorm expects rank 3 input, got %v", shape)
	}

	batch, channels, length := shape[0], shape[1], shape[2]

	for name, p := range map[string]*tensor.Tensor{
		"weight":       bn.Weight,
		"bias":         bn.Bias,
		"running_mean": bn.RunningMean,
		"running_var":  bn.RunningVar,
	} {
		if p.Rank() != 1 || p.Dim(0) != channels {
			return nil, fmt.Errorf("ops: batchnorm %s shape %v does not match channels %d", name, p.Shape(), channels)
		}
	}

	out := x.Clone()
	data := out.RawData()
	n := batch * length

	weight := bn.Weight.RawData()
	bias := bn.Bias.RawData()
	runMean := bn.RunningMean.RawData()
	runVar := bn.RunningVar.RawData()

	for c := range channels {
		var mean, variance float64

		if train {
			if n == 0 {
				continue
			}

			mean, variance = channelStats(data, batch, channels, length, c)

			unbiased := variance
			if n > 1 {
				unbiased = variance * float64(n) / float64(n-1)
			}

			m := float64(bn.Momentum)
			runMean[c] = float32((1-m)*float64(runMean[c]) + m*mean)
			runVar[c] = float32((1-m)*float64(runVar[c]) + m*unbiased)
		} else {
			mean = float64(runMean[c])
			variance = float64(runVar[c])
		}

		inv := 1 / math.Sqrt(variance+float64(bn.Eps))
		scale := float32(inv) * weight[c]
		shift := bias[c] - float32(mean)*scale

		for b := range batch {
			row := data[(b*channels+c)*length : (b*channels+c+1)*length]
			for i, v := range row {
				row[i] = v*scale + shift
			}
		}
	}

	return out, nil
}

func channelStats(data []float32, batch, channels, length, c int64) (mean, variance float64) {
	n := float64(batch * length)

	for b := range batch {
		for _, v := range data[(b*channels+c)*length : (b*channels+c+1)*length] {
			mean += float64(v)
		}
	}

	mean /= n

	for b := range batch {
		for _, v := range data[(b*channels+c)*length : (b*channels+c+1)*length] {
			d := float64(v) - mean
			variance += d * d
		}
	}

	return mean, variance / n
}
