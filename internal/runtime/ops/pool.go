package ops

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-light-tts/internal/runtime/tensor"
)

// MaxPool1D applies max pooling over the last axis of x [batch, channels,
// length]. Padding positions behave as -Inf. The output length is
// (length + 2*padding - kernel)/stride + 1.
func MaxPool1D(x *tensor.Tensor, kernel, stride, padding int64) (*tensor.Tensor, error) {
	if x == nil {
		return nil, errors.New("ops: maxpool requires non-nil input")
	}

	if kernel < 1 || stride < 1 || padding < 0 {
		return nil, fmt.Errorf("ops: maxpool invalid kernel=%d stride=%d padding=%d", kernel, stride, padding)
	}

	if padding > kernel/2 {
		return nil, fmt.Errorf("ops: maxpool padding %d exceeds half the kernel %d", padding, kernel)
	}

	shape := x.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("ops: maxpool expects rank 3 input, got %v", shape)
	}

	rows := shape[0] * shape[1]
	length := shape[2]

	outLen := int64(0)
	if span := length + 2*padding - kernel; span >= 0 {
		outLen = span/stride + 1
	}

	out, err := tensor.Zeros([]int64{shape[0], shape[1], outLen})
	if err != nil {
		return nil, err
	}

	src := x.RawData()
	dst := out.RawData()
	negInf := float32(math.Inf(-1))

	for r := range rows {
		in := src[r*length : (r+1)*length]
		o := dst[r*outLen : (r+1)*outLen]

		for i := range outLen {
			best := negInf
			start := i*stride - padding

			for k := range kernel {
				pos := start + k
				if pos >= 0 && pos < length && in[pos] > best {
					best = in[pos]
				}
			}

			o[i] = best
		}
	}

	return out, nil
}
