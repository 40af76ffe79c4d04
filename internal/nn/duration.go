package nn

import (
	"fmt"
	"strconv"

	"github.com/example/go-light-tts/internal/runtime/ops"
	"github.com/example/go-light-tts/internal/runtime/tensor"
)

// DurationPredictor estimates a duration per token from token features.
// Three BatchNormConv blocks (kernel 5, ReLU) feed a Linear to one output.
type DurationPredictor struct {
	Convs []*BatchNormConv
	Lin   *Linear
}

const durationKernel = 5

func NewDurationPredictor(b *Builder, in, convDims int64) (*DurationPredictor, error) {
	p := &DurationPredictor{}

	width := in
	for i := range 3 {
		conv, err := NewBatchNormConv(b.Path("convs", strconv.Itoa(i)), width, convDims, durationKernel, ops.Relu)
		if err != nil {
			return nil, err
		}

		p.Convs = append(p.Convs, conv)
		width = convDims
	}

	lin, err := NewLinear(b.Path("lin"), convDims, 1, true)
	if err != nil {
		return nil, err
	}

	p.Lin = lin

	return p, nil
}

// Forward maps x [batch, tokens, in] to durations [batch, tokens, 1] scaled
// by alpha.
func (p *DurationPredictor) Forward(x *tensor.Tensor, alpha float32, train bool) (*tensor.Tensor, error) {
	y, err := x.Transpose(1, 2)
	if err != nil {
		return nil, fmt.Errorf("nn: duration predictor: %w", err)
	}

	for i, conv := range p.Convs {
		if y, err = conv.Forward(y, train); err != nil {
			return nil, fmt.Errorf("nn: duration predictor conv %d: %w", i, err)
		}
	}

	if y, err = y.Transpose(1, 2); err != nil {
		return nil, err
	}

	if y, err = p.Lin.Forward(y); err != nil {
		return nil, fmt.Errorf("nn: duration predictor lin: %w", err)
	}

	return y.Scale(alpha), nil
}

// Durations flattens a [batch, tokens, 1] prediction into one duration
// vector per sequence.
func Durations(pred *tensor.Tensor) [][]float32 {
	batch, tokens := int(pred.Dim(0)), int(pred.Dim(1))
	data := pred.RawData()

	out := make([][]float32, batch)
	for b := range out {
		out[b] = append([]float32(nil), data[b*tokens:(b+1)*tokens]...)
	}

	return out
}
