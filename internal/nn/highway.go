package nn

import (
	"fmt"

	"github.com/example/go-light-tts/internal/runtime/ops"
	"github.com/example/go-light-tts/internal/runtime/tensor"
)

// Highway computes y = g*relu(W1 x) + (1-g)*x with gate g = sigmoid(W2 x).
type Highway struct {
	W1 *Linear
	W2 *Linear
}

func NewHighway(b *Builder, size int64) (*Highway, error) {
	w1, err := NewLinear(b.Path("W1"), size, size, true)
	if err != nil {
		return nil, err
	}

	clear(w1.Bias.RawData())

	w2, err := NewLinear(b.Path("W2"), size, size, true)
	if err != nil {
		return nil, err
	}

	return &Highway{W1: w1, W2: w2}, nil
}

func (h *Highway) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	x1, err := h.W1.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("nn: highway W1: %w", err)
	}

	x2, err := h.W2.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("nn: highway W2: %w", err)
	}

	out := x.Clone()
	od := out.RawData()
	h1 := x1.RawData()
	h2 := x2.RawData()

	for i, v := range od {
		g := ops.Sigmoid(h2[i])
		od[i] = g*ops.Relu(h1[i]) + (1-g)*v
	}

	return out, nil
}
