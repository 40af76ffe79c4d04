package nn

import (
	"errors"
	"fmt"

	"github.com/example/go-light-tts/internal/runtime/tensor"
)

// Linear is a dense layer y = x W^T + b.
type Linear struct {
	Weight *tensor.Tensor // [out, in]
	Bias   *tensor.Tensor // optional [out]
}

func NewLinear(b *Builder, in, out int64, withBias bool) (*Linear, error) {
	bound := fanInBound(in)

	w, err := b.Uniform("weight", bound, out, in)
	if err != nil {
		return nil, err
	}

	l := &Linear{Weight: w}

	if withBias {
		l.Bias, err = b.Uniform("bias", bound, out)
		if err != nil {
			return nil, err
		}
	}

	return l, nil
}

func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if l == nil || l.Weight == nil {
		return nil, errors.New("nn: linear is not initialized")
	}

	return tensor.Linear(x, l.Weight, l.Bias)
}

// Embedding maps token IDs to rows of a [vocab, dim] table.
type Embedding struct {
	Weight *tensor.Tensor
}

func NewEmbedding(b *Builder, vocab, dim int64) (*Embedding, error) {
	w, err := b.Normal("weight", 1, vocab, dim)
	if err != nil {
		return nil, err
	}

	return &Embedding{Weight: w}, nil
}

// Forward looks up a batch of equally long token sequences and returns
// [batch, time, dim].
func (e *Embedding) Forward(tokens [][]int64) (*tensor.Tensor, error) {
	if len(tokens) == 0 {
		return nil, errors.New("nn: embedding requires at least one sequence")
	}

	steps := len(tokens[0])
	flat := make([]int64, 0, len(tokens)*steps)

	for i, seq := range tokens {
		if len(seq) != steps {
			return nil, fmt.Errorf("nn: embedding sequence %d has length %d, want %d", i, len(seq), steps)
		}

		flat = append(flat, seq...)
	}

	rows, err := e.Weight.Gather(0, flat)
	if err != nil {
		return nil, fmt.Errorf("nn: embedding: %w", err)
	}

	return rows.Reshape([]int64{int64(len(tokens)), int64(steps), e.Weight.Dim(1)})
}
