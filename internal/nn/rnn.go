package nn

import (
	"fmt"

	"github.com/example/go-light-tts/internal/runtime/ops"
	"github.com/example/go-light-tts/internal/runtime/tensor"
)

// RNNKind selects the recurrent cell.
type RNNKind int

const (
	LSTMCell RNNKind = iota
	GRUCell
)

func (k RNNKind) gates() int64 {
	if k == GRUCell {
		return 3
	}

	return 4
}

func (k RNNKind) String() string {
	if k == GRUCell {
		return "gru"
	}

	return "lstm"
}

// BiRNN is a single-layer bidirectional recurrent layer over [batch, time,
// input]. The output concatenates forward and backward hidden states on the
// last axis: [batch, time, 2*hidden].
type BiRNN struct {
	Kind   RNNKind
	Fwd    ops.RNNWeights
	Rev    ops.RNNWeights
	Hidden int64
}

func NewBiRNN(b *Builder, kind RNNKind, input, hidden int64) (*BiRNN, error) {
	fwd, err := newRNNWeights(b, kind, input, hidden, "")
	if err != nil {
		return nil, err
	}

	bwd, err := newRNNWeights(b, kind, input, hidden, "_reverse")
	if err != nil {
		return nil, err
	}

	return &BiRNN{Kind: kind, Fwd: fwd, Rev: bwd, Hidden: hidden}, nil
}

func newRNNWeights(b *Builder, kind RNNKind, input, hidden int64, suffix string) (ops.RNNWeights, error) {
	bound := fanInBound(hidden)
	g := kind.gates() * hidden

	var (
		w   ops.RNNWeights
		err error
	)

	if w.WeightIH, err = b.Uniform("weight_ih_l0"+suffix, bound, g, input); err != nil {
		return w, err
	}

	if w.WeightHH, err = b.Uniform("weight_hh_l0"+suffix, bound, g, hidden); err != nil {
		return w, err
	}

	if w.BiasIH, err = b.Uniform("bias_ih_l0"+suffix, bound, g); err != nil {
		return w, err
	}

	if w.BiasHH, err = b.Uniform("bias_hh_l0"+suffix, bound, g); err != nil {
		return w, err
	}

	return w, nil
}

func (r *BiRNN) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	run := ops.LSTM
	if r.Kind == GRUCell {
		run = ops.GRU
	}

	fwd, err := run(x, r.Fwd, false)
	if err != nil {
		return nil, fmt.Errorf("nn: %s forward direction: %w", r.Kind, err)
	}

	bwd, err := run(x, r.Rev, true)
	if err != nil {
		return nil, fmt.Errorf("nn: %s reverse direction: %w", r.Kind, err)
	}

	return tensor.Concat([]*tensor.Tensor{fwd, bwd}, -1)
}
