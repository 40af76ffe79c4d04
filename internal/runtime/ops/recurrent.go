package ops

import (
	"errors"
	"fmt"

	"github.com/example/go-light-tts/internal/runtime/tensor"
)

// RNNWeights holds one direction of a recurrent layer with gate blocks
// stacked along the first weight axis.
//
//	WeightIH: [gates*hidden, input]
//	WeightHH: [gates*hidden, hidden]
//	BiasIH, BiasHH: [gates*hidden]
type RNNWeights struct {
	WeightIH *tensor.Tensor
	WeightHH *tensor.Tensor
	BiasIH   *tensor.Tensor
	BiasHH   *tensor.Tensor
}

// hidden validates the weights against gates and input width and returns the
// hidden size.
func (w RNNWeights) hidden(gates, input int64) (int64, error) {
	if w.WeightIH == nil || w.WeightHH == nil || w.BiasIH == nil || w.BiasHH == nil {
		return 0, errors.New("ops: rnn requires all four weight tensors")
	}

	if w.WeightIH.Rank() != 2 || w.WeightIH.Dim(0)%gates != 0 {
		return 0, fmt.Errorf("ops: rnn weight_ih shape %v not divisible into %d gates", w.WeightIH.Shape(), gates)
	}

	h := w.WeightIH.Dim(0) / gates

	if w.WeightIH.Dim(1) != input {
		return 0, fmt.Errorf("ops: rnn weight_ih input %d does not match input width %d", w.WeightIH.Dim(1), input)
	}

	if w.WeightHH.Rank() != 2 || w.WeightHH.Dim(0) != gates*h || w.WeightHH.Dim(1) != h {
		return 0, fmt.Errorf("ops: rnn weight_hh shape %v, want [%d %d]", w.WeightHH.Shape(), gates*h, h)
	}

	if w.BiasIH.Rank() != 1 || w.BiasIH.Dim(0) != gates*h || w.BiasHH.Rank() != 1 || w.BiasHH.Dim(0) != gates*h {
		return 0, fmt.Errorf("ops: rnn bias shapes %v/%v, want [%d]", w.BiasIH.Shape(), w.BiasHH.Shape(), gates*h)
	}

	return h, nil
}

// LSTM runs a single-layer LSTM over x [batch, time, input] with zero initial
// state and returns the hidden sequence [batch, time, hidden]. Gates are laid
// out input, forget, cell, output. With reverse the sequence is consumed from
// the last step to the first and outputs stay aligned with their input step.
func LSTM(x *tensor.Tensor, w RNNWeights, reverse bool) (*tensor.Tensor, error) {
	return runRecurrent(x, w, 4, reverse, lstmStep)
}

// GRU runs a single-layer GRU over x [batch, time, input] with zero initial
// state. Gates are laid out reset, update, new, with the reset gate applied
// to the recurrent projection of the new gate.
func GRU(x *tensor.Tensor, w RNNWeights, reverse bool) (*tensor.Tensor, error) {
	return runRecurrent(x, w, 3, reverse, gruStep)
}

// stepFunc advances one time step. gi holds the input projection for the
// step (bias included); gh is scratch for the recurrent projection. h and c
// are updated in place.
type stepFunc func(gi, gh, h, c []float32, whh, bhh []float32)

func runRecurrent(x *tensor.Tensor, w RNNWeights, gates int64, reverse bool, step stepFunc) (*tensor.Tensor, error) {
	if x == nil {
		return nil, errors.New("ops: rnn requires non-nil input")
	}

	shape := x.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("ops: rnn expects rank 3 input [batch time input], got %v", shape)
	}

	hidden, err := w.hidden(gates, shape[2])
	if err != nil {
		return nil, err
	}

	batch, steps := int(shape[0]), int(shape[1])
	h := int(hidden)
	g := int(gates) * h

	proj, err := tensor.Linear(x, w.WeightIH, w.BiasIH)
	if err != nil {
		return nil, fmt.Errorf("ops: rnn input projection: %w", err)
	}

	out, err := tensor.Zeros([]int64{shape[0], shape[1], hidden})
	if err != nil {
		return nil, err
	}

	pData := proj.RawData()
	oData := out.RawData()
	whh := w.WeightHH.RawData()
	bhh := w.BiasHH.RawData()

	tensor.ParallelFor(batch, tensor.Workers(), func(lo, hi int) {
		gh := make([]float32, g)
		hState := make([]float32, h)
		cState := make([]float32, h)

		for b := lo; b < hi; b++ {
			clear(hState)
			clear(cState)

			for i := range steps {
				t := i
				if reverse {
					t = steps - 1 - i
				}

				row := b*steps + t
				step(pData[row*g:(row+1)*g], gh, hState, cState, whh, bhh)
				copy(oData[row*h:(row+1)*h], hState)
			}
		}
	})

	return out, nil
}

func lstmStep(gi, gh, h, c []float32, whh, bhh []float32) {
	n := len(h)

	copy(gh, bhh)
	tensor.MatVecAdd(gh, whh, h)

	for j := range n {
		ig := Sigmoid(gi[j] + gh[j])
		fg := Sigmoid(gi[n+j] + gh[n+j])
		cg := Tanh(gi[2*n+j] + gh[2*n+j])
		og := Sigmoid(gi[3*n+j] + gh[3*n+j])

		c[j] = fg*c[j] + ig*cg
		h[j] = og * Tanh(c[j])
	}
}

func gruStep(gi, gh, h, _ []float32, whh, bhh []float32) {
	n := len(h)

	copy(gh, bhh)
	tensor.MatVecAdd(gh, whh, h)

	for j := range n {
		r := Sigmoid(gi[j] + gh[j])
		z := Sigmoid(gi[n+j] + gh[n+j])
		cand := Tanh(gi[2*n+j] + r*gh[2*n+j])

		h[j] = (1-z)*cand + z*h[j]
	}
}
