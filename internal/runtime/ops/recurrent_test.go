package ops

import (
	"math"
	"testing"

	"github.com/example/go-light-tts/internal/runtime/tensor"
)

func sig(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func rnnWeightsT(t *testing.T, gates, hidden, input int64, wih, whh, bih, bhh []float32) RNNWeights {
	t.Helper()

	g := gates * hidden

	return RNNWeights{
		WeightIH: mustTensor(t, wih, []int64{g, input}),
		WeightHH: mustTensor(t, whh, []int64{g, hidden}),
		BiasIH:   mustTensor(t, bih, []int64{g}),
		BiasHH:   mustTensor(t, bhh, []int64{g}),
	}
}

func TestLSTMSingleStep(t *testing.T) {
	w := rnnWeightsT(t, 4, 1, 1,
		[]float32{1, 1, 1, 1},
		[]float32{0, 0, 0, 0},
		[]float32{0, 0, 0, 0},
		[]float32{0, 0, 0, 0},
	)
	x := mustTensor(t, []float32{1}, []int64{1, 1, 1})

	out, err := LSTM(x, w, false)
	if err != nil {
		t.Fatalf("lstm: %v", err)
	}

	c := sig(1) * math.Tanh(1)
	want := float32(sig(1) * math.Tanh(c))

	if got := out.Data(); !within(got, []float32{want}, 1e-6) {
		t.Fatalf("lstm = %v, want %v", got, want)
	}
}

func TestGRUResetGateScalesRecurrentBias(t *testing.T) {
	// Only the new gate sees the input; its recurrent bias is gated by r=0.5.
	w := rnnWeightsT(t, 3, 1, 1,
		[]float32{0, 0, 1},
		[]float32{0, 0, 0},
		[]float32{0, 0, 0},
		[]float32{0, 0, 1},
	)
	x := mustTensor(t, []float32{1}, []int64{1, 1, 1})

	out, err := GRU(x, w, false)
	if err != nil {
		t.Fatalf("gru: %v", err)
	}

	want := float32(0.5 * math.Tanh(1.5))
	if got := out.Data(); !within(got, []float32{want}, 1e-6) {
		t.Fatalf("gru = %v, want %v", got, want)
	}
}

func reverseTime(t *testing.T, x *tensor.Tensor) *tensor.Tensor {
	t.Helper()

	steps := x.Dim(1)
	idx := make([]int64, steps)

	for i := range idx {
		idx[i] = steps - 1 - int64(i)
	}

	out, err := x.Gather(1, idx)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	return out
}

func TestRecurrentReverseMatchesFlippedForward(t *testing.T) {
	const hidden, input = 3, 2

	for _, tc := range []struct {
		name  string
		gates int64
		run   func(*tensor.Tensor, RNNWeights, bool) (*tensor.Tensor, error)
	}{
		{"lstm", 4, LSTM},
		{"gru", 3, GRU},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g := tc.gates * hidden
			w := rnnWeightsT(t, tc.gates, hidden, input,
				ramp(int(g*input)), ramp(int(g*hidden)), ramp(int(g)), ramp(int(g)))
			x := mustTensor(t, ramp(2*5*input), []int64{2, 5, input})

			rev, err := tc.run(x, w, true)
			if err != nil {
				t.Fatalf("reverse: %v", err)
			}

			fwd, err := tc.run(reverseTime(t, x), w, false)
			if err != nil {
				t.Fatalf("forward: %v", err)
			}

			if !within(rev.Data(), reverseTime(t, fwd).Data(), 1e-6) {
				t.Fatalf("reverse %v != flipped forward %v", rev.Data(), reverseTime(t, fwd).Data())
			}
		})
	}
}

func TestRecurrentBatchIndependentOfWorkers(t *testing.T) {
	const hidden, input = 4, 3

	w := rnnWeightsT(t, 4, hidden, input,
		ramp(16*input), ramp(16*hidden), ramp(16), ramp(16))
	x := mustTensor(t, ramp(5*7*input), []int64{5, 7, input})

	seq, err := LSTM(x, w, false)
	if err != nil {
		t.Fatalf("lstm: %v", err)
	}

	tensor.SetWorkers(3)
	defer tensor.SetWorkers(1)

	par, err := LSTM(x, w, false)
	if err != nil {
		t.Fatalf("lstm parallel: %v", err)
	}

	if !within(seq.Data(), par.Data(), 0) {
		t.Fatal("parallel LSTM differs from sequential")
	}
}

func TestRecurrentShapeErrors(t *testing.T) {
	w := rnnWeightsT(t, 3, 2, 2, ramp(12), ramp(12), ramp(6), ramp(6))

	_, err := GRU(mustTensor(t, ramp(3), []int64{1, 1, 3}), w, false)
	requireErr(t, err, "does not match input width")

	_, err = GRU(mustTensor(t, ramp(2), []int64{1, 2}), w, false)
	requireErr(t, err, "rank 3")

	_, err = LSTM(mustTensor(t, ramp(2), []int64{1, 1, 2}), w, false)
	requireErr(t, err, "not divisible")

	_, err = GRU(mustTensor(t, ramp(2), []int64{1, 1, 2}), RNNWeights{}, false)
	requireErr(t, err, "all four")
}
