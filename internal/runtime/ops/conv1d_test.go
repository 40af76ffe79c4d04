package ops

import (
	"testing"

	"github.com/example/go-light-tts/internal/runtime/tensor"
)

func TestConv1D(t *testing.T) {
	input := mustTensor(t, []float32{1, 2, 3, 4}, []int64{1, 1, 4})
	kernel := mustTensor(t, []float32{1, 1}, []int64{1, 1, 2})

	out, err := Conv1D(input, kernel, nil, 0)
	if err != nil {
		t.Fatalf("conv1d: %v", err)
	}

	want := []float32{3, 5, 7}
	if got := out.Data(); !within(got, want, 0) {
		t.Fatalf("conv1d = %v, want %v", got, want)
	}
}

func TestConv1DSamePadding(t *testing.T) {
	input := mustTensor(t, []float32{1, 2, 3, 4}, []int64{1, 1, 4})

	odd := mustTensor(t, []float32{1, 1, 1}, []int64{1, 1, 3})

	out, err := Conv1D(input, odd, nil, 1)
	if err != nil {
		t.Fatalf("conv1d k=3: %v", err)
	}

	if got, want := out.Data(), []float32{3, 6, 9, 7}; !within(got, want, 0) {
		t.Fatalf("conv1d k=3 = %v, want %v", got, want)
	}

	even := mustTensor(t, []float32{1, 1}, []int64{1, 1, 2})

	out, err = Conv1D(input, even, nil, 1)
	if err != nil {
		t.Fatalf("conv1d k=2: %v", err)
	}

	// Even kernels with padding k/2 produce one extra frame.
	if got, want := out.Data(), []float32{1, 3, 5, 7, 4}; !within(got, want, 0) {
		t.Fatalf("conv1d k=2 = %v, want %v", got, want)
	}
}

func TestConv1DMultiChannelWithBias(t *testing.T) {
	input := mustTensor(t, []float32{
		1, 2, 3,
		10, 20, 30,
	}, []int64{1, 2, 3})
	kernel := mustTensor(t, []float32{
		1, // oc0, ic0
		0, // oc0, ic1
		1, // oc1, ic0
		1, // oc1, ic1
	}, []int64{2, 2, 1})
	bias := mustTensor(t, []float32{0.5, -1}, []int64{2})

	out, err := Conv1D(input, kernel, bias, 0)
	if err != nil {
		t.Fatalf("conv1d: %v", err)
	}

	want := []float32{1.5, 2.5, 3.5, 10, 21, 32}
	if got := out.Data(); !within(got, want, 1e-6) {
		t.Fatalf("conv1d = %v, want %v", got, want)
	}
}

func TestConv1DParallel(t *testing.T) {
	tensor.SetWorkers(4)
	defer tensor.SetWorkers(1)

	input := mustTensor(t, ramp(2*16*64), []int64{2, 16, 64})
	kernel := mustTensor(t, ramp(32*16*3), []int64{32, 16, 3})
	bias := mustTensor(t, ramp(32), []int64{32})

	got, err := Conv1D(input, kernel, bias, 1)
	if err != nil {
		t.Fatalf("conv1d parallel: %v", err)
	}

	tensor.SetWorkers(1)

	want, err := Conv1D(input, kernel, bias, 1)
	if err != nil {
		t.Fatalf("conv1d sequential: %v", err)
	}

	if !within(got.Data(), want.Data(), 0) {
		t.Fatalf("parallel conv1d differs from sequential")
	}
}

func TestConv1DEmptyInput(t *testing.T) {
	input := mustTensor(t, nil, []int64{1, 2, 0})
	kernel := mustTensor(t, ramp(3*2*3), []int64{3, 2, 3})

	out, err := Conv1D(input, kernel, nil, 1)
	if err != nil {
		t.Fatalf("conv1d: %v", err)
	}

	if got := out.Shape(); got[2] != 0 {
		t.Fatalf("shape = %v, want zero length", got)
	}
}

func TestConv1DErrors(t *testing.T) {
	validInput := mustTensor(t, []float32{1, 2, 3, 4}, []int64{1, 1, 4})
	validKernel := mustTensor(t, []float32{1, 1}, []int64{1, 1, 2})

	tests := []struct {
		name    string
		input   *tensor.Tensor
		kernel  *tensor.Tensor
		bias    *tensor.Tensor
		padding int64
		wantErr string
	}{
		{
			name:    "nil input",
			kernel:  validKernel,
			wantErr: "requires non-nil",
		},
		{
			name:    "negative padding",
			input:   validInput,
			kernel:  validKernel,
			padding: -1,
			wantErr: "padding must be >= 0",
		},
		{
			name:    "rank mismatch",
			input:   mustTensor(t, []float32{1, 2}, []int64{1, 2}),
			kernel:  validKernel,
			wantErr: "rank 3",
		},
		{
			name:    "kernel in channels mismatch",
			input:   mustTensor(t, make([]float32, 4), []int64{1, 2, 2}),
			kernel:  mustTensor(t, make([]float32, 6), []int64{2, 3, 1}),
			wantErr: "kernel in_channels mismatch",
		},
		{
			name:    "bias mismatch",
			input:   validInput,
			kernel:  validKernel,
			bias:    mustTensor(t, []float32{1, 2}, []int64{2}),
			wantErr: "bias shape",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Conv1D(tc.input, tc.kernel, tc.bias, tc.padding)
			requireErr(t, err, tc.wantErr)
		})
	}
}

func BenchmarkConv1DCBHGBank(b *testing.B) {
	input := mustTensor(b, ramp(1*256*128), []int64{1, 256, 128})
	kernel := mustTensor(b, ramp(128*256*8), []int64{128, 256, 8})

	b.ReportAllocs()
	b.ResetTimer()

	for range b.N {
		if _, err := Conv1D(input, kernel, nil, 4); err != nil {
			b.Fatalf("conv1d: %v", err)
		}
	}
}
