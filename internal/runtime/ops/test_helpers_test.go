package ops

import (
	"math"
	"strings"
	"testing"

	"github.com/example/go-light-tts/internal/runtime/tensor"
)

// ramp returns n deterministic values in [-8/17, 8/17].
func ramp(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i%17-8) / 17
	}

	return out
}

func within(got, want []float32, tol float64) bool {
	return len(got) == len(want) && maxAbsDiff(got, want) <= tol
}

func maxAbsDiff(a, b []float32) float64 {
	var worst float64
	for i := range a {
		worst = math.Max(worst, math.Abs(float64(a[i])-float64(b[i])))
	}

	return worst
}

func mustTensor(tb testing.TB, data []float32, shape []int64) *tensor.Tensor {
	tb.Helper()

	x, err := tensor.New(data, shape)
	if err != nil {
		tb.Fatalf("tensor.New(%v): %v", shape, err)
	}

	return x
}

func requireErr(tb testing.TB, err error, substr string) {
	tb.Helper()

	switch {
	case err == nil:
		tb.Fatalf("got nil error, want one containing %q", substr)
	case !strings.Contains(err.Error(), substr):
		tb.Fatalf("error %q does not contain %q", err, substr)
	}
}
