package testutil

import (
	"math"
	"testing"

	"github.com/example/go-light-tts/internal/runtime/tensor"
	"github.com/example/go-light-tts/internal/safetensors"
)

// AssertMel checks that mel is a [frames, mels] spectrogram with at least one
// frame and only finite values.
func AssertMel(tb testing.TB, mel *tensor.Tensor, mels int64) {
	tb.Helper()

	if mel == nil {
		tb.Fatal("mel: nil tensor")
	}

	shape := mel.Shape()
	if len(shape) != 2 {
		tb.Fatalf("mel: expected rank 2 [frames, mels], got shape %v", shape)
	}

	if shape[1] != mels {
		tb.Fatalf("mel: expected %d mel bins, got %d", mels, shape[1])
	}

	if shape[0] == 0 {
		tb.Fatal("mel: zero frames")
	}

	for i, v := range mel.RawData() {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			tb.Fatalf("mel: non-finite value %v at index %d", v, i)
		}
	}
}

// AssertMelFile loads the "mel" tensor from a safetensors file and applies
// AssertMel to it. It returns the frame count.
func AssertMelFile(tb testing.TB, path string, mels int64) int64 {
	tb.Helper()

	data, rows, cols, err := safetensors.LoadMatrix(path, "mel")
	if err != nil {
		tb.Fatalf("mel file %q: %v", path, err)
	}

	mel, err := tensor.New(data, []int64{rows, cols})
	if err != nil {
		tb.Fatalf("mel file %q: %v", path, err)
	}

	AssertMel(tb, mel, mels)

	return rows
}
