package nn

import (
	"errors"
	"fmt"

	"github.com/example/go-light-tts/internal/runtime/tensor"
)

// MaxFrames bounds the expansion of a single sequence (about 13 minutes of
// audio at a 12.5 ms hop).
const MaxFrames = 1 << 16

// ErrTooManyFrames reports durations that expand past MaxFrames.
var ErrTooManyFrames = errors.New("nn: durations expand past the frame limit")

// Repeats returns how many frames a token with duration d expands to:
// int(d + 0.5), truncated toward zero. Zero, negative and NaN durations yield
// no frames; durations beyond MaxFrames saturate just past it.
func Repeats(d float32) int64 {
	switch {
	case !(d > 0):
		return 0
	case d >= MaxFrames:
		return MaxFrames + 1
	}

	return int64(d + 0.5)
}

// ExpandedLength returns the number of frames durs expands to.
func ExpandedLength(durs []float32) int64 {
	var total int64
	for _, d := range durs {
		total += Repeats(d)
	}

	return total
}

// Regulate expands per-token features x [batch, tokens, channels] by
// per-token durations into frames [batch, frames, channels]. Every sequence
// is expanded independently and zero-padded on the right to the longest
// expansion in the batch; batch order is preserved. Expansions longer than
// MaxFrames fail with ErrTooManyFrames before anything is allocated.
func Regulate(x *tensor.Tensor, durs [][]float32) (*tensor.Tensor, error) {
	if x == nil || x.Rank() != 3 {
		return nil, errors.New("nn: length regulator expects [batch tokens channels] input")
	}

	batch, tokens, channels := x.Dim(0), x.Dim(1), x.Dim(2)

	if int64(len(durs)) != batch {
		return nil, fmt.Errorf("nn: length regulator got %d duration vectors for batch %d", len(durs), batch)
	}

	var frames int64

	for i, d := range durs {
		if int64(len(d)) != tokens {
			return nil, fmt.Errorf("nn: length regulator sequence %d has %d durations for %d tokens", i, len(d), tokens)
		}

		n := ExpandedLength(d)
		if n > MaxFrames {
			return nil, fmt.Errorf("nn: length regulator sequence %d: %d frames: %w", i, n, ErrTooManyFrames)
		}

		frames = max(frames, n)
	}

	if batch == 0 {
		return tensor.Zeros([]int64{0, frames, channels})
	}

	seqs, err := x.Unbind()
	if err != nil {
		return nil, err
	}

	expanded := make([]*tensor.Tensor, batch)

	for b, seq := range seqs {
		if expanded[b], err = expand(seq, durs[b], frames); err != nil {
			return nil, err
		}
	}

	return tensor.Stack(expanded)
}

// expand repeats the rows of seq [tokens, channels] into a zero-padded
// [frames, channels] tensor.
func expand(seq *tensor.Tensor, durs []float32, frames int64) (*tensor.Tensor, error) {
	channels := seq.Dim(1)

	out, err := tensor.Zeros([]int64{frames, channels})
	if err != nil {
		return nil, err
	}

	src := seq.RawData()
	dst := out.RawData()

	var pos int64

	for t, d := range durs {
		row := src[int64(t)*channels : int64(t+1)*channels]

		for range Repeats(d) {
			copy(dst[pos:pos+channels], row)
			pos += channels
		}
	}

	return out, nil
}
