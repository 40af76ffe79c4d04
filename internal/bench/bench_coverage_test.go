package bench_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/example/go-light-tts/internal/bench"
	"github.com/example/go-light-tts/internal/runtime/tensor"
	"github.com/example/go-light-tts/internal/synth"
)

type fakeSynth struct {
	calls  int
	frames int64
	failAt int
}

func (f *fakeSynth) Synthesize(_ context.Context, _ string, _ float32) (*synth.Result, error) {
	f.calls++
	if f.failAt > 0 && f.calls == f.failAt {
		return nil, errors.New("boom")
	}

	mel, err := tensor.Zeros([]int64{f.frames, 4})
	if err != nil {
		return nil, err
	}

	return &synth.Result{Mel: mel}, nil
}

func TestRun_WarmupNotMeasured(t *testing.T) {
	s := &fakeSynth{frames: 86}

	runs, err := bench.Run(context.Background(), s, bench.Options{Text: "Hallo.", Alpha: 1, Runs: 3, Warmup: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if s.calls != 5 {
		t.Errorf("want 5 synth calls, got %d", s.calls)
	}

	if len(runs) != 3 {
		t.Fatalf("want 3 results, got %d", len(runs))
	}

	want := bench.FramesDuration(86, bench.DefaultHopLength, bench.DefaultSampleRate)

	for i, r := range runs {
		if r.Index != i {
			t.Errorf("run %d: index %d", i, r.Index)
		}

		if r.Cold {
			t.Errorf("run %d: no run is cold after warmup", i)
		}

		if r.Frames != 86 || r.AudioDuration != want {
			t.Errorf("run %d: frames=%d audio=%v, want 86 and %v", i, r.Frames, r.AudioDuration, want)
		}
	}
}

func TestRun_FirstRunColdWithoutWarmup(t *testing.T) {
	runs, err := bench.Run(context.Background(), &fakeSynth{frames: 10}, bench.Options{Text: "x", Alpha: 1, Runs: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !runs[0].Cold || runs[1].Cold {
		t.Errorf("want only the first run cold, got %v %v", runs[0].Cold, runs[1].Cold)
	}
}

func TestRun_CustomHopAndRate(t *testing.T) {
	runs, err := bench.Run(context.Background(), &fakeSynth{frames: 100}, bench.Options{
		Text: "x", Alpha: 1, Runs: 1, HopLength: 240, SampleRate: 24000,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if runs[0].AudioDuration.Seconds() != 1 {
		t.Errorf("want 1s of audio, got %v", runs[0].AudioDuration)
	}
}

func TestRun_PropagatesFailure(t *testing.T) {
	_, err := bench.Run(context.Background(), &fakeSynth{frames: 1, failAt: 2}, bench.Options{Text: "x", Alpha: 1, Runs: 1, Warmup: 1})
	if err == nil || !strings.Contains(err.Error(), "run 1") {
		t.Fatalf("expected run failure, got: %v", err)
	}

	_, err = bench.Run(context.Background(), &fakeSynth{frames: 1, failAt: 1}, bench.Options{Text: "x", Alpha: 1, Runs: 1, Warmup: 1})
	if err == nil || !strings.Contains(err.Error(), "warmup") {
		t.Fatalf("expected warmup failure, got: %v", err)
	}
}

func TestRun_InvalidOptions(t *testing.T) {
	cases := []struct {
		name string
		opts bench.Options
		want string
	}{
		{"empty text", bench.Options{Text: "  ", Alpha: 1, Runs: 1}, "text"},
		{"no runs", bench.Options{Text: "x", Alpha: 1}, "runs"},
		{"negative warmup", bench.Options{Text: "x", Alpha: 1, Runs: 1, Warmup: -1}, "warmup"},
		{"zero alpha", bench.Options{Text: "x", Runs: 1}, "alpha"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &fakeSynth{frames: 1}

			_, err := bench.Run(context.Background(), s, tc.opts)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q error, got: %v", tc.want, err)
			}

			if s.calls != 0 {
				t.Errorf("invalid options must not synthesize, got %d calls", s.calls)
			}
		})
	}
}
