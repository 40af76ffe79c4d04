// Package bench provides benchmarking primitives for the lighttts bench command.
package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/example/go-light-tts/internal/synth"
)

// Defaults for converting mel frames to playback time. They match the
// vocoders the spectrograms are trained for (22.05 kHz, 256-sample hop).
const (
	DefaultSampleRate = 22050
	DefaultHopLength  = 256
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and spectrogram metadata for a single run.
type RunResult struct {
	Index         int
	Cold          bool // true for the first measured run when there is no warmup
	Duration      time.Duration
	Frames        int64
	AudioDuration time.Duration
	RTF           float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min     time.Duration
	Max     time.Duration
	Mean    time.Duration
	MeanRTF float64
}

// ComputeStats calculates min, max and mean over a slice of durations.
// The slice must be non-empty.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}

	mn, mx := durations[0], durations[0]

	var sum time.Duration
	for _, d := range durations {
		if d < mn {
			mn = d
		}

		if d > mx {
			mx = d
		}

		sum += d
	}

	return Stats{
		Min:  mn,
		Max:  mx,
		Mean: sum / time.Duration(len(durations)),
	}
}

// Summarize computes Stats over runs, including the mean real-time factor.
func Summarize(runs []RunResult) Stats {
	durations := make([]time.Duration, len(runs))

	var totalRTF float64
	for i, r := range runs {
		durations[i] = r.Duration
		totalRTF += r.RTF
	}

	stats := ComputeStats(durations)
	if len(runs) > 0 {
		stats.MeanRTF = totalRTF / float64(len(runs))
	}

	return stats
}

// ---------------------------------------------------------------------------
// RTF helpers
// ---------------------------------------------------------------------------

// CalcRTF returns synthesis_duration / audio_duration.
// Returns 0 if audioDur is zero to avoid division by zero.
func CalcRTF(synthDur, audioDur time.Duration) float64 {
	if audioDur <= 0 {
		return 0
	}

	return float64(synthDur) / float64(audioDur)
}

// FramesDuration returns the playback time of frames mel frames once a
// vocoder renders them with the given hop length and sample rate.
func FramesDuration(frames int64, hopLength, sampleRate int) time.Duration {
	if frames <= 0 || hopLength <= 0 || sampleRate <= 0 {
		return 0
	}

	samples := frames * int64(hopLength)

	return time.Duration(samples * int64(time.Second) / int64(sampleRate))
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

// Synthesizer is the generation entry point driven by Run.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, alpha float32) (*synth.Result, error)
}

// Options configures Run.
type Options struct {
	Text       string
	Alpha      float32
	Runs       int
	Warmup     int
	HopLength  int
	SampleRate int
}

func (o Options) validate() error {
	if strings.TrimSpace(o.Text) == "" {
		return errors.New("bench: text is required")
	}

	if o.Runs < 1 {
		return fmt.Errorf("bench: runs must be at least 1, got %d", o.Runs)
	}

	if o.Warmup < 0 {
		return fmt.Errorf("bench: warmup must be >= 0, got %d", o.Warmup)
	}

	if o.Alpha <= 0 {
		return fmt.Errorf("bench: alpha must be > 0, got %v", o.Alpha)
	}

	return nil
}

// Run synthesizes opts.Text opts.Warmup times unmeasured, then opts.Runs
// times measured. Measured runs carry the pprof label stage=generate so a
// CPU profile taken around Run can be filtered to them.
func Run(ctx context.Context, s Synthesizer, opts Options) ([]RunResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	if opts.HopLength == 0 {
		opts.HopLength = DefaultHopLength
	}

	if opts.SampleRate == 0 {
		opts.SampleRate = DefaultSampleRate
	}

	for i := range opts.Warmup {
		var err error

		pprof.Do(ctx, pprof.Labels("stage", "warmup"), func(ctx context.Context) {
			_, err = s.Synthesize(ctx, opts.Text, opts.Alpha)
		})

		if err != nil {
			return nil, fmt.Errorf("bench: warmup run %d failed: %w", i+1, err)
		}
	}

	results := make([]RunResult, 0, opts.Runs)

	for i := range opts.Runs {
		var (
			res     *synth.Result
			err     error
			elapsed time.Duration
		)

		pprof.Do(ctx, pprof.Labels("stage", "generate"), func(ctx context.Context) {
			start := time.Now()
			res, err = s.Synthesize(ctx, opts.Text, opts.Alpha)
			elapsed = time.Since(start)
		})

		if err != nil {
			return nil, fmt.Errorf("bench: run %d failed: %w", i+1, err)
		}

		var frames int64
		if res != nil && res.Mel != nil {
			frames = res.Mel.Dim(0)
		}

		audioDur := FramesDuration(frames, opts.HopLength, opts.SampleRate)

		results = append(results, RunResult{
			Index:         i,
			Cold:          i == 0 && opts.Warmup == 0,
			Duration:      elapsed,
			Frames:        frames,
			AudioDuration: audioDur,
			RTF:           CalcRTF(elapsed, audioDur),
		})
	}

	return results, nil
}

// ---------------------------------------------------------------------------
// RTF threshold gate
// ---------------------------------------------------------------------------

// CheckRTFThreshold returns an error if meanRTF > threshold.
// A threshold of 0 disables the gate.
func CheckRTFThreshold(meanRTF, threshold float64) error {
	if threshold <= 0 {
		return nil
	}

	if meanRTF > threshold {
		return fmt.Errorf("mean RTF %.3f exceeds threshold %.3f", meanRTF, threshold)
	}

	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %8s  %12s  %8s\n", "Run", "Cold", "MS", "Frames", "Audio(ms)", "RTF")
	fmt.Fprintln(sb, strings.Repeat("-", 58))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}

		fmt.Fprintf(sb, "%-5d  %-5s  %10.1f  %8d  %12.1f  %8.3f\n",
			r.Index+1,
			cold,
			float64(r.Duration.Milliseconds()),
			r.Frames,
			float64(r.AudioDuration.Milliseconds()),
			r.RTF,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 58))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %8s  %12s  %8s  (min)\n", "", "", float64(stats.Min.Milliseconds()), "", "", "")
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %8s  %12s  %8.3f  (mean)\n", "", "", float64(stats.Mean.Milliseconds()), "", "", stats.MeanRTF)
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %8s  %12s  %8s  (max)\n", "", "", float64(stats.Max.Milliseconds()), "", "", "")

	fmt.Fprint(w, sb.String())
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	Frames     int64   `json:"frames"`
	AudioMS    float64 `json:"audio_ms"`
	RTF        float64 `json:"rtf"`
}

type jsonStats struct {
	MinMS   float64 `json:"min_ms"`
	MeanMS  float64 `json:"mean_ms"`
	MaxMS   float64 `json:"max_ms"`
	MeanRTF float64 `json:"mean_rtf"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:   float64(stats.Min.Milliseconds()),
			MeanMS:  float64(stats.Mean.Milliseconds()),
			MaxMS:   float64(stats.Max.Milliseconds()),
			MeanRTF: stats.MeanRTF,
		},
	}

	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:      r.Index,
			Cold:       r.Cold,
			DurationMS: float64(r.Duration.Milliseconds()),
			Frames:     r.Frames,
			AudioMS:    float64(r.AudioDuration.Milliseconds()),
			RTF:        r.RTF,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(jr)
}
