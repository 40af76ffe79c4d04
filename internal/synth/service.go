// Package synth turns raw text into mel spectrograms: normalization, sentence
// chunking, cleaning, symbol lookup and generation with the acoustic model.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/go-light-tts/internal/metrics"
	"github.com/example/go-light-tts/internal/model"
	"github.com/example/go-light-tts/internal/runtime/tensor"
	"github.com/example/go-light-tts/internal/text"
)

// ErrNoTokens is returned when cleaning leaves no symbol the model knows.
var ErrNoTokens = errors.New("synth: text produced no symbols")

// Options configures a Service.
type Options struct {
	// Cleaners is a comma-separated cleaner pipeline, e.g. "basic_cleaners".
	Cleaners   string
	Phonemizer text.Phonemizer
	Hints      text.Hints
	// MaxChunkRunes bounds the sentence groups generated in one model call.
	// Zero generates the whole text at once.
	MaxChunkRunes int
	Logger        *slog.Logger
}

// Chunk is one sentence group after cleaning.
type Chunk struct {
	Text     string  `json:"text"`
	Cleaned  string  `json:"cleaned"`
	Tokens   []int64 `json:"tokens"`
	Frames   int64   `json:"frames"`
	Duration float64 `json:"duration_ms"`
}

// Result is a generated spectrogram with per-chunk details.
type Result struct {
	// Mel is [frames, mels].
	Mel    *tensor.Tensor
	Chunks []Chunk
}

// Frontend turns raw text into symbol sequences without touching the model.
type Frontend struct {
	pipeline *text.Pipeline
	maxRunes int
	log      *slog.Logger
}

// NewFrontend builds the cleaner pipeline described by opts.
func NewFrontend(opts Options) (*Frontend, error) {
	pipeline, err := text.NewPipeline(opts.Cleaners, text.PipelineOptions{
		Phonemizer: opts.Phonemizer,
		Hints:      opts.Hints,
	})
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Frontend{pipeline: pipeline, maxRunes: opts.MaxChunkRunes, log: logger}, nil
}

// Cleaners returns the pipeline's cleaner names in order.
func (f *Frontend) Cleaners() []string { return f.pipeline.Names() }

// Service runs the text front-end and the acoustic model. The model is not
// safe for concurrent use, so generation calls are serialized.
type Service struct {
	*Frontend

	mu    sync.Mutex
	model *model.LightTTS
}

// NewService wires a model to a cleaner pipeline. The model vocabulary must
// cover every symbol ID the text package can emit.
func NewService(m *model.LightTTS, opts Options) (*Service, error) {
	if m == nil {
		return nil, errors.New("synth: model is required")
	}

	if need := int64(text.NumSymbols()); m.Config().NumChars < need {
		return nil, fmt.Errorf("synth: model vocabulary has %d symbols, text front-end needs %d", m.Config().NumChars, need)
	}

	front, err := NewFrontend(opts)
	if err != nil {
		return nil, err
	}

	return &Service{Frontend: front, model: m}, nil
}

// Model returns the wrapped acoustic model.
func (s *Service) Model() *model.LightTTS { return s.model }

// Prepare normalizes, chunks and cleans input without running the model.
func (f *Frontend) Prepare(ctx context.Context, input string) ([]Chunk, error) {
	normalized, err := text.Normalize(input)
	if err != nil {
		return nil, err
	}

	parts := text.ChunkBySentence(normalized, f.maxRunes)
	chunks := make([]Chunk, 0, len(parts))

	for i, part := range parts {
		start := time.Now()

		cleaned, err := f.pipeline.Clean(ctx, part)
		if err != nil {
			metrics.RecordClean(metrics.StatusError, time.Since(start).Seconds())
			return nil, fmt.Errorf("synth: clean chunk %d: %w", i, err)
		}

		metrics.RecordClean(metrics.StatusSuccess, time.Since(start).Seconds())

		tokens := text.ToSequence(cleaned)
		if len(tokens) == 0 {
			f.log.DebugContext(ctx, "chunk dropped: no symbols",
				slog.Int("chunk", i),
				slog.String("text", part),
			)

			continue
		}

		chunks = append(chunks, Chunk{Text: part, Cleaned: cleaned, Tokens: tokens})
	}

	if len(chunks) == 0 {
		return nil, ErrNoTokens
	}

	return chunks, nil
}

// Synthesize generates the mel spectrogram for input. alpha scales the
// predicted durations; alpha > 1 slows speech down. Chunks are generated in
// order and concatenated along time. Cancellation is honored between chunks.
func (s *Service) Synthesize(ctx context.Context, input string, alpha float32) (*Result, error) {
	if alpha <= 0 {
		return nil, fmt.Errorf("synth: alpha must be > 0, got %v", alpha)
	}

	chunks, err := s.Prepare(ctx, input)
	if err != nil {
		return nil, err
	}

	overall := time.Now()
	mels := make([]*tensor.Tensor, 0, len(chunks))
	kept := make([]Chunk, 0, len(chunks))

	var total int64

	for i := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		mel, elapsed, err := s.generate(chunks[i].Tokens, alpha)
		if errors.Is(err, model.ErrNoFrames) {
			s.log.DebugContext(ctx, "chunk dropped: no frames", slog.Int("chunk", i))
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("synth: generate chunk %d: %w", i, err)
		}

		if total += mel.Dim(0); total > model.MaxFrames {
			return nil, fmt.Errorf("synth: %d frames after chunk %d: %w", total, i, model.ErrTooManyFrames)
		}

		chunks[i].Frames = mel.Dim(0)
		chunks[i].Duration = float64(elapsed.Microseconds()) / 1000
		mels = append(mels, mel)
		kept = append(kept, chunks[i])

		s.log.DebugContext(ctx, "chunk generated",
			slog.Int("chunk", i),
			slog.Int("tokens", len(chunks[i].Tokens)),
			slog.Int64("frames", chunks[i].Frames),
			slog.Duration("elapsed", elapsed),
		)
	}

	if len(mels) == 0 {
		return nil, model.ErrNoFrames
	}

	mel, err := tensor.Concat(mels, 0)
	if err != nil {
		return nil, fmt.Errorf("synth: join chunks: %w", err)
	}

	s.log.InfoContext(ctx, "generation complete",
		slog.Int("chunks", len(kept)),
		slog.Int64("frames", mel.Dim(0)),
		slog.Duration("elapsed", time.Since(overall)),
	)

	return &Result{Mel: mel, Chunks: kept}, nil
}

// generate runs one model call under the service lock.
func (s *Service) generate(tokens []int64, alpha float32) (*tensor.Tensor, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	mel, err := s.model.Generate(tokens, alpha)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		metrics.RecordGeneration(metrics.StatusSuccess, elapsed.Seconds(), len(tokens), int(mel.Dim(0)))
	case errors.Is(err, model.ErrNoFrames):
		metrics.RecordGeneration(metrics.StatusSuccess, elapsed.Seconds(), len(tokens), 0)
	default:
		metrics.RecordGeneration(metrics.StatusError, elapsed.Seconds(), len(tokens), 0)
	}

	return mel, elapsed, err
}
