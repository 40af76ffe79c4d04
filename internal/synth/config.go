package synth

import (
	"fmt"
	"log/slog"

	"github.com/example/go-light-tts/internal/config"
	"github.com/example/go-light-tts/internal/model"
	"github.com/example/go-light-tts/internal/runtime/tensor"
	"github.com/example/go-light-tts/internal/text"
)

// NewServiceFromConfig opens the configured weight file and builds the text
// front-end around it. It also applies runtime.threads to the tensor kernels.
func NewServiceFromConfig(cfg config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tensor.SetWorkers(cfg.Runtime.Threads)

	m, report, err := model.Open(cfg.Paths.ModelPath)
	if err != nil {
		return nil, err
	}

	if len(report.Missing) > 0 || len(report.Unexpected) > 0 {
		logger.Warn("weight file does not match the model exactly",
			slog.String("path", cfg.Paths.ModelPath),
			slog.Int("missing", len(report.Missing)),
			slog.Int("unexpected", len(report.Unexpected)),
		)
	}

	logger.Info("model loaded",
		slog.String("path", cfg.Paths.ModelPath),
		slog.Int64("step", m.Step()),
		slog.Int("tensors", len(report.Loaded)),
		slog.Int("threads", tensor.Workers()),
	)

	opts, err := TextOptions(cfg.Text, cfg.Paths.HintsPath)
	if err != nil {
		return nil, err
	}

	opts.Logger = logger

	return NewService(m, opts)
}

// TextOptions builds the cleaner settings for cfg. A phonemizer is only
// attached when the pipeline needs one; hints are loaded when hintsPath is
// set.
func TextOptions(cfg config.TextConfig, hintsPath string) (Options, error) {
	opts := Options{
		Cleaners:      cfg.Cleaners,
		MaxChunkRunes: cfg.MaxChunkRunes,
	}

	if text.NeedsPhonemizer(cfg.Cleaners) {
		opts.Phonemizer = text.NewEspeak(cfg.EspeakPath, cfg.Language)
	}

	if hintsPath != "" {
		hints, err := text.LoadHints(hintsPath)
		if err != nil {
			return Options{}, fmt.Errorf("synth: %w", err)
		}

		opts.Hints = hints
	}

	return opts, nil
}
