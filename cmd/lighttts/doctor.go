package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/example/go-light-tts/internal/doctor"
	"github.com/example/go-light-tts/internal/model"
	"github.com/example/go-light-tts/internal/text"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime and model checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			exe := cfg.Text.EspeakPath
			if exe == "" {
				exe = text.DefaultEspeakPath
			}

			out := cmd.OutOrStdout()

			dcfg := doctor.Config{
				EspeakVersion: func() (string, error) {
					return espeakVersion(cmd.Context(), exe)
				},
				SkipEspeak:    !text.NeedsPhonemizer(cfg.Text.Cleaners),
				ModelPath:     cfg.Paths.ModelPath,
				ValidateModel: summarizeModel,
				HintsPath:     cfg.Paths.HintsPath,
				ValidateHints: func(path string) (int, error) {
					h, err := text.LoadHints(path)
					return len(h), err
				},
				Threads: cfg.Runtime.Threads,
			}

			result := doctor.Run(dcfg, out)
			checkCleaners(cfg.Text.Cleaners, text.NewEspeak(exe, cfg.Text.Language), out, &result)

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}
}

// checkCleaners reports whether the configured cleaner names build a
// pipeline. The phonemizer is only wired, never run.
func checkCleaners(names string, ph text.Phonemizer, w io.Writer, res *doctor.Result) {
	if _, err := text.NewPipeline(names, text.PipelineOptions{Phonemizer: ph}); err != nil {
		res.AddFailure(fmt.Sprintf("cleaners %q: %v", names, err))
		_, _ = fmt.Fprintf(w, "%s cleaners: %v\n", doctor.FailMark, err)

		return
	}

	_, _ = fmt.Fprintf(w, "%s cleaners: %s\n", doctor.PassMark, names)
}

// espeakVersion runs `espeak-ng --version` and returns its output.
func espeakVersion(ctx context.Context, exe string) (string, error) {
	out, err := exec.CommandContext(ctx, exe, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%s --version failed: %w", exe, err)
	}

	return strings.TrimSpace(string(out)), nil
}

// summarizeModel checks that the weight file records hyperparameters the
// text front-end can drive.
func summarizeModel(path string) (string, error) {
	mc, err := model.ReadConfig(path)
	if err != nil {
		return "", err
	}

	if n := int64(text.NumSymbols()); mc.NumChars < n {
		return "", fmt.Errorf("vocabulary has %d symbols, text front-end needs %d", mc.NumChars, n)
	}

	info, err := model.Inspect(path)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("step %d, %d tensors, %d mels", info.Step, len(info.Tensors), mc.Mels), nil
}
