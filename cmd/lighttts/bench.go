package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/pprof"

	"github.com/example/go-light-tts/internal/bench"
	"github.com/example/go-light-tts/internal/synth"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	var (
		text         string
		runs         int
		warmup       int
		alpha        float32
		format       string
		rtfThreshold float64
		hopLength    int
		sampleRate   int
		cpuprofile   string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark generation latency and realtime factor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if format != "table" && format != "json" {
				return errors.New("--format must be 'table' or 'json'")
			}

			svc, err := synth.NewServiceFromConfig(cfg, slog.Default())
			if err != nil {
				return err
			}

			if cpuprofile != "" {
				f, err := os.Create(cpuprofile)
				if err != nil {
					return fmt.Errorf("create cpuprofile: %w", err)
				}
				defer f.Close()

				if err := pprof.StartCPUProfile(f); err != nil {
					return fmt.Errorf("start cpuprofile: %w", err)
				}
				defer pprof.StopCPUProfile()
			}

			results, err := bench.Run(cmd.Context(), svc, bench.Options{
				Text:       text,
				Alpha:      alpha,
				Runs:       runs,
				Warmup:     warmup,
				HopLength:  hopLength,
				SampleRate: sampleRate,
			})
			if err != nil {
				return err
			}

			stats := bench.Summarize(results)

			switch format {
			case "json":
				bench.FormatJSON(results, stats, cmd.OutOrStdout())
			default:
				bench.FormatTable(results, stats, cmd.OutOrStdout())
			}

			return bench.CheckRTFThreshold(stats.MeanRTF, rtfThreshold)
		},
	}

	cmd.Flags().StringVar(&text, "text", "Guten Tag. Wie geht es dir heute?", "Text to synthesize for each run")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of measured runs")
	cmd.Flags().IntVar(&warmup, "warmup", 1, "Number of unmeasured warmup runs")
	cmd.Flags().Float32Var(&alpha, "alpha", 1.0, "Duration scale")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&rtfThreshold, "rtf-threshold", 0, "Exit non-zero if mean RTF exceeds this value (0 = disabled)")
	cmd.Flags().IntVar(&hopLength, "hop-length", bench.DefaultHopLength, "Vocoder hop length used to convert frames to audio time")
	cmd.Flags().IntVar(&sampleRate, "sample-rate", bench.DefaultSampleRate, "Vocoder sample rate used to convert frames to audio time")
	cmd.Flags().StringVar(&cpuprofile, "cpuprofile", "", "Write a CPU profile of the runs to this file")

	return cmd
}
