package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/example/go-light-tts/internal/safetensors"
	"github.com/example/go-light-tts/internal/synth"
	"github.com/spf13/cobra"
)

// Metadata keys written next to the mel tensor.
const (
	melTensorName = "mel"
	metaAlpha     = "alpha"
	metaCleaners  = "cleaners"
	metaModelStep = "model_step"
)

func newGenerateCmd() *cobra.Command {
	var (
		text   string
		out    string
		alpha  float32
		chunks bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a mel spectrogram from text",
		Long: "Generate runs the text front-end and the acoustic model and writes a\n" +
			"safetensors file with a single \"mel\" tensor shaped [frames, mels].",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			input, err := readText(text, cmd.InOrStdin())
			if err != nil {
				return err
			}

			if out == "" {
				out = cfg.Paths.OutputPath
			}

			svc, err := synth.NewServiceFromConfig(cfg, slog.Default())
			if err != nil {
				return err
			}

			res, err := svc.Synthesize(cmd.Context(), input, alpha)
			if err != nil {
				return err
			}

			meta := map[string]string{
				metaAlpha:     strconv.FormatFloat(float64(alpha), 'g', -1, 32),
				metaCleaners:  cfg.Text.Cleaners,
				metaModelStep: strconv.FormatInt(svc.Model().Step(), 10),
			}

			if err := writeMel(out, res, meta); err != nil {
				return err
			}

			slog.Info("mel written",
				slog.String("path", out),
				slog.Int64("frames", res.Mel.Dim(0)),
				slog.Int64("mels", res.Mel.Dim(1)),
			)

			if chunks {
				return printChunks(cmd.OutOrStdout(), res.Chunks)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to synthesize (default: read stdin)")
	cmd.Flags().StringVar(&out, "out", "", "Output safetensors path (default: paths.output_path)")
	cmd.Flags().Float32Var(&alpha, "alpha", 1.0, "Duration scale; >1 slows speech down")
	cmd.Flags().BoolVar(&chunks, "chunks", false, "Print per-chunk details as JSON")

	return cmd
}

// writeMel stores res.Mel as the only tensor of a safetensors file.
func writeMel(path string, res *synth.Result, meta map[string]string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	return safetensors.WriteFile(path, []safetensors.Tensor{{
		Name:  melTensorName,
		Shape: res.Mel.Shape(),
		Data:  res.Mel.Data(),
	}}, meta)
}

func printChunks(w io.Writer, chunks []synth.Chunk) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(chunks)
}
