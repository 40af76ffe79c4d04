package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/example/go-light-tts/internal/model"
	"github.com/example/go-light-tts/internal/text"
	"github.com/spf13/cobra"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Weight file creation and inspection commands",
	}

	cmd.AddCommand(newModelInitCmd())
	cmd.AddCommand(newModelInspectCmd())
	cmd.AddCommand(newModelVerifyCmd())

	return cmd
}

func newModelInitCmd() *cobra.Command {
	var (
		out   string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a freshly initialized weight file from the model.* settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if out == "" {
				out = cfg.Paths.ModelPath
			}

			if !force {
				if _, err := os.Stat(out); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", out)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}

			m, err := model.New(cfg.Model.ModelFor(int64(text.NumSymbols())), cfg.Model.Seed)
			if err != nil {
				return err
			}

			if dir := filepath.Dir(out); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create model dir: %w", err)
				}
			}

			if err := m.Save(out); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d parameters, seed %d)\n",
				out, m.Params().NumElements(), cfg.Model.Seed)

			return err
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Output path (default: paths.model_path)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func newModelInspectCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect [path]",
		Short: "Print checksum, metadata and tensor shapes of a weight file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			path := cfg.Paths.ModelPath
			if len(args) == 1 {
				path = args[0]
			}

			info, err := model.Inspect(path)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")

				return enc.Encode(info)
			}

			printInspection(cmd.OutOrStdout(), info)

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")

	return cmd
}

func printInspection(w io.Writer, info model.Inspection) {
	fmt.Fprintf(w, "path:   %s\n", info.Path)
	fmt.Fprintf(w, "sha256: %s\n", info.SHA256)
	fmt.Fprintf(w, "step:   %d\n", info.Step)

	keys := make([]string, 0, len(info.Metadata))
	for k := range info.Metadata {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	for _, k := range keys {
		fmt.Fprintf(w, "meta %s: %s\n", k, info.Metadata[k])
	}

	var total int64

	for _, t := range info.Tensors {
		n := int64(1)
		for _, d := range t.Shape {
			n *= d
		}

		total += n

		fmt.Fprintf(w, "  %-40s %v\n", t.Name, t.Shape)
	}

	fmt.Fprintf(w, "tensors: %d, elements: %d\n", len(info.Tensors), total)
}

func newModelVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Load the configured weight file and run a smoke generation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			return verifyModel(cmd.OutOrStdout(), cfg.Paths.ModelPath)
		},
	}
}

func verifyModel(w io.Writer, path string) error {
	fmt.Fprintf(w, "verifying safetensors model: %s\n", path)

	// 1. Check file exists.
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("model file not found: %w", err)
	}

	fmt.Fprintf(w, "  ✓ file exists\n")

	// 2. Load with the recorded hyperparameters.
	m, report, err := model.Open(path)
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}

	if len(report.Missing) > 0 {
		return fmt.Errorf("weight file is missing %d tensors: %v", len(report.Missing), report.Missing)
	}

	fmt.Fprintf(w, "  ✓ %d tensors loaded (step %d)\n", len(report.Loaded), m.Step())

	if n := int64(text.NumSymbols()); m.Config().NumChars < n {
		return fmt.Errorf("model vocabulary has %d symbols, text front-end needs %d", m.Config().NumChars, n)
	}

	// 3. Smoke generation.
	mel, err := m.Generate(text.ToSequence("hallo welt."), 1)
	if err != nil && !errors.Is(err, model.ErrNoFrames) {
		return fmt.Errorf("smoke generation failed: %w", err)
	}

	fmt.Fprintf(w, "  ✓ smoke generation: %d frames\n", mel.Dim(0))

	return nil
}
