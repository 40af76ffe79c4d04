package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/go-light-tts/internal/synth"
	"github.com/example/go-light-tts/internal/text"
	"github.com/spf13/cobra"
)

func newNormalizeCmd() *cobra.Command {
	var (
		raw     string
		ids     bool
		asJSON  bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Run the text front-end and print the cleaned chunks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			input, err := readText(raw, cmd.InOrStdin())
			if err != nil {
				return err
			}

			opts, err := synth.TextOptions(cfg.Text, cfg.Paths.HintsPath)
			if err != nil {
				return err
			}

			opts.Logger = slog.Default()

			front, err := synth.NewFrontend(opts)
			if err != nil {
				return err
			}

			chunks, err := front.Prepare(cmd.Context(), input)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()

			if asJSON {
				return printChunks(w, chunks)
			}

			for _, c := range chunks {
				if verbose {
					fmt.Fprintf(w, "# %s\n", c.Text)
				}

				if ids {
					if verbose {
						fmt.Fprintf(w, "# %s\n", text.FromSequence(c.Tokens))
					}

					parts := make([]string, len(c.Tokens))
					for i, id := range c.Tokens {
						parts[i] = fmt.Sprint(id)
					}

					fmt.Fprintln(w, strings.Join(parts, " "))

					continue
				}

				fmt.Fprintln(w, c.Cleaned)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&raw, "text", "", "Text to normalize (default: read stdin)")
	cmd.Flags().BoolVar(&ids, "ids", false, "Print symbol IDs instead of cleaned text")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print chunks as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print each source chunk above its output; with --ids also the text the IDs decode to")

	return cmd
}
