package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Config holds the LightTTS hyperparameters. Every tensor shape in the model
// is derived from it, so weights only load into a model built with the same
// values.
type Config struct {
	NumChars         int64 `json:"num_chars"`
	EmbedDims        int64 `json:"embed_dims"`
	RNNDims          int64 `json:"rnn_dims"`
	PrenetK          int64 `json:"prenet_k"`
	PrenetDims       int64 `json:"prenet_dims"`
	PostnetK         int64 `json:"postnet_k"`
	PostnetDims      int64 `json:"postnet_dims"`
	DurationConvDims int64 `json:"duration_conv_dims"`
	Highways         int   `json:"highways"`
	Mels             int64 `json:"mels"`
}

// DefaultConfig returns the reference hyperparameters for a symbol table of
// numChars entries. The duration predictor is as wide as the symbol table.
func DefaultConfig(numChars int64) Config {
	return Config{
		NumChars:         numChars,
		EmbedDims:        256,
		RNNDims:          64,
		PrenetK:          16,
		PrenetDims:       256,
		PostnetK:         8,
		PostnetDims:      256,
		DurationConvDims: numChars,
		Highways:         4,
		Mels:             80,
	}
}

func (c Config) Validate() error {
	var errs []error

	positive := map[string]int64{
		"num_chars":          c.NumChars,
		"embed_dims":         c.EmbedDims,
		"rnn_dims":           c.RNNDims,
		"prenet_k":           c.PrenetK,
		"prenet_dims":        c.PrenetDims,
		"postnet_k":          c.PostnetK,
		"postnet_dims":       c.PostnetDims,
		"duration_conv_dims": c.DurationConvDims,
		"mels":               c.Mels,
	}

	for _, name := range []string{
		"num_chars", "embed_dims", "rnn_dims", "prenet_k", "prenet_dims",
		"postnet_k", "postnet_dims", "duration_conv_dims", "mels",
	} {
		if positive[name] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0, got %d", name, positive[name]))
		}
	}

	if c.Highways < 0 {
		errs = append(errs, fmt.Errorf("highways must be >= 0, got %d", c.Highways))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("model: invalid config: %w", err)
	}

	return nil
}

func (c Config) marshal() string {
	b, _ := json.Marshal(c)
	return string(b)
}

func parseConfig(s string) (Config, error) {
	var c Config
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return Config{}, fmt.Errorf("model: decode config metadata: %w", err)
	}

	return c, nil
}
