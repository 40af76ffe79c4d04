package model

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/example/go-light-tts/internal/nn"
	"github.com/example/go-light-tts/internal/safetensors"
)

// Metadata keys written by Save.
const (
	MetaFormat = "format"
	MetaStep   = "step"
	MetaConfig = "config"

	FormatName = "lighttts"
)

// LoadReport lists what a partial load applied, skipped and ignored.
type LoadReport = nn.LoadReport

// Save writes every parameter and buffer plus the step counter and the
// hyperparameters. Optimizer state is not part of the model and is not
// written.
func (m *LightTTS) Save(path string) error {
	meta := map[string]string{
		MetaFormat: FormatName,
		MetaStep:   strconv.FormatInt(m.step, 10),
		MetaConfig: m.cfg.marshal(),
	}

	if err := safetensors.WriteFile(path, m.params.Tensors(), meta); err != nil {
		return fmt.Errorf("model: save: %w", err)
	}

	return nil
}

// Load overwrites parameters from a weight file. Missing and unexpected
// names are tolerated and reported; a shape mismatch on a shared name fails
// the load without changing any parameter. The step counter is restored when
// the file records one, either as metadata or as an integer "step" tensor.
func (m *LightTTS) Load(path string) (LoadReport, error) {
	store, err := openWeights(path)
	if err != nil {
		return LoadReport{}, err
	}
	defer store.Close()

	step, ok, err := storedStep(store)
	if err != nil {
		return LoadReport{}, fmt.Errorf("model: load %s: %w", path, err)
	}

	if !ok {
		step = m.step
	}

	report, err := m.params.Apply(store)
	if err != nil {
		return LoadReport{}, fmt.Errorf("model: load %s: %w", path, err)
	}

	m.step = step

	return report, nil
}

// Open builds a model from a weight file written by Save, using the
// hyperparameters recorded in it.
func Open(path string) (*LightTTS, LoadReport, error) {
	cfg, err := ReadConfig(path)
	if err != nil {
		return nil, LoadReport{}, err
	}

	m, err := New(cfg, 0)
	if err != nil {
		return nil, LoadReport{}, err
	}

	report, err := m.Load(path)
	if err != nil {
		return nil, LoadReport{}, err
	}

	return m, report, nil
}

// ReadConfig returns the hyperparameters recorded in a weight file.
func ReadConfig(path string) (Config, error) {
	store, err := openWeights(path)
	if err != nil {
		return Config{}, err
	}
	defer store.Close()

	raw, ok := store.Metadata()[MetaConfig]
	if !ok {
		return Config{}, fmt.Errorf("model: %s carries no %q metadata", path, MetaConfig)
	}

	return parseConfig(raw)
}

// Inspection summarizes a weight file without building a model.
type Inspection struct {
	Path     string
	SHA256   string
	Metadata map[string]string
	Step     int64
	Tensors  []TensorInfo
	// Skipped lists stored tensors without a float dtype.
	Skipped []string
}

type TensorInfo struct {
	Name  string
	DType string
	Shape []int64
}

func Inspect(path string) (Inspection, error) {
	store, err := openWeights(path)
	if err != nil {
		return Inspection{}, err
	}
	defer store.Close()

	sum, err := FileSHA256(path)
	if err != nil {
		return Inspection{}, err
	}

	step, _, err := storedStep(store)
	if err != nil {
		return Inspection{}, fmt.Errorf("model: inspect %s: %w", path, err)
	}

	out := Inspection{Path: path, SHA256: sum, Metadata: store.Metadata(), Step: step, Skipped: store.Skipped()}

	for _, name := range store.Names() {
		shape, _ := store.Shape(name)
		out.Tensors = append(out.Tensors, TensorInfo{Name: name, DType: store.DType(name), Shape: shape})
	}

	return out, nil
}

// FileSHA256 returns the hex SHA-256 of the file at path.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("model: open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("model: read file for checksum: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// storedStep returns the step counter a weight file records. Metadata written
// by Save wins over an integer "step" tensor; ok is false when neither exists.
func storedStep(store *safetensors.Store) (step int64, ok bool, err error) {
	if s, found := store.Metadata()[MetaStep]; found {
		if step, err = strconv.ParseInt(s, 10, 64); err != nil {
			return 0, false, fmt.Errorf("invalid step %q: %w", s, err)
		}

		return step, true, nil
	}

	for _, name := range []string{MetaStep, "module." + MetaStep} {
		vals, err := store.Int64(name)
		if errors.Is(err, safetensors.ErrTensorNotFound) {
			continue
		}

		if err != nil {
			return 0, false, err
		}

		if len(vals) != 1 {
			return 0, false, fmt.Errorf("step tensor %q holds %d values, want 1", name, len(vals))
		}

		return vals[0], true, nil
	}

	return 0, false, nil
}

// openWeights opens a weight file. Integer tensors such as a serialized
// step buffer are skipped rather than rejected, and a "module." prefix left
// by data-parallel training wrappers is removed.
func openWeights(path string) (*safetensors.Store, error) {
	store, err := safetensors.OpenStore(path, safetensors.StoreOptions{
		Rename: func(name string) string {
			if name == MetaStep {
				return ""
			}

			return strings.TrimPrefix(name, "module.")
		},
		SkipNonFloat: true,
	})
	if err != nil {
		return nil, fmt.Errorf("model: open weights: %w", err)
	}

	return store, nil
}
