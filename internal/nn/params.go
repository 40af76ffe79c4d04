package nn

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/example/go-light-tts/internal/runtime/tensor"
	"github.com/example/go-light-tts/internal/safetensors"
)

// ParamSet owns the named tensors of a model: trainable parameters and
// persistent buffers such as batch-norm running statistics. Names follow the
// dotted module path convention, e.g. "prenet.highways.0.W1.weight".
type ParamSet struct {
	byName map[string]*tensor.Tensor
	order  []string
}

func NewParamSet() *ParamSet {
	return &ParamSet{byName: map[string]*tensor.Tensor{}}
}

// Register adds t under name. Names must be unique.
func (p *ParamSet) Register(name string, t *tensor.Tensor) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("nn: parameter name must not be empty")
	}

	if t == nil {
		return fmt.Errorf("nn: parameter %q is nil", name)
	}

	if _, exists := p.byName[name]; exists {
		return fmt.Errorf("nn: duplicate parameter %q", name)
	}

	p.byName[name] = t
	p.order = append(p.order, name)

	return nil
}

// Get returns the live tensor registered under name. Writes through its
// RawData are visible to the model.
func (p *ParamSet) Get(name string) (*tensor.Tensor, bool) {
	t, ok := p.byName[name]
	return t, ok
}

// Names returns parameter names in registration order.
func (p *ParamSet) Names() []string {
	return append([]string(nil), p.order...)
}

func (p *ParamSet) Len() int { return len(p.order) }

// NumElements returns the total number of scalars across all parameters.
func (p *ParamSet) NumElements() int {
	n := 0
	for _, t := range p.byName {
		n += t.ElemCount()
	}

	return n
}

// Tensors snapshots every parameter for serialization.
func (p *ParamSet) Tensors() []safetensors.Tensor {
	out := make([]safetensors.Tensor, 0, len(p.order))
	for _, name := range p.order {
		t := p.byName[name]
		out = append(out, safetensors.Tensor{Name: name, Shape: t.Shape(), Data: t.Data()})
	}

	return out
}

// LoadReport describes the outcome of a partial load.
type LoadReport struct {
	// Loaded lists parameters overwritten from the file.
	Loaded []string
	// Missing lists model parameters absent from the file; they keep their
	// current values.
	Missing []string
	// Unexpected lists file tensors with no matching parameter; they are
	// ignored.
	Unexpected []string
}

// Apply copies every tensor of store whose name matches a registered
// parameter. Shapes are checked for all matches before anything is written,
// so a mismatch leaves the set untouched.
func (p *ParamSet) Apply(store *safetensors.Store) (LoadReport, error) {
	var report LoadReport

	for _, name := range store.Names() {
		dst, ok := p.byName[name]
		if !ok {
			report.Unexpected = append(report.Unexpected, name)
			continue
		}

		shape, _ := store.Shape(name)
		if !slices.Equal(shape, dst.Shape()) {
			return LoadReport{}, fmt.Errorf("nn: parameter %q shape mismatch: file %v, model %v", name, shape, dst.Shape())
		}

		report.Loaded = append(report.Loaded, name)
	}

	for _, name := range p.order {
		if !store.Has(name) {
			report.Missing = append(report.Missing, name)
		}
	}

	for _, name := range report.Loaded {
		st, err := store.Tensor(name)
		if err != nil {
			return LoadReport{}, err
		}

		src, err := tensor.New(st.Data, st.Shape)
		if err != nil {
			return LoadReport{}, fmt.Errorf("nn: parameter %q: %w", name, err)
		}

		if err := p.byName[name].CopyFrom(src); err != nil {
			return LoadReport{}, fmt.Errorf("nn: parameter %q: %w", name, err)
		}
	}

	sort.Strings(report.Missing)

	return report, nil
}
