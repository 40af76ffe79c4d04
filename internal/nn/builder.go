package nn

import (
	"math"
	"math/rand/v2"
	"strings"

	"github.com/example/go-light-tts/internal/runtime/tensor"
)

// Builder creates parameters under a hierarchical name prefix and registers
// them in a shared ParamSet. Builders derived with Path share the set and the
// random source, so construction order fixes the initial weights for a seed.
type Builder struct {
	params *ParamSet
	rng    *rand.Rand
	prefix string
}

func NewBuilder(params *ParamSet, seed uint64) *Builder {
	return &Builder{
		params: params,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Params returns the set the builder registers into.
func (b *Builder) Params() *ParamSet { return b.params }

func (b *Builder) Path(parts ...string) *Builder {
	prefix := b.prefix

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if prefix == "" {
			prefix = part
		} else {
			prefix += "." + part
		}
	}

	return &Builder{params: b.params, rng: b.rng, prefix: prefix}
}

// Uniform registers a tensor drawn from U(-bound, bound).
func (b *Builder) Uniform(name string, bound float32, shape ...int64) (*tensor.Tensor, error) {
	return b.create(name, shape, func() float32 {
		return (b.rng.Float32()*2 - 1) * bound
	})
}

// Normal registers a tensor drawn from N(0, std^2).
func (b *Builder) Normal(name string, std float32, shape ...int64) (*tensor.Tensor, error) {
	return b.create(name, shape, func() float32 {
		return float32(b.rng.NormFloat64()) * std
	})
}

// Constant registers a tensor filled with value.
func (b *Builder) Constant(name string, value float32, shape ...int64) (*tensor.Tensor, error) {
	t, err := tensor.Full(shape, value)
	if err != nil {
		return nil, err
	}

	return b.register(name, t)
}

func (b *Builder) create(name string, shape []int64, sample func() float32) (*tensor.Tensor, error) {
	t, err := tensor.Zeros(shape)
	if err != nil {
		return nil, err
	}

	data := t.RawData()
	for i := range data {
		data[i] = sample()
	}

	return b.register(name, t)
}

func (b *Builder) register(name string, t *tensor.Tensor) (*tensor.Tensor, error) {
	if err := b.params.Register(b.resolve(name), t); err != nil {
		return nil, err
	}

	return t, nil
}

func (b *Builder) resolve(name string) string {
	name = strings.TrimSpace(name)
	if b.prefix == "" {
		return name
	}

	if name == "" {
		return b.prefix
	}

	return b.prefix + "." + name
}

// fanInBound is the default uniform bound for weights reading fanIn inputs.
func fanInBound(fanIn int64) float32 {
	if fanIn <= 0 {
		return 0
	}

	return float32(1 / math.Sqrt(float64(fanIn)))
}
