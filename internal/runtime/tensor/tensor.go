package tensor

import (
	"errors"
	"fmt"
	"slices"
)

// Tensor is a dense, row-major float32 tensor. It backs every layer of the
// acoustic model; batches of sequences are carried as [batch, channels, time]
// or [batch, time, channels] depending on the consuming kernel.
type Tensor struct {
	shape []int64
	data  []float32
}

// New creates a tensor from data and shape. Both slices are copied.
func New(data []float32, shape []int64) (*Tensor, error) {
	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	if len(data) != total {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v (%d elements)", len(data), shape, total)
	}

	s := append([]int64(nil), shape...)
	d := append([]float32(nil), data...)

	return &Tensor{shape: s, data: d}, nil
}

// newOwned wraps data and shape without copying. len(data) must equal the
// element count of shape.
func newOwned(data []float32, shape []int64) *Tensor {
	return &Tensor{shape: shape, data: data}
}

// Zeros creates a zero-initialized tensor.
func Zeros(shape []int64) (*Tensor, error) {
	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	return &Tensor{
		shape: append([]int64(nil), shape...),
		data:  make([]float32, total),
	}, nil
}

// Full creates a tensor filled with value.
func Full(shape []int64, value float32) (*Tensor, error) {
	t, err := Zeros(shape)
	if err != nil {
		return nil, err
	}

	for i := range t.data {
		t.data[i] = value
	}

	return t, nil
}

func (t *Tensor) Shape() []int64 {
	if t == nil {
		return nil
	}

	return append([]int64(nil), t.shape...)
}

// Dim returns the size of dimension d. Negative d counts from the end.
func (t *Tensor) Dim(d int) int64 {
	if t == nil {
		return 0
	}

	d, err := normalizeDim(d, len(t.shape))
	if err != nil {
		return 0
	}

	return t.shape[d]
}

// Data returns a copy of the underlying tensor data.
func (t *Tensor) Data() []float32 {
	if t == nil {
		return nil
	}

	return append([]float32(nil), t.data...)
}

// RawData returns the underlying data slice. Writes through it mutate the
// tensor; parameter tensors are updated in place this way.
func (t *Tensor) RawData() []float32 {
	if t == nil {
		return nil
	}

	return t.data
}

func (t *Tensor) ElemCount() int {
	if t == nil {
		return 0
	}

	return len(t.data)
}

func (t *Tensor) Rank() int {
	if t == nil {
		return 0
	}

	return len(t.shape)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}

	return &Tensor{
		shape: append([]int64(nil), t.shape...),
		data:  append([]float32(nil), t.data...),
	}
}

// SameShape reports whether t and o have identical shapes.
func (t *Tensor) SameShape(o *Tensor) bool {
	if t == nil || o == nil {
		return false
	}

	return slices.Equal(t.shape, o.shape)
}

// CopyFrom overwrites t's values with src's. Shapes must match exactly.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if t == nil || src == nil {
		return errors.New("tensor: copy requires non-nil tensors")
	}

	if !t.SameShape(src) {
		return fmt.Errorf("tensor: copy shape mismatch: dst %v, src %v", t.shape, src.shape)
	}

	copy(t.data, src.data)

	return nil
}

// Reshape returns a tensor with a new shape and copied values.
func (t *Tensor) Reshape(shape []int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: reshape on nil tensor")
	}

	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	if total != len(t.data) {
		return nil, fmt.Errorf("tensor: cannot reshape %v (%d elements) to %v (%d elements)", t.shape, len(t.data), shape, total)
	}

	return &Tensor{shape: append([]int64(nil), shape...), data: append([]float32(nil), t.data...)}, nil
}

// Scale returns t multiplied elementwise by s.
func (t *Tensor) Scale(s float32) *Tensor {
	out := t.Clone()
	for i := range out.data {
		out.data[i] *= s
	}

	return out
}

// Add returns a + b elementwise. Shapes must match.
func Add(a, b *Tensor) (*Tensor, error) {
	if a == nil || b == nil {
		return nil, errors.New("tensor: add requires non-nil tensors")
	}

	if !a.SameShape(b) {
		return nil, fmt.Errorf("tensor: add shape mismatch %v vs %v", a.shape, b.shape)
	}

	out := a.Clone()
	for i, v := range b.data {
		out.data[i] += v
	}

	return out, nil
}

// Map returns a new tensor with fn applied to every element.
func (t *Tensor) Map(fn func(float32) float32) *Tensor {
	out := t.Clone()
	for i, v := range out.data {
		out.data[i] = fn(v)
	}

	return out
}
