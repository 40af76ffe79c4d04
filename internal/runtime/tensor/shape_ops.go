package tensor

import (
	"errors"
	"fmt"
	"slices"
)

// Narrow slices the tensor along a single dimension.
func (t *Tensor) Narrow(dim int, start, length int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: narrow on nil tensor")
	}

	dim, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: narrow: %w", err)
	}

	if start < 0 || length < 0 || start+length > t.shape[dim] {
		return nil, fmt.Errorf("tensor: narrow: range [%d:%d] out of bounds for dim %d size %d", start, start+length, dim, t.shape[dim])
	}

	outShape := append([]int64(nil), t.shape...)
	outShape[dim] = length

	outer, inner := outerInner(t.shape, dim)
	src := t.shape[dim]
	out := make([]float32, outer*length*inner)

	for o := range outer {
		srcBase := (o*src + start) * inner
		dstBase := o * length * inner
		copy(out[dstBase:dstBase+length*inner], t.data[srcBase:srcBase+length*inner])
	}

	return newOwned(out, outShape), nil
}

// Fit truncates or right-pads with zeros along dim so that the dimension has
// exactly size entries.
func (t *Tensor) Fit(dim int, size int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: fit on nil tensor")
	}

	if size < 0 {
		return nil, fmt.Errorf("tensor: fit size must be >= 0, got %d", size)
	}

	dim, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: fit: %w", err)
	}

	cur := t.shape[dim]
	if cur >= size {
		return t.Narrow(dim, 0, size)
	}

	outShape := append([]int64(nil), t.shape...)
	outShape[dim] = size

	outer, inner := outerInner(t.shape, dim)
	out := make([]float32, outer*size*inner)

	for o := range outer {
		copy(out[o*size*inner:], t.data[o*cur*inner:(o+1)*cur*inner])
	}

	return newOwned(out, outShape), nil
}

// Gather gathers indices along dim.
func (t *Tensor) Gather(dim int, indices []int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: gather on nil tensor")
	}

	dim, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: gather: %w", err)
	}

	size := t.shape[dim]
	for i, idx := range indices {
		if idx < 0 || idx >= size {
			return nil, fmt.Errorf("tensor: gather index %d (%d) out of range for dim %d size %d", i, idx, dim, size)
		}
	}

	outShape := append([]int64(nil), t.shape...)
	outShape[dim] = int64(len(indices))

	outer, inner := outerInner(t.shape, dim)
	n := int64(len(indices))
	out := make([]float32, outer*n*inner)

	for o := range outer {
		for j, idx := range indices {
			src := (o*size + idx) * inner
			dst := (o*n + int64(j)) * inner
			copy(out[dst:dst+inner], t.data[src:src+inner])
		}
	}

	return newOwned(out, outShape), nil
}

// Transpose swaps dim1 and dim2.
func (t *Tensor) Transpose(dim1, dim2 int) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: transpose on nil tensor")
	}

	rank := len(t.shape)

	d1, err := normalizeDim(dim1, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: transpose dim1: %w", err)
	}

	d2, err := normalizeDim(dim2, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: transpose dim2: %w", err)
	}

	if d1 == d2 {
		return t.Clone(), nil
	}

	outShape := append([]int64(nil), t.shape...)
	outShape[d1], outShape[d2] = outShape[d2], outShape[d1]

	out := make([]float32, len(t.data))
	srcStrides := computeStrides(t.shape)
	outStrides := computeStrides(outShape)
	outCoord := make([]int64, rank)
	srcCoord := make([]int64, rank)

	for i := range out {
		linearToCoord(int64(i), outShape, outStrides, outCoord)
		copy(srcCoord, outCoord)
		srcCoord[d1], srcCoord[d2] = outCoord[d2], outCoord[d1]
		out[i] = t.data[coordToLinear(srcCoord, srcStrides)]
	}

	return newOwned(out, outShape), nil
}

// Concat concatenates tensors along dim. Tensors with a zero-sized dim are
// valid inputs and contribute nothing.
func Concat(tensors []*Tensor, dim int) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, errors.New("tensor: concat requires at least one tensor")
	}

	first := tensors[0]
	if first == nil {
		return nil, errors.New("tensor: concat tensor 0 is nil")
	}

	rank := len(first.shape)

	dim, err := normalizeDim(dim, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: concat: %w", err)
	}

	outShape := append([]int64(nil), first.shape...)
	outShape[dim] = 0

	for i, t := range tensors {
		if t == nil {
			return nil, fmt.Errorf("tensor: concat tensor %d is nil", i)
		}

		if len(t.shape) != rank {
			return nil, fmt.Errorf("tensor: concat tensor %d rank %d does not match rank %d", i, len(t.shape), rank)
		}

		for d := range rank {
			if d != dim && t.shape[d] != first.shape[d] {
				return nil, fmt.Errorf("tensor: concat tensor %d shape %v does not match base shape %v on dim %d", i, t.shape, first.shape, d)
			}
		}

		outShape[dim] += t.shape[dim]
	}

	total, err := shapeElemCount(outShape)
	if err != nil {
		return nil, err
	}

	out := make([]float32, total)
	outer, inner := outerInner(outShape, dim)
	outDim := outShape[dim]

	for o := range outer {
		writePos := o * outDim * inner

		for _, t := range tensors {
			span := t.shape[dim] * inner
			srcBase := o * span
			copy(out[writePos:writePos+span], t.data[srcBase:srcBase+span])
			writePos += span
		}
	}

	return newOwned(out, outShape), nil
}

// Stack joins equally shaped tensors along a new leading dimension.
func Stack(tensors []*Tensor) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, errors.New("tensor: stack requires at least one tensor")
	}

	base := tensors[0].Shape()
	parts := make([]*Tensor, len(tensors))

	for i, t := range tensors {
		if t == nil {
			return nil, fmt.Errorf("tensor: stack tensor %d is nil", i)
		}

		if !slices.Equal(t.shape, base) {
			return nil, fmt.Errorf("tensor: stack tensor %d shape %v does not match %v", i, t.shape, base)
		}

		parts[i] = newOwned(t.data, append([]int64{1}, t.shape...))
	}

	return Concat(parts, 0)
}

// Unbind splits t along dim 0 into rank-1-reduced tensors.
func (t *Tensor) Unbind() ([]*Tensor, error) {
	if t == nil || len(t.shape) == 0 {
		return nil, errors.New("tensor: unbind requires rank >= 1")
	}

	n := t.shape[0]
	inner := int64(len(t.data))
	if n > 0 {
		inner /= n
	}

	out := make([]*Tensor, n)
	for i := range n {
		out[i] = newOwned(append([]float32(nil), t.data[i*inner:(i+1)*inner]...), append([]int64(nil), t.shape[1:]...))
	}

	return out, nil
}
