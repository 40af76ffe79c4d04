package tensor

import (
	"fmt"
	"math"
)

// MaxElements caps the element count of any single tensor (8 GiB of
// float32).
const MaxElements = 1 << 31

// shapeElemCount returns the number of elements a shape holds. The empty
// shape is a scalar.
func shapeElemCount(shape []int64) (int, error) {
	total := int64(1)

	for i, d := range shape {
		switch {
		case d < 0:
			return 0, fmt.Errorf("tensor: shape %v has negative dimension at %d", shape, i)
		case d > 0 && total > math.MaxInt64/d:
			return 0, fmt.Errorf("tensor: shape %v too large", shape)
		}

		total *= d
	}

	if total > MaxElements || total > math.MaxInt {
		return 0, fmt.Errorf("tensor: shape %v holds %d elements, limit is %d", shape, total, int64(MaxElements))
	}

	return int(total), nil
}

// normalizeDim resolves a possibly negative dim against rank.
func normalizeDim(dim, rank int) (int, error) {
	if rank < 0 {
		return 0, fmt.Errorf("invalid rank %d", rank)
	}

	d := dim
	if d < 0 {
		d += rank
	}

	if d < 0 || d >= rank {
		return 0, fmt.Errorf("dim %d out of range for rank %d", dim, rank)
	}

	return d, nil
}

// computeStrides returns row-major strides for shape.
func computeStrides(shape []int64) []int64 {
	if len(shape) == 0 {
		return nil
	}

	strides := make([]int64, len(shape))
	strides[len(shape)-1] = 1

	for i := len(shape) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * shape[i+1]
	}

	return strides
}

// linearToCoord writes the coordinate of a row-major offset into out.
func linearToCoord(linear int64, shape, strides, out []int64) {
	for i, n := range shape {
		if n == 0 {
			out[i] = 0
			continue
		}

		out[i] = linear / strides[i] % n
	}
}

func coordToLinear(coord, strides []int64) int64 {
	var off int64
	for i, c := range coord {
		off += c * strides[i]
	}

	return off
}

// outerInner splits shape around dim into the product of the leading dims and
// the product of the trailing dims.
func outerInner(shape []int64, dim int) (outer, inner int64) {
	outer, inner = 1, 1

	for i, n := range shape {
		switch {
		case i < dim:
			outer *= n
		case i > dim:
			inner *= n
		}
	}

	return outer, inner
}
