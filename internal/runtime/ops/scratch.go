package ops

import "sync"

// scratchPools is a size-class pool for reusable []float32 scratch buffers
// used by the im2col path. Size classes are powers of two from 2^10 to 2^26
// floats; a request rounds up to the next class.
var scratchPools [17]sync.Pool // indices 10..26 -> pools[0..16]

// getScratch returns a zeroed []float32 of exactly n elements from the pool.
// The caller must call putScratch when done.
func getScratch(n int) []float32 {
	cls := scratchClass(n)

	sz := 1 << (cls + 10)
	if sz < n {
		return make([]float32, n)
	}

	if v := scratchPools[cls].Get(); v != nil {
		buf, ok := v.([]float32)
		if !ok {
			return make([]float32, n)
		}

		buf = buf[:n]
		clear(buf)

		return buf
	}

	buf := make([]float32, sz)

	return buf[:n]
}

// putScratch returns a buffer obtained from getScratch to the pool. Buffers
// larger than the biggest class are dropped.
func putScratch(buf []float32) {
	c := cap(buf)

	cls := scratchClass(c)
	if 1<<(cls+10) < c {
		return
	}

	scratchPools[cls].Put(buf[:c])
}

func scratchClass(n int) int {
	if n <= 1<<10 {
		return 0
	}

	bits := 0

	v := n - 1
	for v > 0 {
		v >>= 1
		bits++
	}

	return min(max(bits-10, 0), 16)
}
