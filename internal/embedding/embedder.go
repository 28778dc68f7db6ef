package embedding

import (
	"math"

	"paperrag/internal/domain"
)

// Embedder converts free text into a fixed-dimension vector.
type Embedder = domain.Embedder

// Batches yields [start, end) windows of at most size over n items.
func Batches(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var out [][2]int
	for i := 0; i < n; i += size {
		out = append(out, [2]int{i, min(i+size, n)})
	}
	return out
}

// Normalize scales v to unit length in place. Zero vectors are left alone.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
