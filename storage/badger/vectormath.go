package badger

import "math"

// normalizeVector scales v to unit length and returns a new vector.
// A zero vector stays zero.
func normalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var magnitude float32
	for _, val := range v {
		magnitude += val * val
	}
	magnitude = float32(math.Sqrt(float64(magnitude)))

	result := make([]float32, len(v))
	if magnitude == 0 {
		return result
	}
	for i, val := range v {
		result[i] = val / magnitude
	}
	return result
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// cosineDistance returns 1 - cos(a, b) for unit vectors, bounded to [0, 2].
func cosineDistance(a, b []float32) float32 {
	d := 1 - dotProduct(a, b)
	return max(0, min(2, d))
}
