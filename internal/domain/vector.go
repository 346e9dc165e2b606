package domain

import "math"

// CosineSimilarity returns the cosine of the angle between two vectors.
// The index service ranks results itself; this exists for verification
// in tests and diagnostics, not for re-scoring search output.
func CosineSimilarity(a, b []float32) float64 {
	return Dot(a, b) / (Magnitude(a) * Magnitude(b))
}

// Dot returns the dot product of two vectors of equal length.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Magnitude returns the Euclidean norm of a vector.
func Magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
