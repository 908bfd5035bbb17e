// Package vecmath provides the vector helpers used for face embeddings:
// normalization, prototype building and the two similarity metrics.
package vecmath

import (
	"errors"
	"math"
)

// zeroNormDivisor replaces a numerically zero norm during normalization.
const zeroNormDivisor = 1e-10

var (
	// ErrNoEmbeddings is returned when a prototype is requested from an empty set.
	ErrNoEmbeddings = errors.New("no embeddings to average")
	// ErrDimensionMismatch is returned when vectors of different lengths are combined.
	ErrDimensionMismatch = errors.New("embedding dimensions differ")
)

// Norm returns the Euclidean norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// L2Normalize returns a unit-length copy of v.
// A zero vector stays (numerically) zero instead of producing NaN.
func L2Normalize(v []float32) []float32 {
	norm := Norm(v)
	if norm == 0 {
		norm = zeroNormDivisor
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// BuildPrototype averages the given embeddings element-wise and normalizes the mean.
// Sums are accumulated in float64 so the result does not depend on input order
// beyond float32 rounding of the final value.
func BuildPrototype(embeddings [][]float32) ([]float32, error) {
	if len(embeddings) == 0 {
		return nil, ErrNoEmbeddings
	}

	dim := len(embeddings[0])
	sum := make([]float64, dim)
	for _, emb := range embeddings {
		if len(emb) != dim {
			return nil, ErrDimensionMismatch
		}
		for i, x := range emb {
			sum[i] += float64(x)
		}
	}

	n := float64(len(embeddings))
	var normSq float64
	for i := range sum {
		sum[i] /= n
		normSq += sum[i] * sum[i]
	}

	norm := math.Sqrt(normSq)
	if norm == 0 {
		norm = zeroNormDivisor
	}
	proto := make([]float32, dim)
	for i, x := range sum {
		proto[i] = float32(x / norm)
	}
	return proto, nil
}

// Dot returns the dot product of a and b. Vectors must have the same length.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// CosineSimilarity returns a value in [-1, 1], 1 meaning identical direction.
// Mismatched or zero vectors have similarity 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to absorb floating point error.
	return math.Max(-1, math.Min(1, sim))
}

// L2Distance returns the Euclidean distance between a and b.
// Mismatched vectors are infinitely far apart.
func L2Distance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// IsFinite reports whether every component of v is neither NaN nor infinite.
func IsFinite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
