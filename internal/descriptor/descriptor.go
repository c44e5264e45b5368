// Package descriptor defines the fixed-length face descriptor and the
// similarity measures used to compare two of them.
package descriptor

import "math"

// Dimension is the number of values in every descriptor produced by the extractor.
const Dimension = 128

// normEpsilon is the smallest L2 norm treated as a real direction.
const normEpsilon = 1e-10

// Descriptor is a face descriptor. Values are in [0,1].
// A nil or empty Descriptor is invalid.
type Descriptor []float32

// Valid reports whether d has the full descriptor dimension.
func (d Descriptor) Valid() bool {
	return len(d) == Dimension
}

// Clone returns an independent copy of d.
func (d Descriptor) Clone() Descriptor {
	if d == nil {
		return nil
	}
	out := make(Descriptor, len(d))
	copy(out, d)
	return out
}

// CosineSimilarity returns dot(a,b) / (|a|*|b|).
// Returns 0 if either vector is empty, the lengths differ, or either norm is
// below 1e-10.
func CosineSimilarity(a, b Descriptor) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, sumA, sumB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		sumA += x * x
		sumB += y * y
	}

	normA, normB := math.Sqrt(sumA), math.Sqrt(sumB)
	if normA < normEpsilon || normB < normEpsilon {
		return 0
	}
	return dot / (normA * normB)
}

// EuclideanDistance returns the L2 norm of a-b.
// Returns math.MaxFloat64 if either vector is empty or the lengths differ.
func EuclideanDistance(a, b Descriptor) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return math.MaxFloat64
	}

	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// Comparison is the outcome of comparing two descriptors with a fixed threshold.
type Comparison struct {
	Similarity float64
	Distance   float64
	Threshold  float64
	Match      bool
}

// Compare applies the strict pairwise rule: the faces match when the cosine
// similarity exceeds threshold and the euclidean distance is below 1-threshold.
func Compare(a, b Descriptor, threshold float64) Comparison {
	sim := CosineSimilarity(a, b)
	dist := EuclideanDistance(a, b)
	return Comparison{
		Similarity: sim,
		Distance:   dist,
		Threshold:  threshold,
		Match:      sim > threshold && dist < 1.0-threshold,
	}
}
