package core

import (
	"fmt"
	"strings"

	"github.com/viterin/vek/vek32"
)

// DistanceFunc computes the distance between two vectors.
// Both vectors must have the same length.
type DistanceFunc func(a, b []float32) float64

// Metric identifies the distance metric an index is built with.
type Metric int

const (
	// Euclidean is the L2 distance.
	Euclidean Metric = iota
	// Angular is the cosine distance over normalized vectors.
	Angular
)

func (m Metric) String() string {
	switch m {
	case Euclidean:
		return "euclidean"
	case Angular:
		return "angular"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseMetric converts a metric name to a Metric.
func ParseMetric(name string) (Metric, error) {
	switch strings.TrimSpace(strings.ToLower(name)) {
	case "euclidean", "l2":
		return Euclidean, nil
	case "angular", "cosine":
		return Angular, nil
	default:
		return 0, fmt.Errorf("%w: unknown metric %q", ErrInvalidParameter, name)
	}
}

// Distances maps human-readable names to distance functions.
var Distances = map[string]DistanceFunc{
	"euclidean":         EuclideanDistance,
	"squared_euclidean": SquaredEuclidean,
	"angular":           CosineDistance,
	"cosine":            CosineDistance,
}

// Func returns the distance function backing the metric.
func (m Metric) Func() DistanceFunc {
	if m == Angular {
		return CosineDistance
	}
	return EuclideanDistance
}

// EuclideanDistance computes the Euclidean (L2) distance between two vectors.
func EuclideanDistance(a, b []float32) float64 {
	return float64(vek32.Distance(a, b))
}

// SquaredEuclidean computes the squared Euclidean distance between two vectors.
func SquaredEuclidean(a, b []float32) float64 {
	d := float64(vek32.Distance(a, b))
	return d * d
}

// CosineDistance computes the cosine distance (1 - cosine similarity)
// between two vectors. Zero vectors are treated as maximally distant.
func CosineDistance(a, b []float32) float64 {
	na := vek32.Norm(a)
	nb := vek32.Norm(b)
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - float64(vek32.Dot(a, b)/(na*nb))
}
