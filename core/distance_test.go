package core

import (
	"math"
	"testing"
)

// almostEqual compares two floating-point values with a tolerance.
func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestDistanceFunctions(t *testing.T) {
	tests := []struct {
		name                     string
		a, b                     []float32
		expectedEuclidean        float64
		expectedSquaredEuclidean float64
		expectedCosineDistance   float64
	}{
		{
			name:                     "Identical Vectors",
			a:                        []float32{1, 2, 3, 4, 5, 6},
			b:                        []float32{1, 2, 3, 4, 5, 6},
			expectedEuclidean:        0,
			expectedSquaredEuclidean: 0,
			expectedCosineDistance:   0,
		},
		{
			name: "Opposite Order",
			a:    []float32{1, 2, 3, 4, 5, 6},
			b:    []float32{6, 5, 4, 3, 2, 1},
			// Euclidean: sqrt(70), squared=70.
			expectedEuclidean:        math.Sqrt(70),
			expectedSquaredEuclidean: 70,
			// Cosine: similarity = 56/91, so cosine distance = 1 - (56/91).
			expectedCosineDistance: 1 - (56.0 / 91.0),
		},
		{
			name: "Binary Opposites",
			a:    []float32{1, 0, 0, 1, 0, 1},
			b:    []float32{0, 1, 1, 0, 1, 0},
			expectedEuclidean:        math.Sqrt(6),
			expectedSquaredEuclidean: 6,
			// Cosine: similarity = 0 so cosine distance = 1.
			expectedCosineDistance: 1,
		},
	}

	for _, tt := range tests {
		tt := tt // capture range variable
		t.Run(tt.name, func(t *testing.T) {
			euclid := EuclideanDistance(tt.a, tt.b)
			sqEuclid := SquaredEuclidean(tt.a, tt.b)
			cosine := CosineDistance(tt.a, tt.b)

			if !almostEqual(euclid, tt.expectedEuclidean, 1e-5) {
				t.Errorf("EuclideanDistance(%v, %v) = %v; want %v", tt.a, tt.b, euclid, tt.expectedEuclidean)
			}
			if !almostEqual(sqEuclid, tt.expectedSquaredEuclidean, 1e-4) {
				t.Errorf("SquaredEuclidean(%v, %v) = %v; want %v", tt.a, tt.b, sqEuclid, tt.expectedSquaredEuclidean)
			}
			if !almostEqual(cosine, tt.expectedCosineDistance, 1e-5) {
				t.Errorf("CosineDistance(%v, %v) = %v; want %v", tt.a, tt.b, cosine, tt.expectedCosineDistance)
			}
		})
	}
}

func TestCosineDistanceZeroVector(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 2, 3}
	if d := CosineDistance(a, b); d != 1 {
		t.Errorf("CosineDistance with zero vector = %v; want 1", d)
	}
}

func TestNormalizeVector(t *testing.T) {
	vec := []float32{3, 4}
	NormalizeVector(vec)
	norm := math.Sqrt(float64(vec[0]*vec[0] + vec[1]*vec[1]))
	if !almostEqual(norm, 1, 1e-6) {
		t.Errorf("normalized vector has norm %v; want 1", norm)
	}

	// Zero vectors must stay untouched.
	zero := []float32{0, 0}
	NormalizeVector(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed by NormalizeVector: %v", zero)
	}
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in      string
		want    Metric
		wantErr bool
	}{
		{"euclidean", Euclidean, false},
		{"l2", Euclidean, false},
		{"Angular", Angular, false},
		{"cosine", Angular, false},
		{"hamming", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMetric(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseMetric(%q): expected error, got none", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMetric(%q): unexpected error %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseMetric(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}
