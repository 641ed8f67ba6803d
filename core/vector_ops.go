package core

import "github.com/viterin/vek/vek32"

// NormalizeVector scales vec to unit L2 norm in place.
// Zero vectors are left unchanged.
func NormalizeVector(vec []float32) {
	if len(vec) == 0 {
		return
	}
	norm := vek32.Norm(vec)
	if norm == 0 {
		return
	}
	vek32.MulNumber_Inplace(vec, 1/norm)
}

// NormalizeBatch normalizes multiple vectors in place.
func NormalizeBatch(vecs [][]float32) {
	for _, vec := range vecs {
		NormalizeVector(vec)
	}
}
