package database

import "math"

// CosineSimilarity returns the cosine of the angle between a and b, clamped to [-1, 1].
// Mismatched lengths and zero vectors yield -1 (least similar).
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}

	return max(-1, min(1, dot/(math.Sqrt(normA)*math.Sqrt(normB))))
}

// CosineDistance is 1 - CosineSimilarity: 0 for identical directions, 2 for opposite.
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}
