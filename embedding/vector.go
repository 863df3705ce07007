package embedding

import (
	"encoding/json"
	"fmt"
	"math"
)

// EncodeVector serialises a vector as a JSON float array.
func EncodeVector(vec []float32) string {
	if len(vec) == 0 {
		return "[]"
	}
	b, err := json.Marshal(vec)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// DecodeVector parses the output of EncodeVector.
func DecodeVector(raw string) ([]float32, error) {
	if raw == "" {
		return nil, nil
	}
	out := []float32{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to decode vector: %w", err)
	}
	return out, nil
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Empty, mismatched or zero-norm inputs yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
