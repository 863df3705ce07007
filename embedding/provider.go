// Package embedding turns text into fixed-dimension vectors and compares them.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyInput is returned when there is no non-blank text to embed.
	ErrEmptyInput = errors.New("embedding: empty input")
	// ErrDimensionMismatch is returned when a vector does not have the
	// configured dimension.
	ErrDimensionMismatch = errors.New("embedding: dimension mismatch")
)

// Provider maps text to vectors of a fixed dimension.
type Provider interface {
	// Embed returns the vector for text. Blank text yields ErrEmptyInput.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds the non-blank entries of texts, in order. It fails
	// with ErrEmptyInput only when every entry is blank.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the vector length this provider produces.
	Dimension() int
}

// FilterEmpty drops blank entries, keeping order.
func FilterEmpty(texts []string) []string {
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	}
	return out
}

// CheckDimension returns ErrDimensionMismatch if vec is not dim long.
func CheckDimension(vec []float32, dim int) error {
	if len(vec) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), dim)
	}
	return nil
}
