package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/ghiac/ledgermind/metrics"
)

// HashProvider is a deterministic, offline embedding based on feature
// hashing of lower-cased word tokens. Identical texts get identical vectors
// and texts sharing words have positive similarity. It is meant for tests,
// local development and air-gapped installs.
type HashProvider struct {
	dimension int
}

// NewHashProvider returns a HashProvider producing vectors of length dim.
func NewHashProvider(dim int) *HashProvider {
	if dim <= 0 {
		dim = 256
	}
	return &HashProvider{dimension: dim}
}

// Dimension returns the vector length.
func (p *HashProvider) Dimension() int {
	return p.dimension
}

// Embed hashes text into a unit vector.
func (p *HashProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		metrics.EmbeddingDuration.WithLabelValues("hash").Observe(time.Since(start).Seconds())
	}()

	vec := make([]float64, p.dimension)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(p.dimension))
		sign := 1.0
		if sum&(1<<63) != 0 {
			sign = -1.0
		}
		vec[idx] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, p.dimension)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// EmbedBatch embeds each non-blank text.
func (p *HashProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	filtered := FilterEmpty(texts)
	if len(filtered) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([][]float32, 0, len(filtered))
	for _, t := range filtered {
		vec, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}
