package embedding

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ghiac/ledgermind/metrics"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI-compatible embedding provider.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
}

// OpenAIProvider embeds text through an OpenAI-compatible /embeddings endpoint.
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	dimension int
}

// NewOpenAIProvider creates a provider. Model defaults to
// text-embedding-3-small and Dimension to 1536.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 1536
	}
	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}
}

// Dimension returns the configured vector length.
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// Embed embeds a single text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	vecs, err := p.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds the non-blank texts in one request.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	filtered := FilterEmpty(texts)
	if len(filtered) == 0 {
		return nil, ErrEmptyInput
	}
	return p.request(ctx, filtered)
}

func (p *OpenAIProvider) request(ctx context.Context, input []string) ([][]float32, error) {
	start := time.Now()
	defer func() {
		metrics.EmbeddingDuration.WithLabelValues("openai").Observe(time.Since(start).Seconds())
	}()

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: input,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(input) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(input))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		if err := CheckDimension(d.Embedding, p.dimension); err != nil {
			return nil, err
		}
		out[i] = d.Embedding
	}
	return out, nil
}
