package llminterface

import (
	"context"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds configuration for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	Name    string
	APIKey  string
	BaseURL string

	// HTTPClient overrides the transport, e.g. to add per-request headers.
	HTTPClient *http.Client
}

// OpenAIProvider implements Provider on an OpenAI-compatible chat API.
type OpenAIProvider struct {
	name   string
	client *openai.Client
}

// NewOpenAIProvider creates a provider for the given endpoint.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	openaiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		openaiConfig.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		openaiConfig.HTTPClient = cfg.HTTPClient
	}
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	return &OpenAIProvider{
		name:   name,
		client: openai.NewClientWithConfig(openaiConfig),
	}
}

// Name returns the provider name used in logs and errors.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// ChatCompletion implements Provider.
func (p *OpenAIProvider) ChatCompletion(ctx context.Context, model string, messages []Message, tools []Tool) (*Response, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: ToOpenAIMessages(messages),
		Tools:    ToOpenAITools(tools),
	})
	if err != nil {
		return nil, &ProviderError{Provider: p.name, Model: model, Err: err}
	}
	out, err := FromOpenAIResponse(resp)
	if err != nil {
		return nil, &ProviderError{Provider: p.name, Model: model, Err: err}
	}
	return out, nil
}
