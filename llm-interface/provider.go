// Package llminterface defines the provider-agnostic chat completion contract
// the reasoning engine talks to.
package llminterface

import (
	"context"
	"fmt"
)

// Message represents a single chat message (provider-agnostic).
type Message struct {
	Role       string     // "system", "user", "assistant", "tool"
	Content    string     // text content
	Name       string     // tool name for tool result messages
	ToolCallID string     // for tool result messages
	ToolCalls  []ToolCall // for assistant messages requesting tool calls
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID        string // unique call ID
	Name      string // function name
	Arguments string // JSON-encoded arguments
}

// Tool describes a callable tool/function definition.
type Tool struct {
	Name        string         // function name
	Description string         // human-readable description
	Parameters  map[string]any // JSON Schema object describing the parameters
}

// Response represents an LLM completion response.
type Response struct {
	Model     string     // model that produced the response
	Content   string     // text content; may accompany tool calls
	ToolCalls []ToolCall // tool calls requested by the model
	Usage     Usage      // token usage statistics
}

// Usage holds token usage statistics.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is the generic capability provider interface.
// Any client (OpenAI, Workers AI, local models, test doubles) implements
// this single method to plug into the reasoning engine.
type Provider interface {
	ChatCompletion(ctx context.Context, model string, messages []Message, tools []Tool) (*Response, error)
}

// ProviderFunc adapts a plain function into a Provider.
//
//	provider := llminterface.ProviderFunc(func(ctx context.Context, model string, msgs []Message, tools []Tool) (*Response, error) {
//	    // your implementation
//	})
type ProviderFunc func(ctx context.Context, model string, messages []Message, tools []Tool) (*Response, error)

// ChatCompletion implements the Provider interface.
func (f ProviderFunc) ChatCompletion(ctx context.Context, model string, messages []Message, tools []Tool) (*Response, error) {
	return f(ctx, model, messages, tools)
}

// ProviderError wraps a failed provider call.
type ProviderError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("provider call failed (model %s): %v", e.Model, e.Err)
	}
	return fmt.Sprintf("provider %s failed (model %s): %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
