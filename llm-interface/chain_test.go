package llminterface

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	calls  int
	models []string
	resp   *Response
	err    error
}

func (p *countingProvider) ChatCompletion(ctx context.Context, model string, messages []Message, tools []Tool) (*Response, error) {
	p.calls++
	p.models = append(p.models, model)
	return p.resp, p.err
}

func TestChainPrimarySucceeds(t *testing.T) {
	primary := &countingProvider{resp: &Response{Content: "ok"}}
	backup := &countingProvider{resp: &Response{Content: "backup"}}
	chain := NewChain(primary, []Backup{{Provider: backup, Model: "small", Name: "b1"}}, time.Minute)

	resp, err := chain.ChatCompletion(context.Background(), "gpt-4o-mini", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, backup.calls)
	assert.Equal(t, []string{"gpt-4o-mini"}, primary.models)
}

func TestChainFallsBackAndCoolsDown(t *testing.T) {
	primary := &countingProvider{err: errors.New("rate limited")}
	backup := &countingProvider{resp: &Response{ToolCalls: []ToolCall{{ID: "1", Name: "list_invoices"}}}}
	chain := NewChain(primary, []Backup{{Provider: backup, Model: "small", Name: "b1"}}, time.Minute)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	chain.now = func() time.Time { return now }

	resp, err := chain.ChatCompletion(context.Background(), "gpt-4o-mini", nil, nil)
	require.NoError(t, err)
	assert.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, []string{"small"}, backup.models)

	// primary is cooling down, so the second call goes straight to the backup
	_, err = chain.ChatCompletion(context.Background(), "gpt-4o-mini", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 2, backup.calls)

	now = now.Add(2 * time.Minute)
	_, err = chain.ChatCompletion(context.Background(), "gpt-4o-mini", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, primary.calls)
}

func TestChainEmptyResponseCountsAsFailure(t *testing.T) {
	primary := &countingProvider{resp: &Response{}}
	chain := NewChain(primary, nil, time.Minute)

	_, err := chain.ChatCompletion(context.Background(), "m", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllProvidersFailed)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "primary", perr.Provider)
}

func TestChainRetriesPrimaryWhenEverythingCools(t *testing.T) {
	primary := &countingProvider{err: errors.New("down")}
	backup := &countingProvider{err: errors.New("down too")}
	chain := NewChain(primary, []Backup{{Provider: backup}}, time.Minute)

	_, err := chain.ChatCompletion(context.Background(), "m", nil, nil)
	require.ErrorIs(t, err, ErrAllProvidersFailed)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, backup.calls)

	primary.err = nil
	primary.resp = &Response{Content: "back"}
	resp, err := chain.ChatCompletion(context.Background(), "m", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "back", resp.Content)
	assert.Equal(t, 1, backup.calls)
}

func TestChainEmpty(t *testing.T) {
	chain := NewChain(nil, nil, 0)
	assert.Equal(t, 0, chain.Len())
	_, err := chain.ChatCompletion(context.Background(), "m", nil, nil)
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}

func TestConvertRoundTrip(t *testing.T) {
	msgs := ToOpenAIMessages([]Message{
		{Role: "assistant", ToolCalls: []ToolCall{{ID: "c1", Name: "get_invoice", Arguments: `{"id":"INV-1"}`}}},
		{Role: "tool", ToolCallID: "c1", Name: "get_invoice", Content: "found"},
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, "get_invoice", msgs[0].ToolCalls[0].Function.Name)
	assert.Equal(t, "c1", msgs[1].ToolCallID)

	assert.Nil(t, ToOpenAITools(nil))
	tools := ToOpenAITools([]Tool{{Name: "list_invoices", Parameters: map[string]any{"type": "object"}}})
	require.Len(t, tools, 1)
	assert.Equal(t, "list_invoices", tools[0].Function.Name)

	assert.Equal(t, "{}", ToolCallArgumentsToJSON(nil))
	assert.JSONEq(t, `{"a":1}`, ToolCallArgumentsToJSON(map[string]any{"a": 1}))
}
