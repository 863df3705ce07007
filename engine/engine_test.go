package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghiac/ledgermind/audit"
	llminterface "github.com/ghiac/ledgermind/llm-interface"
	"github.com/ghiac/ledgermind/memory"
	"github.com/ghiac/ledgermind/model"
	"github.com/ghiac/ledgermind/policy"
	"github.com/ghiac/ledgermind/store"
)

// scriptedProvider replies with responses in order and repeats the last one.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*llminterface.Response
	calls     int
	seen      [][]llminterface.Message
}

func (p *scriptedProvider) ChatCompletion(ctx context.Context, m string, msgs []llminterface.Message, tools []llminterface.Tool) (*llminterface.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, msgs)
	i := p.calls
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	p.calls++
	return p.responses[i], nil
}

func toolCalls(names ...string) *llminterface.Response {
	resp := &llminterface.Response{}
	for i, n := range names {
		resp.ToolCalls = append(resp.ToolCalls, llminterface.ToolCall{
			ID:        fmt.Sprintf("call_%d_%s", i, n),
			Name:      n,
			Arguments: `{}`,
		})
	}
	return resp
}

func answer(text string) *llminterface.Response {
	return &llminterface.Response{Content: text}
}

func okTool(result string) model.ToolFunction {
	return func(ctx context.Context, args map[string]any) (model.ToolResult, error) {
		return model.ToolResult{Success: true, Result: result}, nil
	}
}

type fixture struct {
	registry *model.FunctionRegistry
	store    *store.SQLiteStore
	log      *audit.Log
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	registry := model.NewFunctionRegistry()
	for _, name := range []string{"list_invoices", "get_invoice", "get_customer"} {
		require.NoError(t, registry.RegisterFunc(name, "reads "+name, nil, okTool(name+" ok")))
	}
	return &fixture{
		registry: registry,
		store:    s,
		log:      audit.New(s, policy.NewClassifier(), audit.Config{}),
	}
}

func (f *fixture) engine(p llminterface.Provider, cfg Config, opts ...Option) *Engine {
	opts = append([]Option{WithAuditor(f.log)}, opts...)
	return New(p, f.registry, cfg, opts...)
}

func (f *fixture) actions(t *testing.T) []*model.AgentAction {
	t.Helper()
	actions, err := f.log.ListRecent(context.Background(), "", 200)
	require.NoError(t, err)
	return actions
}

func TestReasonRejectsEmptyQuery(t *testing.T) {
	f := newFixture(t)
	e := f.engine(&scriptedProvider{responses: []*llminterface.Response{answer("hi")}}, Config{})

	_, err := e.Reason(context.Background(), RunContext{Query: "  "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	steps, future := e.ReasonStream(context.Background(), RunContext{})
	_, open := <-steps
	assert.False(t, open)
	_, err = future.Wait(context.Background())
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestReasonWithoutToolCalls(t *testing.T) {
	f := newFixture(t)
	provider := &scriptedProvider{responses: []*llminterface.Response{answer("Your balance is 1200 EUR.")}}
	e := f.engine(provider, Config{})

	result, err := e.Reason(context.Background(), RunContext{
		Query:        "what is my balance?",
		SystemPrompt: "You are an accounting assistant.",
		PriorTurns:   []model.Turn{{Role: model.RoleUser, Content: "hi"}, {Role: model.RoleAssistant, Content: "hello"}},
		Extra:        []string{"Company: ACME Ltd"},
	})
	require.NoError(t, err)

	require.Len(t, result.Steps, 1)
	assert.Equal(t, model.StepAnswer, result.Steps[0].Type)
	assert.Equal(t, 1, result.Steps[0].ID)
	assert.Equal(t, "Your balance is 1200 EUR.", result.FinalAnswer)
	assert.Empty(t, result.ToolsUsed)
	assert.Equal(t, 1, result.IterationCount)
	assert.Equal(t, 0.5, result.Confidence)

	msgs := provider.seen[0]
	require.Len(t, msgs, 5)
	assert.Equal(t, model.RoleSystem, msgs[0].Role)
	assert.Equal(t, "Company: ACME Ltd", msgs[1].Content)
	assert.Equal(t, "what is my balance?", msgs[4].Content)
}

func TestReasonExhaustsIterations(t *testing.T) {
	f := newFixture(t)
	provider := &scriptedProvider{responses: []*llminterface.Response{toolCalls("list_invoices")}}
	e := f.engine(provider, Config{MaxIterations: 3})

	result, err := e.Reason(context.Background(), RunContext{Query: "loop forever", SessionID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, 3, result.IterationCount)
	assert.Equal(t, 3, provider.calls)
	assert.Equal(t, 0.5, result.Confidence)
	assert.Contains(t, result.FinalAnswer, "list_invoices ok")
	last := result.Steps[len(result.Steps)-1]
	assert.Equal(t, model.StepAnswer, last.Type)
	assert.Equal(t, []string{"list_invoices"}, result.ToolsUsed)
	assert.Len(t, f.actions(t), 3)
}

func TestReasonConfidenceWithThreeTools(t *testing.T) {
	f := newFixture(t)
	provider := &scriptedProvider{responses: []*llminterface.Response{
		toolCalls("list_invoices", "get_invoice", "get_customer"),
		answer("INV-1 for ACME is unpaid."),
	}}
	e := f.engine(provider, Config{})

	result, err := e.Reason(context.Background(), RunContext{Query: "which invoices are unpaid?"})
	require.NoError(t, err)

	assert.Equal(t, 2, result.IterationCount)
	assert.Equal(t, []string{"list_invoices", "get_invoice", "get_customer"}, result.ToolsUsed)
	assert.InDelta(t, 0.8, result.Confidence, 1e-9)
	assert.Equal(t, []string{"tool:list_invoices", "tool:get_invoice", "tool:get_customer"}, result.Sources)

	types := make([]model.StepType, len(result.Steps))
	for i, s := range result.Steps {
		types[i] = s.Type
		assert.Equal(t, i+1, s.ID)
	}
	assert.Equal(t, []model.StepType{
		model.StepAction, model.StepAction, model.StepAction,
		model.StepObservation, model.StepObservation, model.StepObservation,
		model.StepAnswer,
	}, types)

	// tool results go back to the provider keyed by call id
	second := provider.seen[1]
	toolMsgs := second[len(second)-3:]
	for i, m := range toolMsgs {
		assert.Equal(t, "tool", m.Role)
		assert.Equal(t, provider.responses[0].ToolCalls[i].ID, m.ToolCallID)
	}
}

func TestObservationsKeepIssueOrder(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.RegisterFunc("list_payments", "slow", nil, func(ctx context.Context, args map[string]any) (model.ToolResult, error) {
		time.Sleep(50 * time.Millisecond)
		return model.ToolResult{Success: true, Result: "slow"}, nil
	}))
	require.NoError(t, f.registry.RegisterFunc("list_expenses", "fast", nil, okTool("fast")))

	provider := &scriptedProvider{responses: []*llminterface.Response{
		toolCalls("list_payments", "list_expenses"),
		answer("done"),
	}}
	e := f.engine(provider, Config{MaxParallelTools: 2})

	result, err := e.Reason(context.Background(), RunContext{Query: "payments and expenses"})
	require.NoError(t, err)

	var observed []string
	for _, s := range result.Steps {
		if s.Type == model.StepObservation {
			observed = append(observed, s.ToolResult)
		}
	}
	assert.Equal(t, []string{"slow", "fast"}, observed)
}

func TestToolTimeoutIsFailedObservation(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, f.registry.RegisterFunc("generate_report", "hangs", nil, func(ctx context.Context, args map[string]any) (model.ToolResult, error) {
		<-release
		return model.ToolResult{Success: true, Result: "late"}, nil
	}))

	provider := &scriptedProvider{responses: []*llminterface.Response{
		toolCalls("generate_report"),
		answer("The report is not available right now."),
	}}
	e := f.engine(provider, Config{ToolTimeout: 20 * time.Millisecond})

	result, err := e.Reason(context.Background(), RunContext{Query: "report please", SessionID: "s-timeout"})
	require.NoError(t, err)

	require.Len(t, result.Steps, 3)
	obs := result.Steps[1]
	assert.Equal(t, model.StepObservation, obs.Type)
	require.NotNil(t, obs.Success)
	assert.False(t, *obs.Success)
	assert.Contains(t, obs.Content, "timed out")
	assert.Equal(t, 2, result.IterationCount)
	assert.InDelta(t, 0.5, result.Confidence, 1e-9)

	actions := f.actions(t)
	require.Len(t, actions, 1)
	assert.False(t, actions[0].Success)
	assert.Equal(t, "s-timeout", actions[0].SessionID)
}

func TestGatedCallWithoutConfirmerIsWithheldAndAudited(t *testing.T) {
	f := newFixture(t)
	var executed atomic.Bool
	require.NoError(t, f.registry.RegisterFunc("submit_einvoice", "files an e-invoice", nil, func(ctx context.Context, args map[string]any) (model.ToolResult, error) {
		executed.Store(true)
		return model.ToolResult{Success: true, Result: "filed"}, nil
	}))

	provider := &scriptedProvider{responses: []*llminterface.Response{
		{ToolCalls: []llminterface.ToolCall{{ID: "c1", Name: "submit_einvoice", Arguments: `{"invoice_id":"INV-7"}`}}},
		answer("I need your confirmation before filing."),
	}}
	e := f.engine(provider, Config{})

	result, err := e.Reason(context.Background(), RunContext{Query: "file INV-7", SessionID: "s2"})
	require.NoError(t, err)

	assert.False(t, executed.Load())
	obs := result.Steps[1]
	assert.Equal(t, model.StepObservation, obs.Type)
	assert.True(t, strings.HasPrefix(obs.Content, "confirmation required: "), obs.Content)
	assert.Empty(t, result.ToolsUsed)

	actions := f.actions(t)
	require.Len(t, actions, 1)
	assert.Equal(t, "submit_einvoice", actions[0].ToolName)
	assert.False(t, actions[0].Success)
	assert.Contains(t, actions[0].InputSummary, "invoice_id: INV-7")
}

func TestConfirmerApprovesGatedCall(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.RegisterFunc("create_invoice", "creates an invoice", nil, okTool("created INV-9")))

	var asked []ConfirmationRequest
	confirmer := ConfirmerFunc(func(ctx context.Context, req ConfirmationRequest) (bool, error) {
		asked = append(asked, req)
		return true, nil
	})

	provider := &scriptedProvider{responses: []*llminterface.Response{
		{ToolCalls: []llminterface.ToolCall{{ID: "c1", Name: "create_invoice", Arguments: `{"customer":"ACME","amount":25000}`}}},
		answer("Invoice INV-9 created."),
	}}
	e := f.engine(provider, Config{}, WithConfirmer(confirmer))

	result, err := e.Reason(context.Background(), RunContext{Query: "invoice ACME 25000"})
	require.NoError(t, err)

	require.Len(t, asked, 1)
	assert.Equal(t, model.CategoryFinancial, asked[0].Classification.Category)
	assert.Contains(t, asked[0].Reason, "exceeds threshold")
	assert.Equal(t, []string{"create_invoice"}, result.ToolsUsed)
	assert.True(t, f.actions(t)[0].Success)
}

func TestConfirmerCalledConcurrentlyWithinTurn(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.RegisterFunc("submit_einvoice", "files an e-invoice", nil, okTool("filed")))

	var mu sync.Mutex
	asked := map[string]bool{}
	confirmer := ConfirmerFunc(func(ctx context.Context, req ConfirmationRequest) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		asked[req.Args["invoice_id"].(string)] = true
		return true, nil
	})

	provider := &scriptedProvider{responses: []*llminterface.Response{
		{ToolCalls: []llminterface.ToolCall{
			{ID: "c1", Name: "submit_einvoice", Arguments: `{"invoice_id":"INV-1"}`},
			{ID: "c2", Name: "submit_einvoice", Arguments: `{"invoice_id":"INV-2"}`},
		}},
		answer("Both filed."),
	}}
	e := f.engine(provider, Config{MaxParallelTools: 2}, WithConfirmer(confirmer))

	result, err := e.Reason(context.Background(), RunContext{Query: "file both"})
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{"INV-1": true, "INV-2": true}, asked)
	assert.Equal(t, "Both filed.", result.FinalAnswer)
	actions := f.actions(t)
	require.Len(t, actions, 2)
	for _, a := range actions {
		assert.True(t, a.Success)
	}
}

func TestCallerGateContextApplies(t *testing.T) {
	f := newFixture(t)
	provider := &scriptedProvider{responses: []*llminterface.Response{toolCalls("get_invoice"), answer("ok")}}
	e := f.engine(provider, Config{})

	result, err := e.Reason(context.Background(), RunContext{
		Query: "read many",
		Gate:  &policy.GateContext{BatchSize: 50},
	})
	require.NoError(t, err)
	assert.Contains(t, result.Steps[1].Content, "batch of 50 items")
}

func TestProviderErrorYieldsZeroConfidence(t *testing.T) {
	f := newFixture(t)
	provider := llminterface.ProviderFunc(func(ctx context.Context, m string, msgs []llminterface.Message, tools []llminterface.Tool) (*llminterface.Response, error) {
		return nil, errors.New("upstream 503")
	})
	e := f.engine(provider, Config{})

	result, err := e.Reason(context.Background(), RunContext{Query: "anything"})
	require.NoError(t, err)

	require.Len(t, result.Steps, 1)
	assert.Equal(t, model.StepAnswer, result.Steps[0].Type)
	assert.Contains(t, result.FinalAnswer, "upstream 503")
	assert.Equal(t, 0.0, result.Confidence)
	assert.Equal(t, 1, result.IterationCount)
}

func TestMalformedArgumentsBecomeEmpty(t *testing.T) {
	f := newFixture(t)
	var got map[string]any
	require.NoError(t, f.registry.RegisterFunc("search_invoices", "search", nil, func(ctx context.Context, args map[string]any) (model.ToolResult, error) {
		got = args
		return model.ToolResult{Success: true, Result: "none"}, nil
	}))

	provider := &scriptedProvider{responses: []*llminterface.Response{
		{ToolCalls: []llminterface.ToolCall{{ID: "c1", Name: "search_invoices", Arguments: `{"query": "ACME"`}}},
		answer("nothing found"),
	}}
	e := f.engine(provider, Config{})

	_, err := e.Reason(context.Background(), RunContext{Query: "find ACME"})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestUnknownToolIsFailedObservation(t *testing.T) {
	f := newFixture(t)
	provider := &scriptedProvider{responses: []*llminterface.Response{toolCalls("teleport"), answer("cannot")}}
	e := f.engine(provider, Config{})

	result, err := e.Reason(context.Background(), RunContext{Query: "teleport"})
	require.NoError(t, err)

	obs := result.Steps[1]
	require.NotNil(t, obs.Success)
	assert.False(t, *obs.Success)
	assert.Contains(t, obs.Content, "teleport")
	assert.Empty(t, result.ToolsUsed)
	// one failure, no successes
	assert.InDelta(t, 0.3, result.Confidence, 1e-9)
	assert.Len(t, f.actions(t), 1)
}

type fixedRecaller struct {
	mems []model.MemoryWithScore
	err  error
}

func (r *fixedRecaller) Recall(ctx context.Context, query string, opts memory.RecallOptions) ([]model.MemoryWithScore, error) {
	return r.mems, r.err
}

func TestRecallerAddsContextAndSources(t *testing.T) {
	f := newFixture(t)
	provider := &scriptedProvider{responses: []*llminterface.Response{toolCalls("get_customer"), answer("ACME pays net 30.")}}
	recaller := &fixedRecaller{mems: []model.MemoryWithScore{{
		Memory:     model.Memory{ID: "m1", Content: "ACME pays net 30", MemoryType: model.MemoryFact},
		Similarity: 0.93,
	}}}
	e := f.engine(provider, Config{}, WithRecaller(recaller))

	result, err := e.Reason(context.Background(), RunContext{Query: "ACME terms?"})
	require.NoError(t, err)

	assert.Equal(t, []string{"memory:m1", "tool:get_customer"}, result.Sources)
	assert.Contains(t, provider.seen[0][0].Content, "ACME pays net 30")

	failing := f.engine(&scriptedProvider{responses: []*llminterface.Response{answer("ok")}}, Config{}, WithRecaller(&fixedRecaller{err: errors.New("db down")}))
	result, err = failing.Reason(context.Background(), RunContext{Query: "ACME terms?"})
	require.NoError(t, err)
	assert.Empty(t, result.Sources)
}

func TestReasonStreamMatchesResult(t *testing.T) {
	f := newFixture(t)
	provider := &scriptedProvider{responses: []*llminterface.Response{
		{Content: "Let me look that up.", ToolCalls: toolCalls("list_invoices").ToolCalls},
		answer("You have 3 invoices."),
	}}
	e := f.engine(provider, Config{})

	var hooked []int
	ctx := WithStepFunc(context.Background(), func(step model.ReasoningStep) {
		hooked = append(hooked, step.ID)
	})

	steps, future := e.ReasonStream(ctx, RunContext{Query: "how many invoices?"})
	var streamed []model.ReasoningStep
	for s := range steps {
		streamed = append(streamed, s)
	}

	result, err := future.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, result.Steps, streamed)
	assert.Equal(t, []int{1, 2, 3, 4}, hooked)
	assert.Equal(t, model.StepThought, streamed[0].Type)
	assert.Equal(t, "You have 3 invoices.", result.FinalAnswer)

	again, err := future.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, result, again)
}

func TestStatusUpdates(t *testing.T) {
	f := newFixture(t)
	provider := &scriptedProvider{responses: []*llminterface.Response{toolCalls("list_invoices"), answer("done")}}
	e := f.engine(provider, Config{})

	var mu sync.Mutex
	var phases []StatusPhase
	ctx := WithStatusFunc(context.Background(), func(s *StatusUpdate) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, s.Phase)
	})
	_, err := e.Reason(ctx, RunContext{Query: "list", SessionID: "s9"})
	require.NoError(t, err)

	assert.Equal(t, []StatusPhase{StatusThinking, StatusToolExecuting, StatusToolDone, StatusThinking, StatusCompleted}, phases)
}

func TestParseToolArguments(t *testing.T) {
	cases := map[string]map[string]any{
		``:                      {},
		`   `:                   {},
		`null`:                  {},
		`[1,2]`:                 {},
		`{"broken"`:             {},
		`"text"`:                {},
		`{"id":"INV-1","n":2}`:  {"id": "INV-1", "n": float64(2)},
		`{"lines":[{"a":1.5}]}`: {"lines": []any{map[string]any{"a": 1.5}}},
	}
	for raw, want := range cases {
		assert.Equal(t, want, parseToolArguments(raw), "raw=%q", raw)
	}
}

func TestComputeConfidence(t *testing.T) {
	cases := []struct {
		tools, iterations, successes, failures int
		want                                   float64
	}{
		{0, 1, 0, 0, 0.5},
		{1, 2, 1, 0, 0.7},
		{3, 2, 3, 0, 0.8},
		{3, 6, 3, 0, 0.7},
		{1, 6, 1, 2, 0.4},
		{0, 7, 0, 4, 0.2},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, computeConfidence(c.tools, c.iterations, c.successes, c.failures), 1e-9, "%+v", c)
	}
}
