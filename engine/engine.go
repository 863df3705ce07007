// Package engine runs the bounded tool-calling reasoning loop: it calls the
// capability provider with the transcript and tool schemas, executes the
// requested tools behind the confirmation gate, records every attempt in the
// action log, and stops at a final answer or the iteration cap.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/ghiac/ledgermind/audit"
	llminterface "github.com/ghiac/ledgermind/llm-interface"
	"github.com/ghiac/ledgermind/memory"
	"github.com/ghiac/ledgermind/model"
	"github.com/ghiac/ledgermind/policy"
)

// ErrEmptyQuery is returned when a run has no query.
var ErrEmptyQuery = errors.New("query cannot be empty")

// ToolRegistry lists and executes tools. *model.FunctionRegistry implements it.
type ToolRegistry interface {
	List() []model.ToolSpec
	Execute(ctx context.Context, name string, args map[string]any) (model.ToolResult, error)
}

// Auditor records tool execution attempts. *audit.Log implements it.
type Auditor interface {
	Record(ctx context.Context, sessionID, toolName string, input map[string]any, out audit.Output, executionTimeMs int64) (*model.AgentAction, error)
}

// Recaller supplies memory context for a query. *memory.Service implements it.
type Recaller interface {
	Recall(ctx context.Context, query string, opts memory.RecallOptions) ([]model.MemoryWithScore, error)
}

// ConfirmationRequest describes a gated call waiting for approval.
type ConfirmationRequest struct {
	SessionID      string
	ToolName       string
	Args           map[string]any
	Classification policy.Classification
	Reason         string
}

// Confirmer asks a human to approve a gated call. Calls of one provider turn
// run concurrently, so Confirm must be safe for concurrent use.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmationRequest) (bool, error)
}

// ConfirmerFunc adapts a function into a Confirmer.
type ConfirmerFunc func(ctx context.Context, req ConfirmationRequest) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmerFunc) Confirm(ctx context.Context, req ConfirmationRequest) (bool, error) {
	return f(ctx, req)
}

// Config holds loop limits and timeouts.
type Config struct {
	Model            string
	MaxIterations    int
	ProviderTimeout  time.Duration
	ToolTimeout      time.Duration
	MaxParallelTools int
	RecallLimit      int
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Model:            "gpt-4o-mini",
		MaxIterations:    10,
		ProviderTimeout:  60 * time.Second,
		ToolTimeout:      30 * time.Second,
		MaxParallelTools: 4,
		RecallLimit:      5,
	}
}

// RunContext is the input of one reasoning invocation.
type RunContext struct {
	Query        string
	SystemPrompt string
	PriorTurns   []model.Turn
	Extra        []string // additional context, each sent as a system message
	SessionID    string
	// Gate carries caller-known batch size and value. Values derived from
	// the tool arguments win when they are larger.
	Gate *policy.GateContext
}

// Engine orchestrates reasoning invocations. It holds no per-invocation
// state and is safe for concurrent use.
type Engine struct {
	provider  llminterface.Provider
	tools     ToolRegistry
	gate      *policy.Gate
	auditor   Auditor
	recaller  Recaller
	confirmer Confirmer
	config    Config
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithGate sets the confirmation gate. The default gate uses the default
// classification table.
func WithGate(g *policy.Gate) Option {
	return func(e *Engine) { e.gate = g }
}

// WithAuditor sets where execution attempts are recorded.
func WithAuditor(a Auditor) Option {
	return func(e *Engine) { e.auditor = a }
}

// WithRecaller enables memory context injection.
func WithRecaller(r Recaller) Option {
	return func(e *Engine) { e.recaller = r }
}

// WithConfirmer sets who approves gated calls. Without one, gated calls are
// withheld.
func WithConfirmer(c Confirmer) Option {
	return func(e *Engine) { e.confirmer = c }
}

// New creates an Engine.
func New(provider llminterface.Provider, tools ToolRegistry, config Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if config.Model == "" {
		config.Model = def.Model
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = def.MaxIterations
	}
	if config.ProviderTimeout <= 0 {
		config.ProviderTimeout = def.ProviderTimeout
	}
	if config.ToolTimeout <= 0 {
		config.ToolTimeout = def.ToolTimeout
	}
	if config.MaxParallelTools <= 0 {
		config.MaxParallelTools = def.MaxParallelTools
	}
	if config.RecallLimit <= 0 {
		config.RecallLimit = def.RecallLimit
	}

	e := &Engine{
		provider: provider,
		tools:    tools,
		config:   config,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.gate == nil {
		e.gate = policy.NewGate(policy.NewClassifier(), policy.DefaultGateConfig())
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Reason runs one invocation to completion. The only error is ErrEmptyQuery;
// provider failures and cancellation produce a zero-confidence result.
func (e *Engine) Reason(ctx context.Context, rc RunContext) (*model.ReasoningResult, error) {
	if err := validate(rc); err != nil {
		return nil, err
	}
	return e.newRun(rc, stepFuncFrom(ctx)).execute(ctx), nil
}

// ReasonStream runs one invocation in the background. Steps are published on
// the returned channel in order; the channel is closed after the last step.
// The Future resolves to the same result Reason would return. Callers should
// drain the channel or cancel ctx.
func (e *Engine) ReasonStream(ctx context.Context, rc RunContext) (<-chan model.ReasoningStep, *Future) {
	future := newFuture()
	if err := validate(rc); err != nil {
		ch := make(chan model.ReasoningStep)
		close(ch)
		future.resolve(nil, err)
		return ch, future
	}

	pump := newStepPump(ctx)
	hook := stepFuncFrom(ctx)
	emit := func(step model.ReasoningStep) {
		if hook != nil {
			hook(step)
		}
		pump.push(step)
	}

	go func() {
		result := e.newRun(rc, emit).execute(ctx)
		pump.close()
		future.resolve(result, nil)
	}()
	return pump.out, future
}

func validate(rc RunContext) error {
	if isBlank(rc.Query) {
		return ErrEmptyQuery
	}
	return nil
}
