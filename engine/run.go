package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	llminterface "github.com/ghiac/ledgermind/llm-interface"
	"github.com/ghiac/ledgermind/llmutils"
	"github.com/ghiac/ledgermind/log"
	"github.com/ghiac/ledgermind/memory"
	"github.com/ghiac/ledgermind/metrics"
	"github.com/ghiac/ledgermind/model"
)

// degradedObservations is how many successful observations a degraded answer quotes.
const degradedObservations = 3

// run is the state of one invocation.
type run struct {
	e    *Engine
	rc   RunContext
	emit StepFunc

	transcript *Transcript
	steps      []model.ReasoningStep
	toolsUsed  []string
	usedSet    map[string]bool
	sources    []string
	sourceSet  map[string]bool
	successes  []string // successful observation results, in order
	failures   int
}

func (e *Engine) newRun(rc RunContext, emit StepFunc) *run {
	return &run{
		e:          e,
		rc:         rc,
		emit:       emit,
		transcript: NewTranscript(),
		usedSet:    make(map[string]bool),
		sourceSet:  make(map[string]bool),
	}
}

func (r *run) execute(ctx context.Context) *model.ReasoningResult {
	ctx = llmutils.WithSessionID(ctx, r.rc.SessionID)
	start := time.Now()
	cfg := r.e.config

	log.Log.Infof("[Engine] 🚀 Reasoning started | SessionID: %s | Query length: %d chars | MaxIterations: %d",
		r.rc.SessionID, len(r.rc.Query), cfg.MaxIterations)

	r.buildTranscript(ctx)
	tools := r.toolSchemas()

	for iteration := 1; iteration <= cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			log.Log.Warnf("[Engine] ⚠️  Reasoning cancelled | SessionID: %s | Iteration: %d | Error: %v", r.rc.SessionID, iteration, err)
			notifyStatus(ctx, r.rc.SessionID, iteration, StatusError, err.Error())
			answer := fmt.Sprintf("I stopped before finishing because the request was cancelled: %v", err)
			r.addStep(model.ReasoningStep{Type: model.StepAnswer, Content: answer})
			return r.finish("cancelled", answer, iteration-1, 0, start)
		}

		notifyStatus(ctx, r.rc.SessionID, iteration, StatusThinking, cfg.Model)

		resp, err := r.callProvider(ctx, tools)
		if err != nil {
			outcome := "provider_error"
			if ctx.Err() != nil {
				outcome = "cancelled"
			}
			log.Log.Errorf("[Engine] ❌ Provider call failed | SessionID: %s | Iteration: %d | Error: %v", r.rc.SessionID, iteration, err)
			notifyStatus(ctx, r.rc.SessionID, iteration, StatusError, err.Error())
			answer := fmt.Sprintf("I could not complete the request because the language model call failed: %v", err)
			r.addStep(model.ReasoningStep{Type: model.StepAnswer, Content: answer})
			return r.finish(outcome, answer, iteration, 0, start)
		}

		if len(resp.ToolCalls) == 0 {
			r.transcript.AddAssistantMessage(resp.Content)
			r.addStep(model.ReasoningStep{Type: model.StepAnswer, Content: resp.Content})
			notifyStatus(ctx, r.rc.SessionID, iteration, StatusCompleted, "")
			return r.finish("answer", resp.Content, iteration, computeConfidence(len(r.toolsUsed), iteration, len(r.successes), r.failures), start)
		}

		if strings.TrimSpace(resp.Content) != "" {
			r.addStep(model.ReasoningStep{Type: model.StepThought, Content: resp.Content})
		}
		r.transcript.AddAssistantWithToolCalls(resp.Content, resp.ToolCalls)

		calls := make([]pendingCall, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			calls[i] = pendingCall{call: tc, args: parseToolArguments(tc.Arguments)}
			r.addStep(model.ReasoningStep{
				Type:     model.StepAction,
				Content:  fmt.Sprintf("call %s(%s)", tc.Name, llminterface.ToolCallArgumentsToJSON(calls[i].args)),
				ToolName: tc.Name,
				ToolArgs: calls[i].args,
			})
		}

		outcomes := r.e.executeCalls(ctx, r.rc, iteration, calls)
		for i, out := range outcomes {
			r.observe(calls[i], out)
		}
	}

	answer := r.degradedAnswer()
	r.addStep(model.ReasoningStep{Type: model.StepAnswer, Content: answer})
	log.Log.Warnf("[Engine] ⚠️  Max iterations reached | SessionID: %s | MaxIterations: %d", r.rc.SessionID, cfg.MaxIterations)
	notifyStatus(ctx, r.rc.SessionID, cfg.MaxIterations, StatusCompleted, "max iterations reached")
	return r.finish("exhausted", answer, cfg.MaxIterations, 0.5, start)
}

func (r *run) buildTranscript(ctx context.Context) {
	r.transcript.AddSystemMessage(r.rc.SystemPrompt)
	for _, extra := range r.rc.Extra {
		r.transcript.AddSystemMessage(strings.TrimSpace(extra))
	}
	r.transcript.AddSystemMessage(r.memoryContext(ctx))
	for _, turn := range r.rc.PriorTurns {
		r.transcript.AddTurn(turn)
	}
	r.transcript.AddUserMessage(r.rc.Query)
}

// memoryContext recalls memories for the query. Failures only cost the context.
func (r *run) memoryContext(ctx context.Context) string {
	if r.e.recaller == nil {
		return ""
	}
	notifyStatus(ctx, r.rc.SessionID, 0, StatusRecalling, "")

	mems, err := r.e.recaller.Recall(ctx, r.rc.Query, memory.RecallOptions{Limit: r.e.config.RecallLimit})
	if err != nil {
		log.Log.Warnf("[Engine] ⚠️  Memory recall failed, continuing without context | SessionID: %s | Error: %v", r.rc.SessionID, err)
		return ""
	}
	if len(mems) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Relevant things you remember about this business:\n")
	for _, m := range mems {
		fmt.Fprintf(&b, "- [%s] %s\n", m.MemoryType, m.Content)
		r.addSource("memory:" + m.ID)
	}
	return b.String()
}

func (r *run) toolSchemas() []llminterface.Tool {
	if r.e.tools == nil {
		return nil
	}
	specs := r.e.tools.List()
	tools := make([]llminterface.Tool, 0, len(specs))
	for _, s := range specs {
		tools = append(tools, llminterface.Tool{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.Schema,
		})
	}
	return tools
}

func (r *run) callProvider(ctx context.Context, tools []llminterface.Tool) (*llminterface.Response, error) {
	if r.e.provider == nil {
		return nil, errors.New("no capability provider configured")
	}
	pctx, cancel := context.WithTimeout(ctx, r.e.config.ProviderTimeout)
	defer cancel()

	log.Log.Debugf("[Engine] Calling provider | SessionID: %s | Model: %s | Messages: %d | Tools: %d",
		r.rc.SessionID, r.e.config.Model, r.transcript.Len(), len(tools))

	resp, err := r.e.provider.ChatCompletion(pctx, r.e.config.Model, r.transcript.Messages(), tools)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("provider returned no response")
	}
	return resp, nil
}

func (r *run) observe(pc pendingCall, out callOutcome) {
	r.transcript.AddToolResult(pc.call.ID, pc.call.Name, out.transcriptText())

	if out.invoked && !r.usedSet[pc.call.Name] {
		r.usedSet[pc.call.Name] = true
		r.toolsUsed = append(r.toolsUsed, pc.call.Name)
	}
	if out.success {
		r.successes = append(r.successes, out.result)
		r.addSource("tool:" + pc.call.Name)
	} else {
		r.failures++
	}

	content := out.result
	if !out.success && out.errMsg != "" {
		content = out.errMsg
	}
	r.addStep(model.ReasoningStep{
		Type:       model.StepObservation,
		Content:    content,
		ToolName:   pc.call.Name,
		ToolResult: out.result,
		Success:    model.BoolPtr(out.success),
	})
}

func (r *run) addStep(step model.ReasoningStep) {
	step.ID = len(r.steps) + 1
	step.Timestamp = r.e.now()
	r.steps = append(r.steps, step)
	if r.emit != nil {
		r.emit(step)
	}
}

func (r *run) addSource(src string) {
	if r.sourceSet[src] {
		return
	}
	r.sourceSet[src] = true
	r.sources = append(r.sources, src)
}

func (r *run) degradedAnswer() string {
	if len(r.successes) == 0 {
		return fmt.Sprintf("I could not finish within %d reasoning steps and have no results to report yet.", r.e.config.MaxIterations)
	}
	recent := r.successes
	if len(recent) > degradedObservations {
		recent = recent[len(recent)-degradedObservations:]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "I could not finish within %d reasoning steps. Here is what I found so far:", r.e.config.MaxIterations)
	for _, obs := range recent {
		b.WriteString("\n- ")
		b.WriteString(obs)
	}
	return b.String()
}

func (r *run) finish(outcome, answer string, iterations int, confidence float64, start time.Time) *model.ReasoningResult {
	metrics.ReasoningRuns.WithLabelValues(outcome).Inc()
	metrics.ReasoningIterations.Observe(float64(iterations))

	log.Log.Infof("[Engine] ✅ Reasoning finished | SessionID: %s | Outcome: %s | Iterations: %d | Tools: %d | Confidence: %.2f | Duration: %v",
		r.rc.SessionID, outcome, iterations, len(r.toolsUsed), confidence, time.Since(start))

	toolsUsed := r.toolsUsed
	if toolsUsed == nil {
		toolsUsed = []string{}
	}
	sources := r.sources
	if sources == nil {
		sources = []string{}
	}
	return &model.ReasoningResult{
		Steps:          r.steps,
		FinalAnswer:    answer,
		ToolsUsed:      toolsUsed,
		IterationCount: iterations,
		Confidence:     model.Clamp01(confidence),
		Sources:        sources,
	}
}

// computeConfidence is the deterministic confidence heuristic: base 0.5,
// +0.2 for any tool used, +0.1 more for three or more, -0.1 past five
// iterations, -0.2 when failed observations outnumber successful ones.
func computeConfidence(distinctTools, iterations, successes, failures int) float64 {
	c := 0.5
	if distinctTools >= 1 {
		c += 0.2
	}
	if distinctTools >= 3 {
		c += 0.1
	}
	if iterations > 5 {
		c -= 0.1
	}
	if failures > successes {
		c -= 0.2
	}
	return model.Clamp01(c)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
