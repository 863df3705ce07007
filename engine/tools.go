package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ghiac/ledgermind/audit"
	llminterface "github.com/ghiac/ledgermind/llm-interface"
	"github.com/ghiac/ledgermind/log"
	"github.com/ghiac/ledgermind/metrics"
	"github.com/ghiac/ledgermind/model"
	"github.com/ghiac/ledgermind/policy"
)

// errToolTimeout marks a tool that exceeded ToolTimeout while the caller's
// context was still live.
var errToolTimeout = errors.New("tool timeout")

type pendingCall struct {
	call llminterface.ToolCall
	args map[string]any
}

// callOutcome is the result of one tool call attempt.
type callOutcome struct {
	success bool
	result  string
	errMsg  string
	invoked bool   // the tool itself ran (not withheld, not unknown)
	label   string // metrics outcome
}

func (o callOutcome) transcriptText() string {
	if o.success {
		return o.result
	}
	if o.errMsg != "" {
		return "Error: " + o.errMsg
	}
	if o.result != "" {
		return "Error: " + o.result
	}
	return "Error: tool reported failure"
}

// parseToolArguments decodes the provider's JSON arguments. Malformed or
// non-object JSON yields an empty argument object instead of failing the turn.
func parseToolArguments(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		log.Log.Debugf("[Engine] Tool arguments are not a JSON object, using empty args | Raw: %s", audit.Truncate(raw, 200))
		return map[string]any{}
	}
	return args
}

// executeCalls runs the calls of one provider turn concurrently, bounded by
// MaxParallelTools. Outcomes are returned in call order.
func (e *Engine) executeCalls(ctx context.Context, rc RunContext, iteration int, calls []pendingCall) []callOutcome {
	outcomes := make([]callOutcome, len(calls))

	var g errgroup.Group
	g.SetLimit(e.config.MaxParallelTools)
	for i := range calls {
		i := i
		g.Go(func() error {
			outcomes[i] = e.executeCall(ctx, rc, iteration, calls[i])
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// executeCall gates, executes and records one call. Every path records
// exactly one action.
func (e *Engine) executeCall(ctx context.Context, rc RunContext, iteration int, pc pendingCall) callOutcome {
	name := pc.call.Name
	start := time.Now()

	out := e.gateAndExecute(ctx, rc, iteration, pc)
	elapsed := time.Since(start)

	metrics.ToolExecutions.WithLabelValues(name, out.label).Inc()
	if out.invoked {
		metrics.ToolDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}

	if e.auditor != nil {
		// the tool context may have expired; the record must still land
		actx := context.WithoutCancel(ctx)
		if _, err := e.auditor.Record(actx, rc.SessionID, name, pc.args, audit.Output{
			Success: out.success,
			Result:  out.result,
			Error:   out.errMsg,
		}, elapsed.Milliseconds()); err != nil {
			log.Log.Errorf("[Engine] ❌ Failed to record tool action | SessionID: %s | Tool: %s | Error: %v", rc.SessionID, name, err)
		}
	}

	notifyStatus(ctx, rc.SessionID, iteration, StatusToolDone, name)
	return out
}

func (e *Engine) gateAndExecute(ctx context.Context, rc RunContext, iteration int, pc pendingCall) callOutcome {
	name := pc.call.Name

	if err := ctx.Err(); err != nil {
		return cancelledOutcome(name, err, false)
	}

	derived := policy.GateContextFromArgs(pc.args)
	decision := e.gate.RequiresConfirmation(name, pc.args, policy.Merge(&derived, rc.Gate))
	if decision.Required {
		notifyStatus(ctx, rc.SessionID, iteration, StatusConfirmationRequired, name)
		approved := e.confirm(ctx, rc, pc, decision)
		metrics.ConfirmationsRequired.WithLabelValues(name, fmt.Sprintf("%t", approved)).Inc()
		if !approved {
			log.Log.Infof("[Engine] ✋ Tool call withheld | SessionID: %s | Tool: %s | Reason: %s", rc.SessionID, name, decision.Reason)
			return callOutcome{
				errMsg: "confirmation required: " + decision.Reason,
				label:  "withheld",
			}
		}
	}

	if e.tools == nil {
		return callOutcome{errMsg: fmt.Sprintf("tool %s is not available", name), label: "not_found"}
	}
	// confirmation may have waited on a human
	if err := ctx.Err(); err != nil {
		return cancelledOutcome(name, err, false)
	}

	notifyStatus(ctx, rc.SessionID, iteration, StatusToolExecuting, name)
	log.Log.Infof("[Engine] 🔧 Tool call | SessionID: %s | Tool: %s | Args: %s",
		rc.SessionID, name, audit.Truncate(llminterface.ToolCallArgumentsToJSON(pc.args), 500))

	res, err := e.runTool(ctx, name, pc.args)
	switch {
	case errors.Is(err, model.ErrToolNotFound):
		log.Log.Warnf("[Engine] ⚠️  Unknown tool requested | SessionID: %s | Tool: %s", rc.SessionID, name)
		return callOutcome{errMsg: err.Error(), label: "not_found"}
	case errors.Is(err, errToolTimeout):
		log.Log.Warnf("[Engine] ⏱️ Tool timed out | SessionID: %s | Tool: %s | Timeout: %v", rc.SessionID, name, e.config.ToolTimeout)
		return callOutcome{
			errMsg:  fmt.Sprintf("tool %s timed out after %v", name, e.config.ToolTimeout),
			invoked: true,
			label:   "timeout",
		}
	case err != nil && ctx.Err() != nil:
		log.Log.Warnf("[Engine] ⚠️  Tool aborted, request context ended | SessionID: %s | Tool: %s | Error: %v", rc.SessionID, name, ctx.Err())
		return cancelledOutcome(name, ctx.Err(), true)
	case err != nil:
		log.Log.Infof("[Engine] Tool execution error | SessionID: %s | Tool: %s | Error: %v", rc.SessionID, name, err)
		return callOutcome{errMsg: err.Error(), invoked: true, label: "failure"}
	case !res.Success:
		return callOutcome{result: res.Result, errMsg: res.Result, invoked: true, label: "failure"}
	}

	log.Log.Infof("[Engine] Tool execution result | SessionID: %s | Tool: %s | Result length: %d", rc.SessionID, name, len(res.Result))
	return callOutcome{success: true, result: res.Result, invoked: true, label: "success"}
}

// runTool executes under ToolTimeout. A tool that ignores its context is
// abandoned when the timeout fires. Exceeding ToolTimeout yields
// errToolTimeout; the caller's own cancellation or deadline yields ctx.Err().
func (e *Engine) runTool(ctx context.Context, name string, args map[string]any) (model.ToolResult, error) {
	tctx, cancel := context.WithTimeout(ctx, e.config.ToolTimeout)
	defer cancel()
	if err := tctx.Err(); err != nil {
		if ctx.Err() != nil {
			return model.ToolResult{}, ctx.Err()
		}
		return model.ToolResult{}, errToolTimeout
	}

	type toolReturn struct {
		res model.ToolResult
		err error
	}
	done := make(chan toolReturn, 1)
	go func() {
		res, err := e.tools.Execute(tctx, name, args)
		done <- toolReturn{res, err}
	}()

	var r toolReturn
	select {
	case r = <-done:
	case <-tctx.Done():
		// a tool that finished as the context ended still reports its result
		select {
		case r = <-done:
		default:
			if ctx.Err() != nil {
				return model.ToolResult{}, ctx.Err()
			}
			return model.ToolResult{}, errToolTimeout
		}
	}
	if r.err != nil && tctx.Err() != nil {
		if ctx.Err() != nil {
			return r.res, fmt.Errorf("%w: %v", ctx.Err(), r.err)
		}
		return r.res, fmt.Errorf("%w: %v", errToolTimeout, r.err)
	}
	return r.res, r.err
}

// cancelledOutcome reports a call cut short by the caller's context.
// started tells whether the tool had already been invoked.
func cancelledOutcome(name string, cause error, started bool) callOutcome {
	msg := fmt.Sprintf("tool %s not executed: request cancelled (%v)", name, cause)
	if started {
		msg = fmt.Sprintf("tool %s aborted: request cancelled (%v)", name, cause)
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		msg = strings.Replace(msg, "request cancelled", "request deadline exceeded", 1)
	}
	return callOutcome{errMsg: msg, invoked: started, label: "cancelled"}
}

func (e *Engine) confirm(ctx context.Context, rc RunContext, pc pendingCall, decision policy.Decision) bool {
	if e.confirmer == nil {
		return false
	}
	ok, err := e.confirmer.Confirm(ctx, ConfirmationRequest{
		SessionID:      rc.SessionID,
		ToolName:       pc.call.Name,
		Args:           pc.args,
		Classification: e.gate.Classifier().Classify(pc.call.Name),
		Reason:         decision.Reason,
	})
	if err != nil {
		log.Log.Warnf("[Engine] ⚠️  Confirmation failed, withholding call | SessionID: %s | Tool: %s | Error: %v", rc.SessionID, pc.call.Name, err)
		return false
	}
	return ok
}
