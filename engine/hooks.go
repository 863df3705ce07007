package engine

import (
	"context"

	"github.com/ghiac/ledgermind/model"
)

// ==================== Status Updates (per-request, via context) ====================

// StatusPhase represents a processing stage
type StatusPhase string

const (
	StatusRecalling            StatusPhase = "recalling"             // loading memory context
	StatusThinking             StatusPhase = "thinking"              // waiting for the provider
	StatusToolExecuting        StatusPhase = "tool_executing"        // executing a tool
	StatusToolDone             StatusPhase = "tool_done"             // tool finished
	StatusConfirmationRequired StatusPhase = "confirmation_required" // gate asked for confirmation
	StatusCompleted            StatusPhase = "completed"             // processing done
	StatusError                StatusPhase = "error"                 // provider error
)

// StatusUpdate carries real-time progress information
type StatusUpdate struct {
	SessionID string
	Phase     StatusPhase
	Detail    string         // human-readable detail: tool name, model name, etc.
	Iteration int            // provider round-trip the update belongs to
	Metadata  map[string]any // extensible
}

// StatusFunc is a per-request callback for real-time status updates.
// It is passed via context so each invocation gets its own.
type StatusFunc func(status *StatusUpdate)

// StepFunc receives every reasoning step as it is appended.
type StepFunc func(step model.ReasoningStep)

type statusCtxKey struct{}
type stepCtxKey struct{}

// WithStatusFunc attaches a StatusFunc to the context.
func WithStatusFunc(ctx context.Context, fn StatusFunc) context.Context {
	return context.WithValue(ctx, statusCtxKey{}, fn)
}

// WithStepFunc attaches a StepFunc to the context.
func WithStepFunc(ctx context.Context, fn StepFunc) context.Context {
	return context.WithValue(ctx, stepCtxKey{}, fn)
}

// notifyStatus is safe to call even if no StatusFunc is set.
func notifyStatus(ctx context.Context, sessionID string, iteration int, phase StatusPhase, detail string) {
	if fn, ok := ctx.Value(statusCtxKey{}).(StatusFunc); ok && fn != nil {
		fn(&StatusUpdate{
			SessionID: sessionID,
			Phase:     phase,
			Detail:    detail,
			Iteration: iteration,
		})
	}
}

func stepFuncFrom(ctx context.Context) StepFunc {
	if fn, ok := ctx.Value(stepCtxKey{}).(StepFunc); ok {
		return fn
	}
	return nil
}
