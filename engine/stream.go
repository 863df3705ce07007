package engine

import (
	"context"

	"github.com/ghiac/ledgermind/model"
)

// Future resolves once to the result of a streamed invocation.
type Future struct {
	done   chan struct{}
	result *model.ReasoningResult
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(result *model.ReasoningResult, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

// Done is closed when the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available or ctx is done.
func (f *Future) Wait(ctx context.Context) (*model.ReasoningResult, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// stepPump decouples the reasoning loop from the stream consumer: push never
// blocks, and out delivers steps in push order.
type stepPump struct {
	in  chan model.ReasoningStep
	out chan model.ReasoningStep
}

func newStepPump(ctx context.Context) *stepPump {
	p := &stepPump{
		in:  make(chan model.ReasoningStep),
		out: make(chan model.ReasoningStep),
	}
	go p.run(ctx)
	return p
}

func (p *stepPump) push(step model.ReasoningStep) {
	p.in <- step
}

func (p *stepPump) close() {
	close(p.in)
}

func (p *stepPump) run(ctx context.Context) {
	defer close(p.out)

	var queue []model.ReasoningStep
	in := p.in
	for in != nil || len(queue) > 0 {
		var out chan model.ReasoningStep
		var next model.ReasoningStep
		if len(queue) > 0 {
			out = p.out
			next = queue[0]
		}

		select {
		case step, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, step)
		case out <- next:
			queue = queue[1:]
		case <-ctx.Done():
			// keep accepting so the loop never blocks, stop delivering
			if in == nil {
				return
			}
			for range in {
			}
			return
		}
	}
}
