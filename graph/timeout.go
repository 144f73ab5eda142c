package graph

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// Step execution statuses reported in step_end events and metrics.
const (
	StatusOK        = "ok"
	StatusPanic     = "panic"
	StatusTimeout   = "timeout"
	StatusCancelled = "cancelled"
)

// stepOutcome is the result of one guarded step invocation.
type stepOutcome struct {
	state    State
	status   string
	duration time.Duration
	panicVal any
	stack    []byte
}

// merged reports whether the step's output should be merged. A panicking
// step leaves its owned field at the previous value.
func (o stepOutcome) merged() bool {
	return o.status != StatusPanic
}

// executeStepWithTimeout runs step on a private copy of in, bounded by
// timeout when it is positive, and recovers any panic.
//
// The step's own output is kept even when its deadline passed: steps absorb
// collaborator failures themselves, and the timeout status only reports that
// the deadline was hit.
func executeStepWithTimeout(ctx context.Context, step Step, in State, timeout time.Duration) (out stepOutcome) {
	start := time.Now()

	stepCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		out.duration = time.Since(start)
		if r := recover(); r != nil {
			out = stepOutcome{
				state:    in,
				status:   StatusPanic,
				duration: time.Since(start),
				panicVal: r,
				stack:    debug.Stack(),
			}
		}
	}()

	result := step.Run(stepCtx, in.Clone())

	status := StatusOK
	switch {
	case ctx.Err() != nil:
		status = StatusCancelled
	case errors.Is(stepCtx.Err(), context.DeadlineExceeded):
		status = StatusTimeout
	}
	return stepOutcome{state: result, status: status}
}

// panicError renders a recovered panic value as an error.
func panicError(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("step panicked: %w", err)
	}
	return fmt.Errorf("step panicked: %v", v)
}
