package graph

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/lexgraph/graph/ctxlog"
	"github.com/dshills/lexgraph/graph/emit"
)

type scopeKey struct{}

// stepScope identifies the step invocation a context belongs to.
type stepScope struct {
	runID   string
	seq     int
	step    StepID
	emitter emit.Emitter
	metrics *PrometheusMetrics
}

func withScope(ctx context.Context, s *stepScope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

func scopeFrom(ctx context.Context) *stepScope {
	s, _ := ctx.Value(scopeKey{}).(*stepScope)
	return s
}

// StepFromContext returns the step currently executing under ctx, if any.
func StepFromContext(ctx context.Context) (StepID, bool) {
	if s := scopeFrom(ctx); s != nil {
		return s.step, true
	}
	return "", false
}

// RecordFailure reports a collaborator failure absorbed by a step. It logs
// the failure at warn level and, when ctx belongs to an Executor run, emits
// a collaborator_error event and counts it in metrics.
//
// An empty err.Step is filled from ctx.
func RecordFailure(ctx context.Context, err *CollaboratorError) {
	if err == nil {
		return
	}
	s := scopeFrom(ctx)
	if err.Step == "" && s != nil {
		err.Step = s.step
	}

	attrs := []any{"op", err.Op, "error", err.Err}
	if errors.Is(err.Err, context.DeadlineExceeded) {
		attrs = append(attrs, "timeout", true)
	}
	ctxlog.FromContext(ctx).Warn("collaborator failed", attrs...)

	if s == nil {
		return
	}
	errText := "unknown error"
	if err.Err != nil {
		errText = err.Err.Error()
	}
	s.metrics.RecordCollaboratorFailure(err.Step, err.Op)
	s.emitter.Emit(emit.Event{
		RunID: s.runID,
		Seq:   s.seq,
		Step:  string(err.Step),
		Msg:   emit.MsgCollaboratorError,
		Time:  time.Now(),
		Meta: map[string]interface{}{
			"op":    err.Op,
			"error": errText,
		},
	})
}
