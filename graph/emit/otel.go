package emit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns run events into OpenTelemetry spans.
//
// Each run becomes a "lexgraph.run" span opened on run_start and closed on
// run_end. Each step_end becomes a child span named after the step, back-dated
// by its duration_ms so the trace shows real step timing. Collaborator errors
// and panics are recorded on the step's run span as span events.
//
// Attributes:
//   - lexgraph.run_id, lexgraph.step, lexgraph.seq
//   - lexgraph.route.labels on the run span once routing happened
//   - lexgraph.completed on the run span
//
// Example:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	emitter := emit.NewOTelEmitter(tp.Tracer("lexgraph"), tp.ForceFlush)
type OTelEmitter struct {
	tracer trace.Tracer
	flush  func(context.Context) error

	mu   sync.Mutex
	runs map[string]runSpan
}

type runSpan struct {
	ctx  context.Context
	span trace.Span
}

// NewOTelEmitter returns an emitter that creates spans with tracer. flush
// is called by Flush to export buffered spans, usually the ForceFlush method
// of the provider that owns tracer. It may be nil.
func NewOTelEmitter(tracer trace.Tracer, flush func(context.Context) error) *OTelEmitter {
	return &OTelEmitter{
		tracer: tracer,
		flush:  flush,
		runs:   make(map[string]runSpan),
	}
}

// Emit implements Emitter.
func (o *OTelEmitter) Emit(event Event) {
	switch event.Msg {
	case MsgRunStart:
		o.startRun(event)
	case MsgStepEnd:
		o.stepSpan(event)
	case MsgRoute:
		if rs, ok := o.run(event.RunID); ok {
			rs.span.SetAttributes(attribute.String("lexgraph.route.labels", fmt.Sprint(event.Meta["labels"])))
		}
	case MsgCollaboratorError, MsgStepPanic:
		if rs, ok := o.run(event.RunID); ok {
			rs.span.AddEvent(event.Msg, trace.WithAttributes(o.attributes(event)...))
		}
	case MsgRunEnd:
		o.endRun(event)
	}
}

func (o *OTelEmitter) startRun(event Event) {
	ctx, span := o.tracer.Start(context.Background(), "lexgraph.run",
		trace.WithTimestamp(eventTime(event)),
		trace.WithAttributes(attribute.String("lexgraph.run_id", event.RunID)),
	)

	o.mu.Lock()
	o.runs[event.RunID] = runSpan{ctx: ctx, span: span}
	o.mu.Unlock()
}

func (o *OTelEmitter) stepSpan(event Event) {
	parent := context.Background()
	if rs, ok := o.run(event.RunID); ok {
		parent = rs.ctx
	}

	end := eventTime(event)
	start := end
	if ms, ok := event.Meta["duration_ms"].(int64); ok {
		start = end.Add(-time.Duration(ms) * time.Millisecond)
	}

	_, span := o.tracer.Start(parent, event.Step, trace.WithTimestamp(start))
	span.SetAttributes(o.attributes(event)...)
	if status, ok := event.Meta["status"].(string); ok && status != "ok" {
		span.SetStatus(codes.Error, status)
	}
	span.End(trace.WithTimestamp(end))
}

func (o *OTelEmitter) endRun(event Event) {
	o.mu.Lock()
	rs, ok := o.runs[event.RunID]
	delete(o.runs, event.RunID)
	o.mu.Unlock()
	if !ok {
		return
	}

	if completed, ok := event.Meta["completed"].(bool); ok {
		rs.span.SetAttributes(attribute.Bool("lexgraph.completed", completed))
		if !completed {
			rs.span.SetStatus(codes.Error, "run did not reach the terminal marker")
		}
	}
	rs.span.End(trace.WithTimestamp(eventTime(event)))
}

func (o *OTelEmitter) run(runID string) (runSpan, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rs, ok := o.runs[runID]
	return rs, ok
}

func (o *OTelEmitter) attributes(event Event) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("lexgraph.run_id", event.RunID),
	}
	if event.Step != "" {
		attrs = append(attrs,
			attribute.String("lexgraph.step", event.Step),
			attribute.Int("lexgraph.seq", event.Seq),
		)
	}
	for key, value := range event.Meta {
		attrKey := "lexgraph." + key
		switch v := value.(type) {
		case string:
			attrs = append(attrs, attribute.String(attrKey, v))
		case int:
			attrs = append(attrs, attribute.Int(attrKey, v))
		case int64:
			attrs = append(attrs, attribute.Int64(attrKey, v))
		case float64:
			attrs = append(attrs, attribute.Float64(attrKey, v))
		case bool:
			attrs = append(attrs, attribute.Bool(attrKey, v))
		default:
			attrs = append(attrs, attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
	return attrs
}

// Flush ends any run spans still open and calls the flush function given to
// NewOTelEmitter.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	o.mu.Lock()
	for id, rs := range o.runs {
		rs.span.End()
		delete(o.runs, id)
	}
	o.mu.Unlock()

	if o.flush == nil {
		return nil
	}
	return o.flush(ctx)
}

func eventTime(event Event) time.Time {
	if event.Time.IsZero() {
		return time.Now()
	}
	return event.Time
}
