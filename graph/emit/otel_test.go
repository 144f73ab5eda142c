package emit

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T) (*tracetest.InMemoryExporter, *OTelEmitter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, NewOTelEmitter(tp.Tracer("test"), tp.ForceFlush)
}

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

func TestOTelEmitter_RunWithSteps(t *testing.T) {
	exporter, emitter := newTestTracer(t)
	start := time.Now()

	emitter.Emit(Event{RunID: "run-001", Msg: MsgRunStart, Time: start})
	emitter.Emit(Event{
		RunID: "run-001", Seq: 1, Step: "router", Msg: MsgStepEnd,
		Time: start.Add(50 * time.Millisecond),
		Meta: map[string]interface{}{"duration_ms": int64(40), "status": "ok"},
	})
	emitter.Emit(Event{
		RunID: "run-001", Msg: MsgRoute,
		Meta: map[string]interface{}{"labels": "case_law"},
	})
	emitter.Emit(Event{
		RunID: "run-001", Msg: MsgRunEnd, Time: start.Add(100 * time.Millisecond),
		Meta: map[string]interface{}{"completed": true},
	})

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}

	step, run := spans[0], spans[1]
	if step.Name != "router" {
		t.Errorf("step span name = %q, want router", step.Name)
	}
	if run.Name != "lexgraph.run" {
		t.Errorf("run span name = %q, want lexgraph.run", run.Name)
	}
	if step.Parent.SpanID() != run.SpanContext.SpanID() {
		t.Error("step span is not a child of the run span")
	}
	if got := step.EndTime.Sub(step.StartTime); got != 40*time.Millisecond {
		t.Errorf("step span duration = %v, want 40ms", got)
	}

	stepAttrs := attributeMap(step.Attributes)
	if stepAttrs["lexgraph.run_id"] != "run-001" {
		t.Errorf("run_id = %v", stepAttrs["lexgraph.run_id"])
	}
	if stepAttrs["lexgraph.seq"] != int64(1) {
		t.Errorf("seq = %v", stepAttrs["lexgraph.seq"])
	}

	runAttrs := attributeMap(run.Attributes)
	if runAttrs["lexgraph.route.labels"] != "case_law" {
		t.Errorf("route labels = %v", runAttrs["lexgraph.route.labels"])
	}
	if runAttrs["lexgraph.completed"] != true {
		t.Errorf("completed = %v", runAttrs["lexgraph.completed"])
	}
}

func TestOTelEmitter_FailuresMarkSpans(t *testing.T) {
	exporter, emitter := newTestTracer(t)

	emitter.Emit(Event{RunID: "r", Msg: MsgRunStart})
	emitter.Emit(Event{
		RunID: "r", Seq: 1, Step: "synthesizer", Msg: MsgStepPanic,
		Meta: map[string]interface{}{"error": "boom"},
	})
	emitter.Emit(Event{
		RunID: "r", Seq: 1, Step: "synthesizer", Msg: MsgStepEnd,
		Meta: map[string]interface{}{"duration_ms": int64(1), "status": "panic"},
	})
	emitter.Emit(Event{RunID: "r", Msg: MsgRunEnd, Meta: map[string]interface{}{"completed": false}})

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("step span status = %v, want Error", spans[0].Status.Code)
	}
	if spans[1].Status.Code != codes.Error {
		t.Errorf("run span status = %v, want Error", spans[1].Status.Code)
	}
	if len(spans[1].Events) != 1 || spans[1].Events[0].Name != MsgStepPanic {
		t.Errorf("expected step_panic span event on run span, got %+v", spans[1].Events)
	}
}

func TestOTelEmitter_FlushUsesGivenProvider(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(time.Hour)))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	flushed := 0
	emitter := NewOTelEmitter(tp.Tracer("test"), func(ctx context.Context) error {
		flushed++
		return tp.ForceFlush(ctx)
	})

	emitter.Emit(Event{RunID: "r1", Msg: MsgRunStart})
	emitter.Emit(Event{RunID: "r1", Msg: MsgRunEnd, Meta: map[string]interface{}{"completed": true}})
	if len(exporter.GetSpans()) != 0 {
		t.Fatal("batched span exported before Flush")
	}

	if err := emitter.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if flushed != 1 {
		t.Errorf("flush called %d times, want 1", flushed)
	}
	if len(exporter.GetSpans()) != 1 {
		t.Errorf("expected the batched run span after Flush, got %d spans", len(exporter.GetSpans()))
	}

	if err := NewOTelEmitter(tp.Tracer("test"), nil).Flush(context.Background()); err != nil {
		t.Errorf("Flush without a flush func: %v", err)
	}
}

func TestOTelEmitter_FlushEndsOpenRuns(t *testing.T) {
	exporter, emitter := newTestTracer(t)

	emitter.Emit(Event{RunID: "dangling", Msg: MsgRunStart})
	if len(exporter.GetSpans()) != 0 {
		t.Fatal("run span exported before it ended")
	}

	if err := emitter.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if len(exporter.GetSpans()) != 1 {
		t.Errorf("expected dangling run span to be ended by Flush, got %d spans", len(exporter.GetSpans()))
	}
}
