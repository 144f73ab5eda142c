package graph

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/lexgraph/graph/ctxlog"
	"github.com/dshills/lexgraph/graph/emit"
	"github.com/dshills/lexgraph/graph/model"
)

// NoAnswer is the answer reported when a run produced no final answer.
const NoAnswer = "No answer could be generated."

// Run outcomes reported in run_end events and metrics.
const (
	OutcomeCompleted  = "completed"
	OutcomeIncomplete = "incomplete"
	OutcomeCancelled  = "cancelled"
	OutcomeAbandoned  = "abandoned"
)

// Routing fallback reasons.
const (
	FallbackNoDecision   = "no_decision"
	FallbackErrorMarker  = "error_marker"
	FallbackNoFlags      = "no_flags"
	FallbackUnknownLabel = "unknown_label"
	FallbackRouterPanic  = "router_panic"
)

// Snapshot is the observable state of a run after one step.
//
// State is a private copy; observers may keep or modify it freely.
type Snapshot struct {
	RunID string

	// Seq is the 1-based position of the step in the run. The final
	// snapshot carries the next number.
	Seq int

	// Step is the step that just ran, or End for the final snapshot.
	Step StepID

	// Routes holds the labels followed after the conditional step. It is
	// empty for every other step.
	Routes []Label

	State State

	// Elapsed is the time since the run started.
	Elapsed time.Duration

	// Final marks the last snapshot of the run.
	Final bool

	// Completed is set on the final snapshot when the run reached End.
	Completed bool
}

// Result is a drained run.
type Result struct {
	RunID     string
	Snapshots []Snapshot
	Final     State

	// Path lists the executed steps in execution order.
	Path []StepID

	// Completed reports whether the run reached the terminal marker.
	Completed bool
}

// FinalAnswer returns the run's answer, or NoAnswer when the run did not
// complete or the answer is empty.
func (r *Result) FinalAnswer() string {
	if r == nil || !r.Completed || r.Final.FinalAnswer == "" {
		return NoAnswer
	}
	return r.Final.FinalAnswer
}

// Executor runs a Graph against a State.
//
// An Executor holds no per-run state and is safe for concurrent use; each
// call to Stream or Run is an independent run with its own id.
//
// Traversal follows the graph's topological order over the set of activated
// steps. The entry is active at the start. After a step runs its static
// successors are activated; after the conditional step the router is
// evaluated once and its branch target is activated. A step with several
// activated predecessors runs once, after all of them.
//
// Example:
//
//	exec, err := graph.NewExecutor(g, graph.WithStepTimeout(30*time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for snap := range exec.Stream(ctx, graph.NewState("What is Article 21?", st)) {
//	    fmt.Println(snap.Step, snap.Elapsed)
//	}
type Executor struct {
	g   *Graph
	cfg executorConfig
}

// NewExecutor returns an Executor for g configured by opts.
func NewExecutor(g *Graph, opts ...Option) (*Executor, error) {
	if g == nil {
		return nil, ErrNilGraph
	}

	cfg := executorConfig{emitter: emit.NewNullEmitter()}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	return &Executor{g: g, cfg: cfg}, nil
}

// Graph returns the graph the Executor runs.
func (e *Executor) Graph() *Graph {
	return e.g
}

// Run executes one run to the end and collects its snapshots.
func (e *Executor) Run(ctx context.Context, initial State) *Result {
	res := &Result{}
	for snap := range e.Stream(ctx, initial) {
		res.RunID = snap.RunID
		res.Snapshots = append(res.Snapshots, snap)
		if snap.Final {
			res.Final = snap.State
			res.Completed = snap.Completed
			continue
		}
		res.Path = append(res.Path, snap.Step)
	}
	return res
}

// Stream returns the snapshots of a new run. The run starts when iteration
// starts and every iteration is a fresh run. Stopping the iteration early
// abandons the run before its next step.
func (e *Executor) Stream(ctx context.Context, initial State) iter.Seq[Snapshot] {
	return func(yield func(Snapshot) bool) {
		e.execute(ctx, initial, yield)
	}
}

// run is the mutable bookkeeping of one execution.
type run struct {
	id      string
	start   time.Time
	state   State
	query   string
	active  map[StepID]bool
	ended   bool
	seq     int
	logger  *slog.Logger
	stopped string
}

func (e *Executor) execute(ctx context.Context, initial State, yield func(Snapshot) bool) {
	if e.cfg.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.runTimeout)
		defer cancel()
	}

	r := &run{
		id:     uuid.NewString(),
		start:  time.Now(),
		state:  initial.Clone(),
		query:  initial.Query,
		active: map[StepID]bool{e.g.entry: true},
	}

	logger := e.cfg.logger
	if logger == nil {
		logger = ctxlog.FromContext(ctx)
	}
	r.logger = logger.With("run_id", r.id)
	ctx = ctxlog.WithLogger(ctx, r.logger)

	e.cfg.metrics.RunStarted()
	e.emit(r, 0, "", emit.MsgRunStart, nil)
	r.logger.Debug("run started", "query_len", len(r.query))

	for _, group := range e.layers() {
		var ready []StepID
		for _, id := range group {
			if r.active[id] {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			continue
		}

		var ok bool
		if e.cfg.fanOut > 0 && len(ready) > 1 {
			ok = e.runConcurrent(ctx, r, ready, yield)
		} else {
			ok = e.runSequential(ctx, r, ready, yield)
		}
		if !ok {
			break
		}
	}

	completed := r.ended && r.stopped == ""
	outcome := OutcomeCompleted
	switch {
	case r.stopped != "":
		outcome = r.stopped
	case !completed:
		outcome = OutcomeIncomplete
	}

	e.cfg.metrics.RunFinished(outcome)
	e.emit(r, 0, "", emit.MsgRunEnd, map[string]interface{}{
		"completed":   completed,
		"outcome":     outcome,
		"duration_ms": time.Since(r.start).Milliseconds(),
	})
	r.logger.Debug("run finished", "outcome", outcome)

	if r.stopped == OutcomeAbandoned {
		return
	}
	yield(Snapshot{
		RunID:     r.id,
		Seq:       r.seq + 1,
		Step:      End,
		State:     r.state.Clone(),
		Elapsed:   time.Since(r.start),
		Final:     true,
		Completed: completed,
	})
}

// layers groups the topological order by layer.
func (e *Executor) layers() [][]StepID {
	var out [][]StepID
	current := -1
	for _, id := range e.g.order {
		l := e.g.layer[id]
		if l != current {
			out = append(out, nil)
			current = l
		}
		out[len(out)-1] = append(out[len(out)-1], id)
	}
	return out
}

// runSequential executes ids one after another. It returns false when the
// run must stop.
func (e *Executor) runSequential(ctx context.Context, r *run, ids []StepID, yield func(Snapshot) bool) bool {
	for _, id := range ids {
		if ctx.Err() != nil {
			r.stopped = OutcomeCancelled
			return false
		}
		r.seq++
		seq := r.seq
		out := e.invoke(ctx, r, seq, id, r.state)
		if !e.commit(r, seq, id, out, yield) {
			return false
		}
	}
	return true
}

// runConcurrent executes ids in parallel on private copies of the state and
// commits their results in canonical order.
func (e *Executor) runConcurrent(ctx context.Context, r *run, ids []StepID, yield func(Snapshot) bool) bool {
	if ctx.Err() != nil {
		r.stopped = OutcomeCancelled
		return false
	}

	base := r.state.Clone()
	outs := make([]stepOutcome, len(ids))
	seqs := make([]int, len(ids))
	for i := range ids {
		r.seq++
		seqs[i] = r.seq
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.fanOut)
	for i, id := range ids {
		g.Go(func() error {
			outs[i] = e.invoke(gctx, r, seqs[i], id, base.Clone())
			return nil
		})
	}
	_ = g.Wait()

	for i, id := range ids {
		if !e.commit(r, seqs[i], id, outs[i], yield) {
			return false
		}
	}
	return true
}

// invoke runs one step with its scope, logger and deadline, and reports the
// start and end events.
func (e *Executor) invoke(ctx context.Context, r *run, seq int, id StepID, in State) stepOutcome {
	step := e.g.steps[id]

	stepCtx := withScope(ctx, &stepScope{
		runID:   r.id,
		seq:     seq,
		step:    id,
		emitter: e.cfg.emitter,
		metrics: e.cfg.metrics,
	})
	stepCtx = ctxlog.With(stepCtx, "step", string(id))
	stepCtx = model.WithCaller(stepCtx, string(id))

	e.emit(r, seq, id, emit.MsgStepStart, nil)
	out := executeStepWithTimeout(stepCtx, step, in, e.cfg.stepTimeout)

	if out.status == StatusPanic {
		err := panicError(out.panicVal)
		ctxlog.FromContext(stepCtx).Error("step panicked", "error", err, "stack", string(out.stack))
		e.emit(r, seq, id, emit.MsgStepPanic, map[string]interface{}{"error": err.Error()})
	}

	e.cfg.metrics.RecordStepLatency(id, out.duration, out.status)
	e.emit(r, seq, id, emit.MsgStepEnd, map[string]interface{}{
		"status":      out.status,
		"duration_ms": out.duration.Milliseconds(),
	})
	return out
}

// commit merges a step's owned field, activates its successors and yields
// its snapshot. It returns false when the consumer stopped iterating.
func (e *Executor) commit(r *run, seq int, id StepID, out stepOutcome, yield func(Snapshot) bool) bool {
	if out.merged() {
		r.state = merge(r.state, out.state, id)
	}
	r.state.Query = r.query

	for _, to := range e.g.successors[id] {
		if to == End {
			r.ended = true
			continue
		}
		r.active[to] = true
	}

	var routes []Label
	if id == e.g.conditional {
		routes = e.route(r, seq)
		for _, l := range routes {
			r.active[e.g.branches[l]] = true
		}
	}

	snap := Snapshot{
		RunID:   r.id,
		Seq:     seq,
		Step:    id,
		Routes:  routes,
		State:   r.state.Clone(),
		Elapsed: time.Since(r.start),
	}
	if !yield(snap) {
		r.stopped = OutcomeAbandoned
		return false
	}
	return true
}

// route evaluates the conditional router once and returns the labels to
// follow. Every returned label has a branch; the result is never empty.
func (e *Executor) route(r *run, seq int) []Label {
	labels, reason := e.evaluateRouter(r.state)

	var valid []Label
	for _, l := range labels {
		if _, ok := e.g.branches[l]; ok && !slices.Contains(valid, l) {
			valid = append(valid, l)
		}
	}
	if len(valid) == 0 {
		valid = []Label{LabelSynthesize}
		if reason == "" {
			reason = FallbackUnknownLabel
		}
	}

	meta := map[string]interface{}{"labels": labelStrings(valid)}
	if reason != "" {
		meta["fallback"] = reason
		e.cfg.metrics.RecordFallback(reason)
		r.logger.Info("routing fell back to synthesize", "reason", reason)
	}
	e.cfg.metrics.RecordRoute(valid)
	e.emit(r, seq, e.g.conditional, emit.MsgRoute, meta)
	return valid
}

// evaluateRouter calls the router and classifies a fallback to synthesize.
func (e *Executor) evaluateRouter(state State) (labels []Label, reason string) {
	defer func() {
		if v := recover(); v != nil {
			labels, reason = nil, FallbackRouterPanic
		}
	}()

	router := e.g.router
	if mr, ok := router.(MultiRouter); ok && e.cfg.fanOut > 0 {
		labels = mr.RouteAll(state)
	} else {
		labels = []Label{router.Route(state)}
	}

	if len(labels) == 1 && labels[0] == LabelSynthesize {
		d := state.RoutingDecision
		switch {
		case d == nil:
			reason = FallbackNoDecision
		case d.IsError():
			reason = FallbackErrorMarker
		case !d.GotoArticleSearch && !d.GotoCaseLaw && !d.GotoHistoricalContext:
			reason = FallbackNoFlags
		}
	}
	return labels, reason
}

func (e *Executor) emit(r *run, seq int, step StepID, msg string, meta map[string]interface{}) {
	e.cfg.emitter.Emit(emit.Event{
		RunID: r.id,
		Seq:   seq,
		Step:  string(step),
		Msg:   msg,
		Time:  time.Now(),
		Meta:  meta,
	})
}

func labelStrings(labels []Label) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = string(l)
	}
	return out
}

// String renders a snapshot for progress display.
func (s Snapshot) String() string {
	if s.Final {
		return fmt.Sprintf("#%d %s completed=%t (%s)", s.Seq, s.Step, s.Completed, s.Elapsed.Round(time.Millisecond))
	}
	if len(s.Routes) > 0 {
		return fmt.Sprintf("#%d %s -> %v (%s)", s.Seq, s.Step, labelStrings(s.Routes), s.Elapsed.Round(time.Millisecond))
	}
	return fmt.Sprintf("#%d %s (%s)", s.Seq, s.Step, s.Elapsed.Round(time.Millisecond))
}
