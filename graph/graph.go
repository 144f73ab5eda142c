package graph

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Builder collects steps and transitions and validates them into a Graph.
//
// The first error returned by an Add call is remembered and returned again
// by Build, so construction code may ignore individual Add errors and check
// once at the end.
//
// Example:
//
//	b := NewBuilder()
//	b.AddStep(StepRouter, router)
//	b.AddStep(StepCaseLaw, caseLaw)
//	b.AddStep(StepSynthesizer, synth)
//	b.AddConditional(StepRouter, DecisionRouter{}, map[Label]StepID{...})
//	b.AddEdge(StepCaseLaw, StepSynthesizer)
//	b.AddEdge(StepSynthesizer, End)
//	b.SetEntry(StepRouter)
//	g, err := b.Build()
type Builder struct {
	steps    map[StepID]Step
	edges    [][2]StepID
	entry    StepID
	condFrom StepID
	router   ConditionalRouter
	branches map[Label]StepID
	err      error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{steps: make(map[StepID]Step)}
}

func (b *Builder) fail(err *GraphConfigError) error {
	if b.err == nil {
		b.err = err
	}
	return err
}

// AddStep declares a step. The id must be one of the closed StepID values.
func (b *Builder) AddStep(id StepID, step Step) error {
	if !id.Valid() {
		return b.fail(configErr(CodeInvalidStep, id, "unknown step identity"))
	}
	if step == nil {
		return b.fail(configErr(CodeInvalidStep, id, "step cannot be nil"))
	}
	if _, exists := b.steps[id]; exists {
		return b.fail(configErr(CodeDuplicateStep, id, "step declared twice"))
	}
	b.steps[id] = step
	return nil
}

// AddEdge adds an unconditional transition. The target may be End.
// Endpoints are checked in Build, so steps may be declared in any order.
func (b *Builder) AddEdge(from, to StepID) error {
	if from == "" || to == "" {
		return b.fail(configErr(CodeUndeclaredStep, from, "edge endpoints cannot be empty"))
	}
	b.edges = append(b.edges, [2]StepID{from, to})
	return nil
}

// AddConditional makes from the graph's conditional step. After it runs,
// router picks a label and the Executor follows branches[label].
func (b *Builder) AddConditional(from StepID, router ConditionalRouter, branches map[Label]StepID) error {
	if b.router != nil {
		return b.fail(configErr(CodeDuplicateConditional, from, "graph already has conditional step "+string(b.condFrom)))
	}
	if router == nil {
		return b.fail(configErr(CodeNoConditional, from, "conditional router cannot be nil"))
	}
	b.condFrom = from
	b.router = router
	b.branches = make(map[Label]StepID, len(branches))
	for l, to := range branches {
		b.branches[l] = to
	}
	return nil
}

// SetEntry designates the first step of every run.
func (b *Builder) SetEntry(id StepID) {
	b.entry = id
}

// Build validates the collected topology and returns an immutable Graph.
// Every failure is a *GraphConfigError.
func (b *Builder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}

	declared := func(id StepID) bool {
		_, ok := b.steps[id]
		return ok
	}

	if b.entry == "" || !declared(b.entry) {
		return nil, configErr(CodeUndeclaredEntry, b.entry, "entry step is not declared")
	}
	if b.router == nil {
		return nil, configErr(CodeNoConditional, "", "graph has no conditional step")
	}
	if !declared(b.condFrom) {
		return nil, configErr(CodeUndeclaredStep, b.condFrom, "conditional step is not declared")
	}

	g := &Graph{
		entry:       b.entry,
		steps:       make(map[StepID]Step, len(b.steps)),
		successors:  make(map[StepID][]StepID),
		conditional: b.condFrom,
		router:      b.router,
		branches:    make(map[Label]StepID, len(b.branches)),
	}
	for id, s := range b.steps {
		g.steps[id] = s
	}

	for _, e := range b.edges {
		from, to := e[0], e[1]
		if !declared(from) {
			return nil, configErr(CodeUndeclaredStep, from, "edge source is not declared")
		}
		if to != End && !declared(to) {
			return nil, configErr(CodeUndeclaredStep, to, "edge target is not declared")
		}
		if from == b.condFrom {
			return nil, configErr(CodeStaticFromConditional, from, "conditional step cannot have static edges")
		}
		if !slices.Contains(g.successors[from], to) {
			g.successors[from] = append(g.successors[from], to)
		}
	}

	if err := b.checkLabels(); err != nil {
		return nil, err
	}
	for l, to := range b.branches {
		if !declared(to) {
			return nil, configErr(CodeUndeclaredStep, to, fmt.Sprintf("branch %q target is not declared", l))
		}
		g.branches[l] = to
	}

	if id, ok := g.findCycle(); ok {
		return nil, configErr(CodeCycle, id, fmt.Sprintf("cycle detected involving step '%s'", id))
	}

	reached := g.reachableFrom(g.entry)
	for _, id := range Steps {
		if declared(id) && !reached[id] {
			return nil, configErr(CodeUnreachable, id, "step is not reachable from entry "+string(g.entry))
		}
	}

	ends := g.reachesEnd()
	for _, id := range Steps {
		if declared(id) && !ends[id] {
			return nil, configErr(CodeDeadEnd, id, "step has no path to the terminal marker")
		}
	}

	g.order, g.layer = g.layout()
	return g, nil
}

// checkLabels verifies that the branch labels and the router's labels are
// the same set and that the set contains the synthesize fallback.
func (b *Builder) checkLabels() error {
	routerLabels := b.router.Labels()
	if !slices.Contains(routerLabels, LabelSynthesize) {
		return configErr(CodeMissingFallback, b.condFrom, "router cannot produce the synthesize label")
	}
	if _, ok := b.branches[LabelSynthesize]; !ok {
		return configErr(CodeMissingFallback, b.condFrom, "no branch for the synthesize label")
	}

	want := make(map[Label]bool, len(routerLabels))
	for _, l := range routerLabels {
		if !l.Valid() {
			return configErr(CodeLabelMismatch, b.condFrom, fmt.Sprintf("router produces unknown label %q", l))
		}
		want[l] = true
	}

	var missing, extra []string
	for l := range want {
		if _, ok := b.branches[l]; !ok {
			missing = append(missing, string(l))
		}
	}
	for l := range b.branches {
		if !want[l] {
			extra = append(extra, string(l))
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}

	sort.Strings(missing)
	sort.Strings(extra)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing branches for "+strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		parts = append(parts, "branches for labels the router never produces: "+strings.Join(extra, ", "))
	}
	return configErr(CodeLabelMismatch, b.condFrom, strings.Join(parts, "; "))
}

// Graph is an immutable, validated workflow topology. It is safe for
// concurrent use by any number of runs.
type Graph struct {
	entry       StepID
	steps       map[StepID]Step
	successors  map[StepID][]StepID
	conditional StepID
	router      ConditionalRouter
	branches    map[Label]StepID

	// order is a topological order of the declared steps.
	order []StepID
	// layer is each step's longest distance from the entry.
	layer map[StepID]int
}

// Entry returns the first step of every run.
func (g *Graph) Entry() StepID { return g.entry }

// Conditional returns the conditional step and its router.
func (g *Graph) Conditional() (StepID, ConditionalRouter) {
	return g.conditional, g.router
}

// Step returns the implementation registered for id.
func (g *Graph) Step(id StepID) (Step, bool) {
	s, ok := g.steps[id]
	return s, ok
}

// Successors returns the static successors of id, possibly including End.
func (g *Graph) Successors(id StepID) []StepID {
	return slices.Clone(g.successors[id])
}

// Branch returns the target of label on the conditional step.
func (g *Graph) Branch(id StepID, label Label) (StepID, bool) {
	if id != g.conditional {
		return "", false
	}
	to, ok := g.branches[label]
	return to, ok
}

// Order returns the declared steps in the order the Executor considers them.
func (g *Graph) Order() []StepID {
	return slices.Clone(g.order)
}

// Layer returns the longest path length from the entry to id.
// Steps on the same layer never depend on each other.
func (g *Graph) Layer(id StepID) int {
	return g.layer[id]
}

// next returns every possible successor of id, static or conditional, in
// canonical step order.
func (g *Graph) next(id StepID) []StepID {
	out := slices.Clone(g.successors[id])
	if id == g.conditional {
		for _, l := range Labels {
			if to, ok := g.branches[l]; ok && !slices.Contains(out, to) {
				out = append(out, to)
			}
		}
	}
	return out
}

// findCycle runs a depth-first search with visiting/visited marks and returns
// a step on the first back edge it finds.
func (g *Graph) findCycle() (StepID, bool) {
	const (
		unvisited = iota
		visiting
		visited
	)
	marks := make(map[StepID]int, len(g.steps))

	var visit func(id StepID) (StepID, bool)
	visit = func(id StepID) (StepID, bool) {
		marks[id] = visiting
		for _, to := range g.next(id) {
			if to == End {
				continue
			}
			switch marks[to] {
			case visiting:
				return to, true
			case unvisited:
				if c, ok := visit(to); ok {
					return c, true
				}
			}
		}
		marks[id] = visited
		return "", false
	}

	for _, id := range Steps {
		if _, ok := g.steps[id]; !ok || marks[id] != unvisited {
			continue
		}
		if c, ok := visit(id); ok {
			return c, true
		}
	}
	return "", false
}

func (g *Graph) reachableFrom(start StepID) map[StepID]bool {
	seen := map[StepID]bool{start: true}
	stack := []StepID{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, to := range g.next(id) {
			if !seen[to] {
				seen[to] = true
				stack = append(stack, to)
			}
		}
	}
	return seen
}

// reachesEnd reports, per step, whether some path leads to End.
// The graph is acyclic at this point, so a memoized walk terminates.
func (g *Graph) reachesEnd() map[StepID]bool {
	memo := make(map[StepID]bool, len(g.steps))
	done := make(map[StepID]bool, len(g.steps))

	var walk func(id StepID) bool
	walk = func(id StepID) bool {
		if id == End {
			return true
		}
		if done[id] {
			return memo[id]
		}
		ok := false
		for _, to := range g.next(id) {
			if walk(to) {
				ok = true
			}
		}
		done[id] = true
		memo[id] = ok
		return ok
	}

	for id := range g.steps {
		walk(id)
	}
	return memo
}

// layout computes a deterministic topological order and the layer of every
// step. Ties are broken by canonical step order.
func (g *Graph) layout() ([]StepID, map[StepID]int) {
	indegree := make(map[StepID]int, len(g.steps))
	for id := range g.steps {
		for _, to := range g.next(id) {
			if to != End {
				indegree[to]++
			}
		}
	}

	layer := make(map[StepID]int, len(g.steps))
	var order []StepID
	for len(order) < len(g.steps) {
		progressed := false
		for _, id := range Steps {
			if _, ok := g.steps[id]; !ok || indegree[id] != 0 || slices.Contains(order, id) {
				continue
			}
			order = append(order, id)
			progressed = true
			for _, to := range g.next(id) {
				if to == End {
					continue
				}
				indegree[to]--
				if layer[id]+1 > layer[to] {
					layer[to] = layer[id] + 1
				}
			}
		}
		if !progressed {
			break
		}
	}

	sort.SliceStable(order, func(i, j int) bool { return layer[order[i]] < layer[order[j]] })
	return order, layer
}
