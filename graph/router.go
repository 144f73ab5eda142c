package graph

// Label is a branch label produced by a ConditionalRouter.
type Label string

const (
	LabelArticleSearch     Label = "article_search"
	LabelCaseLaw           Label = "case_law"
	LabelHistoricalContext Label = "historical_context"
	LabelSynthesize        Label = "synthesize"
)

// Labels lists the closed label enumeration in routing precedence order.
var Labels = []Label{
	LabelArticleSearch,
	LabelCaseLaw,
	LabelHistoricalContext,
	LabelSynthesize,
}

// Valid reports whether l belongs to the closed label enumeration.
func (l Label) Valid() bool {
	switch l {
	case LabelArticleSearch, LabelCaseLaw, LabelHistoricalContext, LabelSynthesize:
		return true
	}
	return false
}

// ConditionalRouter picks the branch to follow after the conditional step.
//
// Route must be pure and total: for any state it returns exactly one label
// from Labels(). The Builder checks at build time that the conditional
// step's branches cover exactly this label set.
type ConditionalRouter interface {
	Labels() []Label
	Route(state State) Label
}

// MultiRouter is implemented by routers that can select several branches at
// once. The Executor only consults RouteAll when fan-out is enabled.
type MultiRouter interface {
	ConditionalRouter
	RouteAll(state State) []Label
}

// DecisionRouter routes on State.RoutingDecision.
//
// Precedence is article_search, then case_law, then historical_context. A nil
// decision, an error marker or a decision with no flag set routes to
// synthesize.
type DecisionRouter struct{}

// Labels implements ConditionalRouter.
func (DecisionRouter) Labels() []Label {
	out := make([]Label, len(Labels))
	copy(out, Labels)
	return out
}

// Route implements ConditionalRouter.
func (r DecisionRouter) Route(state State) Label {
	return r.RouteAll(state)[0]
}

// RouteAll implements MultiRouter. The result is never empty and is ordered
// by precedence.
func (DecisionRouter) RouteAll(state State) []Label {
	d := state.RoutingDecision
	if d == nil || d.IsError() {
		return []Label{LabelSynthesize}
	}

	var out []Label
	if d.GotoArticleSearch {
		out = append(out, LabelArticleSearch)
	}
	if d.GotoCaseLaw {
		out = append(out, LabelCaseLaw)
	}
	if d.GotoHistoricalContext {
		out = append(out, LabelHistoricalContext)
	}
	if len(out) == 0 {
		return []Label{LabelSynthesize}
	}
	return out
}

// RouterFunc adapts a plain function into a ConditionalRouter over the full
// label set. Labels outside the enumeration are treated as synthesize.
type RouterFunc func(state State) Label

// Labels implements ConditionalRouter.
func (f RouterFunc) Labels() []Label {
	return DecisionRouter{}.Labels()
}

// Route implements ConditionalRouter.
func (f RouterFunc) Route(state State) Label {
	l := f(state)
	if !l.Valid() {
		return LabelSynthesize
	}
	return l
}
