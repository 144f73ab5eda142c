package graph

import (
	"slices"

	"github.com/dshills/lexgraph/graph/store"
)

// RoutingDecision is the router step's verdict on which specialist to consult.
//
// A non-empty Err marks the decision as an error marker: the router could not
// obtain or parse a decision, and the flags must be ignored.
type RoutingDecision struct {
	GotoArticleSearch     bool   `json:"route_to_article_search"`
	GotoCaseLaw           bool   `json:"route_to_case_law"`
	GotoHistoricalContext bool   `json:"route_to_historical_context"`
	Reasoning             string `json:"reasoning"`
	Err                   string `json:"error,omitempty"`
}

// IsError reports whether the decision is an error marker.
func (d *RoutingDecision) IsError() bool {
	return d != nil && d.Err != ""
}

// ErrorDecision builds an error-marker decision carrying reason.
func ErrorDecision(reason string) *RoutingDecision {
	if reason == "" {
		reason = "unknown routing failure"
	}
	return &RoutingDecision{Err: reason}
}

// State is the record threaded through every step of one run.
//
// Every field except Query and Retriever has exactly one writer step
// (see StepID.Owns). List fields are never nil once the Executor has seen the
// state; the synthesizer can always range over them.
type State struct {
	// Query is the user's question. Set at run start, never changed.
	Query string `json:"query"`

	RelevantArticles  []string `json:"relevant_articles"`
	RelevantCases     []string `json:"relevant_cases"`
	HistoricalContext []string `json:"historical_context"`

	// RoutingDecision is nil until the router step has run.
	RoutingDecision *RoutingDecision `json:"routing_decision,omitempty"`

	FinalAnswer string `json:"final_answer"`

	// Retriever is injected by the caller and only read by steps.
	Retriever store.Retriever `json:"-"`
}

// NewState returns a normalized state for query using retriever.
func NewState(query string, retriever store.Retriever) State {
	s := State{Query: query, Retriever: retriever}
	s.normalize()
	return s
}

// Clone returns a copy of s that shares no mutable memory with it.
// The Retriever handle is shared, not copied.
func (s State) Clone() State {
	out := s
	out.RelevantArticles = slices.Clone(s.RelevantArticles)
	out.RelevantCases = slices.Clone(s.RelevantCases)
	out.HistoricalContext = slices.Clone(s.HistoricalContext)
	if s.RoutingDecision != nil {
		d := *s.RoutingDecision
		out.RoutingDecision = &d
	}
	out.normalize()
	return out
}

// normalize replaces nil list fields with empty slices.
func (s *State) normalize() {
	if s.RelevantArticles == nil {
		s.RelevantArticles = []string{}
	}
	if s.RelevantCases == nil {
		s.RelevantCases = []string{}
	}
	if s.HistoricalContext == nil {
		s.HistoricalContext = []string{}
	}
}

// merge copies the field owned by step from out into prev and returns the
// result. Fields the step does not own are left exactly as they were.
func merge(prev, out State, step StepID) State {
	next := prev
	switch step.Owns() {
	case FieldRoutingDecision:
		if out.RoutingDecision != nil {
			d := *out.RoutingDecision
			next.RoutingDecision = &d
		} else {
			next.RoutingDecision = nil
		}
	case FieldRelevantArticles:
		next.RelevantArticles = slices.Clone(out.RelevantArticles)
	case FieldRelevantCases:
		next.RelevantCases = slices.Clone(out.RelevantCases)
	case FieldHistoricalContext:
		next.HistoricalContext = slices.Clone(out.HistoricalContext)
	case FieldFinalAnswer:
		next.FinalAnswer = out.FinalAnswer
	}
	next.normalize()
	return next
}
