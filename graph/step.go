package graph

import (
	"context"
	"fmt"
)

// StepID names a step in the workflow graph.
//
// The set of step identities is closed: only the constants declared below are
// accepted by the Builder. Each step owns exactly one State field (see Owns),
// which is how the Executor keeps steps from writing over each other.
type StepID string

const (
	// StepRouter decides which specialist, if any, should run.
	StepRouter StepID = "router"

	// StepArticleSearch retrieves constitutional text for the query.
	StepArticleSearch StepID = "article_search"

	// StepCaseLaw matches the query against landmark judgments.
	StepCaseLaw StepID = "case_law"

	// StepHistoricalContext matches the query against historical facts.
	StepHistoricalContext StepID = "historical_context"

	// StepSynthesizer merges everything gathered into the final answer.
	StepSynthesizer StepID = "synthesizer"

	// End is the terminal marker. Reaching it stops the Executor.
	End StepID = "__end__"
)

// Steps lists every declarable step in canonical order.
var Steps = []StepID{
	StepRouter,
	StepArticleSearch,
	StepCaseLaw,
	StepHistoricalContext,
	StepSynthesizer,
}

// Valid reports whether id is one of the declarable steps.
// End is a marker, not a step, and is not valid here.
func (id StepID) Valid() bool {
	switch id {
	case StepRouter, StepArticleSearch, StepCaseLaw, StepHistoricalContext, StepSynthesizer:
		return true
	}
	return false
}

func (id StepID) String() string { return string(id) }

// Field identifies a single writable State field.
type Field int

const (
	FieldNone Field = iota
	FieldRoutingDecision
	FieldRelevantArticles
	FieldRelevantCases
	FieldHistoricalContext
	FieldFinalAnswer
)

func (f Field) String() string {
	switch f {
	case FieldRoutingDecision:
		return "routing_decision"
	case FieldRelevantArticles:
		return "relevant_articles"
	case FieldRelevantCases:
		return "relevant_cases"
	case FieldHistoricalContext:
		return "historical_context"
	case FieldFinalAnswer:
		return "final_answer"
	}
	return "none"
}

// Owns returns the only State field the step is allowed to write.
func (id StepID) Owns() Field {
	switch id {
	case StepRouter:
		return FieldRoutingDecision
	case StepArticleSearch:
		return FieldRelevantArticles
	case StepCaseLaw:
		return FieldRelevantCases
	case StepHistoricalContext:
		return FieldHistoricalContext
	case StepSynthesizer:
		return FieldFinalAnswer
	}
	return FieldNone
}

// Step is one unit of work in the workflow.
//
// Run receives a private copy of the current state and returns the updated
// state. Only the field owned by the step's StepID is merged back, so a step
// may freely scribble on its copy.
//
// Steps must absorb their own failures: a collaborator error becomes a state
// value (an empty list, an error marker, an error message), never a panic and
// never a returned error. Steps must not retain the state after returning.
type Step interface {
	Run(ctx context.Context, state State) State
}

// StepFunc is a function adapter that implements the Step interface.
//
// Example:
//
//	echo := StepFunc(func(ctx context.Context, s State) State {
//	    s.FinalAnswer = "you asked: " + s.Query
//	    return s
//	})
type StepFunc func(ctx context.Context, state State) State

// Run implements the Step interface for StepFunc.
func (f StepFunc) Run(ctx context.Context, state State) State {
	return f(ctx, state)
}

// CollaboratorError records a failed call to an external collaborator
// (retrieval or generation) made from inside a step.
//
// It never crosses the step boundary; steps log it and convert it to a state
// value. It exists so the failure can be logged and inspected uniformly.
type CollaboratorError struct {
	// Step is the step that made the call.
	Step StepID

	// Op names the collaborator operation, e.g. "search" or "generate".
	Op string

	// Err is the underlying failure.
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Step, e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}
