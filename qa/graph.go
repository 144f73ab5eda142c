package qa

import (
	"context"
	"fmt"
	"iter"

	"github.com/dshills/lexgraph/graph"
	"github.com/dshills/lexgraph/graph/model"
	"github.com/dshills/lexgraph/graph/store"
)

// Deps are the collaborators the workflow steps use.
type Deps struct {
	// Model serves both the router and the synthesizer.
	Model model.ChatModel

	// TopK is the number of passages retrieved per query. Zero means
	// DefaultTopK.
	TopK int
}

// NewGraph builds the standard workflow:
//
//	router -?-> article_search | case_law | historical_context | synthesizer
//	article_search, case_law, historical_context -> synthesizer
//	synthesizer -> end
func NewGraph(deps Deps) (*graph.Graph, error) {
	b := graph.NewBuilder()
	steps := map[graph.StepID]graph.Step{
		graph.StepRouter:            &Router{Model: deps.Model},
		graph.StepArticleSearch:     ArticleSearch{K: deps.TopK},
		graph.StepCaseLaw:           CaseLaw{},
		graph.StepHistoricalContext: HistoricalContext{},
		graph.StepSynthesizer:       &Synthesizer{Model: deps.Model},
	}
	for _, id := range graph.Steps {
		if err := b.AddStep(id, steps[id]); err != nil {
			return nil, err
		}
	}

	if err := b.AddConditional(graph.StepRouter, graph.DecisionRouter{}, map[graph.Label]graph.StepID{
		graph.LabelArticleSearch:     graph.StepArticleSearch,
		graph.LabelCaseLaw:           graph.StepCaseLaw,
		graph.LabelHistoricalContext: graph.StepHistoricalContext,
		graph.LabelSynthesize:        graph.StepSynthesizer,
	}); err != nil {
		return nil, err
	}
	for _, from := range []graph.StepID{graph.StepArticleSearch, graph.StepCaseLaw, graph.StepHistoricalContext} {
		if err := b.AddEdge(from, graph.StepSynthesizer); err != nil {
			return nil, err
		}
	}
	if err := b.AddEdge(graph.StepSynthesizer, graph.End); err != nil {
		return nil, err
	}
	b.SetEntry(graph.StepRouter)

	return b.Build()
}

// Assistant answers questions with a fixed executor and retriever.
type Assistant struct {
	exec      *graph.Executor
	retriever store.Retriever
}

// NewAssistant builds the workflow graph for deps and an executor over it.
func NewAssistant(deps Deps, retriever store.Retriever, opts ...graph.Option) (*Assistant, error) {
	g, err := NewGraph(deps)
	if err != nil {
		return nil, fmt.Errorf("build workflow: %w", err)
	}
	exec, err := graph.NewExecutor(g, opts...)
	if err != nil {
		return nil, fmt.Errorf("create executor: %w", err)
	}
	return &Assistant{exec: exec, retriever: retriever}, nil
}

// Ask runs one query to completion.
func (a *Assistant) Ask(ctx context.Context, query string) *graph.Result {
	return a.exec.Run(ctx, graph.NewState(query, a.retriever))
}

// Stream runs one query, yielding each snapshot as it is produced.
func (a *Assistant) Stream(ctx context.Context, query string) iter.Seq[graph.Snapshot] {
	return a.exec.Stream(ctx, graph.NewState(query, a.retriever))
}
