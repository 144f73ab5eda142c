// Package qa implements the steps of the constitutional question-answering
// workflow and wires them into a graph.
package qa

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/lexgraph/graph"
	"github.com/dshills/lexgraph/graph/ctxlog"
	"github.com/dshills/lexgraph/graph/model"
)

// Router asks the model which specialists should handle the query and
// writes the answer to State.RoutingDecision.
//
// A failed call or an unparseable reply becomes an error-marker decision,
// which the conditional router treats as "go straight to the synthesizer".
type Router struct {
	Model model.ChatModel
}

// Run implements graph.Step.
func (r *Router) Run(ctx context.Context, s graph.State) graph.State {
	d, err := r.decide(ctx, s.Query)
	if err != nil {
		graph.RecordFailure(ctx, &graph.CollaboratorError{Step: graph.StepRouter, Op: "generate", Err: err})
		s.RoutingDecision = graph.ErrorDecision(err.Error())
		return s
	}

	ctxlog.FromContext(ctx).Debug("routing decided",
		"article_search", d.GotoArticleSearch,
		"case_law", d.GotoCaseLaw,
		"historical_context", d.GotoHistoricalContext,
		"reasoning", d.Reasoning)
	s.RoutingDecision = d
	return s
}

func (r *Router) decide(ctx context.Context, query string) (*graph.RoutingDecision, error) {
	if r.Model == nil {
		return nil, fmt.Errorf("router: %w", errNoModel)
	}
	out, err := r.Model.Chat(ctx, []model.Message{model.UserMessage(routerPrompt(query))}, RoutingSchema)
	if err != nil {
		return nil, err
	}
	return ParseDecision(out.Text)
}

// ParseDecision decodes a routing reply. Surrounding prose and code fences
// are ignored; the outermost JSON object is decoded. All four schema fields
// must be present and non-null. Unknown keys are ignored.
func ParseDecision(text string) (*graph.RoutingDecision, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil, model.ErrNoContent
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("routing reply is not a JSON object: %q", truncate(raw, 80))
	}

	var reply struct {
		ArticleSearch     *bool   `json:"route_to_article_search"`
		CaseLaw           *bool   `json:"route_to_case_law"`
		HistoricalContext *bool   `json:"route_to_historical_context"`
		Reasoning         *string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &reply); err != nil {
		return nil, fmt.Errorf("parse routing reply: %w", err)
	}
	for _, f := range []struct {
		name string
		set  bool
	}{
		{"route_to_article_search", reply.ArticleSearch != nil},
		{"route_to_case_law", reply.CaseLaw != nil},
		{"route_to_historical_context", reply.HistoricalContext != nil},
		{"reasoning", reply.Reasoning != nil},
	} {
		if !f.set {
			return nil, fmt.Errorf("routing reply is missing %q", f.name)
		}
	}

	return &graph.RoutingDecision{
		GotoArticleSearch:     *reply.ArticleSearch,
		GotoCaseLaw:           *reply.CaseLaw,
		GotoHistoricalContext: *reply.HistoricalContext,
		Reasoning:             *reply.Reasoning,
	}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
