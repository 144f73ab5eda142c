package qa

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/dshills/lexgraph/graph"
	"github.com/dshills/lexgraph/graph/emit"
	"github.com/dshills/lexgraph/graph/model"
	"github.com/dshills/lexgraph/graph/store"
)

// scripted answers routing calls with route and echoes the synthesizer
// prompt back so tests can see what context reached it.
func scripted(route string) *model.MockChatModel {
	return &model.MockChatModel{
		Respond: func(messages []model.Message, schema *model.Schema) (model.ChatOut, error) {
			if schema != nil {
				return model.ChatOut{Text: route}, nil
			}
			return model.ChatOut{Text: "Based on the context: " + messages[len(messages)-1].Content}, nil
		},
	}
}

type failingRetriever struct{ calls int }

func (f *failingRetriever) Search(context.Context, string, int) ([]store.Passage, error) {
	f.calls++
	return nil, errors.New("index unavailable")
}

func newAssistant(t *testing.T, m model.ChatModel, r store.Retriever, opts ...graph.Option) *Assistant {
	t.Helper()
	a, err := NewAssistant(Deps{Model: m}, r, opts...)
	if err != nil {
		t.Fatalf("NewAssistant: %v", err)
	}
	return a
}

func TestNewGraph_Topology(t *testing.T) {
	g, err := NewGraph(Deps{Model: &model.MockChatModel{}})
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	if g.Entry() != graph.StepRouter {
		t.Errorf("Entry() = %s", g.Entry())
	}
	for _, l := range graph.Labels {
		if _, ok := g.Branch(graph.StepRouter, l); !ok {
			t.Errorf("no branch for %s", l)
		}
	}
	for _, id := range []graph.StepID{graph.StepArticleSearch, graph.StepCaseLaw, graph.StepHistoricalContext} {
		if got := g.Successors(id); !slices.Equal(got, []graph.StepID{graph.StepSynthesizer}) {
			t.Errorf("Successors(%s) = %v", id, got)
		}
	}
}

func TestScenario_Privacy(t *testing.T) {
	m := scripted(`{"route_to_article_search":false,"route_to_case_law":true,"route_to_historical_context":false,"reasoning":"landmark judgment"}`)
	a := newAssistant(t, m, store.NewMemStore())

	res := a.Ask(context.Background(), "What is the right to privacy?")

	want := []graph.StepID{graph.StepRouter, graph.StepCaseLaw, graph.StepSynthesizer}
	if !slices.Equal(res.Path, want) {
		t.Fatalf("Path = %v, want %v", res.Path, want)
	}
	if !res.Final.RoutingDecision.GotoCaseLaw {
		t.Error("router should have chosen case law")
	}
	if len(res.Final.RelevantCases) != 1 || !strings.Contains(res.Final.RelevantCases[0], "Puttaswamy") {
		t.Errorf("RelevantCases = %v", res.Final.RelevantCases)
	}
	if !strings.Contains(res.FinalAnswer(), "Puttaswamy") {
		t.Errorf("answer does not reference the citation: %q", res.FinalAnswer())
	}
}

func TestScenario_Article370(t *testing.T) {
	m := scripted(`{"route_to_article_search":false,"route_to_case_law":false,"route_to_historical_context":true,"reasoning":"history"}`)
	a := newAssistant(t, m, store.NewMemStore())

	res := a.Ask(context.Background(), "Tell me about Article 370 abrogation")

	if len(res.Final.HistoricalContext) != 1 || !strings.Contains(res.Final.HistoricalContext[0], "August 5, 2019") {
		t.Errorf("HistoricalContext = %v", res.Final.HistoricalContext)
	}
	if res.Final.RelevantArticles == nil || len(res.Final.RelevantArticles) != 0 {
		t.Errorf("RelevantArticles = %#v, want empty", res.Final.RelevantArticles)
	}
	if res.Final.RelevantCases == nil || len(res.Final.RelevantCases) != 0 {
		t.Errorf("RelevantCases = %#v, want empty", res.Final.RelevantCases)
	}
	if slices.Contains(res.Path, graph.StepCaseLaw) || slices.Contains(res.Path, graph.StepArticleSearch) {
		t.Errorf("unexpected specialist in path %v", res.Path)
	}
}

func TestScenario_FailingRetriever(t *testing.T) {
	m := scripted(`{"route_to_article_search":true,"route_to_case_law":false,"route_to_historical_context":false,"reasoning":"text lookup"}`)
	r := &failingRetriever{}
	events := emit.NewBufferedEmitter()
	a := newAssistant(t, m, r, graph.WithEmitter(events))

	res := a.Ask(context.Background(), "What does Article 14 say?")

	if !res.Completed {
		t.Fatal("run did not complete")
	}
	if r.calls != 1 {
		t.Errorf("retriever called %d times", r.calls)
	}
	if res.Final.RelevantArticles == nil || len(res.Final.RelevantArticles) != 0 {
		t.Errorf("RelevantArticles = %#v, want empty", res.Final.RelevantArticles)
	}
	if !strings.Contains(res.FinalAnswer(), "Relevant Articles:\nNone") {
		t.Errorf("synthesizer should see an empty article section: %q", res.FinalAnswer())
	}

	failures := events.GetHistoryWithFilter(res.RunID, emit.HistoryFilter{Msg: emit.MsgCollaboratorError})
	if len(failures) != 1 || failures[0].Step != string(graph.StepArticleSearch) || failures[0].Meta["op"] != "search" {
		t.Errorf("collaborator_error events = %+v", failures)
	}
}

func TestScenario_EveryCollaboratorFails(t *testing.T) {
	m := &model.MockChatModel{Err: errors.New("service down")}
	a := newAssistant(t, m, &failingRetriever{})

	res := a.Ask(context.Background(), "What is the right to privacy?")

	if !res.Final.RoutingDecision.IsError() {
		t.Errorf("RoutingDecision = %+v, want error marker", res.Final.RoutingDecision)
	}
	want := []graph.StepID{graph.StepRouter, graph.StepSynthesizer}
	if !slices.Equal(res.Path, want) {
		t.Errorf("Path = %v, want %v", res.Path, want)
	}
	if got := res.FinalAnswer(); got != "Error generating answer: service down" {
		t.Errorf("FinalAnswer() = %q", got)
	}
}

func TestScenario_IncompleteRouting(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"missing fields", `{"route_to_case_law": true}`},
		{"unknown fields", `{"unexpected": 1}`},
		{"null flag", `{"route_to_article_search":false,"route_to_case_law":null,"route_to_historical_context":false,"reasoning":"r"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAssistant(t, scripted(tt.reply), store.NewMemStore())

			res := a.Ask(context.Background(), "What is the right to privacy?")

			if !res.Final.RoutingDecision.IsError() {
				t.Errorf("RoutingDecision = %+v, want error marker", res.Final.RoutingDecision)
			}
			want := []graph.StepID{graph.StepRouter, graph.StepSynthesizer}
			if !slices.Equal(res.Path, want) {
				t.Errorf("Path = %v, want %v", res.Path, want)
			}
		})
	}
}

func TestScenario_StepTimeout(t *testing.T) {
	m := &model.MockChatModel{Delay: time.Second, Responses: []model.ChatOut{{Text: "late"}}}
	a := newAssistant(t, m, store.NewMemStore(), graph.WithStepTimeout(10*time.Millisecond))

	res := a.Ask(context.Background(), "What is Article 21?")

	if !res.Final.RoutingDecision.IsError() {
		t.Error("a timed-out router should leave an error marker")
	}
	got := res.FinalAnswer()
	if !strings.HasPrefix(got, "Error generating answer:") || !strings.Contains(got, "deadline exceeded") {
		t.Errorf("FinalAnswer() = %q", got)
	}
}

func TestScenario_Idempotent(t *testing.T) {
	m := scripted(`{"route_to_article_search":false,"route_to_case_law":true,"route_to_historical_context":false,"reasoning":""}`)
	a := newAssistant(t, m, store.NewMemStore())

	first := a.Ask(context.Background(), "Is privacy a fundamental right?")
	second := a.Ask(context.Background(), "Is privacy a fundamental right?")

	if first.FinalAnswer() != second.FinalAnswer() {
		t.Errorf("answers differ:\n%q\n%q", first.FinalAnswer(), second.FinalAnswer())
	}
	if first.RunID == second.RunID {
		t.Error("each run should get its own id")
	}
}

func TestScenario_FanOut(t *testing.T) {
	st := store.NewMemStore()
	_, err := st.AddPassages(context.Background(), []store.Passage{
		{Source: "constitution.txt", Text: "Article 21. No person shall be deprived of his life or personal liberty."},
	})
	if err != nil {
		t.Fatalf("AddPassages: %v", err)
	}
	m := scripted(`{"route_to_article_search":true,"route_to_case_law":true,"route_to_historical_context":true,"reasoning":"broad"}`)
	a := newAssistant(t, m, st, graph.WithFanOut(3))

	res := a.Ask(context.Background(), "Was privacy under Article 21 abrogated?")

	want := []graph.StepID{graph.StepRouter, graph.StepArticleSearch, graph.StepCaseLaw, graph.StepHistoricalContext, graph.StepSynthesizer}
	if !slices.Equal(res.Path, want) {
		t.Fatalf("Path = %v, want %v", res.Path, want)
	}
	f := res.Final
	if len(f.RelevantArticles) != 1 || len(f.RelevantCases) != 1 || len(f.HistoricalContext) != 1 {
		t.Errorf("every specialist should contribute: %+v", f)
	}
	for _, part := range []string{"personal liberty", "Puttaswamy", "Jammu and Kashmir"} {
		if !strings.Contains(res.FinalAnswer(), part) {
			t.Errorf("answer is missing %q", part)
		}
	}
}

func TestAssistant_Stream(t *testing.T) {
	m := scripted(`{"route_to_article_search":false,"route_to_case_law":false,"route_to_historical_context":false,"reasoning":"general"}`)
	a := newAssistant(t, m, nil)

	var steps []graph.StepID
	for snap := range a.Stream(context.Background(), "What is a preamble?") {
		steps = append(steps, snap.Step)
	}
	want := []graph.StepID{graph.StepRouter, graph.StepSynthesizer, graph.End}
	if !slices.Equal(steps, want) {
		t.Errorf("streamed %v, want %v", steps, want)
	}
}
