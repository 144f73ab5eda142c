package graph

import (
	"slices"
	"testing"
)

func TestDecisionRouter(t *testing.T) {
	tests := []struct {
		name     string
		decision *RoutingDecision
		route    Label
		all      []Label
	}{
		{"nil decision", nil, LabelSynthesize, []Label{LabelSynthesize}},
		{"error marker", ErrorDecision("timeout"), LabelSynthesize, []Label{LabelSynthesize}},
		{
			"error marker ignores flags",
			&RoutingDecision{GotoCaseLaw: true, Err: "unparseable"},
			LabelSynthesize,
			[]Label{LabelSynthesize},
		},
		{"all false", &RoutingDecision{}, LabelSynthesize, []Label{LabelSynthesize}},
		{"article only", &RoutingDecision{GotoArticleSearch: true}, LabelArticleSearch, []Label{LabelArticleSearch}},
		{"case law only", &RoutingDecision{GotoCaseLaw: true}, LabelCaseLaw, []Label{LabelCaseLaw}},
		{"history only", &RoutingDecision{GotoHistoricalContext: true}, LabelHistoricalContext, []Label{LabelHistoricalContext}},
		{
			"every flag",
			&RoutingDecision{GotoArticleSearch: true, GotoCaseLaw: true, GotoHistoricalContext: true},
			LabelArticleSearch,
			[]Label{LabelArticleSearch, LabelCaseLaw, LabelHistoricalContext},
		},
		{
			"case law and history",
			&RoutingDecision{GotoCaseLaw: true, GotoHistoricalContext: true},
			LabelCaseLaw,
			[]Label{LabelCaseLaw, LabelHistoricalContext},
		},
	}

	r := DecisionRouter{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState("q", nil)
			s.RoutingDecision = tt.decision

			if got := r.Route(s); got != tt.route {
				t.Errorf("Route() = %s, want %s", got, tt.route)
			}
			if got := r.RouteAll(s); !slices.Equal(got, tt.all) {
				t.Errorf("RouteAll() = %v, want %v", got, tt.all)
			}
		})
	}
}

func TestDecisionRouter_LabelsIsACopy(t *testing.T) {
	labels := DecisionRouter{}.Labels()
	labels[0] = "mutated"
	if Labels[0] != LabelArticleSearch {
		t.Error("Labels() exposed the package slice")
	}
}

func TestRouterFunc(t *testing.T) {
	r := RouterFunc(func(s State) Label {
		if s.Query == "cases" {
			return LabelCaseLaw
		}
		return "bogus"
	})

	if got := r.Route(State{Query: "cases"}); got != LabelCaseLaw {
		t.Errorf("Route() = %s", got)
	}
	if got := r.Route(State{Query: "other"}); got != LabelSynthesize {
		t.Errorf("unknown label should map to synthesize, got %s", got)
	}
	if !slices.Equal(r.Labels(), Labels) {
		t.Errorf("Labels() = %v", r.Labels())
	}
}

func TestLabelValid(t *testing.T) {
	for _, l := range Labels {
		if !l.Valid() {
			t.Errorf("%s should be valid", l)
		}
	}
	if Label("summarize").Valid() {
		t.Error("unknown label reported valid")
	}
}
