package store

import (
	"reflect"
	"testing"
)

func TestTerms(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"What is the right to privacy?", []string{"right", "privacy"}},
		{"Tell me about Article 370 abrogation", []string{"article", "370", "abrogation"}},
		{"liberty, LIBERTY and liberty!", []string{"liberty"}},
		{"", nil},
		{"what is the", nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := Terms(tt.query)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Terms(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestRank_CoverageBeatsRepetition(t *testing.T) {
	candidates := []Passage{
		{ID: 1, Text: "liberty liberty liberty"},
		{ID: 2, Text: "personal liberty and life"},
		{ID: 3, Text: "unrelated text"},
	}

	got := rank(candidates, []string{"personal", "liberty", "life"}, 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0].ID != 2 {
		t.Errorf("expected passage 2 first, got %d", got[0].ID)
	}
}

func TestRank_TiesBreakByID(t *testing.T) {
	candidates := []Passage{
		{ID: 7, Text: "equality"},
		{ID: 3, Text: "equality"},
	}

	got := rank(candidates, []string{"equality"}, 1)
	if len(got) != 1 || got[0].ID != 3 {
		t.Errorf("expected lowest ID on tie, got %+v", got)
	}
}
