package qa

import (
	"context"
	"errors"
	"strings"

	"github.com/dshills/lexgraph/graph"
	"github.com/dshills/lexgraph/graph/ctxlog"
	"github.com/dshills/lexgraph/graph/store"
)

// DefaultTopK is the number of passages ArticleSearch retrieves when K is
// not set.
const DefaultTopK = 4

var (
	errNoModel     = errors.New("no generation model configured")
	errNoRetriever = errors.New("no retriever configured")
)

// ArticleSearch retrieves constitutional passages for the query from the
// state's retriever. Retrieval failures leave the article list empty.
type ArticleSearch struct {
	K int
}

// Run implements graph.Step.
func (a ArticleSearch) Run(ctx context.Context, s graph.State) graph.State {
	s.RelevantArticles = []string{}
	if s.Retriever == nil {
		graph.RecordFailure(ctx, &graph.CollaboratorError{Step: graph.StepArticleSearch, Op: "search", Err: errNoRetriever})
		return s
	}

	k := a.K
	if k <= 0 {
		k = DefaultTopK
	}
	passages, err := s.Retriever.Search(ctx, s.Query, k)
	if err != nil {
		graph.RecordFailure(ctx, &graph.CollaboratorError{Step: graph.StepArticleSearch, Op: "search", Err: err})
		return s
	}

	s.RelevantArticles = store.Texts(passages)
	ctxlog.FromContext(ctx).Debug("articles retrieved", "count", len(passages))
	return s
}

// topic is a fixed snippet returned when the query mentions any keyword.
type topic struct {
	keywords []string
	snippet  string
}

func (t topic) matches(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range t.keywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

var (
	puttaswamy = topic{
		keywords: []string{"privacy", "puttaswamy"},
		snippet:  "K.S. Puttaswamy v. Union of India (2017) - Right to Privacy under Article 21.",
	}
	article370 = topic{
		keywords: []string{"article 370", "abrogated"},
		snippet:  "Article 370 was a temporary provision for Jammu and Kashmir, abrogated on August 5, 2019.",
	}
)

// matchTopics returns the snippet of every topic the query mentions.
func matchTopics(query string, topics ...topic) []string {
	out := []string{}
	for _, t := range topics {
		if t.matches(query) {
			out = append(out, t.snippet)
		}
	}
	return out
}

// CaseLaw matches the query against landmark judgments.
type CaseLaw struct{}

// Run implements graph.Step.
func (CaseLaw) Run(ctx context.Context, s graph.State) graph.State {
	s.RelevantCases = matchTopics(s.Query, puttaswamy)
	ctxlog.FromContext(ctx).Debug("case law matched", "count", len(s.RelevantCases))
	return s
}

// HistoricalContext matches the query against constitutional history.
type HistoricalContext struct{}

// Run implements graph.Step.
func (HistoricalContext) Run(ctx context.Context, s graph.State) graph.State {
	s.HistoricalContext = matchTopics(s.Query, article370)
	ctxlog.FromContext(ctx).Debug("history matched", "count", len(s.HistoricalContext))
	return s
}
