// Package store holds the corpus passages that the article-search step
// retrieves from, with in-memory, SQLite and MySQL backends.
package store

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Passage is one chunk of corpus text.
type Passage struct {
	// ID is assigned by the store on insert.
	ID int64 `json:"id"`

	// Source identifies the document the chunk came from, usually a path.
	Source string `json:"source"`

	// Ordinal is the chunk's position within its source, starting at 0.
	Ordinal int `json:"ordinal"`

	Text string `json:"text"`

	// Score is the relevance assigned by Search. Higher is better.
	// Zero for passages that did not come from a search.
	Score float64 `json:"score,omitempty"`
}

// Retriever finds the passages most relevant to a query.
//
// Search returns at most k passages, most relevant first. A query with no
// searchable terms returns an empty slice and no error.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]Passage, error)
}

// Writer adds passages to a corpus.
//
// AddPassages replaces any passages previously stored for the same sources,
// so re-ingesting a document does not duplicate it. It returns the number of
// passages written.
type Writer interface {
	AddPassages(ctx context.Context, passages []Passage) (int, error)
}

// Store is a complete passage backend.
type Store interface {
	Retriever
	Writer

	// Count returns the number of stored passages.
	Count(ctx context.Context) (int, error)

	Close() error
}

// Texts returns the text of each passage, preserving order.
func Texts(passages []Passage) []string {
	out := make([]string, 0, len(passages))
	for _, p := range passages {
		out = append(out, p.Text)
	}
	return out
}

func distinctSources(passages []Passage) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range passages {
		if !seen[p.Source] {
			seen[p.Source] = true
			out = append(out, p.Source)
		}
	}
	return out
}
