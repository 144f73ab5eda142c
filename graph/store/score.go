package store

import (
	"sort"
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "do": true, "does": true, "for": true,
	"from": true, "how": true, "i": true, "in": true, "is": true, "it": true,
	"me": true, "of": true, "on": true, "or": true, "tell": true, "that": true,
	"the": true, "this": true, "to": true, "was": true, "what": true,
	"when": true, "which": true, "who": true, "why": true, "with": true,
	"about": true,
}

// Terms splits query into lower-case search terms, dropping punctuation,
// stopwords and duplicates. Order of first appearance is kept.
func Terms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// score counts how often each term occurs in text. Every distinct matching
// term adds a bonus so passages covering more of the query rank higher than
// passages repeating one term.
func score(text string, terms []string) float64 {
	lower := strings.ToLower(text)
	var total float64
	for _, t := range terms {
		if n := strings.Count(lower, t); n > 0 {
			total += 1 + float64(n)
		}
	}
	return total
}

// rank scores candidates against terms, drops non-matches and returns the
// top k, highest score first and lowest ID first on ties.
func rank(candidates []Passage, terms []string, k int) []Passage {
	out := make([]Passage, 0, len(candidates))
	for _, p := range candidates {
		s := score(p.Text, terms)
		if s == 0 {
			continue
		}
		p.Score = s
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})

	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
