package store

import (
	"strings"
	"unicode/utf8"
)

// Default chunking parameters for corpus ingestion.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var separators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts documents into overlapping chunks of at most Size runes.
//
// It prefers to break on paragraph boundaries, then lines, then words, and
// only splits inside a word when a single word exceeds Size. Consecutive
// chunks share up to Overlap runes of trailing context.
type Splitter struct {
	Size    int
	Overlap int
}

// DefaultSplitter returns a Splitter with the default parameters.
func DefaultSplitter() Splitter {
	return Splitter{Size: DefaultChunkSize, Overlap: DefaultChunkOverlap}
}

func (s Splitter) normalized() Splitter {
	if s.Size <= 0 {
		s.Size = DefaultChunkSize
	}
	if s.Overlap < 0 || s.Overlap >= s.Size {
		s.Overlap = 0
	}
	return s
}

// Split returns the chunks of text in document order. Blank input yields no
// chunks.
func (s Splitter) Split(text string) []string {
	s = s.normalized()
	var out []string
	for _, c := range s.split(text, separators) {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func (s Splitter) split(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	var rest []string
	for i, candidate := range seps {
		if candidate == "" {
			sep = ""
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = seps[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = runeChunks(text, s.Size)
	} else {
		pieces = strings.Split(text, sep)
	}

	var out, fits []string
	for _, p := range pieces {
		if utf8.RuneCountInString(p) <= s.Size {
			fits = append(fits, p)
			continue
		}
		if len(fits) > 0 {
			out = append(out, s.merge(fits, sep)...)
			fits = nil
		}
		if len(rest) == 0 {
			out = append(out, p)
		} else {
			out = append(out, s.split(p, rest)...)
		}
	}
	if len(fits) > 0 {
		out = append(out, s.merge(fits, sep)...)
	}
	return out
}

// merge packs pieces into chunks no longer than Size, carrying up to Overlap
// runes of the previous chunk's tail into the next one.
func (s Splitter) merge(pieces []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)
	var (
		out     []string
		current []string
		total   int
	)

	joinLen := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n+joinLen() > s.Size && len(current) > 0 {
			out = append(out, strings.Join(current, sep))
			for total > s.Overlap || (total+n+joinLen() > s.Size && total > 0) {
				drop := utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		total += n + joinLen()
		current = append(current, p)
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, sep))
	}
	return out
}

func runeChunks(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}
