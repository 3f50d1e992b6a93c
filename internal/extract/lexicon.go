package extract

import (
	"strings"
	"sync"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// Term maps a keyword to a label. A keyword matches at the start of a word;
// a trailing space in Word also anchors the end ("villa " does not match
// "villaggio"). Words are folded like the text they are matched against.
type Term struct {
	Word  string
	Label string
}

// Lexicon is an ordered keyword table backed by one Aho-Corasick automaton.
// Lookups resolve to the earliest table entry present in the text.
type Lexicon struct {
	words  []string
	labels []string

	mu      sync.Mutex // the matcher keeps per-call marks internally
	matcher *ahocorasick.Matcher
}

func NewLexicon(terms []Term) *Lexicon {
	l := &Lexicon{}
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		w := " " + FoldKey(t.Word)
		if strings.HasSuffix(t.Word, " ") {
			w += " "
		}
		if _, dup := seen[w]; dup || strings.TrimSpace(w) == "" {
			continue
		}
		seen[w] = struct{}{}
		l.words = append(l.words, w)
		l.labels = append(l.labels, t.Label)
	}
	if len(l.words) > 0 {
		l.matcher = ahocorasick.NewStringMatcher(l.words)
	}
	return l
}

func (l *Lexicon) hits(text string) []int {
	if l.matcher == nil {
		return nil
	}
	in := []byte(" " + FoldKey(text) + " ")
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.matcher.Match(in)
}

// First returns the label of the earliest table entry found in text.
func (l *Lexicon) First(text string) (string, bool) {
	hits := l.hits(text)
	if len(hits) == 0 {
		return "", false
	}
	best := hits[0]
	for _, h := range hits[1:] {
		if h < best {
			best = h
		}
	}
	return l.labels[best], true
}

// Labels returns the distinct labels found in text, in table order.
func (l *Lexicon) Labels(text string) []string {
	hits := l.hits(text)
	if len(hits) == 0 {
		return nil
	}
	found := make([]bool, len(l.words))
	for _, h := range hits {
		found[h] = true
	}
	var out []string
	seen := map[string]bool{}
	for i, ok := range found {
		if ok && !seen[l.labels[i]] {
			seen[l.labels[i]] = true
			out = append(out, l.labels[i])
		}
	}
	return out
}

// Has reports whether any entry with the given label is present in text.
func (l *Lexicon) Has(text, label string) bool {
	for _, got := range l.Labels(text) {
		if got == label {
			return true
		}
	}
	return false
}
