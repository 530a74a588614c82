package model

import (
	"context"
	"sort"

	"github.com/abhisek/radgrade/internal/vocab"
)

// DefaultTopK bounds the labels a text model returns per mention.
const DefaultTopK = 3

// LexicalText scores mentions against every vocabulary term by
// character-trigram Dice similarity. It needs no external resources and
// is the default text model.
type LexicalText struct {
	terms   []termGrams
	version string
	topK    int
}

type termGrams struct {
	entryID string
	grams   map[string]int
	size    int
}

// NewLexicalText indexes the terms of v.
func NewLexicalText(v *vocab.Vocabulary, topK int) *LexicalText {
	if topK <= 0 {
		topK = DefaultTopK
	}
	terms := v.Terms()
	idx := make([]termGrams, 0, len(terms))
	for _, t := range terms {
		g, n := trigrams(t.Phrase)
		idx = append(idx, termGrams{entryID: t.EntryID, grams: g, size: n})
	}
	return &LexicalText{terms: idx, version: v.Version(), topK: topK}
}

func (m *LexicalText) Name() string { return "lexical-trigram" }
func (m *LexicalText) Kind() Kind   { return KindText }

// Version follows the vocabulary, since scores depend only on its terms.
func (m *LexicalText) Version() string { return m.version }

func (m *LexicalText) Predict(ctx context.Context, in Input) ([]Label, error) {
	var out []Label
	for i, mention := range in.Mentions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g, n := trigrams(vocab.NormalizeTerm(mention))
		if n == 0 {
			continue
		}
		best := make(map[string]float64)
		for _, t := range m.terms {
			s := dice(g, n, t.grams, t.size)
			if s > best[t.entryID] {
				best[t.entryID] = s
			}
		}
		out = append(out, topLabels(best, i, m.topK)...)
	}
	return out, nil
}

// topLabels returns the k highest scores for one mention, ties broken by
// concept id.
func topLabels(scores map[string]float64, mention, k int) []Label {
	labels := make([]Label, 0, len(scores))
	for id, s := range scores {
		if s <= 0 {
			continue
		}
		labels = append(labels, Label{ConceptID: id, Confidence: s, Mention: mention})
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Confidence != labels[j].Confidence {
			return labels[i].Confidence > labels[j].Confidence
		}
		return labels[i].ConceptID < labels[j].ConceptID
	})
	if len(labels) > k {
		labels = labels[:k]
	}
	return labels
}

func trigrams(s string) (map[string]int, int) {
	if s == "" {
		return nil, 0
	}
	r := []rune(" " + s + " ")
	if len(r) < 3 {
		return nil, 0
	}
	g := make(map[string]int, len(r))
	n := 0
	for i := 0; i+3 <= len(r); i++ {
		g[string(r[i:i+3])]++
		n++
	}
	return g, n
}

func dice(a map[string]int, na int, b map[string]int, nb int) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	shared := 0
	for k, ca := range a {
		if cb, ok := b[k]; ok {
			shared += min(ca, cb)
		}
	}
	return 2 * float64(shared) / float64(na+nb)
}
