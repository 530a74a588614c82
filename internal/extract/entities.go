package extract

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/abhisek/radgrade/internal/model"
	"github.com/abhisek/radgrade/internal/vocab"
)

// OutcomeKind classifies the result of normalizing one mention.
type OutcomeKind string

const (
	Matched      OutcomeKind = "matched"
	Unclassified OutcomeKind = "unclassified"
	Failed       OutcomeKind = "failed"
)

// Outcome is the explicit result of mapping a mention to the vocabulary.
type Outcome struct {
	Kind       OutcomeKind
	ConceptID  string
	Similarity float64
	Err        error
}

// ResolveLabels picks the concept for one mention from the text model's
// labels. The highest similarity at or above threshold wins, ties going
// to the lowest id. Below threshold the mention is unclassified and the
// best similarity seen is kept.
func ResolveLabels(labels []model.Label, threshold float64) Outcome {
	best := Outcome{Kind: Unclassified}
	for _, l := range labels {
		switch {
		case l.Confidence > best.Similarity:
		case l.Confidence == best.Similarity && best.ConceptID != "" && l.ConceptID < best.ConceptID:
		default:
			continue
		}
		best.Similarity = l.Confidence
		best.ConceptID = l.ConceptID
	}
	if best.ConceptID != "" && best.Similarity >= threshold {
		best.Kind = Matched
		return best
	}
	return Outcome{Kind: Unclassified, Similarity: best.Similarity}
}

// termIndex supports longest-first lexical matching of vocabulary terms.
type termIndex struct {
	byFirst map[string][]termSeq
}

type termSeq struct {
	tokens []string
	id     string
}

func newTermIndex(v *vocab.Vocabulary) termIndex {
	idx := termIndex{byFirst: make(map[string][]termSeq)}
	for _, t := range v.Terms() {
		f := strings.Fields(t.Phrase)
		if len(f) == 0 {
			continue
		}
		idx.byFirst[f[0]] = append(idx.byFirst[f[0]], termSeq{tokens: f, id: t.EntryID})
	}
	for _, seqs := range idx.byFirst {
		sort.SliceStable(seqs, func(i, j int) bool { return len(seqs[i].tokens) > len(seqs[j].tokens) })
	}
	return idx
}

// lexicalHit is a vocabulary term found verbatim in a sentence.
type lexicalHit struct {
	tokenRange
	id string
}

// matchTerms finds non-overlapping vocabulary terms, longest first and
// then leftmost.
func (idx termIndex) matchTerms(tokens []Token, claimed []bool) []lexicalHit {
	var all []lexicalHit
	for i, t := range tokens {
		if t.Punct {
			continue
		}
		for _, seq := range idx.byFirst[t.Text] {
			if matchAt(tokens, i, seq.tokens) {
				all = append(all, lexicalHit{tokenRange{i, i + len(seq.tokens)}, seq.id})
			}
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		li, lj := all[i].to-all[i].from, all[j].to-all[j].from
		if li != lj {
			return li > lj
		}
		return all[i].from < all[j].from
	})

	var out []lexicalHit
	for _, h := range all {
		if anyClaimed(claimed, h.from, h.to) {
			continue
		}
		claim(claimed, h.from, h.to)
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].from < out[j].from })
	return out
}

// matchModifiers finds modifier occurrences on unclaimed tokens. A phrase
// listed in several roles yields one hit per role on the same range.
func (c compiledLexicon) matchModifiers(tokens []Token, claimed []bool) []modifierHit {
	var hits []modifierHit
	owner := make([]tokenRange, len(tokens))
	for i := range owner {
		owner[i] = tokenRange{-1, -1}
	}
	for _, p := range c.modifiers {
		n := len(p.tokens)
		for i := range tokens {
			if !matchAt(tokens, i, p.tokens) || anyClaimed(claimed, i, i+n) {
				continue
			}
			free := true
			for k := i; k < i+n; k++ {
				if o := owner[k]; o.from >= 0 && (o.from != i || o.to != i+n) {
					free = false
					break
				}
			}
			if !free {
				continue
			}
			for k := i; k < i+n; k++ {
				owner[k] = tokenRange{i, i + n}
			}
			hits = append(hits, modifierHit{from: i, to: i + n, kind: p.kind, dir: p.dir})
		}
	}
	for _, h := range hits {
		claim(claimed, h.from, h.to)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].from < hits[j].from })
	return hits
}

func (c compiledLexicon) matchTerminators(tokens []Token, claimed []bool) []tokenRange {
	var out []tokenRange
	for _, seq := range c.terminators {
		for i := range tokens {
			if matchAt(tokens, i, seq) && !anyClaimed(claimed, i, i+len(seq)) {
				claim(claimed, i, i+len(seq))
				out = append(out, tokenRange{i, i + len(seq)})
			}
		}
	}
	for i := 0; i+1 < len(tokens); i++ {
		if tokens[i].Text == "," && !tokens[i+1].Punct && c.openers[tokens[i+1].Text] {
			out = append(out, tokenRange{i, i + 1})
		}
	}
	return out
}

// separators split candidate chunks without being modifiers themselves.
var separators = map[string]bool{
	"and": true, "or": true, "with": true, "plus": true, "also": true, "as": true,
	"well": true, "then": true, "while": true, "due": true, "to": true,
}

// fillers carry no finding on their own: function words, reporting
// verbs, anatomy and descriptors.
var fillers = map[string]bool{
	"a": true, "an": true, "the": true, "this": true, "that": true, "these": true, "those": true,
	"there": true, "is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"has": true, "have": true, "had": true, "it": true, "its": true, "of": true, "in": true,
	"at": true, "on": true, "by": true, "for": true, "from": true, "into": true, "within": true,
	"seen": true, "noted": true, "identified": true, "present": true, "evidence": true,
	"appears": true, "appear": true, "demonstrated": true, "visualized": true, "shown": true,
	"small": true, "large": true, "mild": true, "mildly": true, "moderate": true, "severe": true,
	"minimal": true, "trace": true, "tiny": true, "slight": true, "significant": true,
	"left": true, "right": true, "bilateral": true, "bilaterally": true, "lower": true,
	"upper": true, "middle": true, "mid": true, "lobe": true, "lobes": true, "base": true,
	"bases": true, "basilar": true, "apex": true, "apical": true, "zone": true, "zones": true,
	"side": true, "sided": true, "lung": true, "lungs": true, "field": true, "fields": true,
	"chest": true, "thorax": true, "heart": true, "cardiac": true, "size": true, "silhouette": true,
	"new": true, "old": true, "stable": true, "unchanged": true, "acute": true, "chronic": true,
	"interval": true, "again": true, "compared": true, "prior": true, "previous": true,
	"study": true, "exam": true, "image": true, "film": true, "view": true, "views": true,
	"frontal": true, "lateral": true, "pa": true, "ap": true, "portable": true, "patient": true,
	"normal": true, "unremarkable": true, "intact": true, "clear": true, "limits": true,
	"grossly": true, "otherwise": true, "overall": true, "some": true, "any": true,
	"definite": true, "obvious": true, "focal": true, "diffuse": true, "very": true,
	"i": true, "we": true, "think": true, "see": true, "looks": true, "like": true,
	"findings": true, "finding": true, "impression": true, "consistent": true, "compatible": true,
	"cm": true, "mm": true, "measuring": true, "approximately": true, "about": true,
}

// candidate is an unmatched content chunk offered to the text model.
type candidate struct {
	tokenRange
	text string
}

// candidates groups unclaimed word tokens into chunks split at
// punctuation, claimed tokens and separators, and strips filler words.
func candidates(tokens []Token, claimed []bool) []candidate {
	var out []candidate
	var chunk []int
	flush := func() {
		var content []int
		for _, i := range chunk {
			t := tokens[i].Text
			if fillers[t] || utf8.RuneCountInString(t) < 3 || isNumeric(t) {
				continue
			}
			content = append(content, i)
		}
		chunk = chunk[:0]
		if len(content) == 0 {
			return
		}
		parts := make([]string, len(content))
		for k, i := range content {
			parts[k] = tokens[i].Text
		}
		out = append(out, candidate{
			tokenRange: tokenRange{content[0], content[len(content)-1] + 1},
			text:       strings.Join(parts, " "),
		})
	}

	for i, t := range tokens {
		if t.Punct || claimed[i] || separators[t.Text] {
			flush()
			continue
		}
		chunk = append(chunk, i)
	}
	flush()
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return s != ""
}

func anyClaimed(claimed []bool, from, to int) bool {
	for k := from; k < to; k++ {
		if claimed[k] {
			return true
		}
	}
	return false
}

func claim(claimed []bool, from, to int) {
	for k := from; k < to; k++ {
		claimed[k] = true
	}
}
