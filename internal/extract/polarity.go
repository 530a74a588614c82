package extract

import "github.com/abhisek/radgrade/internal/clinical"

// DefaultScopeWindow is the number of words a modifier reaches across.
const DefaultScopeWindow = 6

// tokenRange is a half-open range of token indices within a sentence.
type tokenRange struct{ from, to int }

// scopeAnalysis is what polarity resolution needs to know about one
// sentence.
type scopeAnalysis struct {
	tokens      []Token
	modifiers   []modifierHit
	terminators []tokenRange
	window      int
}

// polarityOf resolves the stance on the entity at tokens [from, to). The
// nearest modifier whose scope covers the entity decides; on a distance
// tie the longer phrase wins. Affirmations only apply when strictly
// nearer than any negation or hedge. With no covering modifier the
// finding is present.
func (a scopeAnalysis) polarityOf(from, to int) clinical.Polarity {
	best := -1
	bestDist := 0
	for i, m := range a.modifiers {
		dist, ok := a.reach(m, from, to)
		if !ok {
			continue
		}
		if best < 0 || dist < bestDist || (dist == bestDist && a.preferOnTie(m, a.modifiers[best])) {
			best, bestDist = i, dist
		}
	}
	if best < 0 {
		return clinical.PolarityPresent
	}
	switch a.modifiers[best].kind {
	case Negation:
		return clinical.PolarityAbsent
	case Hedge:
		return clinical.PolarityUncertain
	}
	return clinical.PolarityPresent
}

// reach returns the word distance between modifier and entity when the
// modifier's scope covers the entity.
func (a scopeAnalysis) reach(m modifierHit, from, to int) (int, bool) {
	var gapFrom, gapTo int
	switch m.dir {
	case Pre:
		if m.to > from {
			return 0, false
		}
		gapFrom, gapTo = m.to, from
	case Post:
		if m.from < to {
			return 0, false
		}
		gapFrom, gapTo = to, m.from
	}

	for _, t := range a.terminators {
		if t.from >= gapFrom && t.to <= gapTo {
			return 0, false
		}
	}
	dist := 0
	for _, t := range a.tokens[gapFrom:gapTo] {
		if !t.Punct {
			dist++
		}
	}
	if a.window > 0 && dist > a.window {
		return 0, false
	}
	return dist, true
}

func (a scopeAnalysis) preferOnTie(m, current modifierHit) bool {
	if (m.kind == Affirmation) != (current.kind == Affirmation) {
		return current.kind == Affirmation
	}
	if lm, lc := m.to-m.from, current.to-current.from; lm != lc {
		return lm > lc
	}
	if m.kind != current.kind {
		return m.kind < current.kind
	}
	return m.dir == Pre && current.dir == Post
}
