package extract

import (
	"sort"
	"strings"
)

// ModifierKind is the effect a modifier has on the polarity of the
// findings it scopes over.
type ModifierKind int

const (
	Negation ModifierKind = iota
	Hedge
	// Affirmation asserts presence and shields a finding from a more
	// distant negation: "no effusion, cardiomegaly is present".
	Affirmation
)

func (k ModifierKind) String() string {
	switch k {
	case Hedge:
		return "hedge"
	case Affirmation:
		return "affirmation"
	}
	return "negation"
}

// Direction is the side of the modifier its scope extends to.
type Direction int

const (
	// Pre modifiers precede the finding: "no effusion".
	Pre Direction = iota
	// Post modifiers follow it: "effusion is not seen".
	Post
)

// Directional lists phrases by scope direction.
type Directional struct {
	Pre  []string `yaml:"pre"`
	Post []string `yaml:"post"`
}

// Lexicon is the configurable modifier vocabulary.
type Lexicon struct {
	Negation    Directional `yaml:"negation"`
	Hedge       Directional `yaml:"hedge"`
	Affirmation Directional `yaml:"affirmation"`
	Terminators []string    `yaml:"terminators"`

	// ClauseOpeners are words that start a new clause when they follow a
	// comma: "no pneumothorax, mild cardiomegaly". A comma before a
	// finding keeps the list in scope: "no pneumothorax, effusion".
	ClauseOpeners []string `yaml:"clauseOpeners"`
}

// DefaultLexicon covers common negation and hedging in chest radiograph
// reports.
func DefaultLexicon() Lexicon {
	return Lexicon{
		Negation: Directional{
			Pre: []string{
				"no", "not", "without", "negative for", "no evidence of", "no signs of",
				"no sign of", "clear of", "free of", "absence of", "rules out", "ruled out",
				"resolution of", "resolved", "never", "nor",
			},
			Post: []string{
				"absent", "not seen", "not identified", "not present", "not visualized",
				"not demonstrated", "ruled out", "has resolved", "resolved", "is absent",
			},
		},
		Hedge: Directional{
			Pre: []string{
				"possible", "possibly", "probable", "probably", "likely", "maybe", "may be",
				"may represent", "could be", "could represent", "might be", "suspicious for",
				"concerning for", "suggestive of", "questionable", "cannot exclude",
				"can not exclude", "cannot rule out", "differential includes", "equivocal",
				"suspected", "presumed", "perhaps",
			},
			Post: []string{
				"cannot be excluded", "not excluded", "is possible", "is suspected",
				"suspected", "is questioned", "not ruled out", "is likely",
			},
		},
		Affirmation: Directional{
			Pre: []string{"there is", "there are", "demonstrates", "shows", "showing"},
			Post: []string{
				"is present", "are present", "is seen", "are seen", "is noted", "are noted",
				"is identified", "are identified", "is again seen", "persists",
			},
		},
		Terminators: []string{
			"but", "however", "although", "though", "except", "which", "yet",
			"whereas", "aside from", "apart from", "other than",
		},
		ClauseOpeners: []string{
			"mild", "mildly", "moderate", "moderately", "severe", "marked", "small", "large",
			"minimal", "trace", "tiny", "slight", "new", "stable", "persistent", "chronic",
			"acute", "increased", "decreased", "enlarged", "there", "demonstrates", "shows",
		},
	}
}

type phrase struct {
	tokens []string
	kind   ModifierKind
	dir    Direction
}

// compiledLexicon holds phrases sorted longest first.
type compiledLexicon struct {
	modifiers   []phrase
	terminators [][]string
	openers     map[string]bool
}

func (l Lexicon) compile() compiledLexicon {
	var c compiledLexicon
	add := func(list []string, kind ModifierKind, dir Direction) {
		for _, p := range list {
			if f := strings.Fields(strings.ToLower(p)); len(f) > 0 {
				c.modifiers = append(c.modifiers, phrase{tokens: f, kind: kind, dir: dir})
			}
		}
	}
	add(l.Negation.Pre, Negation, Pre)
	add(l.Negation.Post, Negation, Post)
	add(l.Hedge.Pre, Hedge, Pre)
	add(l.Hedge.Post, Hedge, Post)
	add(l.Affirmation.Pre, Affirmation, Pre)
	add(l.Affirmation.Post, Affirmation, Post)
	sort.SliceStable(c.modifiers, func(i, j int) bool {
		return len(c.modifiers[i].tokens) > len(c.modifiers[j].tokens)
	})

	for _, t := range l.Terminators {
		if f := strings.Fields(strings.ToLower(t)); len(f) > 0 {
			c.terminators = append(c.terminators, f)
		}
	}
	sort.SliceStable(c.terminators, func(i, j int) bool {
		return len(c.terminators[i]) > len(c.terminators[j])
	})

	c.openers = make(map[string]bool, len(l.ClauseOpeners))
	for _, w := range l.ClauseOpeners {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			c.openers[w] = true
		}
	}
	return c
}

// modifierHit is a modifier occurrence in a sentence, as a token range.
type modifierHit struct {
	from, to int
	kind     ModifierKind
	dir      Direction
}

// matchAt reports whether seq matches the word tokens starting at i.
// Punctuation never matches.
func matchAt(tokens []Token, i int, seq []string) bool {
	if i+len(seq) > len(tokens) {
		return false
	}
	for k, w := range seq {
		t := tokens[i+k]
		if t.Punct || t.Text != w {
			return false
		}
	}
	return true
}
