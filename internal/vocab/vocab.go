// Package vocab provides the canonical finding vocabulary. Every other
// component identifies findings by the IDs defined here.
package vocab

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// Criticality ranks how clinically consequential a finding is.
type Criticality string

const (
	CriticalityCritical Criticality = "critical"
	CriticalityHigh     Criticality = "high"
	CriticalityModerate Criticality = "moderate"
	CriticalityLow      Criticality = "low"
)

var criticalityWeights = map[Criticality]float64{
	CriticalityCritical: 4,
	CriticalityHigh:     3,
	CriticalityModerate: 2,
	CriticalityLow:      1,
}

// Weight returns the numeric weight used for severity ranking, or 0 for
// an unknown level.
func (c Criticality) Weight() float64 {
	return criticalityWeights[c]
}

// Valid reports whether c is a known level.
func (c Criticality) Valid() bool {
	_, ok := criticalityWeights[c]
	return ok
}

// Entry is one canonical finding.
type Entry struct {
	ID            string
	Name          string
	Synonyms      []string
	BodyRegion    string
	PathologyType string
	Category      string
	Criticality   Criticality
}

// Term is a surface phrase that resolves to a vocabulary entry.
type Term struct {
	Phrase  string
	EntryID string
}

// Vocabulary is an immutable, versioned set of entries. It is safe for
// concurrent use.
type Vocabulary struct {
	version string
	entries map[string]*Entry
	ordered []*Entry
	byTerm  map[string]string
	terms   []Term
}

// New indexes entries and validates the vocabulary invariants: semver
// version, unique IDs, and no phrase resolving to two different entries.
func New(version string, entries []Entry) (*Vocabulary, error) {
	if !ValidVersion(version) {
		return nil, fmt.Errorf("vocabulary version %q is not semantic", version)
	}

	v := &Vocabulary{
		version: version,
		entries: make(map[string]*Entry, len(entries)),
		byTerm:  make(map[string]string),
	}

	for i := range entries {
		e := entries[i]
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			return nil, fmt.Errorf("entry %d: empty canonical id", i)
		}
		if _, dup := v.entries[e.ID]; dup {
			return nil, fmt.Errorf("duplicate canonical id %q", e.ID)
		}
		if !e.Criticality.Valid() {
			return nil, fmt.Errorf("entry %q: unknown criticality %q", e.ID, e.Criticality)
		}
		if e.Name == "" {
			e.Name = e.ID
		}
		e.Synonyms = append([]string(nil), e.Synonyms...)

		v.entries[e.ID] = &e
		v.ordered = append(v.ordered, &e)

		for _, phrase := range append([]string{e.Name, idPhrase(e.ID)}, e.Synonyms...) {
			p := NormalizeTerm(phrase)
			if p == "" {
				continue
			}
			if owner, ok := v.byTerm[p]; ok {
				if owner == e.ID {
					continue
				}
				return nil, fmt.Errorf("term %q maps to both %q and %q", p, owner, e.ID)
			}
			v.byTerm[p] = e.ID
		}
	}

	sort.Slice(v.ordered, func(i, j int) bool { return v.ordered[i].ID < v.ordered[j].ID })

	for p, id := range v.byTerm {
		v.terms = append(v.terms, Term{Phrase: p, EntryID: id})
	}
	sort.Slice(v.terms, func(i, j int) bool {
		wi, wj := strings.Count(v.terms[i].Phrase, " "), strings.Count(v.terms[j].Phrase, " ")
		if wi != wj {
			return wi > wj
		}
		if len(v.terms[i].Phrase) != len(v.terms[j].Phrase) {
			return len(v.terms[i].Phrase) > len(v.terms[j].Phrase)
		}
		return v.terms[i].Phrase < v.terms[j].Phrase
	})

	return v, nil
}

// Version returns the vocabulary version string.
func (v *Vocabulary) Version() string { return v.version }

// Len returns the number of entries.
func (v *Vocabulary) Len() int { return len(v.ordered) }

// Lookup returns a copy of the entry for id.
func (v *Vocabulary) Lookup(id string) (Entry, bool) {
	e, ok := v.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Has reports whether id is a canonical id.
func (v *Vocabulary) Has(id string) bool {
	_, ok := v.entries[id]
	return ok
}

// Resolve maps an id, name or synonym to its canonical id.
func (v *Vocabulary) Resolve(phrase string) (string, bool) {
	if _, ok := v.entries[phrase]; ok {
		return phrase, true
	}
	id, ok := v.byTerm[NormalizeTerm(phrase)]
	return id, ok
}

// Entries returns all entries sorted by id.
func (v *Vocabulary) Entries() []Entry {
	out := make([]Entry, len(v.ordered))
	for i, e := range v.ordered {
		out[i] = *e
	}
	return out
}

// Terms returns every surface phrase, longest (by word count) first.
func (v *Vocabulary) Terms() []Term {
	return append([]Term(nil), v.terms...)
}

// ValidVersion reports whether s is a semantic version, with or without
// the leading "v".
func ValidVersion(s string) bool {
	if s == "" {
		return false
	}
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	return semver.IsValid(s)
}

// NormalizeTerm lowercases a phrase and collapses separators to single spaces.
func NormalizeTerm(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func idPhrase(id string) string {
	return strings.ReplaceAll(id, "_", " ")
}
