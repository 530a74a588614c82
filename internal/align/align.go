// Package align reconciles ground truth, image predictions and report
// findings into the correct, missed and misinterpreted partitions.
package align

import (
	"sort"

	"github.com/abhisek/radgrade/internal/clinical"
)

// Kind explains why an entry landed in its partition.
type Kind string

const (
	// KindConfirmed: the report states a referenced finding with the
	// expected polarity.
	KindConfirmed Kind = "confirmed"
	// KindPertinentNegative: the report excludes a finding the closed-world
	// ground truth does not list.
	KindPertinentNegative Kind = "pertinent-negative"
	// KindOmission: a referenced finding the report never mentions.
	KindOmission Kind = "omission"
	// KindContradiction: the report mentions a referenced finding with a
	// different or uncertain polarity.
	KindContradiction Kind = "contradiction"
	// KindOvercall: the report asserts a finding no reference supports.
	KindOvercall Kind = "overcall"
)

// Source names where an entry's evidence came from.
type Source string

const (
	SourceGroundTruth Source = "ground-truth"
	SourceImage       Source = "image"
	SourceReport      Source = "report"
)

// Entry is one canonical id's alignment outcome.
type Entry struct {
	// Finding carries the reference polarity, or the reported polarity
	// for ids no reference mentions.
	Finding  clinical.Finding  `json:"finding"`
	Expected clinical.Polarity `json:"expected,omitempty"`
	Reported clinical.Polarity `json:"reported,omitempty"`
	Kind     Kind              `json:"kind"`
	Sources  []Source          `json:"sources"`
	Evidence []clinical.Span   `json:"evidence,omitempty"`
	// ImageConfidence is the model confidence when the image predicted
	// this id, including when ground truth overrides it.
	ImageConfidence float64 `json:"imageConfidence,omitempty"`
	// Order ranks entries by report appearance, then ground truth order,
	// then image order.
	Order int `json:"order"`
}

// HasSource reports whether s contributed to the entry.
func (e Entry) HasSource(s Source) bool {
	for _, x := range e.Sources {
		if x == s {
			return true
		}
	}
	return false
}

// Result holds the three disjoint partitions, each sorted by Order.
type Result struct {
	Correct        []Entry `json:"correct"`
	Missed         []Entry `json:"missed"`
	Misinterpreted []Entry `json:"misinterpreted"`
}

// Inputs are the three finding sources. Image predictions must already
// be filtered to those above threshold. Unclassified extracted findings
// are ignored.
type Inputs struct {
	GroundTruth []clinical.Finding
	Image       []clinical.ImagePrediction
	Extracted   []clinical.ExtractedFinding
}

// Options tunes alignment policy.
type Options struct {
	// ClosedWorldGroundTruth treats ground truth as the complete list of
	// abnormalities, so a reported absent finding it does not list is a
	// correct pertinent negative rather than an over-call. Default: true.
	ClosedWorldGroundTruth bool
}

// DefaultOptions returns the default policy.
func DefaultOptions() Options {
	return Options{ClosedWorldGroundTruth: true}
}

type idState struct {
	id string

	gt      *clinical.Finding
	gtIndex int

	image      bool
	imageConf  float64
	imageIndex int

	mentions []clinical.ExtractedFinding
}

// Align partitions every canonical id in the union of the inputs. It is
// a pure function of its arguments.
func Align(in Inputs, opts Options) Result {
	states := make(map[string]*idState)
	get := func(id string) *idState {
		s, ok := states[id]
		if !ok {
			s = &idState{id: id, gtIndex: -1, imageIndex: -1}
			states[id] = s
		}
		return s
	}

	for i, f := range in.GroundTruth {
		s := get(f.CanonicalID)
		if s.gt == nil {
			f := f
			s.gt = &f
			s.gtIndex = i
		}
	}
	for i, p := range in.Image {
		s := get(p.CanonicalID)
		if !s.image {
			s.imageIndex = i
		}
		if !s.image || p.Confidence > s.imageConf {
			s.imageConf = p.Confidence
		}
		s.image = true
	}
	for _, f := range in.Extracted {
		if !f.Classified() {
			continue
		}
		s := get(f.CanonicalID)
		s.mentions = append(s.mentions, f)
	}

	entries := make([]Entry, 0, len(states))
	for _, s := range states {
		entries = append(entries, s.entry(opts))
	}
	assignOrder(entries, states)

	var res Result
	for _, e := range entries {
		switch e.Kind {
		case KindConfirmed, KindPertinentNegative:
			res.Correct = append(res.Correct, e)
		case KindOmission:
			res.Missed = append(res.Missed, e)
		default:
			res.Misinterpreted = append(res.Misinterpreted, e)
		}
	}
	res.Correct = nonNil(res.Correct)
	res.Missed = nonNil(res.Missed)
	res.Misinterpreted = nonNil(res.Misinterpreted)
	return res
}

func (s *idState) entry(opts Options) Entry {
	e := Entry{Finding: clinical.Finding{CanonicalID: s.id}}

	referenced := false
	switch {
	case s.gt != nil:
		e.Finding = *s.gt
		e.Expected = s.gt.Polarity
		e.Sources = append(e.Sources, SourceGroundTruth)
		referenced = true
	case s.image:
		e.Finding.Polarity = clinical.PolarityPresent
		e.Expected = clinical.PolarityPresent
		referenced = true
	}
	if s.image {
		e.Sources = append(e.Sources, SourceImage)
		e.ImageConfidence = s.imageConf
	}

	if len(s.mentions) > 0 {
		e.Sources = append(e.Sources, SourceReport)
		e.Reported = stance(s.mentions)
		for _, m := range s.mentions {
			e.Evidence = append(e.Evidence, m.SourceSpan)
		}
		sort.Slice(e.Evidence, func(i, j int) bool { return e.Evidence[i].Start < e.Evidence[j].Start })
	}

	switch {
	case referenced && len(s.mentions) == 0:
		e.Kind = KindOmission
	case referenced && e.Reported == e.Expected:
		e.Kind = KindConfirmed
	case referenced:
		e.Kind = KindContradiction
	case e.Reported == clinical.PolarityAbsent && opts.ClosedWorldGroundTruth:
		e.Finding.Polarity = clinical.PolarityAbsent
		e.Kind = KindPertinentNegative
	default:
		e.Finding.Polarity = e.Reported
		e.Kind = KindOvercall
	}
	return e
}

// stance is the shared polarity of all mentions, or uncertain when the
// report contradicts itself.
func stance(mentions []clinical.ExtractedFinding) clinical.Polarity {
	p := mentions[0].Polarity
	for _, m := range mentions[1:] {
		if m.Polarity != p {
			return clinical.PolarityUncertain
		}
	}
	return p
}

func assignOrder(entries []Entry, states map[string]*idState) {
	type key struct {
		group, pos int
		id         string
	}
	keyOf := func(e Entry) key {
		s := states[e.Finding.CanonicalID]
		switch {
		case len(e.Evidence) > 0:
			return key{0, e.Evidence[0].Start, e.Finding.CanonicalID}
		case s.gt != nil:
			return key{1, s.gtIndex, e.Finding.CanonicalID}
		default:
			return key{2, s.imageIndex, e.Finding.CanonicalID}
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := keyOf(entries[i]), keyOf(entries[j])
		if a.group != b.group {
			return a.group < b.group
		}
		if a.pos != b.pos {
			return a.pos < b.pos
		}
		return a.id < b.id
	})
	for i := range entries {
		entries[i].Order = i
	}
}

func nonNil(es []Entry) []Entry {
	if es == nil {
		return []Entry{}
	}
	return es
}
