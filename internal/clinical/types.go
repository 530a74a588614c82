// Package clinical holds the shared data model for cases, findings and
// model outputs. Everything here is plain data and safe to copy.
package clinical

import "fmt"

// Polarity is the stance a finding takes on a pathology.
type Polarity string

const (
	PolarityPresent   Polarity = "present"
	PolarityAbsent    Polarity = "absent"
	PolarityUncertain Polarity = "uncertain"
)

// Valid reports whether p is one of the three known polarities.
func (p Polarity) Valid() bool {
	switch p {
	case PolarityPresent, PolarityAbsent, PolarityUncertain:
		return true
	}
	return false
}

// ParsePolarity accepts the canonical names plus a few common aliases.
func ParsePolarity(s string) (Polarity, error) {
	switch s {
	case "present", "positive", "":
		return PolarityPresent, nil
	case "absent", "negative":
		return PolarityAbsent, nil
	case "uncertain", "possible":
		return PolarityUncertain, nil
	}
	return "", fmt.Errorf("unknown polarity %q", s)
}

// Finding is a clinical observation expressed in canonical vocabulary terms.
type Finding struct {
	CanonicalID   string   `json:"canonicalId"`
	BodyRegion    string   `json:"bodyRegion,omitempty"`
	PathologyType string   `json:"pathologyType,omitempty"`
	Polarity      Polarity `json:"polarity"`
}

// Key is the alignment key of a finding.
func (f Finding) Key() Key {
	return Key{CanonicalID: f.CanonicalID, Polarity: f.Polarity}
}

// Key identifies a finding for matching purposes.
type Key struct {
	CanonicalID string
	Polarity    Polarity
}

// Case is a reference study with its authoritative findings. Cases are
// loaded once and never mutated while serving submissions.
type Case struct {
	ID                  string    `json:"id"`
	GroundTruthFindings []Finding `json:"groundTruthFindings"`
	ImageRef            string    `json:"imageRef"`
	PatientInfo         string    `json:"patientInfo,omitempty"`
}

// Clone returns a deep copy so callers can't alias the stored slice.
func (c Case) Clone() Case {
	out := c
	out.GroundTruthFindings = append([]Finding(nil), c.GroundTruthFindings...)
	return out
}

// Span is a half-open character range [Start, End) into the normalized
// report text. Offsets count runes, not bytes.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Len returns the span length in runes.
func (s Span) Len() int { return s.End - s.Start }

// Contains reports whether o lies entirely inside s.
func (s Span) Contains(o Span) bool {
	return o.Start >= s.Start && o.End <= s.End
}

// Overlaps reports whether the two spans share at least one rune.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// ExtractedFinding is a finding asserted by report text. CanonicalID is
// empty when the mention could not be mapped to the vocabulary.
type ExtractedFinding struct {
	SourceSpan  Span     `json:"sourceSpan"`
	CanonicalID string   `json:"canonicalId,omitempty"`
	Polarity    Polarity `json:"polarity"`
	Confidence  float64  `json:"confidence"`
}

// Classified reports whether the mention maps to a vocabulary entry.
func (e ExtractedFinding) Classified() bool { return e.CanonicalID != "" }

// ImagePrediction is a model-estimated finding for an image.
type ImagePrediction struct {
	CanonicalID string  `json:"canonicalId"`
	Confidence  float64 `json:"confidence"`
}
