package scoring

import (
	"github.com/abhisek/radgrade/internal/align"
	"github.com/abhisek/radgrade/internal/clinical"
	"github.com/abhisek/radgrade/internal/vocab"
)

// Observation is a pillar 1 item: something the report got right.
type Observation struct {
	CanonicalID string            `json:"canonicalId"`
	Name        string            `json:"name"`
	Polarity    clinical.Polarity `json:"polarity"`
	Kind        align.Kind        `json:"kind"`
	Evidence    []clinical.Span   `json:"evidence"`
	Sources     []align.Source    `json:"sources"`
}

// Omission is a pillar 2 item: a referenced finding the report left out.
type Omission struct {
	CanonicalID       string            `json:"canonicalId"`
	Name              string            `json:"name"`
	Expected          clinical.Polarity `json:"expected"`
	Criticality       vocab.Criticality `json:"criticality"`
	Severity          float64           `json:"severity"`
	PertinentNegative bool              `json:"pertinentNegative"`
	ImageConfidence   float64           `json:"imageConfidence,omitempty"`
	Sources           []align.Source    `json:"sources"`
}

// Misinterpretation is a pillar 3 item: a contradiction or over-call.
type Misinterpretation struct {
	CanonicalID string            `json:"canonicalId"`
	Name        string            `json:"name"`
	Kind        align.Kind        `json:"kind"`
	Expected    clinical.Polarity `json:"expected,omitempty"`
	Reported    clinical.Polarity `json:"reported"`
	Criticality vocab.Criticality `json:"criticality"`
	Severity    float64           `json:"severity"`
	Evidence    []clinical.Span   `json:"evidence"`
}

// Clarity is pillar 4. When Computed is false the report text was never
// analyzed and every score is zero.
type Clarity struct {
	Computed bool    `json:"computed"`
	Score    float64 `json:"score"`

	LengthScore     float64 `json:"lengthScore"`
	TemplateScore   float64 `json:"templateScore"`
	VocabularyScore float64 `json:"vocabularyScore"`

	Sentences         int      `json:"sentences"`
	Words             int      `json:"words"`
	MeanSentenceWords float64  `json:"meanSentenceWords"`
	UnclassifiedRatio float64  `json:"unclassifiedRatio"`
	MissingSections   []string `json:"missingSections"`
	StyleNotes        []string `json:"styleNotes"`
}

// RecommendationKind tags the source of a pillar 5 item.
type RecommendationKind string

const (
	RecommendOmission          RecommendationKind = "omission"
	RecommendPertinentNegative RecommendationKind = "pertinent-negative"
	RecommendContradiction     RecommendationKind = "contradiction"
	RecommendOvercall          RecommendationKind = "overcall"
	RecommendTip               RecommendationKind = "tip"
)

// Recommendation is a pillar 5 item.
type Recommendation struct {
	CanonicalID string             `json:"canonicalId,omitempty"`
	Kind        RecommendationKind `json:"kind"`
	Severity    float64            `json:"severity"`
	Text        string             `json:"text"`
}

// Counts tallies the items behind the summary score.
type Counts struct {
	Correct                  int `json:"correct"`
	MissedPresent            int `json:"missedPresent"`
	MissedPertinentNegatives int `json:"missedPertinentNegatives"`
	Contradictions           int `json:"contradictions"`
	Overcalls                int `json:"overcalls"`
	StyleNotes               int `json:"styleNotes"`
}

// Summary is the overall 0..100 grade.
type Summary struct {
	Computed bool   `json:"computed"`
	Score    int    `json:"score"`
	Counts   Counts `json:"counts"`
}

// Result carries the five pillars plus the summary. Every slice is
// non-nil.
type Result struct {
	Pillar1 []Observation       `json:"pillar1"`
	Pillar2 []Omission          `json:"pillar2"`
	Pillar3 []Misinterpretation `json:"pillar3"`
	Pillar4 Clarity             `json:"pillar4"`
	Pillar5 []Recommendation    `json:"pillar5"`
	Summary Summary             `json:"summary"`
}
