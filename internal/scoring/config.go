package scoring

import (
	"fmt"

	"github.com/abhisek/radgrade/internal/vocab"
)

// Config holds the grading policy knobs.
type Config struct {
	// OvercallFactor scales the severity of an over-call relative to a
	// contradiction.
	OvercallFactor float64 `yaml:"overcallFactor"`
	// PertinentNegativeFactor scales the severity of a missed absent
	// reference.
	PertinentNegativeFactor float64 `yaml:"pertinentNegativeFactor"`
	// DefaultCriticality applies to ids the vocabulary has no entry for.
	DefaultCriticality vocab.Criticality `yaml:"defaultCriticality"`

	Clarity ClarityConfig `yaml:"clarity"`
	Style   StyleConfig   `yaml:"style"`
}

// ClarityConfig tunes pillar 4.
type ClarityConfig struct {
	MinWords int      `yaml:"minWords"`
	MaxWords int      `yaml:"maxWords"`
	Sections []string `yaml:"sections"`

	LengthWeight     float64 `yaml:"lengthWeight"`
	TemplateWeight   float64 `yaml:"templateWeight"`
	VocabularyWeight float64 `yaml:"vocabularyWeight"`
}

// StyleConfig drives the style notes attached to pillar 4.
type StyleConfig struct {
	Unprofessional []string `yaml:"unprofessional"`
	BriefWords     int      `yaml:"briefWords"`
	LongWords      int      `yaml:"longWords"`
}

// DefaultConfig returns the stock grading policy.
func DefaultConfig() Config {
	return Config{
		OvercallFactor:          0.75,
		PertinentNegativeFactor: 0.5,
		DefaultCriticality:      vocab.CriticalityModerate,
		Clarity: ClarityConfig{
			MinWords:         3,
			MaxWords:         25,
			Sections:         []string{"Findings", "Impression"},
			LengthWeight:     0.35,
			TemplateWeight:   0.35,
			VocabularyWeight: 0.30,
		},
		Style: StyleConfig{
			Unprofessional: []string{"i think", "looks like", "maybe a", "stuff", "bad finding"},
			BriefWords:     15,
			LongWords:      100,
		},
	}
}

// Validate checks factor ranges and clarity bounds.
func (c Config) Validate() error {
	if c.OvercallFactor < 0 || c.OvercallFactor > 1 {
		return fmt.Errorf("scoring.overcallFactor must be in [0,1], got %v", c.OvercallFactor)
	}
	if c.PertinentNegativeFactor < 0 || c.PertinentNegativeFactor > 1 {
		return fmt.Errorf("scoring.pertinentNegativeFactor must be in [0,1], got %v", c.PertinentNegativeFactor)
	}
	if !c.DefaultCriticality.Valid() {
		return fmt.Errorf("scoring.defaultCriticality: unknown level %q", c.DefaultCriticality)
	}
	cl := c.Clarity
	if cl.MinWords < 1 || cl.MaxWords < cl.MinWords {
		return fmt.Errorf("scoring.clarity: invalid sentence bounds [%d,%d]", cl.MinWords, cl.MaxWords)
	}
	if cl.LengthWeight < 0 || cl.TemplateWeight < 0 || cl.VocabularyWeight < 0 {
		return fmt.Errorf("scoring.clarity: weights must be non-negative")
	}
	if cl.LengthWeight+cl.TemplateWeight+cl.VocabularyWeight == 0 {
		return fmt.Errorf("scoring.clarity: weights sum to zero")
	}
	if c.Style.BriefWords < 0 || (c.Style.LongWords > 0 && c.Style.LongWords < c.Style.BriefWords) {
		return fmt.Errorf("scoring.style: invalid word limits %d/%d", c.Style.BriefWords, c.Style.LongWords)
	}
	return nil
}
